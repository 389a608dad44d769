package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

const mockDimensions = 64

// MockConnector produces deterministic hashed bag-of-terms vectors, so texts sharing
// terms end up close to each other.
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{logger: logger}
}

func (m *MockConnector) BaseURL() string { return "mock://embeddings" }

func (m *MockConnector) Model() string { return "mock-embedding" }

func (m *MockConnector) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	ctxzap.Debug(ctx, "[MOCK] embedding batch", zap.Int("batch_size", len(inputs)))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(inputs))
	for i, text := range inputs {
		vectors[i] = mockVector(text)
	}
	return vectors, nil
}

func mockVector(text string) []float32 {
	vec := make([]float32, mockDimensions)
	// constant component keeps the vector non-zero for empty input
	vec[mockDimensions-1] = 0.05

	for _, term := range mockTerms(text) {
		h := fnv.New32a()
		h.Write([]byte(term))
		vec[h.Sum32()%(mockDimensions-1)] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// mockTerms splits text into lowercase latin words and CJK character bigrams.
func mockTerms(text string) []string {
	var terms []string
	var word []rune
	var prevHan rune

	flush := func() {
		if len(word) > 0 {
			terms = append(terms, string(word))
			word = word[:0]
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flush()
			if prevHan != 0 {
				terms = append(terms, string([]rune{prevHan, r}))
			} else {
				terms = append(terms, string(r))
			}
			prevHan = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			prevHan = 0
			word = append(word, r)
		default:
			prevHan = 0
			flush()
		}
	}
	flush()

	return terms
}
