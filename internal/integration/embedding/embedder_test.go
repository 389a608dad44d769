package embedding

import (
	"context"
	"testing"
	"time"

	"github.com/futig/risk-report-backend/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type backendMock struct {
	mock.Mock
}

func (m *backendMock) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	args := m.Called(ctx, inputs)
	vecs, _ := args.Get(0).([][]float32)
	return vecs, args.Error(1)
}

func (m *backendMock) BaseURL() string { return "http://embed.local" }

func (m *backendMock) Model() string { return "m1" }

func vec(v ...float32) []float32 { return v }

func TestCachedEmbedder_CachesAndDedupes(t *testing.T) {
	backend := &backendMock{}
	backend.On("EmbedBatch", mock.Anything, []string{"a", "b"}).
		Return([][]float32{vec(1, 0), vec(0, 1)}, nil).Once()

	cache := NewCache(time.Hour, time.Hour)
	e := NewCachedEmbedder(backend, cache, 10, 2)

	out, err := e.Embed(context.Background(), []string{"a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{vec(1, 0), vec(0, 1), vec(1, 0)}, out)
	assert.Equal(t, 2, cache.Len())

	// served from cache, no further backend call
	out, err = e.Embed(context.Background(), []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{vec(0, 1)}, out)

	backend.AssertExpectations(t)
}

func TestCachedEmbedder_Batches(t *testing.T) {
	backend := &backendMock{}
	backend.On("EmbedBatch", mock.Anything, []string{"a", "b"}).
		Return([][]float32{vec(1), vec(2)}, nil).Once()
	backend.On("EmbedBatch", mock.Anything, []string{"c", "d"}).
		Return([][]float32{vec(3), vec(4)}, nil).Once()
	backend.On("EmbedBatch", mock.Anything, []string{"e"}).
		Return([][]float32{vec(5)}, nil).Once()

	e := NewCachedEmbedder(backend, NewCache(time.Hour, time.Hour), 2, 2)

	out, err := e.Embed(context.Background(), []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{vec(1), vec(2), vec(3), vec(4), vec(5)}, out)
	backend.AssertExpectations(t)
}

func TestCachedEmbedder_DimensionMismatchAcrossBatches(t *testing.T) {
	backend := &backendMock{}
	backend.On("EmbedBatch", mock.Anything, []string{"a"}).Return([][]float32{vec(1, 2)}, nil)
	backend.On("EmbedBatch", mock.Anything, []string{"b"}).Return([][]float32{vec(1, 2, 3)}, nil)

	cache := NewCache(time.Hour, time.Hour)
	e := NewCachedEmbedder(backend, cache, 1, 1)

	_, err := e.Embed(context.Background(), []string{"a", "b"})
	require.ErrorIs(t, err, entity.ErrEmbedding)
	assert.Contains(t, err.Error(), "inconsistent dimensionality")
	assert.Equal(t, 0, cache.Len())
}

func TestCachedEmbedder_BackendError(t *testing.T) {
	backend := &backendMock{}
	backend.On("EmbedBatch", mock.Anything, []string{"a"}).
		Return(nil, &entity.EmbeddingError{Reason: "backend returned status 500"})

	cache := NewCache(time.Hour, time.Hour)
	_, err := NewCachedEmbedder(backend, cache, 4, 1).Embed(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, entity.ErrEmbedding)
	assert.Equal(t, 0, cache.Len())
}

func TestCachedEmbedder_Empty(t *testing.T) {
	backend := &backendMock{}
	out, err := NewCachedEmbedder(backend, NewCache(time.Hour, time.Hour), 4, 1).Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	backend.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
}

func TestKey_SeparatesBackends(t *testing.T) {
	assert.Equal(t, Key("u", "m", "t"), Key("u", "m", "t"))
	assert.NotEqual(t, Key("u", "m", "t"), Key("u", "m2", "t"))
	assert.NotEqual(t, Key("u", "m", "t"), Key("u2", "m", "t"))
	assert.Len(t, Key("u", "m", "t"), 64)
}
