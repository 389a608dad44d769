package retrieval

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	cosineWeight    = 0.82
	hitRateWeight   = 0.18
	phraseBonusStep = 0.12
	phraseBonusCap  = 0.36
	scoreCap        = 1.2
	minPhraseRunes  = 4
)

// cosine returns the cosine similarity of a and b, 0 when either has zero norm.
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywordHits counts keywords contained in the lower-cased text.
func keywordHits(lower string, keywords []string) int {
	hits := 0
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			hits++
		}
	}
	return hits
}

func hitRate(lower string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	return float64(keywordHits(lower, keywords)) / float64(len(keywords))
}

// phraseBonus rewards chunks containing a query variant verbatim.
func phraseBonus(lower string, variants []string) float64 {
	bonus := 0.0
	for _, v := range variants {
		if utf8.RuneCountInString(v) < minPhraseRunes {
			continue
		}
		if strings.Contains(lower, strings.ToLower(v)) {
			bonus += phraseBonusStep
		}
	}
	return math.Min(bonus, phraseBonusCap)
}

// hybridScore blends the best variant cosine, mapped to [0,1], with lexical signals.
func hybridScore(bestCosine, hits, bonus float64) float64 {
	score := cosineWeight*((bestCosine+1)/2) + hitRateWeight*hits + bonus
	return math.Min(score, scoreCap)
}
