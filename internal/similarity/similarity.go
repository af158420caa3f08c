package similarity

import (
	"math"
	"strings"
	"unicode"
)

// Engine scores how alike two normalized text signatures are. It combines
// token-set overlap, frequency-vector cosine similarity, and normalized edit
// distance into a single weighted score in [0,1]. Weights are tunable but the
// combination stays monotonic in each component.
type Engine struct {
	tokenWeight  float64
	cosineWeight float64
	editWeight   float64
	minTokenLen  int
}

// Weights configures the combination used by the engine.
type Weights struct {
	Token  float64
	Cosine float64
	Edit   float64
}

// DefaultWeights returns the standard 0.4/0.4/0.2 combination.
func DefaultWeights() Weights {
	return Weights{Token: 0.4, Cosine: 0.4, Edit: 0.2}
}

// NewEngine constructs an Engine. Non-positive weights fall back to the
// defaults, and the weight sum is normalized to one.
func NewEngine(w Weights, minTokenLen int) *Engine {
	if w.Token <= 0 && w.Cosine <= 0 && w.Edit <= 0 {
		w = DefaultWeights()
	}
	sum := w.Token + w.Cosine + w.Edit
	if sum <= 0 {
		sum = 1
	}
	if minTokenLen <= 0 {
		minTokenLen = 3
	}
	return &Engine{
		tokenWeight:  w.Token / sum,
		cosineWeight: w.Cosine / sum,
		editWeight:   w.Edit / sum,
		minTokenLen:  minTokenLen,
	}
}

// Score returns the combined similarity of a and b in [0,1]. Identical
// non-empty inputs score 1, any comparison against an empty string scores 0,
// and the function is symmetric.
func (e *Engine) Score(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	token := e.tokenOverlap(na, nb)
	cosine := cosineSimilarity(na, nb)
	edit := editSimilarity(na, nb)

	score := e.tokenWeight*token + e.cosineWeight*cosine + e.editWeight*edit
	return clamp01(score)
}

// Normalize lower-cases the text, strips punctuation, and collapses runs of
// whitespace so equal inputs always produce equal normalized forms.
func Normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		default:
			// Punctuation becomes a separator so "error_rate=0.2" still
			// splits into comparable tokens.
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func (e *Engine) tokenOverlap(a, b string) float64 {
	setA := e.tokenSet(a)
	setB := e.tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func (e *Engine) tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		if len(tok) >= e.minTokenLen {
			set[tok] = struct{}{}
		}
	}
	return set
}

func cosineSimilarity(a, b string) float64 {
	freqA := tokenFrequencies(a)
	freqB := tokenFrequencies(b)
	if len(freqA) == 0 || len(freqB) == 0 {
		return 0
	}

	vocab := make(map[string]struct{}, len(freqA)+len(freqB))
	for tok := range freqA {
		vocab[tok] = struct{}{}
	}
	for tok := range freqB {
		vocab[tok] = struct{}{}
	}

	var dot, normA, normB float64
	for tok := range vocab {
		va := float64(freqA[tok])
		vb := float64(freqB[tok])
		dot += va * vb
		normA += va * va
		normB += vb * vb
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range strings.Fields(text) {
		freq[tok]++
	}
	return freq
}

func editSimilarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	return 1 - float64(levenshtein(a, b))/float64(maxLen)
}

// levenshtein computes edit distance over bytes with a two-row table.
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
