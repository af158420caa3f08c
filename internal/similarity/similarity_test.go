package similarity

import (
	"testing"
)

func TestScoreIdenticalInputs(t *testing.T) {
	e := NewEngine(DefaultWeights(), 0)
	if got := e.Score("high_error_rate current_value=0.2", "high_error_rate current_value=0.2"); got != 1 {
		t.Fatalf("expected identical inputs to score 1, got %f", got)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	e := NewEngine(DefaultWeights(), 0)
	cases := [][2]string{
		{"", ""},
		{"", "high_error_rate"},
		{"high_error_rate", ""},
		{"  \t ", "high_error_rate"},
	}
	for _, c := range cases {
		if got := e.Score(c[0], c[1]); got != 0 {
			t.Fatalf("Score(%q, %q) = %f, expected 0", c[0], c[1], got)
		}
	}
}

func TestScoreSymmetricAndBounded(t *testing.T) {
	e := NewEngine(DefaultWeights(), 0)
	pairs := [][2]string{
		{"high_error_rate current_value=0.25 threshold=0.15", "high_error_rate current_value=0.30 threshold=0.15"},
		{"memory_pressure memory_ratio=0.91", "slow_response p95_ms=2400"},
		{"backpressure queue depth rising", "backpressure queue depth rising fast"},
	}
	for _, p := range pairs {
		ab := e.Score(p[0], p[1])
		ba := e.Score(p[1], p[0])
		if ab != ba {
			t.Fatalf("Score not symmetric for %q/%q: %f vs %f", p[0], p[1], ab, ba)
		}
		if ab < 0 || ab > 1 {
			t.Fatalf("Score out of [0,1] for %q/%q: %f", p[0], p[1], ab)
		}
	}
}

func TestScoreRanksCloserContextsHigher(t *testing.T) {
	e := NewEngine(DefaultWeights(), 0)
	base := "high_error_rate current_value=0.2500 threshold=0.1500 keys:current_value,threshold"
	near := "high_error_rate current_value=0.2600 threshold=0.1500 keys:current_value,threshold"
	far := "memory_pressure memory_ratio=0.9100 keys:memory_ratio"

	if e.Score(base, near) <= e.Score(base, far) {
		t.Fatalf("expected near signature to outrank far signature")
	}
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"High_Error_Rate":           "high error rate",
		"  error\trate   spike ":    "error rate spike",
		"p95=2400.5ms!":             "p95 2400 5ms",
		"Memory-Pressure (ratio:1)": "memory pressure ratio 1",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Fatalf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	in := "High_Error_Rate  current=0.25"
	once := Normalize(in)
	if twice := Normalize(once); twice != once {
		t.Fatalf("Normalize not idempotent: %q vs %q", once, twice)
	}
}

func TestTokenOverlapRespectsMinLength(t *testing.T) {
	e := NewEngine(DefaultWeights(), 3)
	// Tokens shorter than three bytes are dropped from the sets, leaving
	// both sides empty.
	if got := e.tokenOverlap("a b", "a c"); got != 0 {
		t.Fatalf("expected 0 overlap for short tokens, got %f", got)
	}
	if got := e.tokenOverlap("error rate", "error rate"); got != 1 {
		t.Fatalf("expected full overlap, got %f", got)
	}
}

func TestLevenshtein(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Fatalf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestWeightNormalization(t *testing.T) {
	// Double weights must produce the same scores as the defaults.
	a := "high_error_rate current_value=0.2500"
	b := "high_error_rate current_value=0.3100"
	standard := NewEngine(Weights{Token: 0.4, Cosine: 0.4, Edit: 0.2}, 0)
	doubled := NewEngine(Weights{Token: 0.8, Cosine: 0.8, Edit: 0.4}, 0)
	if standard.Score(a, b) != doubled.Score(a, b) {
		t.Fatalf("expected normalized weights to score identically")
	}
}
