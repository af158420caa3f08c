package similarity

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/sentinelstack/sentinel-heal/internal/models"
)

// signatureFields is the fixed ordered subset of numeric context fields that
// participate in the signature. Keeping the list ordered makes signatures
// stable regardless of map iteration order.
var signatureFields = []string{
	"current_value",
	"threshold",
	"error_rate",
	"p95_ms",
	"memory_ratio",
	"failure_ratio",
	"risk_score",
	"sample_count",
}

// Signature derives the deterministic, order-independent comparison string
// for an issue context. Equal inputs always produce equal signatures.
func Signature(issueType models.IssueType, context map[string]any) string {
	parts := make([]string, 0, len(signatureFields)+2)
	parts = append(parts, string(issueType))

	for _, field := range signatureFields {
		if v, ok := numericContextValue(context, field); ok {
			parts = append(parts, fmt.Sprintf("%s=%.4f", field, v))
		}
	}

	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts = append(parts, "keys:"+strings.Join(keys, ","))

	return strings.Join(parts, " ")
}

// Hash returns a short stable identifier for a signature, used as the
// recency-cache key.
func Hash(signature string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(signature))
	return fmt.Sprintf("%016x", h.Sum64())
}

func numericContextValue(context map[string]any, key string) (float64, bool) {
	v, ok := context[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
