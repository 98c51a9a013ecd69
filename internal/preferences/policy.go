package preferences

import (
	"strings"
	"unicode"
)

// MergePolicy decides whether a candidate duplicates an existing
// preference and how their confidences combine. Implementations must be
// deterministic for identical inputs.
type MergePolicy interface {
	Duplicate(existing, candidate string) bool
	Combine(existing, candidate float64) float64
}

// TokenOverlapPolicy treats two preference texts as duplicates when
// their normalized token sets overlap by at least Threshold (Jaccard),
// or when the normalized texts match exactly. Confidence merges by max.
type TokenOverlapPolicy struct {
	Threshold float64
}

// DefaultPolicy returns the policy used in production.
func DefaultPolicy() TokenOverlapPolicy {
	return TokenOverlapPolicy{Threshold: 0.6}
}

func (p TokenOverlapPolicy) Duplicate(existing, candidate string) bool {
	a := normalize(existing)
	b := normalize(candidate)
	if a == b {
		return true
	}
	return jaccard(tokens(a), tokens(b)) >= p.Threshold
}

func (p TokenOverlapPolicy) Combine(existing, candidate float64) float64 {
	if candidate > existing {
		return candidate
	}
	return existing
}

func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func tokens(normalized string) map[string]bool {
	out := make(map[string]bool)
	for _, tok := range strings.Fields(normalized) {
		out[tok] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
