package preferences

import "testing"

func TestTokenOverlapPolicyDuplicate(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name      string
		existing  string
		candidate string
		want      bool
	}{
		{"identical", "prefers concise summaries", "prefers concise summaries", true},
		{"case and punctuation", "Prefers concise summaries.", "prefers CONCISE summaries", true},
		{"high overlap", "prefers concise news summaries", "prefers concise summaries", true},
		{"disjoint", "prefers concise summaries", "avoids celebrity gossip", false},
		{"partial overlap below threshold", "likes technology news", "likes sports coverage and games", false},
		{"empty candidate", "prefers concise summaries", "", false},
		{"both empty", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Duplicate(tt.existing, tt.candidate); got != tt.want {
				t.Errorf("Duplicate(%q, %q) = %v, want %v", tt.existing, tt.candidate, got, tt.want)
			}
		})
	}
}

func TestTokenOverlapThresholdBoundary(t *testing.T) {
	// Five shared tokens out of five vs six gives Jaccard 5/6; three of
	// five shared gives 3/7. The 0.6 threshold separates them.
	p := TokenOverlapPolicy{Threshold: 0.6}

	above := p.Duplicate("a b c d e", "a b c d e f")
	if !above {
		t.Error("jaccard 5/6 should be a duplicate at threshold 0.6")
	}
	below := p.Duplicate("a b c d e", "a b c x y")
	if below {
		t.Error("jaccard 3/7 should not be a duplicate at threshold 0.6")
	}
	// Exactly at the threshold: 3 shared of 5 union (a b c vs a b c d e)
	// is 3/5 = 0.6, which counts as a duplicate.
	at := p.Duplicate("a b c", "a b c d e")
	if !at {
		t.Error("jaccard exactly 0.6 should be a duplicate")
	}
}

func TestCombineConfidenceMax(t *testing.T) {
	p := DefaultPolicy()
	if got := p.Combine(0.4, 0.9); got != 0.9 {
		t.Errorf("Combine(0.4, 0.9) = %v", got)
	}
	if got := p.Combine(0.9, 0.4); got != 0.9 {
		t.Errorf("Combine(0.9, 0.4) = %v", got)
	}
}

func TestNormalize(t *testing.T) {
	got := normalize("  Prefers, CONCISE  summaries!  ")
	if got != "prefers concise summaries" {
		t.Errorf("normalize = %q", got)
	}
}
