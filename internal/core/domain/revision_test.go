package domain

import "testing"

func TestCompareRevisions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1", "2", -1},
		{"10", "9", 1},
		{"007", "7", 0},
		{"42", "42", 0},
		{"", "1", -1},
		{"1", "", 1},
		{"", "", 0},
		{"r1", "r2", -1},
		{"r10", "r9", 1},
		{"abc", "abd", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			if got := CompareRevisions(tt.a, tt.b); got != tt.want {
				t.Errorf("CompareRevisions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestIsNewerRevision(t *testing.T) {
	if !IsNewerRevision("r2", "r1") {
		t.Error("expected r2 newer than r1")
	}
	if IsNewerRevision("r1", "r1") {
		t.Error("equal revision is not newer")
	}
	if IsNewerRevision("r1", "r2") {
		t.Error("older revision is not newer")
	}
}
