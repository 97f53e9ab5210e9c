package vectorstore

import "testing"

func TestSimilarityFromDistance(t *testing.T) {
	if got := SimilarityFromDistance(0); got != 1.0 {
		t.Errorf("distance 0: got %v, want 1.0", got)
	}
	if got := SimilarityFromDistance(1); got != 0.5 {
		t.Errorf("distance 1: got %v, want 0.5", got)
	}
	// Negative distances clamp to zero.
	if got := SimilarityFromDistance(-3); got != 1.0 {
		t.Errorf("negative distance: got %v, want 1.0", got)
	}

	prev := 1.1
	for _, d := range []float64{0, 0.5, 1, 2, 10, 100} {
		s := SimilarityFromDistance(d)
		if s <= 0 || s > 1 {
			t.Errorf("distance %v: similarity %v out of (0, 1]", d, s)
		}
		if s >= prev {
			t.Errorf("similarity not strictly decreasing at distance %v", d)
		}
		prev = s
	}
}
