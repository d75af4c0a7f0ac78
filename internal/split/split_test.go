package split

import (
	"testing"

	"github.com/ahmedaabouzied/gbdt/internal/histogram"
)

func hist(entries map[uint32]histogram.GH) *histogram.Histogram {
	h := &histogram.Histogram{Bins: make(map[uint32]histogram.GH)}
	for bin, gh := range entries {
		h.Bins[bin] = gh
	}
	return h
}

func TestFindNumericClearSplit(t *testing.T) {
	// bin 1: two low-gradient rows, bin 2: two high-gradient rows.
	h := hist(map[uint32]histogram.GH{
		0: {G: 0, H: 0},
		1: {G: -10, H: 2},
		2: {G: 10, H: 2},
	})
	p := Params{Lambda: 1, MinNodeHess: 0}
	c := FindNumeric(h, 3, p, false)
	if c == nil {
		t.Fatal("expected a split")
	}
	if c.ColID != 3 || c.Kind != NumericThreshold {
		t.Errorf("unexpected candidate: %+v", c)
	}
	if c.Gain <= 0 {
		t.Errorf("gain = %v, want > 0", c.Gain)
	}
}

func TestFindNumericRespectsMinNodeHess(t *testing.T) {
	h := hist(map[uint32]histogram.GH{
		1: {G: 1, H: 0.01},
		2: {G: 1, H: 0.01},
	})
	p := Params{Lambda: 1, MinNodeHess: 1.0}
	c := FindNumeric(h, 0, p, false)
	if c != nil {
		t.Errorf("expected no split with high MinNodeHess, got %+v", c)
	}
}

func TestFindNumericRankingKind(t *testing.T) {
	h := hist(map[uint32]histogram.GH{
		1: {G: -10, H: 2},
		2: {G: 10, H: 2},
	})
	p := Params{Lambda: 1}
	c := FindNumeric(h, 0, p, true)
	if c == nil || c.Kind != RankingThreshold {
		t.Errorf("expected RankingThreshold candidate, got %+v", c)
	}
}

func TestFindCategoricalBruteFindsPartition(t *testing.T) {
	// 3 categories: bins 1,2 should separate from bin 3.
	h := hist(map[uint32]histogram.GH{
		1: {G: -5, H: 1},
		2: {G: -5, H: 1},
		3: {G: 10, H: 1},
	})
	p := Params{Lambda: 1, MaxBruteBins: 8}
	c := FindCategoricalBrute(h, 0, p)
	if c == nil {
		t.Fatal("expected a categorical split")
	}
	if c.Kind != CategoricalSet {
		t.Errorf("expected CategoricalSet kind, got %v", c.Kind)
	}
}

func TestFindCategoricalSortedMatchesBruteQuality(t *testing.T) {
	h := hist(map[uint32]histogram.GH{
		1: {G: -5, H: 1},
		2: {G: -5, H: 1},
		3: {G: 10, H: 1},
		4: {G: 10, H: 1},
	})
	p := Params{Lambda: 1}
	brute := FindCategoricalBrute(h, 0, Params{Lambda: 1, MaxBruteBins: 8})
	sorted := FindCategoricalSorted(h, 0, p)
	if brute == nil || sorted == nil {
		t.Fatal("expected both to find a split")
	}
	if sorted.Gain < brute.Gain-1e-9 {
		t.Errorf("sorted gain %v should be at least as good as a reasonable split (brute best %v)", sorted.Gain, brute.Gain)
	}
}

func TestLeafWeightNewtonRaphson(t *testing.T) {
	p := Params{Lambda: 1}
	w := LeafWeight(12, 3, p)
	want := -12.0 / 4.0
	if w != want {
		t.Errorf("LeafWeight = %v, want %v", w, want)
	}
}

func TestBestTieBreakDeterministic(t *testing.T) {
	a := &Candidate{ColID: 5, Gain: 1.0, Threshold: 2}
	b := &Candidate{ColID: 2, Gain: 1.0, Threshold: 2}
	winner := Best([]*Candidate{a, b})
	if winner.ColID != 2 {
		t.Errorf("expected lower colId to win tie, got colId=%d", winner.ColID)
	}
}

func TestBestNilSafe(t *testing.T) {
	if Best([]*Candidate{nil, nil}) != nil {
		t.Error("Best of all-nil candidates should be nil")
	}
}
