// Package split implements spec.md §4.5: given a node histogram, select
// the best split per policy (numeric sort-by-g/h ratio is used only for
// the many-bin categorical case; numeric/ranking columns scan bins in
// their natural ascending order; categorical columns with few non-zero
// bins are brute forced).
package split

import (
	"sort"

	"github.com/ahmedaabouzied/gbdt/internal/histogram"
	"github.com/ahmedaabouzied/gbdt/internal/numeric"
)

// Kind identifies the split representation stored on a tree node,
// matching spec.md §3's splitKind enum.
type Kind int

const (
	NumericThreshold Kind = iota
	CategoricalSet
	RankingThreshold
)

// Params bundles the regularization/gate hyperparameters the split finder
// needs (spec.md §4.5, §6).
type Params struct {
	Alpha       float64 // regAlpha
	Lambda      float64 // regLambda
	MinGain     float64
	MinNodeHess float64
	MaxBruteBins int // categorical columns with <= this many non-zero bins are brute forced
}

// Candidate is the best split found for one column.
type Candidate struct {
	ColID        uint32
	Kind         Kind
	Threshold    uint32   // NumericThreshold/RankingThreshold: go left iff bin <= Threshold
	LeftBins     []uint32 // CategoricalSet: the bins that go left
	MissingLeft  bool     // numeric/ranking only: whether the missing bucket goes left
	Gain         float64
	LeftG, LeftH float64
	RightG, RightH float64
}

// parentScore computes score(G,H) for the whole node, used as the
// subtracted baseline in gain = scoreL + scoreR - scoreParent.
func parentScore(g, h float64, p Params) float64 {
	return numeric.Score(g, h, p.Alpha, p.Lambda)
}

// FindNumeric implements spec.md §4.5's numeric/ranking ordered scan: bins
// are visited in ascending order, maintaining a running left prefix sum,
// and both "missing goes left" and "missing goes right" are tried, keeping
// the better. rankingKind, when true, tags the resulting Candidate.Kind as
// RankingThreshold instead of NumericThreshold — the scan is identical,
// only the on-tree representation differs (spec.md §4.5 "Numeric /
// ranking (ordered bins)").
func FindNumeric(h *histogram.Histogram, colID uint32, p Params, rankingKind bool) *Candidate {
	G, H := h.Total()
	parent := parentScore(G, H, p)
	missing := h.Bins[0]
	bins := h.SortedBins()
	if len(bins) == 0 {
		return nil
	}

	kind := NumericThreshold
	if rankingKind {
		kind = RankingThreshold
	}

	var best *Candidate
	tryScan := func(missingLeft bool) {
		var gl, hl float64
		if missingLeft {
			gl, hl = missing.G, missing.H
		}
		for _, bin := range bins {
			v := h.Bins[bin]
			gl += v.G
			hl += v.H
			gr, hr := G-gl, H-hl
			if hl < p.MinNodeHess || hr < p.MinNodeHess {
				continue
			}
			gain := numeric.Score(gl, hl, p.Alpha, p.Lambda) + numeric.Score(gr, hr, p.Alpha, p.Lambda) - parent
			if gain < p.MinGain {
				continue
			}
			cand := &Candidate{
				ColID: colID, Kind: kind, Threshold: bin, MissingLeft: missingLeft,
				Gain: gain, LeftG: gl, LeftH: hl, RightG: gr, RightH: hr,
			}
			if best == nil || better(cand, best) {
				best = cand
			}
		}
	}
	tryScan(true)
	tryScan(false)
	return best
}

// FindCategoricalBrute implements spec.md §4.5's brute-force categorical
// search: enumerate all 2^(k-1)-1 non-empty bipartitions of the non-zero
// bins and score each (only used when nnz <= MaxBruteBins).
func FindCategoricalBrute(h *histogram.Histogram, colID uint32, p Params) *Candidate {
	G, H := h.Total()
	parent := parentScore(G, H, p)
	bins := h.SortedBins()
	k := len(bins)
	if k == 0 || k > 63 {
		return nil
	}
	var best *Candidate
	// Enumerate non-empty, non-full subsets via bitmask 1..2^(k-1)-1 (the
	// mask never includes bins[k-1], so it always goes right, which avoids
	// double-counting complementary partitions).
	total := uint64(1) << uint(k-1)
	for mask := uint64(1); mask < total; mask++ {
		var gl, hl float64
		left := make([]uint32, 0, k)
		for i := 0; i < k; i++ {
			if mask&(1<<uint(i)) != 0 {
				v := h.Bins[bins[i]]
				gl += v.G
				hl += v.H
				left = append(left, bins[i])
			}
		}
		gr, hr := G-gl, H-hl
		if hl < p.MinNodeHess || hr < p.MinNodeHess {
			continue
		}
		gain := numeric.Score(gl, hl, p.Alpha, p.Lambda) + numeric.Score(gr, hr, p.Alpha, p.Lambda) - parent
		if gain < p.MinGain {
			continue
		}
		cand := &Candidate{
			ColID: colID, Kind: CategoricalSet, LeftBins: append([]uint32(nil), left...),
			Gain: gain, LeftG: gl, LeftH: hl, RightG: gr, RightH: hr,
		}
		if best == nil || better(cand, best) {
			best = cand
		}
	}
	return best
}

// FindCategoricalSorted implements spec.md §4.5's many-bin categorical
// path: sort bins by g/(h+lambda) and linear-scan that ordering the same
// way FindNumeric does, but record the chosen threshold as an explicit
// bitset of bins going left (the "threshold" has no natural category
// order to fall back on).
func FindCategoricalSorted(h *histogram.Histogram, colID uint32, p Params) *Candidate {
	G, H := h.Total()
	parent := parentScore(G, H, p)
	bins := h.SortedBins()
	if len(bins) == 0 {
		return nil
	}
	sort.Slice(bins, func(i, j int) bool {
		vi, vj := h.Bins[bins[i]], h.Bins[bins[j]]
		return vi.G/(vi.H+p.Lambda) < vj.G/(vj.H+p.Lambda)
	})

	var best *Candidate
	var gl, hl float64
	leftSet := make([]uint32, 0, len(bins))
	for i, bin := range bins {
		v := h.Bins[bin]
		gl += v.G
		hl += v.H
		leftSet = append(leftSet, bin)
		if i == len(bins)-1 {
			break // right side would be empty
		}
		gr, hr := G-gl, H-hl
		if hl < p.MinNodeHess || hr < p.MinNodeHess {
			continue
		}
		gain := numeric.Score(gl, hl, p.Alpha, p.Lambda) + numeric.Score(gr, hr, p.Alpha, p.Lambda) - parent
		if gain < p.MinGain {
			continue
		}
		cand := &Candidate{
			ColID: colID, Kind: CategoricalSet, LeftBins: append([]uint32(nil), leftSet...),
			Gain: gain, LeftG: gl, LeftH: hl, RightG: gr, RightH: hr,
		}
		if best == nil || better(cand, best) {
			best = cand
		}
	}
	return best
}

// LeafWeight computes the Newton-Raphson optimal leaf value spec.md §4.5
// defines: w = -soft_threshold(G,alpha) / (H+lambda).
func LeafWeight(g, h float64, p Params) float64 {
	return numeric.LeafWeight(g, h, p.Alpha, p.Lambda)
}

// better breaks ties deterministically by (gain desc, colId asc,
// splitDataRepr asc) per spec.md §4.5 "tie-break deterministically ... to
// keep results reproducible across shuffles".
func better(a, b *Candidate) bool {
	if a.Gain != b.Gain {
		return a.Gain > b.Gain
	}
	if a.ColID != b.ColID {
		return a.ColID < b.ColID
	}
	return splitRepr(a) < splitRepr(b)
}

func splitRepr(c *Candidate) string {
	if c.Kind == CategoricalSet {
		s := make([]byte, 0, len(c.LeftBins)*5)
		for _, b := range c.LeftBins {
			s = append(s, byte(b), byte(b>>8), byte(b>>16), byte(b>>24), ',')
		}
		return string(s)
	}
	t := c.Threshold
	lead := byte('0')
	if c.MissingLeft {
		lead = '1'
	}
	return string([]byte{lead, byte(t), byte(t >> 8), byte(t >> 16), byte(t >> 24)})
}

// Best picks the single best Candidate across columns, applying the same
// deterministic tie-break as within a column (spec.md §4.5 "Across
// candidate columns, tie-break deterministically").
func Best(candidates []*Candidate) *Candidate {
	var best *Candidate
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if best == nil || better(c, best) {
			best = c
		}
	}
	return best
}
