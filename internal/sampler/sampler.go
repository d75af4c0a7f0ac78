// Package sampler implements spec.md §4.7: the row/block/partition/Goss
// samplers that restrict which instances, and which base trees, contribute
// to each boosting round, generalizing the teacher's gboost.go
// sampleIndices (a single shuffle-then-slice over g.rnd) into the
// Selector-driven, fork-consistent scheme spec.md requires once sampling
// decisions must be evaluated independently per partition/goroutine.
package sampler

import (
	"context"
	"math/rand"
	"sort"

	"github.com/ahmedaabouzied/gbdt/internal/binvec"
	"github.com/ahmedaabouzied/gbdt/internal/cluster"
	"github.com/ahmedaabouzied/gbdt/internal/selector"
)

// Instance is one training row as the sampler sees it: its discretized
// features, a stable identity key (used by Row/Goss's per-row Selector
// draws), and the (grad,hess) the boosting loop already computed from the
// current raw prediction (spec.md §4.7's Goss needs grad before sampling
// decides anything, so gradient computation precedes sampling here, unlike
// §2's data-flow diagram which elides that ordering detail).
type Instance struct {
	Key  uint64
	Bins binvec.BinVector
	Grad []float64 // length rawSize
	Hess []float64 // length rawSize
}

// Sampled is one surviving instance plus the base trees (treeIds) it
// contributes to this round; Grad/Hess may have been rescaled (Goss
// compensation re-weighting).
type Sampled struct {
	Bins    binvec.BinVector
	Grad    []float64
	Hess    []float64
	TreeIDs []uint32
}

func allTrees(numTrees int) []uint32 {
	out := make([]uint32, numTrees)
	for i := range out {
		out[i] = uint32(i)
	}
	return out
}

// None implements spec.md §4.7's "subSampleRateByTree == 1" case: every row
// contributes to every tree, no Selector draw needed.
func None(instances []Instance, numTrees int) []Sampled {
	trees := allTrees(numTrees)
	out := make([]Sampled, len(instances))
	for i, inst := range instances {
		out[i] = Sampled{Bins: inst.Bins, Grad: inst.Grad, Hess: inst.Hess, TreeIDs: trees}
	}
	return out
}

// Partition implements spec.md §4.7's partition-level sampler: a
// partition-level Selector decides, per base tree, whether the whole
// partition belongs to it; a partition none of the trees select is
// dropped entirely.
func Partition(ctx context.Context, data *cluster.Dataset[Instance], sel selector.Selector, numTrees int) (*cluster.Dataset[Sampled], error) {
	return cluster.MapPartitionsErr(ctx, data, func(idx int, part []Instance) ([]Sampled, error) {
		trees := selector.Index(sel, numTrees, uint64(idx))
		if len(trees) == 0 {
			return nil, nil
		}
		out := make([]Sampled, len(part))
		for i, inst := range part {
			out[i] = Sampled{Bins: inst.Bins, Grad: inst.Grad, Hess: inst.Hess, TreeIDs: trees}
		}
		return out, nil
	})
}

// Block implements spec.md §4.7's block-level sampler: the same idea as
// Partition but at sub-partition block granularity (blockSize rows per
// block, spec.md §3's KVMatrix unit), the engine's default subSampleType.
func Block(ctx context.Context, data *cluster.Dataset[Instance], sel selector.Selector, numTrees, blockSize int) (*cluster.Dataset[Sampled], error) {
	if blockSize <= 0 {
		blockSize = binvec.BlockSize
	}
	return cluster.MapPartitionsErr(ctx, data, func(idx int, part []Instance) ([]Sampled, error) {
		out := make([]Sampled, 0, len(part))
		for start := 0; start < len(part); start += blockSize {
			end := start + blockSize
			if end > len(part) {
				end = len(part)
			}
			blockKey := uint64(idx)<<32 | uint64(start/blockSize)
			trees := selector.Index(sel, numTrees, blockKey)
			if len(trees) == 0 {
				continue
			}
			for _, inst := range part[start:end] {
				out = append(out, Sampled{Bins: inst.Bins, Grad: inst.Grad, Hess: inst.Hess, TreeIDs: trees})
			}
		}
		return out, nil
	})
}

// Row implements spec.md §4.7's row-level sampler: a row-level Selector
// decides per-row, per-tree membership; surviving rows stay in their input
// partitions and are not repacked into blockSize blocks (the Selector draw
// itself does not depend on block boundaries, so Row does not need to know
// blockSize).
func Row(ctx context.Context, data *cluster.Dataset[Instance], sel selector.Selector, numTrees int) (*cluster.Dataset[Sampled], error) {
	return cluster.MapPartitionsErr(ctx, data, func(_ int, part []Instance) ([]Sampled, error) {
		out := make([]Sampled, 0, len(part))
		for _, inst := range part {
			trees := selector.Index(sel, numTrees, inst.Key)
			if len(trees) == 0 {
				continue
			}
			out = append(out, Sampled{Bins: inst.Bins, Grad: inst.Grad, Hess: inst.Hess, TreeIDs: trees})
		}
		return out, nil
	})
}

// sketch is a fixed-bucket approximate quantile summary over gradNorm
// values, the "approximate quantile summary" spec.md §4.7 calls for. Counts
// are associative under Merge, so partial sketches can be combined in any
// order (spec.md §5 "aggregations must be associative and commutative").
type sketch struct {
	Min, Max float64
	Counts   []int
}

const sketchBuckets = 1024

func newSketch(values []float64) sketch {
	s := sketch{Counts: make([]int, sketchBuckets)}
	if len(values) == 0 {
		return s
	}
	s.Min, s.Max = values[0], values[0]
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	width := s.Max - s.Min
	for _, v := range values {
		s.Counts[bucketOf(v, s.Min, width)]++
	}
	return s
}

func bucketOf(v, min, width float64) int {
	if width <= 0 {
		return 0
	}
	b := int((v - min) / width * float64(sketchBuckets))
	if b < 0 {
		b = 0
	}
	if b >= sketchBuckets {
		b = sketchBuckets - 1
	}
	return b
}

// merge combines two sketches, widening the range and redistributing
// bucket mass proportionally across the new range — an approximation, but
// one cheap enough to repeat at every level of a tree-reduce.
func (s sketch) merge(o sketch) sketch {
	if sumCounts(s.Counts) == 0 {
		return o
	}
	if sumCounts(o.Counts) == 0 {
		return s
	}
	out := sketch{Min: min2(s.Min, o.Min), Max: max2(s.Max, o.Max), Counts: make([]int, sketchBuckets)}
	width := out.Max - out.Min
	for _, src := range []sketch{s, o} {
		srcWidth := src.Max - src.Min
		for b, c := range src.Counts {
			if c == 0 {
				continue
			}
			mid := src.Min + (float64(b)+0.5)/float64(sketchBuckets)*srcWidth
			out.Counts[bucketOf(mid, out.Min, width)] += c
		}
	}
	return out
}

func sumCounts(counts []int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// quantile returns an approximate value v such that fraction q of the
// sketch's mass is <= v.
func (s sketch) quantile(q float64) float64 {
	total := sumCounts(s.Counts)
	if total == 0 {
		return s.Max
	}
	target := q * float64(total)
	width := s.Max - s.Min
	running := 0.0
	for b, c := range s.Counts {
		running += float64(c)
		if running >= target {
			return s.Min + (float64(b)+1)/float64(sketchBuckets)*width
		}
	}
	return s.Max
}

// treeReduce merges sketches pairwise, halving the slice each round, the
// "aggregationDepth-tree reduce" spec.md §4.7 describes (depth ~=
// log2(len(sketches)) rather than one linear fold).
func treeReduce(sketches []sketch) sketch {
	for len(sketches) > 1 {
		next := make([]sketch, 0, (len(sketches)+1)/2)
		for i := 0; i < len(sketches); i += 2 {
			if i+1 < len(sketches) {
				next = append(next, sketches[i].merge(sketches[i+1]))
			} else {
				next = append(next, sketches[i])
			}
		}
		sketches = next
	}
	if len(sketches) == 0 {
		return sketch{Counts: make([]int, sketchBuckets)}
	}
	return sketches[0]
}

func gradNorm(grad []float64) float64 {
	n := 0.0
	for _, g := range grad {
		n += g * g
	}
	return n
}

// Goss implements spec.md §4.7's Gradient-based One-Side Sampling: rows
// above the topRate-quantile of gradNorm always contribute (to every
// tree); the rest are kept with probability otherRate/(1-topRate) and have
// their gradient rescaled by (1-topRate)/otherRate to keep the gradient
// sum an unbiased estimate of the full-data sum.
func Goss(ctx context.Context, data *cluster.Dataset[Instance], topRate, otherRate float64, seed int64, numTrees int) (*cluster.Dataset[Sampled], error) {
	sketchDS, err := cluster.MapPartitionsErr(ctx, data, func(_ int, part []Instance) ([]sketch, error) {
		norms := make([]float64, len(part))
		for i, inst := range part {
			norms[i] = gradNorm(inst.Grad)
		}
		sort.Float64s(norms)
		return []sketch{newSketch(norms)}, nil
	})
	if err != nil {
		return nil, err
	}
	merged := treeReduce(sketchDS.Collect())
	threshold := merged.quantile(1 - topRate)

	otherSel := selector.Hash{Seed: seed, Rate: otherRate / (1 - topRate)}
	trees := allTrees(numTrees)
	compensation := (1 - topRate) / otherRate

	return cluster.MapPartitionsErr(ctx, data, func(_ int, part []Instance) ([]Sampled, error) {
		out := make([]Sampled, 0, len(part))
		for _, inst := range part {
			if gradNorm(inst.Grad) >= threshold {
				out = append(out, Sampled{Bins: inst.Bins, Grad: inst.Grad, Hess: inst.Hess, TreeIDs: trees})
				continue
			}
			if !otherSel.Contains(0, inst.Key) {
				continue
			}
			g := make([]float64, len(inst.Grad))
			for i, v := range inst.Grad {
				g[i] = v * compensation
			}
			h := make([]float64, len(inst.Hess))
			for i, v := range inst.Hess {
				h[i] = v * compensation
			}
			out = append(out, Sampled{Bins: inst.Bins, Grad: g, Hess: h, TreeIDs: trees})
		}
		return out, nil
	})
}

// NewRand mirrors the teacher's seeded *rand.Rand construction
// (gboost.go's g.rnd = rand.New(rand.NewSource(g.Config.Seed))) for the
// non-Selector-driven uses a caller may still need (e.g. DART dropout
// selection, which draws from one shared sequence per iteration rather
// than per-row/per-partition).
func NewRand(seed int64) *rand.Rand { return rand.New(rand.NewSource(seed)) }
