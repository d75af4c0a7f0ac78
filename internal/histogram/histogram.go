// Package histogram implements spec.md §4.4: the local histogram build
// shared by all three strategies, and the basic/subtract/vote aggregation
// strategies themselves, each producing a (treeId,nodeId,colId) ->
// histogram[bin -> (g,h)] map.
package histogram

import (
	"context"
	"sort"

	"github.com/ahmedaabouzied/gbdt/internal/binvec"
	"github.com/ahmedaabouzied/gbdt/internal/cluster"
	"github.com/ahmedaabouzied/gbdt/internal/partition"
)

// GH is one (gradient-sum, Hessian-sum) pair.
type GH struct {
	G, H float64
}

// Histogram is one (treeId,nodeId,colId) node-column histogram: a sparse
// map from bin to (grad,hess). Bin 0 holds the missing/zero bucket, set by
// the post-build fixup described in spec.md §4.4.
type Histogram struct {
	Bins map[uint32]GH
}

func newHistogram() *Histogram { return &Histogram{Bins: make(map[uint32]GH)} }

func (h *Histogram) add(bin uint32, g, hess float64) {
	cur := h.Bins[bin]
	cur.G += g
	cur.H += hess
	h.Bins[bin] = cur
}

// Plus merges two histograms for the same key; associative and
// commutative, as spec.md §5 requires of every aggregation.
func Plus(a, b *Histogram) *Histogram {
	out := newHistogram()
	for bin, v := range a.Bins {
		out.Bins[bin] = v
	}
	for bin, v := range b.Bins {
		cur := out.Bins[bin]
		cur.G += v.G
		cur.H += v.H
		out.Bins[bin] = cur
	}
	return out
}

// Minus derives left = parent - right for the subtract strategy (§4.4).
func Minus(parent, right *Histogram) *Histogram {
	out := newHistogram()
	for bin, v := range parent.Bins {
		out.Bins[bin] = v
	}
	for bin, v := range right.Bins {
		cur := out.Bins[bin]
		cur.G -= v.G
		cur.H -= v.H
		out.Bins[bin] = cur
	}
	return out
}

// Total returns the node's (G,H) — the sum over all bins including the
// missing bucket (spec.md §4.5's parent (G,H)).
func (h *Histogram) Total() (g, hess float64) {
	for _, v := range h.Bins {
		g += v.G
		hess += v.H
	}
	return
}

// NNZ returns the number of non-missing (bin != 0) entries.
func (h *Histogram) NNZ() int {
	n := 0
	for bin := range h.Bins {
		if bin != 0 {
			n++
		}
	}
	return n
}

// SortedBins returns the non-zero bin ids in ascending order, for the
// split finder's ordered linear scan over numeric/ranking columns.
func (h *Histogram) SortedBins() []uint32 {
	out := make([]uint32, 0, len(h.Bins))
	for bin := range h.Bins {
		if bin != 0 {
			out = append(out, bin)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Row is one discretized training instance as the histogram builder sees
// it: its bin vector, the base models (treeIds) it currently contributes
// to this round, the matching current leaf nodeId per treeId (parallel to
// TreeIDs), and the (grad,hess) pair per output. Per spec.md §4.4's
// "recurrent" grad-hess compression, the same (grad,hess) pair repeats
// across the forestSize trees of one output, so GH has only rawSize
// entries and a treeId's pair is GH[treeId % rawSize].
type Row struct {
	Bins    binvec.BinVector
	TreeIDs []uint32
	NodeIDs []uint32
	GH      []GH
}

func outputIndex(treeID uint32, rawSize int) int {
	if rawSize <= 1 {
		return 0
	}
	return int(treeID) % rawSize
}

// Key aliases partition.Key so histogram callers don't also need to import
// internal/partition for the common case.
type Key = partition.Key

// LocalBuild implements spec.md §4.4's "Local histogram build (shared)".
// For every row whose current leaf passes nodeFilter, it accumulates the
// (treeId,nodeId) node's (G,H) totals, and for every active non-zero bin
// whose column passes colSel, accumulates a per-column bin histogram.
// selectedCols lists every column the sampler/selector allows this round;
// each gets an entry for every (treeId,nodeId) that appeared, even if no
// row had a non-zero bin for that column (an all-missing histogram).
// After the row pass it fixes up bin 0/1 to hold totalG/H minus the
// non-zero-bin sums, per spec.md §4.4's post-process step.
func LocalBuild(rows []Row, rawSize int, nodeFilter func(node uint32) bool, colSel func(treeID, col uint32) bool, selectedCols func(treeID uint32) []uint32) map[Key]*Histogram {
	type nodeKey struct{ Tree, Node uint32 }
	totals := make(map[nodeKey]GH)
	perCol := make(map[Key]*Histogram)
	seenNodes := make(map[nodeKey]bool)

	for _, row := range rows {
		for i, t := range row.TreeIDs {
			n := row.NodeIDs[i]
			if !nodeFilter(n) {
				continue
			}
			gh := row.GH[outputIndex(t, rawSize)]
			nk := nodeKey{Tree: t, Node: n}
			seenNodes[nk] = true
			cur := totals[nk]
			cur.G += gh.G
			cur.H += gh.H
			totals[nk] = cur

			row.Bins.ActiveIter(func(col, bin uint32) {
				if !colSel(t, col) {
					return
				}
				key := Key{TreeID: t, NodeID: n, ColID: col}
				h, ok := perCol[key]
				if !ok {
					h = newHistogram()
					perCol[key] = h
				}
				h.add(bin, gh.G, gh.H)
			})
		}
	}

	out := make(map[Key]*Histogram, len(perCol))
	for nk := range seenNodes {
		tot := totals[nk]
		for _, col := range selectedCols(nk.Tree) {
			key := Key{TreeID: nk.Tree, NodeID: nk.Node, ColID: col}
			h, ok := perCol[key]
			if !ok {
				h = newHistogram()
			}
			nzG, nzH := 0.0, 0.0
			for bin, v := range h.Bins {
				if bin != 0 {
					nzG += v.G
					nzH += v.H
				}
			}
			h.Bins[0] = GH{G: tot.G - nzG, H: tot.H - nzH}
			out[key] = h
		}
	}
	return out
}

func toKV(local map[Key]*Histogram) []cluster.KV[Key, *Histogram] {
	out := make([]cluster.KV[Key, *Histogram], 0, len(local))
	for k, h := range local {
		out = append(out, cluster.KV[Key, *Histogram]{Key: k, Val: h})
	}
	return out
}

// Basic implements spec.md §4.4's basic strategy: rebuild histograms for
// all active nodes at this depth. Node filter f(n) = n >= 2^depth.
func Basic(ctx context.Context, data *cluster.Dataset[Row], rawSize, depth int, colSel func(treeID, col uint32) bool, selectedCols func(treeID uint32) []uint32) (map[Key]*Histogram, error) {
	nodeFilter := func(n uint32) bool { return n >= uint32(1)<<uint(depth) }
	kvDS, err := cluster.MapPartitionsErr(ctx, data, func(_ int, rows []Row) ([]cluster.KV[Key, *Histogram], error) {
		return toKV(LocalBuild(rows, rawSize, nodeFilter, colSel, selectedCols)), nil
	})
	if err != nil {
		return nil, err
	}
	return cluster.ReduceByKey(ctx, kvDS, Plus)
}

// FilterGrowable drops (t,n,c) histograms whose node hess total is below
// 2*minNodeHess or whose mass sits in fewer than two bins (the missing
// bucket included) — such a node cannot split further (spec.md §4.4, §7
// "numeric degenerate").
func FilterGrowable(hists map[Key]*Histogram, minNodeHess float64) map[Key]*Histogram {
	out := make(map[Key]*Histogram, len(hists))
	for k, h := range hists {
		_, hessTot := h.Total()
		filled := 0
		for _, v := range h.Bins {
			if v.G != 0 || v.H != 0 {
				filled++
			}
		}
		if hessTot < 2*minNodeHess || filled < 2 {
			continue
		}
		out[k] = h
	}
	return out
}

// Subtract implements spec.md §4.4's subtract strategy. At depth 0 it
// behaves like Basic (building roots). At depth>0 it builds histograms
// only for right children (n >= 2^d and odd) and derives left children as
// parent-right, using parents (the previous depth's retained histograms).
// The result is filtered through FilterGrowable before being returned.
func Subtract(ctx context.Context, data *cluster.Dataset[Row], rawSize, depth int, colSel func(treeID, col uint32) bool, selectedCols func(treeID uint32) []uint32, parents map[Key]*Histogram, minNodeHess float64) (map[Key]*Histogram, error) {
	if depth == 0 {
		roots, err := Basic(ctx, data, rawSize, 0, colSel, selectedCols)
		if err != nil {
			return nil, err
		}
		return FilterGrowable(roots, minNodeHess), nil
	}

	base := uint32(1) << uint(depth)
	rightFilter := func(n uint32) bool { return n >= base && n%2 == 1 }
	kvDS, err := cluster.MapPartitionsErr(ctx, data, func(_ int, rows []Row) ([]cluster.KV[Key, *Histogram], error) {
		return toKV(LocalBuild(rows, rawSize, rightFilter, colSel, selectedCols)), nil
	})
	if err != nil {
		return nil, err
	}
	right, err := cluster.ReduceByKey(ctx, kvDS, Plus)
	if err != nil {
		return nil, err
	}

	out := make(map[Key]*Histogram, len(right)*2)
	for rk, rh := range right {
		out[rk] = rh
		parentNode := rk.NodeID / 2
		pk := Key{TreeID: rk.TreeID, NodeID: parentNode, ColID: rk.ColID}
		ph, ok := parents[pk]
		if !ok {
			continue
		}
		leftKey := Key{TreeID: rk.TreeID, NodeID: parentNode * 2, ColID: rk.ColID}
		out[leftKey] = Minus(ph, rh)
	}
	return FilterGrowable(out, minNodeHess), nil
}

// Vote implements spec.md §4.4's communication-saving vote strategy
// (LightGBM PV-Tree style): each worker locally picks its top-k columns
// per (treeId,nodeId) by score (typically best local split gain), a
// global vote count keeps the top 2k columns per node, and only surviving
// (t,n,c) keys are globally reduced.
func Vote(ctx context.Context, data *cluster.Dataset[Row], rawSize, depth, k int, colSel func(treeID, col uint32) bool, selectedCols func(treeID uint32) []uint32, score func(h *Histogram) float64) (map[Key]*Histogram, error) {
	nodeFilter := func(n uint32) bool { return n >= uint32(1)<<uint(depth) }

	type nodeID struct{ Tree, Node uint32 }
	type vote struct {
		Node nodeID
		Col  uint32
	}

	voteDS, err := cluster.MapPartitionsErr(ctx, data, func(_ int, rows []Row) ([]cluster.KV[vote, int], error) {
		local := LocalBuild(rows, rawSize, nodeFilter, colSel, selectedCols)
		byNode := make(map[nodeID][]Key)
		for key := range local {
			nid := nodeID{Tree: key.TreeID, Node: key.NodeID}
			byNode[nid] = append(byNode[nid], key)
		}
		out := make([]cluster.KV[vote, int], 0)
		for nid, keys := range byNode {
			sort.Slice(keys, func(i, j int) bool { return score(local[keys[i]]) > score(local[keys[j]]) })
			top := keys
			if len(top) > k {
				top = top[:k]
			}
			for _, key := range top {
				out = append(out, cluster.KV[vote, int]{Key: vote{Node: nid, Col: key.ColID}, Val: 1})
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	voteCounts, err := cluster.ReduceByKey(ctx, voteDS, func(a, b int) int { return a + b })
	if err != nil {
		return nil, err
	}

	byNodeVotes := make(map[nodeID][]vote)
	for v := range voteCounts {
		byNodeVotes[v.Node] = append(byNodeVotes[v.Node], v)
	}
	survive := make(map[Key]bool)
	for _, vs := range byNodeVotes {
		sort.Slice(vs, func(i, j int) bool { return voteCounts[vs[i]] > voteCounts[vs[j]] })
		top := vs
		if len(top) > 2*k {
			top = top[:2*k]
		}
		for _, v := range top {
			survive[Key{TreeID: v.Node.Tree, NodeID: v.Node.Node, ColID: v.Col}] = true
		}
	}

	kvDS, err := cluster.MapPartitionsErr(ctx, data, func(_ int, rows []Row) ([]cluster.KV[Key, *Histogram], error) {
		local := LocalBuild(rows, rawSize, nodeFilter, colSel, selectedCols)
		out := make([]cluster.KV[Key, *Histogram], 0)
		for key, h := range local {
			if survive[key] {
				out = append(out, cluster.KV[Key, *Histogram]{Key: key, Val: h})
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return cluster.ReduceByKey(ctx, kvDS, Plus)
}
