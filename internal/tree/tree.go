// Package tree implements spec.md §4.6: the level-wise BFS tree grower.
// Per-tree state (root LearningNode, remainingLeaves, finished) lives in
// growState; growth proceeds depth by depth, dispatching to the histogram
// strategy selected by configuration, finding a split per growable node,
// applying it (spec.md §9 "recursive node structure": a per-tree arena of
// index-linked Node values, not pointer-linked), and routing each row to
// its new nodeId before the next depth's histogram pass.
package tree

import (
	"context"
	"sort"

	"github.com/ahmedaabouzied/gbdt/internal/binvec"
	"github.com/ahmedaabouzied/gbdt/internal/cluster"
	"github.com/ahmedaabouzied/gbdt/internal/histogram"
	"github.com/ahmedaabouzied/gbdt/internal/selector"
	"github.com/ahmedaabouzied/gbdt/internal/split"
)

// NodeKind tags an arena slot as a leaf or an internal (split) node.
type NodeKind int

const (
	Leaf NodeKind = iota
	Internal
)

// Node is one arena-indexed tree node, matching spec.md §3's TreeModel:
// InternalNode{colId, splitKind, splitData, leftChild, rightChild} or
// LeafNode{weight}, unified into a single tagged struct so the arena can be
// a flat slice (spec.md §9).
type Node struct {
	Kind        NodeKind
	ColID       uint32
	SplitKind   split.Kind
	Threshold   uint32   // NumericThreshold/RankingThreshold: go left iff bin <= Threshold
	LeftBins    []uint32 // CategoricalSet: the bins that go left
	MissingLeft bool
	Left, Right int32 // arena indices; -1 on a leaf
	Weight      float64
}

// Model is one tree: a flat arena of Nodes, root at index 0.
type Model struct {
	Nodes []Node
}

func newModel() *Model {
	return &Model{Nodes: []Node{{Kind: Leaf, Left: -1, Right: -1}}}
}

// decide reports whether bin routes left at node n, applying spec.md
// §4.5's missing-bucket rule (bin 0 follows MissingLeft regardless of
// split kind) before the kind-specific rule.
func decide(n Node, bin uint32) bool {
	if bin == 0 {
		return n.MissingLeft
	}
	if n.SplitKind == split.CategoricalSet {
		for _, b := range n.LeftBins {
			if b == bin {
				return true
			}
		}
		return false
	}
	return bin <= n.Threshold
}

// Predict walks the arena from the root for one instance's bin vector.
func (m *Model) Predict(bins binvec.BinVector) float64 {
	idx := int32(0)
	for {
		n := m.Nodes[idx]
		if n.Kind == Leaf {
			return n.Weight
		}
		bin := bins.Get(n.ColID)
		if decide(n, bin) {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// Leaf returns the arena index of the leaf bins routes to, for leafCol
// prediction output (spec.md §6 "optional leafCol").
func (m *Model) Leaf(bins binvec.BinVector) int {
	idx := int32(0)
	for {
		n := m.Nodes[idx]
		if n.Kind == Leaf {
			return int(idx)
		}
		bin := bins.Get(n.ColID)
		if decide(n, bin) {
			idx = n.Left
		} else {
			idx = n.Right
		}
	}
}

// PreOrder linearizes the arena into root-left-right preorder, the
// serialization order spec.md §6 names ("pre-order traversal of (kind,
// payload, leftWeight?, rightWeight?)"). The arena itself is built in
// depth-by-depth (BFS) order as splits are applied, not preorder, so this
// walk re-indexes Left/Right to positions in the returned slice.
func (m *Model) PreOrder() []Node {
	out := make([]Node, 0, len(m.Nodes))
	var walk func(idx int32) int32
	walk = func(idx int32) int32 {
		n := m.Nodes[idx]
		pos := int32(len(out))
		out = append(out, n)
		if n.Kind == Internal {
			left := walk(n.Left)
			right := walk(n.Right)
			out[pos].Left = left
			out[pos].Right = right
		}
		return pos
	}
	if len(m.Nodes) > 0 {
		walk(0)
	}
	return out
}

// FromPreOrder reconstructs a Model's arena from a PreOrder-encoded slice;
// since PreOrder already re-indexes Left/Right to slice positions, this is
// just wrapping the slice back into a Model.
func FromPreOrder(nodes []Node) *Model {
	return &Model{Nodes: append([]Node(nil), nodes...)}
}

// growState is the per-tree LearningNode bookkeeping of spec.md §4.6:
// nodeIdx maps the spec's id scheme (root=1, left=2n, right=2n+1) onto
// arena indices for currently-open leaves; remainingLeaves gates further
// splitting (spec.md §6 maxLeaves); finished short-circuits a tree once no
// node split in a depth.
type growState struct {
	model           *Model
	nodeIdx         map[uint32]int32
	remainingLeaves int
	finished        bool
}

func newGrowState(maxLeaves int) *growState {
	return &growState{
		model:           newModel(),
		nodeIdx:         map[uint32]int32{1: 0},
		remainingLeaves: maxLeaves - 1,
	}
}

// Params bundles the grower's per-round configuration.
type Params struct {
	MaxDepth   int
	MaxLeaves  int
	Strategy   string // "basic", "subtract", "vote"
	VoteK      int
	RawSize    int
	NumCols    int
	Seed       int64
	ColSampleByTree  float64
	ColSampleByLevel float64
	Split      split.Params
	// CatCols reports whether (treeID,colID) is a categorical column; when
	// true the split finder uses the brute-force/sorted categorical paths
	// instead of the ordered numeric scan (spec.md §4.5).
	CatCols func(treeID, colID uint32) bool
	// LeafBoosting, when true, calls RefreshGH after applying each depth's
	// splits so the caller (the boosting loop, which owns the ObjFunc and
	// current predictions) can re-fit gradients/Hessians before the next
	// depth's histogram pass (spec.md §4.6 "a second-order Newton step per
	// split"). Grow has no access to labels or the loss function, so it
	// cannot compute the refit itself.
	LeafBoosting bool
	RefreshGH    func(depth int, rows []histogram.Row) error
}

// Grow implements spec.md §4.6 for every tree in treeIDs simultaneously
// (they share one histogram pass per depth, per spec.md §2 "Fit forestSize
// x rawSize trees in parallel"). rows.Partitions[*][i].NodeIDs must be
// initialized to 1 for every (row,tree) pair that participates this round;
// Grow mutates NodeIDs in place as splits are applied. It returns the
// finished Model per treeID.
func Grow(ctx context.Context, data *cluster.Dataset[histogram.Row], treeIDs []uint32, p Params) (map[uint32]*Model, error) {
	states := make(map[uint32]*growState, len(treeIDs))
	for _, t := range treeIDs {
		states[t] = newGrowState(p.MaxLeaves)
	}

	// Seed each root's leaf weight from the totals of the rows it holds, so
	// a root that FilterGrowable drops at depth 0 is still a leaf carrying
	// its Newton-Raphson weight rather than zero.
	rootTot := make(map[uint32]histogram.GH, len(treeIDs))
	for _, part := range data.Partitions {
		for _, r := range part {
			for _, t := range r.TreeIDs {
				gh := r.GH[int(t)%len(r.GH)]
				cur := rootTot[t]
				cur.G, cur.H = cur.G+gh.G, cur.H+gh.H
				rootTot[t] = cur
			}
		}
	}
	for t, st := range states {
		st.model.Nodes[0].Weight = split.LeafWeight(rootTot[t].G, rootTot[t].H, p.Split)
	}

	var parents map[histogram.Key]*histogram.Histogram

	for depth := 0; depth < p.MaxDepth; depth++ {
		if allFinished(states) {
			break
		}

		treeSel := selector.Hash{Seed: p.Seed, Rate: p.ColSampleByTree}
		levelSel := selector.Hash{Seed: p.Seed + 1 + int64(depth), Rate: p.ColSampleByLevel}
		colSel := func(treeID, col uint32) bool {
			if states[treeID] == nil || states[treeID].finished {
				return false
			}
			return selector.Union{A: treeSel, B: levelSel}.Contains(treeID, uint64(col))
		}
		selectedCols := func(treeID uint32) []uint32 {
			if states[treeID] == nil || states[treeID].finished {
				return nil
			}
			out := make([]uint32, 0, p.NumCols)
			for c := uint32(0); c < uint32(p.NumCols); c++ {
				if colSel(treeID, c) {
					out = append(out, c)
				}
			}
			return out
		}

		var (
			hists map[histogram.Key]*histogram.Histogram
			err   error
		)
		switch p.Strategy {
		case "subtract":
			hists, err = histogram.Subtract(ctx, data, p.RawSize, depth, colSel, selectedCols, parents, p.Split.MinNodeHess)
		case "vote":
			score := func(h *histogram.Histogram) float64 {
				g, hess := h.Total()
				return numericScore(g, hess, p.Split)
			}
			hists, err = histogram.Vote(ctx, data, p.RawSize, depth, p.VoteK, colSel, selectedCols, score)
			if err == nil {
				hists = histogram.FilterGrowable(hists, p.Split.MinNodeHess)
			}
		default:
			hists, err = histogram.Basic(ctx, data, p.RawSize, depth, colSel, selectedCols)
			if err == nil {
				hists = histogram.FilterGrowable(hists, p.Split.MinNodeHess)
			}
		}
		if err != nil {
			return nil, err
		}
		parents = hists

		type nodeID struct{ Tree, Node uint32 }
		byNode := make(map[nodeID][]histogram.Key)
		for key := range hists {
			nid := nodeID{Tree: key.TreeID, Node: key.NodeID}
			byNode[nid] = append(byNode[nid], key)
		}

		type applied struct {
			treeID, nodeID uint32
			cand           *split.Candidate
			leftNode, rightNode uint32
		}
		var decisions []applied
		anySplitThisDepth := make(map[uint32]bool)

		order := make([]nodeID, 0, len(byNode))
		for nid := range byNode {
			order = append(order, nid)
		}
		sort.Slice(order, func(i, j int) bool {
			if order[i].Tree != order[j].Tree {
				return order[i].Tree < order[j].Tree
			}
			return order[i].Node < order[j].Node
		})

		for _, nid := range order {
			st := states[nid.Tree]
			if st == nil {
				continue
			}
			keys := byNode[nid]
			sort.Slice(keys, func(i, j int) bool { return keys[i].ColID < keys[j].ColID })

			// Tentatively finalize this node's leaf weight from its node
			// total (any column's histogram carries the same node G,H,
			// per histogram.go's slot-0 fixup); a split decided below
			// overwrites the arena slot with an Internal node instead.
			if arenaIdx, ok := st.nodeIdx[nid.Node]; ok {
				g, h := hists[keys[0]].Total()
				st.model.Nodes[arenaIdx].Weight = split.LeafWeight(g, h, p.Split)
			}

			if st.finished || st.remainingLeaves <= 0 {
				continue
			}
			cands := make([]*split.Candidate, 0, len(keys))
			for _, key := range keys {
				h := hists[key]
				var c *split.Candidate
				if p.CatCols != nil && p.CatCols(nid.Tree, key.ColID) {
					if h.NNZ() <= p.Split.MaxBruteBins {
						c = split.FindCategoricalBrute(h, key.ColID, p.Split)
					} else {
						c = split.FindCategoricalSorted(h, key.ColID, p.Split)
					}
				} else {
					c = split.FindNumeric(h, key.ColID, p.Split, false)
				}
				cands = append(cands, c)
			}
			best := split.Best(cands)
			if best == nil {
				continue
			}
			decisions = append(decisions, applied{
				treeID: nid.Tree, nodeID: nid.Node, cand: best,
				leftNode: nid.Node * 2, rightNode: nid.Node*2 + 1,
			})
			anySplitThisDepth[nid.Tree] = true
		}

		// Apply splits to the arena and account leaf budget.
		splitAt := make(map[nodeID]applied, len(decisions))
		for _, d := range decisions {
			st := states[d.treeID]
			arenaIdx, ok := st.nodeIdx[d.nodeID]
			if !ok || st.remainingLeaves <= 0 {
				continue
			}
			leftIdx := int32(len(st.model.Nodes))
			st.model.Nodes = append(st.model.Nodes, Node{Kind: Leaf, Left: -1, Right: -1})
			rightIdx := int32(len(st.model.Nodes))
			st.model.Nodes = append(st.model.Nodes, Node{Kind: Leaf, Left: -1, Right: -1})

			st.model.Nodes[arenaIdx] = Node{
				Kind: Internal, ColID: d.cand.ColID, SplitKind: d.cand.Kind,
				Threshold: d.cand.Threshold, LeftBins: d.cand.LeftBins, MissingLeft: d.cand.MissingLeft,
				Left: leftIdx, Right: rightIdx,
			}
			st.model.Nodes[leftIdx].Weight = split.LeafWeight(d.cand.LeftG, d.cand.LeftH, p.Split)
			st.model.Nodes[rightIdx].Weight = split.LeafWeight(d.cand.RightG, d.cand.RightH, p.Split)

			delete(st.nodeIdx, d.nodeID)
			st.nodeIdx[d.leftNode] = leftIdx
			st.nodeIdx[d.rightNode] = rightIdx
			st.remainingLeaves--

			splitAt[nodeID{d.treeID, d.nodeID}] = d
		}

		for t, st := range states {
			if !anySplitThisDepth[t] {
				st.finished = true
			}
		}

		// Route rows to their new nodeId for the next depth.
		_, err = cluster.MapPartitionsErr(ctx, data, func(_ int, rows []histogram.Row) ([]struct{}, error) {
			for ri := range rows {
				row := &rows[ri]
				for i, t := range row.TreeIDs {
					n := row.NodeIDs[i]
					d, ok := splitAt[nodeID{t, n}]
					if !ok {
						continue
					}
					bin := row.Bins.Get(d.cand.ColID)
					if decide(Node{SplitKind: d.cand.Kind, Threshold: d.cand.Threshold, LeftBins: d.cand.LeftBins, MissingLeft: d.cand.MissingLeft}, bin) {
						row.NodeIDs[i] = d.leftNode
					} else {
						row.NodeIDs[i] = d.rightNode
					}
				}
			}
			return nil, nil
		})
		if err != nil {
			return nil, err
		}

		if p.LeafBoosting && p.RefreshGH != nil {
			for _, part := range data.Partitions {
				if err := p.RefreshGH(depth, part); err != nil {
					return nil, err
				}
			}
		}
	}

	out := make(map[uint32]*Model, len(states))
	for t, st := range states {
		out[t] = st.model
	}
	return out, nil
}

func allFinished(states map[uint32]*growState) bool {
	for _, st := range states {
		if !st.finished && st.remainingLeaves > 0 {
			return false
		}
	}
	return true
}

func numericScore(g, h float64, p split.Params) float64 {
	w := split.LeafWeight(g, h, p)
	return -w * g
}
