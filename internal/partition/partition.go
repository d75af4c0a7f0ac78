// Package partition implements spec.md §4.3: the three key-space
// partitioners over (treeId, nodeId, colId) that control shuffle locality
// for histogram aggregation, plus the per-depth partitioner-selection rule.
package partition

import "sort"

// Key identifies one histogram unit.
type Key struct {
	TreeID uint32
	NodeID uint32
	ColID  uint32
}

// Partitioner maps a Key to a partition index in [0, NumPartitions()).
// Implementations must satisfy: equal Partitioners (same type, same
// configuration) produce the same partitioning for the same Key, and
// Partition(key) is consistent across calls (spec.md §4.3).
type Partitioner interface {
	NumPartitions() int
	Partition(k Key) int
}

func fnv1a(xs ...uint32) uint32 {
	var h uint32 = 2166136261
	for _, x := range xs {
		for i := 0; i < 4; i++ {
			h ^= (x >> (8 * uint(i))) & 0xff
			h *= 16777619
		}
	}
	return h
}

// SkipNode partitions by a tree-sorted index and colId, ignoring nodeId.
// This preserves partitioning when keys change nodeId (enabling histogram
// subtraction without reshuffle): spec.md §4.3.
type SkipNode struct {
	P int
	// TreeIDs lists the tree ids active this round, in the order used to
	// derive the "tree-sorted index" spec.md refers to.
	TreeIDs []uint32
}

// NumPartitions implements Partitioner.
func (s SkipNode) NumPartitions() int { return s.P }

// Partition implements Partitioner.
func (s SkipNode) Partition(k Key) int {
	idx := treeIndex(s.TreeIDs, k.TreeID)
	return int(fnv1a(uint32(idx), k.ColID)) % s.P
}

func treeIndex(treeIDs []uint32, id uint32) int {
	for i, t := range treeIDs {
		if t == id {
			return i
		}
	}
	return int(id)
}

// Depth maps nodeId down its ancestor chain until it falls in
// [2^D, 2^(D+1)), then partitions by (treeIndex, ancestorAtDepthD, colId).
// Used when the subtract strategy wants stability across deeper levels
// (spec.md §4.3).
type Depth struct {
	P       int
	D       int
	TreeIDs []uint32
}

// NumPartitions implements Partitioner.
func (d Depth) NumPartitions() int { return d.P }

// Partition implements Partitioner.
func (d Depth) Partition(k Key) int {
	ancestor := ancestorAtDepth(k.NodeID, d.D)
	idx := treeIndex(d.TreeIDs, k.TreeID)
	return int(fnv1a(uint32(idx), ancestor, k.ColID)) % d.P
}

// ancestorAtDepth walks node up the tree (n -> n/2) until its depth
// (floor(log2(n))) equals d.
func ancestorAtDepth(node uint32, d int) uint32 {
	depth := nodeDepth(node)
	for depth > d {
		node /= 2
		depth--
	}
	return node
}

func nodeDepth(node uint32) int {
	depth := 0
	for node > 1 {
		node /= 2
		depth++
	}
	return depth
}

// IDRange binary-searches over an ordered (treeId,nodeId) array and
// partitions by that index and colId. Used when the set of active nodes
// is small and known (spec.md §4.3).
type IDRange struct {
	P int
	// Active must be sorted ascending by (TreeID,NodeID).
	Active []Key
}

// NumPartitions implements Partitioner.
func (r IDRange) NumPartitions() int { return r.P }

// Partition implements Partitioner.
func (r IDRange) Partition(k Key) int {
	i := sort.Search(len(r.Active), func(i int) bool {
		a := r.Active[i]
		if a.TreeID != k.TreeID {
			return a.TreeID >= k.TreeID
		}
		return a.NodeID >= k.NodeID
	})
	return int(fnv1a(uint32(i), k.ColID)) % r.P
}

// Select implements spec.md §4.3's partitioner-selection rule:
//
//	E ~= |treeIds| * numCols * colSampleRateByTree * colSampleRateByLevel
//	E >= 8P                         -> SkipNode
//	depth > 2 && E*2^(d-1) >= 8P    -> Depth(d-1)
//	otherwise                       -> a plain hash partitioner (IDRange
//	                                   with the currently-active keys,
//	                                   which degrades gracefully to a hash
//	                                   when Active is small/known)
func Select(p, depth, numCols int, treeIDs []uint32, colSampleByTree, colSampleByLevel float64, active []Key) Partitioner {
	e := float64(len(treeIDs)) * float64(numCols) * colSampleByTree * colSampleByLevel
	if e >= 8*float64(p) {
		return SkipNode{P: p, TreeIDs: treeIDs}
	}
	if depth > 2 && e*float64(uint64(1)<<uint(depth-1)) >= 8*float64(p) {
		return Depth{P: p, D: depth - 1, TreeIDs: treeIDs}
	}
	sortedActive := append([]Key(nil), active...)
	sort.Slice(sortedActive, func(i, j int) bool {
		if sortedActive[i].TreeID != sortedActive[j].TreeID {
			return sortedActive[i].TreeID < sortedActive[j].TreeID
		}
		return sortedActive[i].NodeID < sortedActive[j].NodeID
	})
	return IDRange{P: p, Active: sortedActive}
}
