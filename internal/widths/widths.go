// Package widths implements spec.md §3's "Sizing widths" and the dynamic
// numeric-dispatch design note of §9: choosing the narrowest unsigned
// integer width for treeId (T), nodeId (N), colId (C) and binId (B) from
// configuration, and a runtime dispatch table keyed on the resulting
// (T,N) pair.
//
// Only T and N are dispatched as a pair (nine combinations of
// {byte,short,int}^2, per spec.md §9's explicit open-question
// resolution): colId and binId are sized independently since nothing in
// the spec couples them to a cross-product dispatch the way treeId and
// nodeId are coupled through LearningNode ids and tree indices appearing
// together in every histogram key.
package widths

import "fmt"

// Kind identifies one of the three supported integer widths.
type Kind int

const (
	W8 Kind = iota
	W16
	W32
)

func (k Kind) String() string {
	switch k {
	case W8:
		return "uint8"
	case W16:
		return "uint16"
	case W32:
		return "uint32"
	default:
		return "unknown"
	}
}

// fitsIn returns the narrowest Kind that can represent values in [0, n).
func fitsIn(n int64) Kind {
	switch {
	case n <= 1<<8:
		return W8
	case n <= 1<<16:
		return W16
	default:
		return W32
	}
}

// PickTreeWidth chooses T from numTrees = forestSize * rawSize.
func PickTreeWidth(numTrees int) Kind { return fitsIn(int64(numTrees)) }

// PickNodeWidth chooses N from 2^maxDepth (spec.md §3).
func PickNodeWidth(maxDepth int) Kind {
	if maxDepth < 0 {
		maxDepth = 0
	}
	if maxDepth > 62 {
		maxDepth = 62
	}
	return fitsIn(int64(1) << uint(maxDepth))
}

// PickColWidth chooses C from numCols.
func PickColWidth(numCols int) Kind { return fitsIn(int64(numCols)) }

// PickBinWidth chooses B from maxBins.
func PickBinWidth(maxBins int) Kind { return fitsIn(int64(maxBins)) }

// Sizes is the resolved width selection for one training run.
type Sizes struct {
	Tree Kind
	Node Kind
	Col  Kind
	Bin  Kind
}

// Select resolves all four widths from the sizes implied by configuration.
func Select(numTrees, maxDepth, numCols, maxBins int) Sizes {
	return Sizes{
		Tree: PickTreeWidth(numTrees),
		Node: PickNodeWidth(maxDepth),
		Col:  PickColWidth(numCols),
		Bin:  PickBinWidth(maxBins),
	}
}

// TreeNodeCodec converts treeId/nodeId pairs to/from a single uint64 packed
// key, at the byte width the dispatch table selected. The engine's
// in-memory representation always uses uint32 (simplicity, and Go gains
// nothing from narrower in-memory int types that the compiler doesn't
// pack anyway); the codec only describes a *serialized* width. Nothing
// else in this module uses it: model persistence writes JSON and the
// partitioners hash uint32 ids directly.
type TreeNodeCodec struct {
	Tree, Node Kind
}

// NewTreeNodeCodec performs the explicit nine-way (T,N) dispatch described
// in spec.md §9: the open question calls out a source bug where an
// (INT,SHORT) dispatch branch was duplicated in place of (INT,INT); this
// port enumerates all nine combinations explicitly so that mistake cannot
// recur structurally.
func NewTreeNodeCodec(tree, node Kind) TreeNodeCodec {
	switch {
	case tree == W8 && node == W8,
		tree == W8 && node == W16,
		tree == W8 && node == W32,
		tree == W16 && node == W8,
		tree == W16 && node == W16,
		tree == W16 && node == W32,
		tree == W32 && node == W8,
		tree == W32 && node == W16,
		tree == W32 && node == W32:
		return TreeNodeCodec{Tree: tree, Node: node}
	default:
		panic(fmt.Sprintf("widths: unreachable (tree,node) kind pair (%v,%v)", tree, node))
	}
}

// TreeByteWidth returns the on-disk byte width for a treeId under this codec.
func (c TreeNodeCodec) TreeByteWidth() int { return byteWidth(c.Tree) }

// NodeByteWidth returns the on-disk byte width for a nodeId under this codec.
func (c TreeNodeCodec) NodeByteWidth() int { return byteWidth(c.Node) }

func byteWidth(k Kind) int {
	switch k {
	case W8:
		return 1
	case W16:
		return 2
	default:
		return 4
	}
}

// PutUint writes v into dst using the given width, little-endian, and
// returns the number of bytes written. dst must have capacity for at
// least the byte width.
func PutUint(dst []byte, k Kind, v uint32) int {
	switch k {
	case W8:
		dst[0] = byte(v)
		return 1
	case W16:
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		return 2
	default:
		dst[0] = byte(v)
		dst[1] = byte(v >> 8)
		dst[2] = byte(v >> 16)
		dst[3] = byte(v >> 24)
		return 4
	}
}

// GetUint reads a value of the given width, little-endian, returning the
// value and number of bytes consumed.
func GetUint(src []byte, k Kind) (uint32, int) {
	switch k {
	case W8:
		return uint32(src[0]), 1
	case W16:
		return uint32(src[0]) | uint32(src[1])<<8, 2
	default:
		return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24, 4
	}
}
