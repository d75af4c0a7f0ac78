// Package binvec implements the data model of spec.md §3: sparse
// column-to-bin vectors, the row-major blocks that hold them, and the
// fixed-width array/scalar blocks used for labels, gradient-Hessian pairs,
// tree ids and node ids.
//
// Bin 0 is reserved for "zero / missing" — BinVector only stores non-zero
// entries, exactly as spec.md §3 requires.
package binvec

import "sort"

// Entry is one (column, bin) pair of a BinVector. Bin is never 0; a column
// with bin 0 (missing/zero) is simply absent from Entries.
type Entry struct {
	Col uint32
	Bin uint32
}

// BinVector is a sparse vector over colId -> binId for a single instance.
// Entries are kept sorted by Col so that Slice and the histogram builder
// can binary-search / merge-walk them.
type BinVector struct {
	Entries []Entry
}

// New builds a BinVector from unsorted (col,bin) pairs, dropping any
// zero-bin entries (they are implicit) and sorting by column.
func New(entries []Entry) BinVector {
	filtered := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Bin != 0 {
			filtered = append(filtered, e)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Col < filtered[j].Col })
	return BinVector{Entries: filtered}
}

// Get returns the bin for col, or 0 if col is absent (missing/zero).
func (v BinVector) Get(col uint32) uint32 {
	i := sort.Search(len(v.Entries), func(i int) bool { return v.Entries[i].Col >= col })
	if i < len(v.Entries) && v.Entries[i].Col == col {
		return v.Entries[i].Bin
	}
	return 0
}

// ActiveIter calls fn for every non-zero (col,bin) entry, in ascending
// column order. This is the hot loop used by the histogram builder
// (spec.md §4.4 "for each active non-zero bin in that row's BinVector").
func (v BinVector) ActiveIter(fn func(col, bin uint32)) {
	for _, e := range v.Entries {
		fn(e.Col, e.Bin)
	}
}

// Slice returns the subset of v restricted to the given sorted column
// indices (e.g. a column sample for one tree/level). cols must be sorted
// ascending; behavior is undefined otherwise.
func (v BinVector) Slice(cols []uint32) BinVector {
	if len(cols) == 0 || len(v.Entries) == 0 {
		return BinVector{}
	}
	out := make([]Entry, 0, min(len(cols), len(v.Entries)))
	i, j := 0, 0
	for i < len(v.Entries) && j < len(cols) {
		switch {
		case v.Entries[i].Col == cols[j]:
			out = append(out, v.Entries[i])
			i++
			j++
		case v.Entries[i].Col < cols[j]:
			i++
		default:
			j++
		}
	}
	return BinVector{Entries: out}
}

// Plus returns the entrywise union of v and w, summing bins is not
// meaningful for BinVectors (they hold indices, not numeric quantities) —
// Plus here concatenates entries from rows that belong to disjoint
// instances and is only used when merging two blocks' worth of vectors
// for the same logical row set; histogram addition and subtraction are
// internal/histogram's Plus and Minus.
func (v BinVector) Plus(w BinVector) BinVector {
	out := make([]Entry, 0, len(v.Entries)+len(w.Entries))
	out = append(out, v.Entries...)
	out = append(out, w.Entries...)
	sort.Slice(out, func(i, j int) bool { return out[i].Col < out[j].Col })
	return BinVector{Entries: out}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// KVMatrix is a packed block of rows of BinVectors: the unit of persistence
// and shuffling for discretized training data (spec.md §3).
type KVMatrix struct {
	Rows []BinVector
}

// BlockSize is the default row-count bound per block (spec.md §6 default).
const BlockSize = 4096

// NewKVMatrix packs rows into blocks of at most blockSize rows each.
func NewKVMatrix(rows []BinVector, blockSize int) []KVMatrix {
	if blockSize <= 0 {
		blockSize = BlockSize
	}
	var blocks []KVMatrix
	for i := 0; i < len(rows); i += blockSize {
		end := i + blockSize
		if end > len(rows) {
			end = len(rows)
		}
		blocks = append(blocks, KVMatrix{Rows: append([]BinVector(nil), rows[i:end]...)})
	}
	return blocks
}

// Len returns the number of rows in the block.
func (m KVMatrix) Len() int { return len(m.Rows) }

// Slice returns a new block containing only the rows at the given indices,
// in order (spec.md §3 "Supports plus/minus/slice/activeIter").
func (m KVMatrix) Slice(indices []int) KVMatrix {
	out := make([]BinVector, len(indices))
	for i, idx := range indices {
		out[i] = m.Rows[idx]
	}
	return KVMatrix{Rows: out}
}

// ArrayBlock is a packed array of fixed-size T rows: used for labels
// (width = number of outputs), grad-hess (width = 2*rawSize), treeIds and
// nodeIds (spec.md §3).
type ArrayBlock[T any] struct {
	Width int
	Data  []T // len(Data) == Width * numRows
}

// NewArrayBlock allocates an ArrayBlock for numRows rows of width values
// each.
func NewArrayBlock[T any](numRows, width int) ArrayBlock[T] {
	return ArrayBlock[T]{Width: width, Data: make([]T, numRows*width)}
}

// Row returns the slice of values for row i (a view, not a copy).
func (b ArrayBlock[T]) Row(i int) []T {
	return b.Data[i*b.Width : (i+1)*b.Width]
}

// Len returns the number of rows.
func (b ArrayBlock[T]) Len() int {
	if b.Width == 0 {
		return 0
	}
	return len(b.Data) / b.Width
}

// CompactArray is a packed array of scalar values: weights, raw-prediction
// scalars (spec.md §3).
type CompactArray[T any] struct {
	Data []T
}

// NewCompactArray allocates a CompactArray of the given length.
func NewCompactArray[T any](n int) CompactArray[T] {
	return CompactArray[T]{Data: make([]T, n)}
}

// Slice returns a new CompactArray containing only the given indices.
func (c CompactArray[T]) Slice(indices []int) CompactArray[T] {
	out := make([]T, len(indices))
	for i, idx := range indices {
		out[i] = c.Data[idx]
	}
	return CompactArray[T]{Data: out}
}
