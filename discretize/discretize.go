// Package discretize supplies the one concrete Discretizer spec.md leaves
// as an out-of-scope "external collaborator, mentioned only by interface":
// EqualWidth implements the "width:round" scheme named as the engine's
// default discretizationType (spec.md §6), and nothing else, since other
// schemes are not named by spec.md and discretization itself is explicitly
// out of the core's scope. It lives in its own package so it never leaks
// into the tree/histogram/split packages' conceptual boundary.
package discretize

import (
	"fmt"
	"math"
	"sort"

	"github.com/ahmedaabouzied/gbdt/internal/binvec"
)

// EqualWidth maps each numeric column into maxBins-1 equal-width buckets
// (bin 1..maxBins-1), reserving bin 0 for "zero / missing" per spec.md §3.
// Columns named in CatCols are instead treated as already-ordinal
// categories (the caller's label encoding, e.g. from [gbdt.Dataset]) and
// assigned one bin per distinct value seen during Fit, also offset by one
// to keep bin 0 reserved.
type EqualWidth struct {
	MaxBins       int
	ZeroAsMissing bool
	CatCols       map[int]bool

	Mins, Maxs []float64
	CatBins    []map[float64]uint32 // nil for numeric columns
	NumCols    int
	Fitted     bool
}

// NewEqualWidth constructs a discretizer. maxBins must be >= 4 (spec.md §6).
func NewEqualWidth(maxBins int, catCols map[int]bool, zeroAsMissing bool) *EqualWidth {
	if catCols == nil {
		catCols = map[int]bool{}
	}
	return &EqualWidth{MaxBins: maxBins, CatCols: catCols, ZeroAsMissing: zeroAsMissing}
}

// Fit scans X to learn per-column ranges (numeric) or the distinct ordinal
// values observed (categorical). It must run once, before any Transform.
func (d *EqualWidth) Fit(X [][]float64) error {
	if len(X) == 0 {
		return fmt.Errorf("discretize: empty training matrix")
	}
	d.NumCols = len(X[0])
	d.Mins = make([]float64, d.NumCols)
	d.Maxs = make([]float64, d.NumCols)
	d.CatBins = make([]map[float64]uint32, d.NumCols)
	for c := 0; c < d.NumCols; c++ {
		d.Mins[c] = math.Inf(1)
		d.Maxs[c] = math.Inf(-1)
	}

	catValues := make([]map[float64]bool, d.NumCols)
	for c := range catValues {
		if d.CatCols[c] {
			catValues[c] = make(map[float64]bool)
		}
	}

	for _, row := range X {
		if len(row) != d.NumCols {
			return fmt.Errorf("discretize: row width %d != %d", len(row), d.NumCols)
		}
		for c, v := range row {
			if d.CatCols[c] {
				catValues[c][v] = true
				continue
			}
			if v < d.Mins[c] {
				d.Mins[c] = v
			}
			if v > d.Maxs[c] {
				d.Maxs[c] = v
			}
		}
	}

	for c, seen := range catValues {
		if seen == nil {
			continue
		}
		vals := make([]float64, 0, len(seen))
		for v := range seen {
			vals = append(vals, v)
		}
		sort.Float64s(vals)
		if len(vals) > d.MaxBins-1 {
			return fmt.Errorf("discretize: column %d has %d categories, exceeds MaxBins-1=%d", c, len(vals), d.MaxBins-1)
		}
		m := make(map[float64]uint32, len(vals))
		for i, v := range vals {
			m[v] = uint32(i + 1) // bin 0 reserved
		}
		d.CatBins[c] = m
	}

	d.Fitted = true
	return nil
}

// NumBins returns the bin count (including bin 0) column col was fit with.
func (d *EqualWidth) NumBins(col int) int {
	if d.CatBins[col] != nil {
		return len(d.CatBins[col]) + 1
	}
	return d.MaxBins
}

// Transform maps raw rows to sparse BinVectors using the ranges/categories
// learned by Fit.
func (d *EqualWidth) Transform(X [][]float64) ([]binvec.BinVector, error) {
	if !d.Fitted {
		return nil, fmt.Errorf("discretize: Transform called before Fit")
	}
	out := make([]binvec.BinVector, len(X))
	for i, row := range X {
		if len(row) != d.NumCols {
			return nil, fmt.Errorf("discretize: row width %d != %d", len(row), d.NumCols)
		}
		entries := make([]binvec.Entry, 0, d.NumCols)
		for c, v := range row {
			bin := d.binOf(c, v)
			if bin == 0 {
				continue
			}
			entries = append(entries, binvec.Entry{Col: uint32(c), Bin: bin})
		}
		out[i] = binvec.New(entries)
	}
	return out, nil
}

func (d *EqualWidth) binOf(col int, v float64) uint32 {
	if d.ZeroAsMissing && v == 0 {
		return 0
	}
	if m := d.CatBins[col]; m != nil {
		return m[v] // 0 for unseen-at-Fit-time categories (treated as missing)
	}
	lo, hi := d.Mins[col], d.Maxs[col]
	if lo == hi {
		if v == 0 {
			return 0
		}
		return 1
	}
	if v == 0 {
		return 0
	}
	width := hi - lo
	frac := (v - lo) / width
	bin := int(math.Round(frac*float64(d.MaxBins-2))) + 1
	if bin < 1 {
		bin = 1
	}
	if bin > d.MaxBins-1 {
		bin = d.MaxBins - 1
	}
	return uint32(bin)
}
