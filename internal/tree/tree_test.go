package tree

import (
	"context"
	"testing"

	"github.com/ahmedaabouzied/gbdt/internal/binvec"
	"github.com/ahmedaabouzied/gbdt/internal/cluster"
	"github.com/ahmedaabouzied/gbdt/internal/histogram"
	"github.com/ahmedaabouzied/gbdt/internal/split"
)

func bv(col, bin uint32) binvec.BinVector {
	return binvec.New([]binvec.Entry{{Col: col, Bin: bin}})
}

func row(col, bin uint32, g, h float64) histogram.Row {
	return histogram.Row{
		Bins: bv(col, bin), TreeIDs: []uint32{0}, NodeIDs: []uint32{1},
		GH: []histogram.GH{{G: g, H: h}},
	}
}

func TestGrowProducesStumpOnClearSplit(t *testing.T) {
	rows := []histogram.Row{
		row(0, 1, -10, 2),
		row(0, 1, -9, 2),
		row(0, 2, 10, 2),
		row(0, 2, 9, 2),
	}
	ds := cluster.FromSlice(rows, 2)

	p := Params{
		MaxDepth: 1, MaxLeaves: 1000, Strategy: "basic", RawSize: 1, NumCols: 1,
		ColSampleByTree: 1, ColSampleByLevel: 1,
		Split: split.Params{Lambda: 1, MinNodeHess: 0},
	}
	models, err := Grow(context.Background(), ds, []uint32{0}, p)
	if err != nil {
		t.Fatal(err)
	}
	m := models[0]
	if m == nil {
		t.Fatal("expected a model for tree 0")
	}
	root := m.Nodes[0]
	if root.Kind != Internal {
		t.Fatalf("expected root to split, got leaf weight=%v", root.Weight)
	}
	if root.ColID != 0 {
		t.Errorf("ColID = %d, want 0", root.ColID)
	}
	left := m.Nodes[root.Left]
	right := m.Nodes[root.Right]
	// Newton-Raphson weight is -G/(H+lambda): the bin-1 rows carry very
	// negative gradient sums, so their leaf weight comes out positive, and
	// vice versa for the bin-2 (positive-gradient) rows.
	if left.Weight <= 0 {
		t.Errorf("left leaf weight = %v, want positive (bin-1 rows have negative G)", left.Weight)
	}
	if right.Weight >= 0 {
		t.Errorf("right leaf weight = %v, want negative (bin-2 rows have positive G)", right.Weight)
	}
}

func TestGrowStopsAtMaxLeavesOfOne(t *testing.T) {
	rows := []histogram.Row{
		row(0, 1, -10, 2),
		row(0, 2, 10, 2),
	}
	ds := cluster.FromSlice(rows, 1)

	p := Params{
		MaxDepth: 3, MaxLeaves: 1, Strategy: "basic", RawSize: 1, NumCols: 1,
		ColSampleByTree: 1, ColSampleByLevel: 1,
		Split: split.Params{Lambda: 1},
	}
	models, err := Grow(context.Background(), ds, []uint32{0}, p)
	if err != nil {
		t.Fatal(err)
	}
	m := models[0]
	if len(m.Nodes) != 1 {
		t.Fatalf("expected a single-node tree with maxLeaves=1, got %d nodes", len(m.Nodes))
	}
	if m.Nodes[0].Kind != Leaf {
		t.Error("expected root to remain a leaf")
	}
}

func TestGrowRootLeafWeightMatchesNewtonRaphson(t *testing.T) {
	rows := []histogram.Row{
		row(0, 1, 4, 1),
		row(0, 1, 4, 1),
	}
	ds := cluster.FromSlice(rows, 1)

	p := Params{
		MaxDepth: 1, MaxLeaves: 1, Strategy: "basic", RawSize: 1, NumCols: 1,
		ColSampleByTree: 1, ColSampleByLevel: 1,
		Split: split.Params{Lambda: 1},
	}
	models, err := Grow(context.Background(), ds, []uint32{0}, p)
	if err != nil {
		t.Fatal(err)
	}
	m := models[0]
	want := split.LeafWeight(8, 2, p.Split)
	if m.Nodes[0].Weight != want {
		t.Errorf("root leaf weight = %v, want %v", m.Nodes[0].Weight, want)
	}
}

func TestPredictRoutesByThreshold(t *testing.T) {
	m := &Model{Nodes: []Node{
		{Kind: Internal, ColID: 0, SplitKind: split.NumericThreshold, Threshold: 1, Left: 1, Right: 2},
		{Kind: Leaf, Weight: -1},
		{Kind: Leaf, Weight: 1},
	}}
	if got := m.Predict(bv(0, 1)); got != -1 {
		t.Errorf("Predict(bin=1) = %v, want -1", got)
	}
	if got := m.Predict(bv(0, 2)); got != 1 {
		t.Errorf("Predict(bin=2) = %v, want 1", got)
	}
}

func TestPredictCategoricalSet(t *testing.T) {
	m := &Model{Nodes: []Node{
		{Kind: Internal, ColID: 0, SplitKind: split.CategoricalSet, LeftBins: []uint32{1, 3}, Left: 1, Right: 2},
		{Kind: Leaf, Weight: -1},
		{Kind: Leaf, Weight: 1},
	}}
	if got := m.Predict(bv(0, 3)); got != -1 {
		t.Errorf("Predict(bin=3) = %v, want -1 (bin 3 in LeftBins)", got)
	}
	if got := m.Predict(bv(0, 2)); got != 1 {
		t.Errorf("Predict(bin=2) = %v, want 1 (bin 2 not in LeftBins)", got)
	}
}
