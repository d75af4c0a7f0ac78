package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/ahmedaabouzied/gbdt/internal/binvec"
	"github.com/ahmedaabouzied/gbdt/internal/cluster"
	"github.com/ahmedaabouzied/gbdt/internal/selector"
)

func inst(key uint64, grad float64) Instance {
	return Instance{Key: key, Bins: binvec.BinVector{}, Grad: []float64{grad}, Hess: []float64{1}}
}

func TestNoneAssignsEveryTree(t *testing.T) {
	instances := []Instance{inst(0, 1), inst(1, 2)}
	out := None(instances, 3)
	for _, s := range out {
		if len(s.TreeIDs) != 3 {
			t.Fatalf("expected 3 tree ids, got %v", s.TreeIDs)
		}
	}
}

func TestPartitionDropsEmptySelection(t *testing.T) {
	data := cluster.FromSlice([]Instance{inst(0, 1), inst(1, 2)}, 2)
	out, err := Partition(context.Background(), data, selector.True{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if out.Count() != 2 {
		t.Fatalf("expected all rows kept with True selector, got %d", out.Count())
	}

	none, err := Partition(context.Background(), data, falseSelector{}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if none.Count() != 0 {
		t.Fatalf("expected 0 rows kept with always-false selector, got %d", none.Count())
	}
}

type falseSelector struct{}

func (falseSelector) Contains(uint32, uint64) bool { return false }

func TestRowSelectorFiltersIndividually(t *testing.T) {
	instances := make([]Instance, 0, 200)
	for i := uint64(0); i < 200; i++ {
		instances = append(instances, inst(i, 1))
	}
	data := cluster.FromSlice(instances, 4)
	sel := selector.Hash{Seed: 7, Rate: 0.3}
	out, err := Row(context.Background(), data, sel, 1)
	if err != nil {
		t.Fatal(err)
	}
	frac := float64(out.Count()) / float64(len(instances))
	if frac < 0.15 || frac > 0.45 {
		t.Errorf("kept fraction = %v, want roughly 0.3", frac)
	}
}

func TestGossKeepsHighGradientRows(t *testing.T) {
	instances := make([]Instance, 0, 1000)
	for i := uint64(0); i < 900; i++ {
		instances = append(instances, inst(i, 0.1))
	}
	for i := uint64(900); i < 1000; i++ {
		instances = append(instances, inst(i, 100)) // unmistakably high gradNorm
	}
	data := cluster.FromSlice(instances, 4)
	out, err := Goss(context.Background(), data, 0.1, 0.2, 42, 1)
	if err != nil {
		t.Fatal(err)
	}
	highKept := 0
	for _, s := range out.Collect() {
		if math.Abs(s.Grad[0]) > 10 {
			highKept++
		}
	}
	if highKept < 90 {
		t.Errorf("expected nearly all high-gradient rows kept, got %d/100", highKept)
	}
}

func TestGossCompensatesOtherGradients(t *testing.T) {
	instances := make([]Instance, 0, 500)
	for i := uint64(0); i < 500; i++ {
		instances = append(instances, inst(i, 1))
	}
	data := cluster.FromSlice(instances, 2)
	out, err := Goss(context.Background(), data, 0.1, 0.3, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	compensation := (1 - 0.1) / 0.3
	for _, s := range out.Collect() {
		if math.Abs(s.Grad[0]-compensation) > 1e-9 && math.Abs(s.Grad[0]-1) > 1e-9 {
			t.Errorf("unexpected gradient value %v (want 1 or ~%v)", s.Grad[0], compensation)
		}
	}
}
