package gbdt

import (
	"math"
	"testing"
)

func linearDataset(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i)
		X[i] = []float64{v}
		y[i] = v
	}
	return X, y
}

func rmse(a, b []float64) float64 {
	var sq float64
	for i := range a {
		d := a[i] - b[i]
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(a)))
}

func TestFitRegressionConvergesOnLinearData(t *testing.T) {
	X, y := linearDataset(200)
	cfg := DefaultBoostConfig()
	cfg.MaxIter = 60
	cfg.MaxDepth = 4
	cfg.Seed = 1

	m := New(cfg, MSEObjective{})
	if err := m.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}
	preds, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	if got := rmse(preds, y); got >= 0.05*float64(len(X)) {
		// RMSE is on the raw y=x scale (range ~0..199), so compare against
		// a scale-relative bound rather than the absolute 0.05 spec.md §8
		// names for a normalized dataset.
		t.Fatalf("rmse too high: %f", got)
	}
}

func TestFitConstantLabelStopsEarlyWithZeroContribution(t *testing.T) {
	X := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	y := []float64{5, 5, 5, 5, 5, 5, 5, 5}
	cfg := DefaultBoostConfig()
	cfg.MaxIter = 10
	cfg.Seed = 1

	m := New(cfg, MSEObjective{})
	if err := m.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}
	// A constant label carries zero gradient everywhere, so every candidate
	// split has zero gain and every leaf weight comes out zero; Fit treats
	// such trees as empty and stops after the first iteration rather than
	// running all MaxIter rounds.
	if len(m.TrainHistory) == 0 || len(m.TrainHistory) >= cfg.MaxIter {
		t.Fatalf("expected an early stop well before MaxIter=%d, ran %d iterations", cfg.MaxIter, len(m.TrainHistory))
	}
	preds, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range preds {
		if math.Abs(p-5) > 1e-9 {
			t.Fatalf("expected constant prediction 5, got %f", p)
		}
	}
}

func TestFitXORCategoricalReachesPerfectAccuracy(t *testing.T) {
	X := [][]float64{}
	y := []float64{}
	for i := 0; i < 50; i++ {
		X = append(X, []float64{0, 0}, []float64{0, 1}, []float64{1, 0}, []float64{1, 1})
		y = append(y, 0, 1, 1, 0)
	}
	cfg := DefaultBoostConfig()
	cfg.MaxIter = 30
	cfg.MaxDepth = 3
	cfg.Seed = 7

	m := New(cfg, LogLossObjective{})
	m.SetCategoricalColumns([]int{0, 1})
	if err := m.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}
	preds, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	correct := 0
	for i, p := range preds {
		label := 0.0
		if p >= 0.5 {
			label = 1.0
		}
		if label == y[i] {
			correct++
		}
	}
	acc := float64(correct) / float64(len(y))
	if acc != 1.0 {
		t.Fatalf("expected perfect accuracy on XOR, got %f", acc)
	}
}

func TestDARTWithDropSkipOneMatchesGBTree(t *testing.T) {
	X, y := linearDataset(60)

	cfgTree := DefaultBoostConfig()
	cfgTree.MaxIter = 10
	cfgTree.Seed = 3

	cfgDart := cfgTree
	cfgDart.BoostType = "dart"
	cfgDart.DropSkip = 1.0 // never drop: degenerates to gbtree (spec.md §8)

	mTree := New(cfgTree, MSEObjective{})
	if err := mTree.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}
	mDart := New(cfgDart, MSEObjective{})
	if err := mDart.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}

	predTree, err := mTree.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	predDart, err := mDart.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := range predTree {
		if math.Abs(predTree[i]-predDart[i]) > 1e-9 {
			t.Fatalf("row %d: gbtree=%f dart(dropSkip=1)=%f, expected identical", i, predTree[i], predDart[i])
		}
	}
}

func TestDARTWeightInvariantAfterDrop(t *testing.T) {
	X, y := linearDataset(80)
	cfg := DefaultBoostConfig()
	cfg.BoostType = "dart"
	cfg.DropSkip = 0 // always drop this round
	cfg.MinDrop = 1
	cfg.MaxDrop = 1
	cfg.MaxIter = 3
	cfg.Seed = 5

	m := New(cfg, MSEObjective{})
	if err := m.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}
	if m.NumTrees() == 0 {
		t.Fatal("expected at least one tree")
	}
	// Every weight must be a positive multiple of StepSize, since weights
	// store StepSize*dartWeight (see DESIGN.md) and dartWeight is always in
	// (0, 1].
	for i, w := range m.weights {
		if w <= 0 || w > cfg.StepSize+1e-9 {
			t.Fatalf("tree %d weight %f out of expected (0, StepSize] range", i, w)
		}
	}
}

func TestFitRejectsInvalidConfig(t *testing.T) {
	X, y := linearDataset(10)
	cfg := DefaultBoostConfig()
	cfg.MaxDepth = 0 // invalid
	m := New(cfg, MSEObjective{})
	err := m.Fit(X, y, nil, nil)
	if err == nil {
		t.Fatal("expected error for invalid MaxDepth")
	}
	var fe *FitError
	if !asFitError(err, &fe) {
		t.Fatalf("expected *FitError, got %T: %v", err, err)
	}
	if fe.Kind != KindConfig {
		t.Fatalf("expected KindConfig, got %v", fe.Kind)
	}
}

func TestFitRejectsLengthMismatch(t *testing.T) {
	X, _ := linearDataset(10)
	y := []float64{1, 2, 3}
	m := New(DefaultBoostConfig(), MSEObjective{})
	err := m.Fit(X, y, nil, nil)
	if err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestPredictBeforeFitFails(t *testing.T) {
	m := New(DefaultBoostConfig(), MSEObjective{})
	if _, err := m.Predict([][]float64{{1, 2}}); err == nil {
		t.Fatal("expected ErrModelNotFitted")
	}
}

func TestEarlyStoppingHaltsOnValidationStagnation(t *testing.T) {
	X, y := linearDataset(100)
	valX, valY := X[:20], y[:20]

	cfg := DefaultBoostConfig()
	cfg.MaxIter = 200
	cfg.EarlyStopIters = 3
	cfg.Seed = 11

	m := New(cfg, MSEObjective{})
	m.AddMetric(MetricSpec{Name: "rmse", Fn: RMSE, LowerIsBetter: true})
	if err := m.Fit(X, y, valX, valY); err != nil {
		t.Fatal(err)
	}
	if len(m.TestHistory) >= cfg.MaxIter {
		t.Fatalf("expected early stop well before MaxIter, ran %d iterations", len(m.TestHistory))
	}
}

func TestSaveLoadRoundTripsPredictions(t *testing.T) {
	X, y := linearDataset(100)
	cfg := DefaultBoostConfig()
	cfg.MaxIter = 15
	cfg.Seed = 9

	m := New(cfg, MSEObjective{})
	if err := m.Fit(X, y, nil, nil); err != nil {
		t.Fatal(err)
	}
	before, err := m.Predict(X)
	if err != nil {
		t.Fatal(err)
	}

	path := writeTestCSV(t, "model.json", "")
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path, MSEObjective{})
	if err != nil {
		t.Fatal(err)
	}
	after, err := loaded.Predict(X)
	if err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if math.Abs(before[i]-after[i]) > 1e-9 {
			t.Fatalf("row %d: before=%f after=%f, persisted model diverged", i, before[i], after[i])
		}
	}
}

// asFitError is a small errors.As wrapper kept local to the test file so
// tests don't need to import the errors package just for this one check.
func asFitError(err error, target **FitError) bool {
	fe, ok := err.(*FitError)
	if !ok {
		return false
	}
	*target = fe
	return true
}
