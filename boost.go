package gbdt

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"time"

	"github.com/ahmedaabouzied/gbdt/discretize"
	"github.com/ahmedaabouzied/gbdt/internal/binvec"
	"github.com/ahmedaabouzied/gbdt/internal/checkpoint"
	"github.com/ahmedaabouzied/gbdt/internal/cluster"
	"github.com/ahmedaabouzied/gbdt/internal/histogram"
	"github.com/ahmedaabouzied/gbdt/internal/sampler"
	"github.com/ahmedaabouzied/gbdt/internal/selector"
	"github.com/ahmedaabouzied/gbdt/internal/split"
	"github.com/ahmedaabouzied/gbdt/internal/tree"
	"github.com/ahmedaabouzied/gbdt/internal/widths"
)

// Discretizer is the external collaborator spec.md §1 names only by
// interface: "feature discretization (a Discretizer that maps a raw
// feature vector to a bin vector)". [discretize.EqualWidth] is the one
// concrete implementation this port supplies; Fit supplies it by default
// but SetDiscretizer may override it with any type satisfying this
// interface.
type Discretizer interface {
	Fit(X [][]float64) error
	Transform(X [][]float64) ([]binvec.BinVector, error)
	NumBins(col int) int
}

// Metric scores predictions against labels. Predictions are the
// objective's Transform()ed output (e.g. a probability for LogLoss, the
// raw value for MSE), never the raw pre-link score.
type Metric func(labels, predictions []float64) float64

// MetricSpec names a registered Metric and which direction is "better",
// the direction EarlyStopIters needs to detect stagnation.
type MetricSpec struct {
	Name          string
	Fn            Metric
	LowerIsBetter bool
}

// RMSE is a ready-to-register Metric: root-mean-squared error.
func RMSE(labels, predictions []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	var sq float64
	for i := range labels {
		d := predictions[i] - labels[i]
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(labels)))
}

// LogLoss is a ready-to-register Metric: mean binary cross-entropy.
// Predictions are clamped away from {0,1} to avoid evaluating log(0).
func LogLoss(labels, predictions []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	var s float64
	for i, y := range labels {
		p := clip(predictions[i], 1e-7, 1-1e-7)
		s -= y*math.Log(p) + (1-y)*math.Log(1-p)
	}
	return s / float64(len(labels))
}

// Accuracy is a ready-to-register Metric for 0/1 classification,
// thresholding predictions at 0.5.
func Accuracy(labels, predictions []float64) float64 {
	if len(labels) == 0 {
		return 0
	}
	correct := 0
	for i, y := range labels {
		pred := 0.0
		if predictions[i] >= 0.5 {
			pred = 1.0
		}
		if pred == y {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// Callback inspects a snapshot of training after each iteration and may
// request an early stop or publish a replacement BoostConfig for the
// next iteration (spec.md §4.1 step 7, §5 "Mutable-via-update config").
// The GBM passed in is read-only; callers must not retain trainHistory/
// testHistory slices past the call since the boosting loop keeps
// appending to the backing arrays.
type Callback func(cfg BoostConfig, model *GBM, iteration int, trainHistory, testHistory []map[string]float64) (stop bool, newConfig *BoostConfig)

// GBM is a fitted (or fitting) gradient boosted ensemble: a constant
// rawBase plus an additive sequence of trees, each contributing to one of
// RawSize raw outputs (spec.md §4.1). Fit implements the full boosting
// loop: DART dropout, sampler dispatch, histogram-based tree growth,
// raw-prediction maintenance, metrics, callbacks, early stopping, and
// checkpointing of the raw-prediction dataset.
type GBM struct {
	Config BoostConfig
	Obj    ObjFunc

	discretizer Discretizer
	catCols     map[int]bool
	numCols     int

	fitted    bool
	rawBase   []float64
	trees     []*tree.Model
	weights   []float64
	outputIdx []int

	metrics    []MetricSpec
	primaryIdx int
	callbacks  []Callback

	TrainHistory []map[string]float64
	TestHistory  []map[string]float64
}

// New constructs an unfitted GBM for the given hyperparameters and
// objective.
func New(cfg BoostConfig, obj ObjFunc) *GBM {
	return &GBM{Config: cfg, Obj: obj, primaryIdx: -1}
}

// AddMetric registers a metric computed every iteration. The first
// registered metric also becomes the one EarlyStopIters watches unless
// SetPrimaryMetric picks a different one afterward.
func (g *GBM) AddMetric(spec MetricSpec) {
	g.metrics = append(g.metrics, spec)
	if g.primaryIdx < 0 {
		g.primaryIdx = len(g.metrics) - 1
	}
}

// SetPrimaryMetric designates which already-registered metric
// EarlyStopIters watches, by name.
func (g *GBM) SetPrimaryMetric(name string) error {
	for i, m := range g.metrics {
		if m.Name == name {
			g.primaryIdx = i
			return nil
		}
	}
	return fmt.Errorf("gbdt: metric %q not registered", name)
}

// AddCallback registers a callback invoked after every iteration.
func (g *GBM) AddCallback(cb Callback) {
	g.callbacks = append(g.callbacks, cb)
}

// SetDiscretizer overrides the EqualWidth discretizer Fit would otherwise
// construct lazily. Must be called before Fit.
func (g *GBM) SetDiscretizer(d Discretizer) { g.discretizer = d }

// SetCategoricalColumns marks feature indices as categorical: read by the
// discretizer's Fit (ordinal-bin assignment instead of range bucketing)
// and by the tree grower's split-finder dispatch (spec.md §4.5).
func (g *GBM) SetCategoricalColumns(cols []int) {
	g.catCols = make(map[int]bool, len(cols))
	for _, c := range cols {
		g.catCols[c] = true
	}
}

// Fit trains the ensemble on X/y, optionally tracking a held-out
// validation set (valX/valY may both be nil). See spec.md §4.1 for the
// full per-iteration sequence this method implements.
func (g *GBM) Fit(X [][]float64, y []float64, valX [][]float64, valY []float64) error {
	if err := g.Config.validate(); err != nil {
		return err
	}
	if len(X) == 0 {
		return dataErr("X", ErrEmptyDataset)
	}
	if len(X[0]) == 0 {
		return dataErr("X", ErrEmptyFeatures)
	}
	if len(X) != len(y) {
		return dataErr("y", ErrLengthMismatch)
	}
	if !hasSimilarLength(X) {
		return dataErr("X", ErrFeatureCountMismatch)
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dataErr("y", ErrNaNOrInfLabel)
		}
	}
	if (valX == nil) != (valY == nil) {
		return dataErr("valY", ErrLengthMismatch)
	}
	if valX != nil && len(valX) != len(valY) {
		return dataErr("valY", ErrLengthMismatch)
	}

	cfg := g.Config
	obj := g.Obj
	rawSize := obj.RawSize()
	numCols := len(X[0])
	g.numCols = numCols

	if g.discretizer == nil {
		g.discretizer = discretize.NewEqualWidth(cfg.MaxBins, g.catCols, cfg.ZeroAsMissing)
	}
	if err := g.discretizer.Fit(X); err != nil {
		return dataErr("X", err)
	}
	bins, err := g.discretizer.Transform(X)
	if err != nil {
		return dataErr("X", err)
	}
	var valBins []binvec.BinVector
	if valX != nil {
		valBins, err = g.discretizer.Transform(valX)
		if err != nil {
			return dataErr("valX", err)
		}
	}

	g.rawBase = obj.InitialRawScore(y)
	g.trees = nil
	g.weights = nil
	g.outputIdx = nil
	g.TrainHistory = nil
	g.TestHistory = nil

	n := len(X)
	numTrees := cfg.ForestSize * rawSize
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	sizes := widths.Select(numTrees, cfg.MaxDepth, numCols, cfg.MaxBins)
	log.Printf("gbdt: fit start: %d rows, %d cols, %d trees/iter, widths=%+v", n, numCols, numTrees, sizes)

	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	rnd := sampler.NewRand(seed)

	// R holds every row's cumulative raw prediction (rawSize-wide);
	// contribs[t] holds tree t's already stepSize-and-weight-scaled
	// contribution to every row, so R == rawBase + sum(contribs) is an
	// invariant maintained across iterations (needed to "undo" a tree's
	// contribution cheaply when DART drops it).
	R := make([][]float64, n)
	valR := make([][]float64, len(valBins))
	for i := range R {
		R[i] = append([]float64(nil), g.rawBase...)
	}
	for i := range valR {
		valR[i] = append([]float64(nil), g.rawBase...)
	}
	var contribs [][][]float64    // contribs[t][row] -> []float64 length rawSize
	var valContribs [][][]float64 // parallel, over valBins

	ctx := context.Background()
	rawLevel := cluster.StorageLevel(storageLevelOf(cfg.StorageLevel2))
	checkpointer := checkpoint.New[[]float64]("", 3, cfg.CheckpointInterval, rawLevel)

	catColsU32 := make(map[uint32]bool, len(g.catCols))
	for c := range g.catCols {
		catColsU32[uint32(c)] = true
	}

	bestMetric := math.Inf(1)
	worstMetric := math.Inf(-1)
	stagnantIters := 0

	for iter := 0; iter < cfg.MaxIter; iter++ {
		cleaner := checkpoint.NewResourceCleaner()
		iterSeed := seed + int64(iter)*104729 // distinct large stride per iteration, spec.md §5 "seed + iteration"

		// TreeConfig is the per-iteration snapshot this round's tree.Params is
		// built from (spec.md §3); ColumnSelector mirrors the Union the grower
		// itself applies at depth 0 (deeper levels reseed the level selector
		// with iterSeed+1+depth), recorded here for callers/tests that want
		// to know which columns the root split could touch.
		tc := TreeConfig{
			Iteration:      iter,
			ColumnSelector: selector.Union{A: selector.Hash{Seed: iterSeed, Rate: cfg.ColSampleRateByTree}, B: selector.Hash{Seed: iterSeed + 1, Rate: cfg.ColSampleRateByNode}},
			CatCols:        catColsU32,
		}
		catColFn := func(_, colID uint32) bool { return tc.CatCols[colID] }

		// 1. DART dropout.
		dropped := make(map[int]bool)
		k := 0
		if cfg.BoostType == "dart" && len(g.trees) > 0 && rnd.Float64() >= cfg.DropSkip {
			maxK := cfg.MaxDrop
			if maxK > len(g.trees) {
				maxK = len(g.trees)
			}
			minK := cfg.MinDrop
			if minK > maxK {
				minK = maxK
			}
			if maxK > minK {
				k = minK + rnd.Intn(maxK-minK+1)
			} else {
				k = minK
			}
			if k > 0 {
				perm := rnd.Perm(len(g.trees))
				for _, idx := range perm[:k] {
					dropped[idx] = true
				}
			}
		}

		// 2. Effective raw prediction for gradient computation: R with
		// dropped trees' contributions removed.
		Reff := R
		if len(dropped) > 0 {
			Reff = make([][]float64, n)
			for i := range R {
				row := append([]float64(nil), R[i]...)
				for idx := range dropped {
					for o := 0; o < rawSize; o++ {
						row[o] -= contribs[idx][i][o]
					}
				}
				Reff[i] = row
			}
		}

		grad := make([][]float64, n)
		hess := make([][]float64, n)
		for i := 0; i < n; i++ {
			grad[i], hess[i] = obj.Compute(y[i], Reff[i])
		}

		instances := make([]sampler.Instance, n)
		for i := 0; i < n; i++ {
			instances[i] = sampler.Instance{Key: uint64(i), Bins: bins[i], Grad: grad[i], Hess: hess[i]}
		}

		sampledDS, err := runSampler(ctx, instances, cfg, numTrees, iterSeed, parallelism)
		if err != nil {
			return err
		}
		cleaner.Register(func() error { sampledDS.Unpersist(); return nil })

		// 3. Fit forestSize*rawSize trees in parallel.
		rowsDS, err := cluster.MapPartitionsErr(ctx, sampledDS, func(_ int, part []sampler.Sampled) ([]histogram.Row, error) {
			out := make([]histogram.Row, len(part))
			for i, s := range part {
				nodeIDs := make([]uint32, len(s.TreeIDs))
				for j := range nodeIDs {
					nodeIDs[j] = 1
				}
				gh := make([]histogram.GH, rawSize)
				for o := 0; o < rawSize; o++ {
					gh[o] = histogram.GH{G: s.Grad[o], H: s.Hess[o]}
				}
				out[i] = histogram.Row{Bins: s.Bins, TreeIDs: s.TreeIDs, NodeIDs: nodeIDs, GH: gh}
			}
			return out, nil
		})
		if err != nil {
			return err
		}
		cleaner.Register(func() error { rowsDS.Unpersist(); return nil })

		treeIDs := make([]uint32, numTrees)
		for t := range treeIDs {
			treeIDs[t] = uint32(t)
		}
		params := tree.Params{
			MaxDepth:         cfg.MaxDepth,
			MaxLeaves:        cfg.MaxLeaves,
			Strategy:         cfg.HistogramComputationType,
			VoteK:            cfg.VoteK,
			RawSize:          rawSize,
			NumCols:          numCols,
			Seed:             iterSeed,
			ColSampleByTree:  cfg.ColSampleRateByTree,
			ColSampleByLevel: cfg.ColSampleRateByNode,
			Split: split.Params{
				Alpha: cfg.RegAlpha, Lambda: cfg.RegLambda,
				MinGain: cfg.MinGain, MinNodeHess: cfg.MinNodeHess,
				MaxBruteBins: cfg.MaxBruteBins,
			},
			CatCols:      catColFn,
			LeafBoosting: cfg.LeafBoosting,
		}
		models, err := tree.Grow(ctx, rowsDS, treeIDs, params)
		if err != nil {
			return err
		}

		// 4. Incorporate new trees (spec.md §4.1 step 4) and update raw
		// predictions (step 5). g.weights stores the full per-tree scale
		// (stepSize * DART weight) rather than the bare DART weight, so
		// RawPredict and the persisted model never need to know what
		// StepSize training used.
		allEmpty := true
		dartWeight := 1.0
		if cfg.BoostType == "dart" {
			dartWeight = 1.0 / float64(k+1)
		}
		scale := cfg.StepSize * dartWeight
		for t := 0; t < numTrees; t++ {
			m := models[uint32(t)]
			if m == nil {
				continue
			}
			// A tree counts as empty when it never split or when every leaf
			// it grew has zero weight (only zero-gain splits were found).
			for _, nd := range m.Nodes {
				if len(m.Nodes) > 1 && nd.Kind == tree.Leaf && nd.Weight != 0 {
					allEmpty = false
					break
				}
			}
			outIdx := t % rawSize

			rowContribs := treeContribs(m, bins, outIdx, rawSize, scale)
			addContribs(R, rowContribs)
			contribs = append(contribs, rowContribs)

			if valBins != nil {
				valRowContribs := treeContribs(m, valBins, outIdx, rawSize, scale)
				addContribs(valR, valRowContribs)
				valContribs = append(valContribs, valRowContribs)
			}

			g.trees = append(g.trees, m)
			g.weights = append(g.weights, scale)
			g.outputIdx = append(g.outputIdx, outIdx)
		}

		// DART: rescale dropped trees' weights and their already-applied
		// contribution to R/valR by k/(k+1) (spec.md §8's DART weight
		// invariant).
		if k > 0 {
			factor := float64(k) / float64(k+1)
			for idx := range dropped {
				g.weights[idx] *= factor
				scaleContribInPlace(R, contribs[idx], factor)
				if valBins != nil {
					scaleContribInPlace(valR, valContribs[idx], factor)
				}
			}
		}

		if err := checkpointer.Update(iter, cluster.FromSlice(R, parallelism)); err != nil {
			return resourceErr(err)
		}

		// 6. Metrics.
		trainPreds := transformAll(obj, R)
		trainMetrics := map[string]float64{}
		for _, ms := range g.metrics {
			trainMetrics[ms.Name] = ms.Fn(y, trainPreds)
		}
		g.TrainHistory = append(g.TrainHistory, trainMetrics)

		var testMetrics map[string]float64
		if valX != nil {
			testPreds := transformAll(obj, valR)
			testMetrics = map[string]float64{}
			for _, ms := range g.metrics {
				testMetrics[ms.Name] = ms.Fn(valY, testPreds)
			}
			g.TestHistory = append(g.TestHistory, testMetrics)
		}

		if err := cleaner.Release(false, func(cerr error) { log.Printf("gbdt: iteration %d cleanup: %v", iter, cerr) }); err != nil {
			return resourceErr(err)
		}

		// 7. Callbacks.
		stop := false
		for _, cb := range g.callbacks {
			cbStop, newCfg := cb(cfg, g, iter, g.TrainHistory, g.TestHistory)
			if newCfg != nil {
				cfg = *newCfg
			}
			if cbStop {
				stop = true
			}
		}

		// 8. Early stopping.
		if allEmpty {
			log.Printf("gbdt: iteration %d: every tree empty, stopping", iter)
			break
		}
		if cfg.EarlyStopIters > 0 && g.primaryIdx >= 0 && testMetrics != nil {
			ms := g.metrics[g.primaryIdx]
			v := testMetrics[ms.Name]
			improved := false
			if ms.LowerIsBetter {
				if v < bestMetric {
					bestMetric = v
					improved = true
				}
			} else {
				if v > worstMetric {
					worstMetric = v
					improved = true
				}
			}
			if improved {
				stagnantIters = 0
			} else {
				stagnantIters++
				if stagnantIters >= cfg.EarlyStopIters {
					log.Printf("gbdt: iteration %d: metric %q stagnant for %d iterations, stopping", iter, ms.Name, stagnantIters)
					stop = true
				}
			}
		}
		if stop {
			break
		}
	}

	g.fitted = true
	return nil
}

// runSampler dispatches to the sampler named by cfg.SubSampleType,
// short-circuiting to the no-sampling path when subSampleRateByTree == 1
// (spec.md §4.7 "None").
func runSampler(ctx context.Context, instances []sampler.Instance, cfg BoostConfig, numTrees int, seed int64, parallelism int) (*cluster.Dataset[sampler.Sampled], error) {
	if cfg.SubSampleRateByTree >= 1 {
		return cluster.FromSlice(sampler.None(instances, numTrees), parallelism), nil
	}
	instDS := cluster.FromSlice(instances, parallelism)
	sel := selector.Hash{Seed: seed, Rate: cfg.SubSampleRateByTree}
	switch cfg.SubSampleType {
	case "partition":
		return sampler.Partition(ctx, instDS, sel, numTrees)
	case "row":
		return sampler.Row(ctx, instDS, sel, numTrees)
	case "goss":
		return sampler.Goss(ctx, instDS, cfg.TopRate, cfg.OtherRate, seed, numTrees)
	default:
		return sampler.Block(ctx, instDS, sel, numTrees, cfg.BlockSize)
	}
}

// treeContribs computes one new tree's already stepSize-and-weight-scaled
// contribution to every row in bins, written into output slot outIdx of a
// rawSize-wide row (spec.md §4.1 step 5).
func treeContribs(m *tree.Model, bins []binvec.BinVector, outIdx, rawSize int, scale float64) [][]float64 {
	out := make([][]float64, len(bins))
	for i, b := range bins {
		row := make([]float64, rawSize)
		row[outIdx] = scale * m.Predict(b)
		out[i] = row
	}
	return out
}

func addContribs(R [][]float64, contribs [][]float64) {
	for i, c := range contribs {
		for o, v := range c {
			R[i][o] += v
		}
	}
}

// scaleContribInPlace rescales a previously-applied tree contribution by
// factor, updating both the stored contribution and R so that
// R == rawBase + sum(contribs) remains an invariant (DART dropout weight
// rescale, spec.md §4.1 step 4).
func scaleContribInPlace(R [][]float64, contribs [][]float64, factor float64) {
	for i, c := range contribs {
		for o, v := range c {
			scaled := v * factor
			R[i][o] += scaled - v
			contribs[i][o] = scaled
		}
	}
}

func transformAll(obj ObjFunc, R [][]float64) []float64 {
	out := make([]float64, len(R))
	for i, r := range R {
		out[i] = obj.Transform(r)[0]
	}
	return out
}

// RawPredict returns each row's rawSize-wide raw prediction: rawBase plus
// every tree's stepSize-and-weight-scaled contribution (spec.md §4.1 step
// 5), pre-objective-transform.
func (g *GBM) RawPredict(X [][]float64) ([][]float64, error) {
	if !g.fitted {
		return nil, ErrModelNotFitted
	}
	bins, err := g.discretizer.Transform(X)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(X))
	for i, b := range bins {
		row := append([]float64(nil), g.rawBase...)
		for t, m := range g.trees {
			row[g.outputIdx[t]] += g.weights[t] * m.Predict(b)
		}
		out[i] = row
	}
	return out, nil
}

// Predict returns the objective-transformed prediction for every row
// (index 0 of Transform's output; every ObjFunc this port supplies has
// RawSize()==1).
func (g *GBM) Predict(X [][]float64) ([]float64, error) {
	raw, err := g.RawPredict(X)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		out[i] = g.Obj.Transform(r)[0]
	}
	return out, nil
}

// PredictLeaf returns, for every row and every tree in the ensemble, the
// arena index of the leaf the row routes to (spec.md §6 "optional
// leafCol").
func (g *GBM) PredictLeaf(X [][]float64) ([][]int, error) {
	if !g.fitted {
		return nil, ErrModelNotFitted
	}
	bins, err := g.discretizer.Transform(X)
	if err != nil {
		return nil, err
	}
	out := make([][]int, len(X))
	for i, b := range bins {
		row := make([]int, len(g.trees))
		for t, m := range g.trees {
			row[t] = m.Leaf(b)
		}
		out[i] = row
	}
	return out, nil
}

// NumTrees returns the number of trees currently in the ensemble.
func (g *GBM) NumTrees() int { return len(g.trees) }
