package gbdt

import "github.com/ahmedaabouzied/gbdt/internal/selector"

// BoostConfig controls the hyperparameters for training a [GBM] model. It
// generalizes the single-tree library's flat Config into the full
// hyperparameter table of a histogram-based, row-partitioned booster:
// boosting regime (gbtree/dart), tree-growth gates, column/row sampling,
// histogram strategy, and the DART dropout knobs.
//
// BoostConfig is logically immutable per iteration: a [Callback] may return
// an updated BoostConfig that takes effect starting the next iteration, but
// nothing mutates the config mid-iteration.
type BoostConfig struct {
	// BoostType selects the boosting regime: "gbtree" (plain additive
	// boosting) or "dart" (dropout-based boosting, Rashmi & Gilad-Bachrach).
	BoostType string

	// MaxIter is the number of boosting rounds to run.
	MaxIter int

	// MaxDepth is the maximum depth of each tree's level-wise BFS growth.
	MaxDepth int

	// MaxLeaves caps the number of leaves any one tree may reach.
	MaxLeaves int

	// MaxBins is the number of discretization bins per numeric feature
	// (including the reserved zero/missing bin 0).
	MaxBins int

	// StepSize (shrinkage) scales each new tree's contribution to the raw
	// prediction.
	StepSize float64

	// RegAlpha is the L1 regularization term used by soft-thresholding in
	// the split score and leaf weight.
	RegAlpha float64

	// RegLambda is the L2 regularization term added to the Hessian sum in
	// the split score and leaf weight denominator.
	RegLambda float64

	// MinGain is the minimum split gain a candidate must clear to be taken.
	MinGain float64

	// MinNodeHess is the minimum Hessian sum either side of a split (and,
	// doubled, the minimum a node needs to remain growable at all).
	MinNodeHess float64

	// SubSampleRateByTree is the fraction of partitions/blocks/rows kept per
	// base tree (the "None" sampler short-circuits when this is 1).
	SubSampleRateByTree float64

	// SubSampleRateByNode is reserved for node-level resampling between
	// depths; the engine currently draws once per tree per round
	// (SubSampleRateByTree) rather than per node, so this field is carried
	// for hyperparameter-table completeness but has no independent effect
	// yet — see DESIGN.md.
	SubSampleRateByNode float64

	// ColSampleRateByTree is the fraction of columns eligible for the whole
	// tree (drawn once per tree, seed-stable across all its depths).
	ColSampleRateByTree float64

	// ColSampleRateByNode is the fraction of the tree-eligible columns kept
	// at each level (drawn fresh per depth); Union of the two selectors
	// implements spec's intersection of tree- and level-level sampling.
	ColSampleRateByNode float64

	// SubSampleType picks which sampler restricts rows: "row", "block",
	// "partition", or "goss".
	SubSampleType string

	// TopRate is GOSS's top-gradient retention quantile.
	TopRate float64

	// OtherRate is GOSS's retention probability for below-threshold rows.
	OtherRate float64

	// HistogramComputationType picks the histogram aggregation strategy:
	// "basic", "subtract", or "vote".
	HistogramComputationType string

	// VoteK is the per-worker top-K column count the vote strategy keeps
	// locally before the global top-2K vote; not named in the upstream
	// hyperparameter table (which describes the algorithm but not this
	// knob by name), carried here as the engine parameter that algorithm
	// needs.
	VoteK int

	// MaxBruteBins is the non-zero-bin-count threshold at or below which
	// categorical splits are brute forced instead of sorted-and-scanned.
	MaxBruteBins int

	// DropRate is unused by the selection rule itself (dropout count is
	// driven by DropSkip/MinDrop/MaxDrop) but is carried for table
	// completeness the way upstream exposes it as a tunable even though
	// the "drop or not" coin flip is DropSkip's job.
	DropRate float64

	// DropSkip is the probability that no trees are dropped this round
	// (DART). DropSkip = 1.0 degenerates DART to gbtree.
	DropSkip float64

	// MinDrop / MaxDrop bound how many trees DART drops in one round.
	MinDrop int
	MaxDrop int

	// BlockSize is the row-count bound per KVMatrix block.
	BlockSize int

	// ForestSize is the number of trees trained in parallel per output per
	// boosting round (numTrees = ForestSize * rawSize).
	ForestSize int

	// FloatType names the histogram accumulator width: "float" (f32) or
	// "double" (f64). It is validated but read by nothing else: histograms
	// always accumulate in float64 and are never serialized, and
	// internal/widths sizes integer ids only, so it has no effect on
	// training.
	FloatType string

	// ZeroAsMissing, when true, treats bin 0 (the reserved zero/missing
	// bucket) as missing data even for rows whose raw feature value really
	// was zero, matching upstream's option to conflate "zero" and
	// "missing" for sparse numeric features.
	ZeroAsMissing bool

	// DiscretizationType names the discretizer scheme. Only "width:round"
	// is implemented by this port's discretize package; the field is kept
	// so a caller supplying a different value gets a clear configuration
	// error rather than silent fallback.
	DiscretizationType string

	// Seed seeds every selector/sampler/dropout draw this round. -1 means
	// "derive a seed from the wall clock at Fit start" the way upstream's
	// default does; a fixed seed makes training bitwise reproducible.
	Seed int64

	// CheckpointInterval is how often (in iterations) Fit's checkpointer
	// marks the raw-prediction dataset persisted; -1 disables checkpointing.
	// Fit builds that checkpointer without a directory, so it keeps the
	// last three raw-prediction datasets in memory and writes nothing to
	// stable storage.
	CheckpointInterval int

	// StorageLevel1/2/3 mirror the three named persistence levels: per-
	// iteration sampled data, raw predictions, and test-side raw
	// predictions respectively. "NONE" is invalid for all three.
	StorageLevel1 string
	StorageLevel2 string
	StorageLevel3 string

	// EarlyStopIters stops training if the designated validation metric has
	// not improved for this many iterations; -1 disables early stopping.
	EarlyStopIters int

	// LeafBoosting is passed through to the tree grower's LeafBoosting
	// flag. Fit supplies no gradient-refit hook (tree.Params.RefreshGH
	// stays nil), so the grower never refits between depths and enabling
	// this has no effect on training: gradients are computed once at the
	// start of each round — see DESIGN.md "known limitations".
	LeafBoosting bool

	// Parallelism is the number of partitions the in-process cluster
	// emulation splits training data into. Not part of the upstream
	// hyperparameter table (a real cluster's partition count is a
	// deployment concern, not a model hyperparameter), but this port has
	// no separate deployment layer, so it lives here. 0 means "pick
	// runtime.GOMAXPROCS(0)".
	Parallelism int
}

// DefaultBoostConfig returns a BoostConfig with every default from the
// hyperparameter table.
func DefaultBoostConfig() BoostConfig {
	return BoostConfig{
		BoostType:                "gbtree",
		MaxIter:                  20,
		MaxDepth:                 5,
		MaxLeaves:                1000,
		MaxBins:                  256,
		StepSize:                 0.1,
		RegAlpha:                 0,
		RegLambda:                1,
		MinGain:                  0,
		MinNodeHess:              1,
		SubSampleRateByTree:      1,
		SubSampleRateByNode:      1,
		ColSampleRateByTree:      1,
		ColSampleRateByNode:      1,
		SubSampleType:            "block",
		TopRate:                  0.2,
		OtherRate:                0.1,
		HistogramComputationType: "basic",
		VoteK:                    10,
		MaxBruteBins:             4,
		DropRate:                 0,
		DropSkip:                 0.5,
		MinDrop:                  0,
		MaxDrop:                  50,
		BlockSize:                4096,
		ForestSize:               1,
		FloatType:                "float",
		ZeroAsMissing:            false,
		DiscretizationType:       "width:round",
		Seed:                     -1,
		CheckpointInterval:       10,
		StorageLevel1:            "MEM+DISK",
		StorageLevel2:            "MEM+DISK_SER",
		StorageLevel3:            "DISK_ONLY",
		EarlyStopIters:           -1,
		LeafBoosting:             false,
		Parallelism:              0,
	}
}

// validate checks every constraint in the hyperparameter table, returning a
// *FitError naming the offending field on the first violation found.
func (c BoostConfig) validate() error {
	switch {
	case c.BoostType != "gbtree" && c.BoostType != "dart":
		return configErr("BoostType", ErrInvalidBoostType)
	case c.MaxIter < 0:
		return configErr("MaxIter", ErrInvalidMaxIter)
	case c.MaxDepth < 1 || c.MaxDepth > 30:
		return configErr("MaxDepth", ErrInvalidMaxDepth)
	case c.MaxLeaves < 2:
		return configErr("MaxLeaves", ErrInvalidMaxLeaves)
	case c.MaxBins < 4:
		return configErr("MaxBins", ErrInvalidMaxBins)
	case c.StepSize <= 0:
		return configErr("StepSize", ErrInvalidStepSize)
	case c.RegAlpha < 0:
		return configErr("RegAlpha", ErrInvalidReg)
	case c.RegLambda < 0:
		return configErr("RegLambda", ErrInvalidReg)
	case c.MinGain < 0:
		return configErr("MinGain", ErrInvalidMinGain)
	case c.MinNodeHess < 0:
		return configErr("MinNodeHess", ErrInvalidMinNodeHess)
	case c.SubSampleRateByTree <= 0 || c.SubSampleRateByTree > 1:
		return configErr("SubSampleRateByTree", ErrInvalidSubSampleRate)
	case c.SubSampleRateByNode <= 0 || c.SubSampleRateByNode > 1:
		return configErr("SubSampleRateByNode", ErrInvalidSubSampleRate)
	case c.ColSampleRateByTree <= 0 || c.ColSampleRateByTree > 1:
		return configErr("ColSampleRateByTree", ErrInvalidColSampleRate)
	case c.ColSampleRateByNode <= 0 || c.ColSampleRateByNode > 1:
		return configErr("ColSampleRateByNode", ErrInvalidColSampleRate)
	case c.SubSampleType != "row" && c.SubSampleType != "block" && c.SubSampleType != "partition" && c.SubSampleType != "goss":
		return configErr("SubSampleType", ErrInvalidSubSampleType)
	case c.TopRate <= 0 || c.TopRate >= 1:
		return configErr("TopRate", ErrInvalidGossRate)
	case c.OtherRate <= 0 || c.OtherRate >= 1:
		return configErr("OtherRate", ErrInvalidGossRate)
	case c.TopRate+c.OtherRate >= 1:
		// Stricter than upstream's own per-field bounds (open question,
		// resolved per spec.md §9: "enforce the stricter rule at fit start").
		return configErr("OtherRate", ErrGossRatesOverlap)
	case c.HistogramComputationType != "basic" && c.HistogramComputationType != "subtract" && c.HistogramComputationType != "vote":
		return configErr("HistogramComputationType", ErrInvalidHistogramType)
	case c.DropRate < 0 || c.DropRate > 1:
		return configErr("DropRate", ErrInvalidDropRate)
	case c.DropSkip < 0 || c.DropSkip > 1:
		return configErr("DropSkip", ErrInvalidDropRate)
	case c.MinDrop < 0:
		return configErr("MinDrop", ErrInvalidDropCount)
	case c.MaxDrop < 0:
		return configErr("MaxDrop", ErrInvalidDropCount)
	case c.BlockSize <= 0:
		return configErr("BlockSize", ErrInvalidBlockSize)
	case c.ForestSize <= 0:
		return configErr("ForestSize", ErrInvalidForestSize)
	case c.FloatType != "float" && c.FloatType != "double":
		return configErr("FloatType", ErrInvalidFloatType)
	case c.DiscretizationType != "width:round":
		return configErr("DiscretizationType", ErrUnsupportedDiscretization)
	case c.CheckpointInterval != -1 && c.CheckpointInterval < 1:
		return configErr("CheckpointInterval", ErrInvalidCheckpointInterval)
	case c.StorageLevel1 == "NONE" || c.StorageLevel2 == "NONE" || c.StorageLevel3 == "NONE":
		return configErr("StorageLevel", ErrInvalidStorageLevel)
	case c.EarlyStopIters != -1 && c.EarlyStopIters < 1:
		return configErr("EarlyStopIters", ErrInvalidEarlyStopIters)
	}
	return nil
}

// storageLevelOf maps the three string fields onto internal/cluster's typed
// levels, used only at Fit start after validate() has already rejected "NONE".
func storageLevelOf(name string) int {
	switch name {
	case "DISK_ONLY":
		return 2
	case "MEM+DISK_SER":
		return 1
	default:
		return 0
	}
}

// TreeConfig is the per-iteration snapshot spec.md §3 names: the column
// selector and categorical-column set in effect for one round's trees, plus
// the iteration number selectors derive their seed from. Built fresh inside
// the boosting loop each iteration; internal/tree.Params is the lower-level
// structure the grower actually consumes, built from a TreeConfig.
type TreeConfig struct {
	Iteration      int
	ColumnSelector selector.Selector
	CatCols        map[uint32]bool
	SortedIndices  []uint32
}
