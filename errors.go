package gbdt

import "errors"

// ErrKind classifies a FitError per spec.md §7's error taxonomy. Numeric-
// degenerate nodes and callback-initiated stops are explicitly NOT errors
// (they are handled as control flow inside the boosting loop), so no kind
// exists for them here.
type ErrKind int

const (
	// KindConfig: fails at Fit start, before any data is touched.
	KindConfig ErrKind = iota
	// KindData: missing label, NaN/Inf, negative weight, dimension mismatch.
	KindData
	// KindResource: checkpoint write failure (always fatal, per spec.md §7).
	KindResource
)

func (k ErrKind) String() string {
	switch k {
	case KindConfig:
		return "configuration invalid"
	case KindData:
		return "data invalid"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// FitError is the typed failure spec.md §7 requires: "errors surface to the
// caller as a typed failure carrying kind + message + offending context."
type FitError struct {
	Kind  ErrKind
	Param string // offending field/parameter name, "" if not applicable
	Err   error
}

func (e *FitError) Error() string {
	if e.Param == "" {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Param + ": " + e.Err.Error()
}

func (e *FitError) Unwrap() error { return e.Err }

func configErr(param string, err error) *FitError {
	return &FitError{Kind: KindConfig, Param: param, Err: err}
}

func dataErr(param string, err error) *FitError {
	return &FitError{Kind: KindData, Param: param, Err: err}
}

func resourceErr(err error) *FitError {
	return &FitError{Kind: KindResource, Err: err}
}

// Data-shape sentinels, carried forward from the teacher's errors.go.
var (
	ErrEmptyDataset         = errors.New("empty dataset")
	ErrEmptyFeatures        = errors.New("empty features")
	ErrLengthMismatch       = errors.New("mismatch length of input matrix")
	ErrFeatureCountMismatch = errors.New("feature count mismatch")
	ErrModelNotFitted       = errors.New("model not fitted")
	ErrNaNOrInfLabel        = errors.New("label contains NaN or Inf")
	ErrNegativeWeight       = errors.New("weight must be >= 0")
)

// Configuration sentinels, one per BoostConfig field group validated by
// BoostConfig.validate().
var (
	ErrInvalidBoostType          = errors.New(`BoostType must be "gbtree" or "dart"`)
	ErrInvalidMaxIter            = errors.New("MaxIter must be >= 0")
	ErrInvalidMaxDepth           = errors.New("MaxDepth must be in [1, 30]")
	ErrInvalidMaxLeaves          = errors.New("MaxLeaves must be >= 2")
	ErrInvalidMaxBins            = errors.New("MaxBins must be >= 4")
	ErrInvalidStepSize           = errors.New("StepSize must be > 0")
	ErrInvalidReg                = errors.New("RegAlpha/RegLambda must be >= 0")
	ErrInvalidMinGain            = errors.New("MinGain must be >= 0")
	ErrInvalidMinNodeHess        = errors.New("MinNodeHess must be >= 0")
	ErrInvalidSubSampleRate      = errors.New("SubSampleRate must be in (0, 1]")
	ErrInvalidColSampleRate      = errors.New("ColSampleRate must be in (0, 1]")
	ErrInvalidSubSampleType      = errors.New(`SubSampleType must be "row", "block", "partition", or "goss"`)
	ErrInvalidGossRate           = errors.New("TopRate/OtherRate must be in (0, 1)")
	ErrGossRatesOverlap          = errors.New("TopRate + OtherRate must be < 1")
	ErrInvalidHistogramType      = errors.New(`HistogramComputationType must be "basic", "subtract", or "vote"`)
	ErrInvalidDropRate           = errors.New("DropRate/DropSkip must be in [0, 1]")
	ErrInvalidDropCount          = errors.New("MinDrop/MaxDrop must be >= 0")
	ErrInvalidBlockSize          = errors.New("BlockSize must be > 0")
	ErrInvalidForestSize         = errors.New("ForestSize must be > 0")
	ErrInvalidFloatType          = errors.New(`FloatType must be "float" or "double"`)
	ErrUnsupportedDiscretization = errors.New(`DiscretizationType must be "width:round"`)
	ErrInvalidCheckpointInterval = errors.New("CheckpointInterval must be -1 or >= 1")
	ErrInvalidStorageLevel       = errors.New(`StorageLevel1/2/3 must not be "NONE"`)
	ErrInvalidEarlyStopIters     = errors.New("EarlyStopIters must be -1 or >= 1")
)
