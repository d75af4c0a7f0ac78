package gbdt

import "math"

// ObjFunc is the external collaborator spec.md §1 names by interface only:
// "loss-function plug-ins (ObjFunc: transform, inverseTransform, (grad,hess)
// = compute(label, score))". RawSize generalizes the teacher's scalar-only
// Loss interface to the engine's rawSize-wide raw prediction (1 for
// regression/binary, K for multiclass — though only RawSize()==1 objectives
// are supplied here, per spec.md's own non-goal "arbitrary-loss second-order
// methods requiring Hessian matrices").
type ObjFunc interface {
	// Name identifies the objective for the persisted model's objFuncName.
	Name() string

	// RawSize is the number of raw outputs per instance.
	RawSize() int

	// InitialRawScore returns the optimal constant raw prediction
	// (rawBaseScore) for the given labels, one value per RawSize() output.
	InitialRawScore(y []float64) []float64

	// Transform maps a raw prediction to the link-applied output the
	// caller sees (e.g. sigmoid for logloss, identity for MSE).
	Transform(raw []float64) []float64

	// Compute returns the gradient and Hessian of the loss with respect to
	// each raw output, evaluated at the current raw prediction. Newton-
	// Raphson leaf weights are w = -softThreshold(sum(grad), alpha) /
	// (sum(hess) + lambda); grad here follows the "gradient descent"
	// convention (d loss / d raw), not the teacher's NegativeGradient.
	Compute(label float64, raw []float64) (grad, hess []float64)
}

// MSEObjective implements squared-error regression: L(y, F) = (1/2)(F -
// y)^2. Gradient is the residual F - y (descent convention) and the Hessian
// is constant 1, matching the teacher's MSELoss arithmetic with the sign
// convention the split finder's w = -G/(H+lambda) expects.
type MSEObjective struct{}

func (MSEObjective) Name() string    { return "mse" }
func (MSEObjective) RawSize() int    { return 1 }
func (MSEObjective) InitialRawScore(y []float64) []float64 {
	return []float64{mean(y)}
}
func (MSEObjective) Transform(raw []float64) []float64 {
	return []float64{raw[0]}
}
func (MSEObjective) Compute(label float64, raw []float64) (grad, hess []float64) {
	return []float64{raw[0] - label}, []float64{1.0}
}

// LogLossObjective implements binary cross-entropy with a sigmoid link:
// L(y, F) = -[y log(p) + (1-y) log(1-p)], p = sigmoid(F). grad = p - y,
// hess = p*(1-p), the standard Newton-Raphson pair for logistic boosting.
type LogLossObjective struct{}

func (LogLossObjective) Name() string { return "logloss" }
func (LogLossObjective) RawSize() int { return 1 }

func (LogLossObjective) InitialRawScore(y []float64) []float64 {
	p := mean(y)
	p = clip(p, 0.001, 0.999)
	return []float64{math.Log(p / (1 - p))}
}

func (LogLossObjective) Transform(raw []float64) []float64 {
	return []float64{sigmoid(raw[0])}
}

func (LogLossObjective) Compute(label float64, raw []float64) (grad, hess []float64) {
	p := sigmoid(raw[0])
	return []float64{p - label}, []float64{p * (1 - p)}
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
