package tracking

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Estimator dimensions: state is [x, y, vx, vy], measurement is [x, y].
const (
	stateDim       = 4
	measurementDim = 2
)

// minInnovationDet is the smallest innovation-covariance determinant the
// update step will invert.
const minInnovationDet = 1e-12

var (
	// ErrSingularInnovation is returned by Update when the innovation
	// covariance cannot be inverted. The predicted state is kept.
	ErrSingularInnovation = errors.New("tracking: singular innovation covariance")
	// ErrNonFiniteState is returned by Update when the corrected state would
	// contain NaN or ±Inf. The predicted state is kept.
	ErrNonFiniteState = errors.New("tracking: non-finite estimator state")
)

// Constant-velocity model for one frame of elapsed time.
//
//	F = [1 0 1 0]    H = [1 0 0 0]
//	    [0 1 0 1]        [0 1 0 0]
//	    [0 0 1 0]
//	    [0 0 0 1]
var (
	transitionF = mat.NewDense(stateDim, stateDim, []float64{
		1, 0, 1, 0,
		0, 1, 0, 1,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	observationH = mat.NewDense(measurementDim, stateDim, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
)

// Point is a 2D position or velocity in detector pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// EstimatorNoise holds the scalar multipliers of the identity matrices used
// for the initial, measurement and process covariances.
type EstimatorNoise struct {
	InitialCovariance float64 // P₀ = InitialCovariance · I₄
	MeasurementNoise  float64 // R  = MeasurementNoise · I₂
	ProcessNoise      float64 // Q  = ProcessNoise · I₄
}

// DefaultEstimatorNoise returns the tuning that smooths typical webcam
// jitter at 30 fps.
func DefaultEstimatorNoise() EstimatorNoise {
	return EstimatorNoise{
		InitialCovariance: 100,
		MeasurementNoise:  0.1,
		ProcessNoise:      0.01,
	}
}

// Estimator is a constant-velocity Kalman filter over [x, y, vx, vy].
// It is owned by exactly one Track and is not safe for concurrent use.
type Estimator struct {
	x     *mat.VecDense // state
	p     *mat.SymDense // covariance
	noise EstimatorNoise
}

// NewEstimator returns an estimator with a degenerate prior: zero position,
// zero velocity and P₀ covariance. Seed it by calling Update with the first
// measurement.
func NewEstimator(noise EstimatorNoise) *Estimator {
	p := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		p.SetSym(i, i, noise.InitialCovariance)
	}
	return &Estimator{
		x:     mat.NewVecDense(stateDim, nil),
		p:     p,
		noise: noise,
	}
}

// Predict advances the state by one frame without a measurement:
// x ← F·x, P ← F·P·Fᵀ + Q.
func (e *Estimator) Predict() {
	if e.Released() {
		return
	}

	var next mat.VecDense
	next.MulVec(transitionF, e.x)
	e.x.CopyVec(&next)

	var fp, fpft mat.Dense
	fp.Mul(transitionF, e.p)
	fpft.Mul(&fp, transitionF.T())
	for i := 0; i < stateDim; i++ {
		fpft.Set(i, i, fpft.At(i, i)+e.noise.ProcessNoise)
	}
	symmetrize(e.p, &fpft)
}

// Update corrects the current (predicted) state with measurement z.
// When the innovation covariance is singular or the result is not finite,
// the state is left untouched and an error is returned.
func (e *Estimator) Update(z Point) error {
	if e.Released() {
		return nil
	}

	// Residual y = z - H·x
	var hx mat.VecDense
	hx.MulVec(observationH, e.x)
	y := mat.NewVecDense(measurementDim, []float64{z.X - hx.AtVec(0), z.Y - hx.AtVec(1)})

	// Innovation covariance S = H·P·Hᵀ + R
	var pht, s mat.Dense
	pht.Mul(e.p, observationH.T())
	s.Mul(observationH, &pht)
	for i := 0; i < measurementDim; i++ {
		s.Set(i, i, s.At(i, i)+e.noise.MeasurementNoise)
	}
	sSym := mat.NewSymDense(measurementDim, nil)
	symmetrize(sSym, &s)

	var chol mat.Cholesky
	if ok := chol.Factorize(sSym); !ok || chol.Det() < minInnovationDet {
		return ErrSingularInnovation
	}

	// Kalman gain K = P·Hᵀ·S⁻¹, solved as S·Kᵀ = H·P.
	var kt mat.Dense
	if err := chol.SolveTo(&kt, pht.T()); err != nil {
		return ErrSingularInnovation
	}
	k := kt.T()

	// x' = x + K·y
	var ky, nextX mat.VecDense
	ky.MulVec(k, y)
	nextX.AddVec(e.x, &ky)

	// P' = (I - K·H)·P
	var kh mat.Dense
	kh.Mul(k, observationH)
	imkh := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			v := -kh.At(i, j)
			if i == j {
				v++
			}
			imkh.Set(i, j, v)
		}
	}
	var nextP mat.Dense
	nextP.Mul(imkh, e.p)

	if !finiteVec(&nextX) || !finiteMat(&nextP) {
		return ErrNonFiniteState
	}

	e.x.CopyVec(&nextX)
	symmetrize(e.p, &nextP)
	return nil
}

// Position returns the current estimated position.
func (e *Estimator) Position() Point {
	if e.Released() {
		return Point{}
	}
	return Point{X: e.x.AtVec(0), Y: e.x.AtVec(1)}
}

// Velocity returns the current estimated velocity in pixels per frame.
func (e *Estimator) Velocity() Point {
	if e.Released() {
		return Point{}
	}
	return Point{X: e.x.AtVec(2), Y: e.x.AtVec(3)}
}

// Covariance returns a copy of the 4×4 state covariance, or nil once the
// estimator has been released.
func (e *Estimator) Covariance() *mat.SymDense {
	if e.Released() {
		return nil
	}
	out := mat.NewSymDense(stateDim, nil)
	out.CopySym(e.p)
	return out
}

// Release zeroes and drops the backing buffers. The estimator must not be
// used afterwards.
func (e *Estimator) Release() {
	if e.x != nil {
		e.x.Zero()
		e.x = nil
	}
	if e.p != nil {
		e.p.Zero()
		e.p = nil
	}
}

// Released reports whether Release has been called.
func (e *Estimator) Released() bool {
	return e.x == nil || e.p == nil
}

// symmetrize writes (a + aᵀ)/2 into dst, removing round-off asymmetry.
func symmetrize(dst *mat.SymDense, a mat.Matrix) {
	n := dst.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			dst.SetSym(i, j, 0.5*(a.At(i, j)+a.At(j, i)))
		}
	}
}

func finiteVec(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if f := v.AtVec(i); math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func finiteMat(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if f := m.At(i, j); math.IsNaN(f) || math.IsInf(f, 0) {
				return false
			}
		}
	}
	return true
}
