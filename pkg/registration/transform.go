// Package registration aligns a moving cAFM image onto the grid of a
// reference PiFM cube. The transform estimator is a capability: any
// implementation of Registrar that minimizes a similarity-of-structure
// cost is substitutable for the bundled affine estimator.
package registration

import (
	"fmt"

	"afmfusion/internal/models"
)

// Metric selects the similarity measure optimized during registration.
type Metric int

const (
	// CrossCorrelation scores alignment by the Pearson correlation of
	// pixel intensities. Suited to modalities with a linear intensity
	// relationship.
	CrossCorrelation Metric = iota

	// MutualInformation scores alignment by the mutual information of
	// the joint intensity histogram. Suited to cross-modal pairs where
	// intensities relate nonlinearly.
	MutualInformation
)

// Interp selects the interpolation order used when resampling.
type Interp int

const (
	// Nearest uses nearest-neighbor sampling.
	Nearest Interp = iota

	// Linear uses bilinear sampling.
	Linear

	// Cubic uses bicubic (Catmull-Rom) sampling.
	Cubic
)

// Options configures transform estimation and resampling.
type Options struct {
	// Metric is the similarity measure to optimize.
	Metric Metric

	// Interp is the interpolation order for resampling.
	Interp Interp

	// MaxIterations is the optimizer's iteration budget. Estimation
	// fails with a RegistrationError when the budget is exhausted
	// before convergence.
	MaxIterations int

	// MinDet is the floor on the absolute determinant of the estimated
	// linear part. Transforms below it are rejected as degenerate.
	MinDet float64
}

// DefaultOptions returns the registration configuration used by the
// pipeline when none is supplied.
func DefaultOptions() Options {
	return Options{
		Metric:        CrossCorrelation,
		Interp:        Linear,
		MaxIterations: 400,
		MinDet:        1e-6,
	}
}

// Transform is a 2D affine map from reference-grid coordinates to
// moving-grid coordinates, in (row, col) order.
type Transform struct {
	// A11..A22 form the row-major 2x2 linear part.
	A11, A12, A21, A22 float64

	// TRow, TCol are the translation components in pixels.
	TRow, TCol float64
}

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{A11: 1, A22: 1}
}

// Apply maps a reference-grid coordinate to the moving grid.
func (t Transform) Apply(row, col float64) (float64, float64) {
	return t.A11*row + t.A12*col + t.TRow,
		t.A21*row + t.A22*col + t.TCol
}

// Det returns the determinant of the linear part. A near-zero value
// means the transform collapses the image and cannot be inverted.
func (t Transform) Det() float64 {
	return t.A11*t.A22 - t.A12*t.A21
}

// RegistrationError reports a failed transform estimation: the optimizer
// did not converge within its iteration budget, or the estimated
// transform is degenerate.
type RegistrationError struct {
	// Reason describes the failure.
	Reason string

	// Err is the underlying optimizer error, if any.
	Err error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("registration: %s", e.Reason)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// Registrar estimates a transform aligning a moving cube to a reference
// cube. Implementations must treat both cubes as read-only.
type Registrar interface {
	EstimateTransform(ref, moving *models.Cube, opts Options) (Transform, error)
}
