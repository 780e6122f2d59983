package registration

import (
	"math"

	"gonum.org/v1/gonum/optimize"

	"afmfusion/internal/models"
)

// AffineRegistrar estimates a 2D affine transform with a derivative-free
// Nelder-Mead search over the six affine parameters, maximizing the
// configured similarity metric between the reference structure image and
// the resampled moving image.
type AffineRegistrar struct{}

// NewAffineRegistrar returns a registrar for affine alignment.
func NewAffineRegistrar() *AffineRegistrar {
	return &AffineRegistrar{}
}

// EstimateTransform implements the Registrar capability. The reference
// cube's structure image is its channel mean, so hyperspectral and scalar
// cubes compare on equal footing. Fails with a RegistrationError if the
// optimizer exhausts its iteration budget or the estimated transform is
// degenerate.
func (a *AffineRegistrar) EstimateTransform(ref, moving *models.Cube, opts Options) (Transform, error) {
	refImg := ref.ChannelMean()

	// The moving cube collapses to its structure image once; the cost
	// function resamples that single-channel cube per evaluation.
	movingStruct := models.NewCube(moving.Rows, moving.Cols, 1)
	movingStruct.Data = moving.ChannelMean()

	cost := func(x []float64) float64 {
		t := transformFromVector(x)
		resampled := Resample(movingStruct, t, ref.Rows, ref.Cols, opts.Interp)
		return -similarity(refImg, resampled.Data, opts.Metric)
	}

	problem := optimize.Problem{Func: cost}
	settings := &optimize.Settings{
		MajorIterations: opts.MaxIterations,
	}

	initial := vectorFromTransform(Identity())
	result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
	if err != nil {
		return Transform{}, &RegistrationError{Reason: "optimizer failed", Err: err}
	}

	switch result.Status {
	case optimize.IterationLimit, optimize.FunctionEvaluationLimit, optimize.RuntimeLimit, optimize.NotTerminated:
		return Transform{}, &RegistrationError{
			Reason: "optimizer did not converge within iteration budget",
		}
	}

	t := transformFromVector(result.X)
	if err := validateTransform(t, opts); err != nil {
		return Transform{}, err
	}

	return t, nil
}

// validateTransform rejects transforms whose linear part is close to
// singular.
func validateTransform(t Transform, opts Options) error {
	if math.Abs(t.Det()) < opts.MinDet {
		return &RegistrationError{Reason: "estimated transform is degenerate (determinant near zero)"}
	}
	return nil
}

func transformFromVector(x []float64) Transform {
	return Transform{
		A11: x[0], A12: x[1],
		A21: x[2], A22: x[3],
		TRow: x[4], TCol: x[5],
	}
}

func vectorFromTransform(t Transform) []float64 {
	return []float64{t.A11, t.A12, t.A21, t.A22, t.TRow, t.TCol}
}

// Register aligns the scalar cube onto the hyperspectral cube's grid,
// returning the registered pair. The hyperspectral cube is the reference
// frame; the scalar cube is resampled onto it with the estimated
// transform. Both inputs are read-only.
func Register(registrar Registrar, hyper, scalar *models.Cube, opts Options) (*models.RegisteredPair, error) {
	t, err := registrar.EstimateTransform(hyper, scalar, opts)
	if err != nil {
		return nil, err
	}

	resampled := Resample(scalar, t, hyper.Rows, hyper.Cols, opts.Interp)
	resampled.Grid = hyper.Grid

	return &models.RegisteredPair{Hyper: hyper, Scalar: resampled}, nil
}
