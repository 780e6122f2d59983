// Package regression fits ordinary-least-squares models predicting a
// registered scalar channel from principal component score maps.
package regression

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"afmfusion/pkg/decomposition"
)

// rankTolerance is the relative singular value floor below which a design
// matrix is treated as rank deficient rather than solved.
const rankTolerance = 1e-10

// DesignMatrix is a pixels-by-predictors matrix assembled from a chosen
// ordered subset of PC score maps, with an optional leading intercept
// column of ones. It is built once per regression trial.
type DesignMatrix struct {
	// X is the assembled matrix. When Intercept is true its first
	// column is all ones, followed by the selected score columns in
	// subset order.
	X *mat.Dense

	// Subset records the PC indices backing the score columns, in
	// column order.
	Subset []int

	// Intercept reports whether a constant column was included.
	Intercept bool
}

// Samples returns the number of rows (pixels).
func (d *DesignMatrix) Samples() int {
	n, _ := d.X.Dims()
	return n
}

// Predictors returns the number of PC columns, excluding the intercept.
func (d *DesignMatrix) Predictors() int {
	return len(d.Subset)
}

// Model is a fitted ordinary-least-squares model. It is immutable once
// fit: created per trial and discarded after metric extraction.
type Model struct {
	// Coefficients are the fitted slopes, in the same order as the
	// design matrix's PC subset.
	Coefficients []float64

	// Intercept is the fitted constant term, zero when the design had
	// no intercept column.
	Intercept float64

	// Subset records which PC indices the coefficients belong to.
	Subset []int
}

// RegressionError reports an invalid or rank-deficient design matrix.
// Rank deficiency (collinear predictors) is detected explicitly so the
// caller never receives silently unstable coefficients.
type RegressionError struct {
	// Subset is the PC subset of the failing trial, when known.
	Subset []int

	// Reason describes the failure.
	Reason string
}

func (e *RegressionError) Error() string {
	if len(e.Subset) > 0 {
		return fmt.Sprintf("regression with PCs %v: %s", e.Subset, e.Reason)
	}
	return fmt.Sprintf("regression: %s", e.Reason)
}

// NewDesignMatrix assembles a design matrix from the given ordered subset
// of PC indices in the decomposition result.
func NewDesignMatrix(pca *decomposition.Result, subset []int, intercept bool) (*DesignMatrix, error) {
	if len(subset) == 0 {
		return nil, &RegressionError{Subset: subset, Reason: "empty PC subset"}
	}
	for _, idx := range subset {
		if idx < 0 || idx >= pca.Components() {
			return nil, &RegressionError{
				Subset: subset,
				Reason: fmt.Sprintf("PC index %d out of range (have %d components)", idx, pca.Components()),
			}
		}
	}

	n := pca.Rows * pca.Cols
	cols := make([][]float64, len(subset))
	for i, idx := range subset {
		col := make([]float64, n)
		mat.Col(col, idx, pca.Scores)
		cols[i] = col
	}

	return assemble(cols, subset, intercept), nil
}

// NewDesignMatrixFromColumns assembles a design matrix directly from
// predictor columns. All columns must have equal length.
func NewDesignMatrixFromColumns(columns [][]float64, intercept bool) (*DesignMatrix, error) {
	if len(columns) == 0 {
		return nil, &RegressionError{Reason: "no predictor columns"}
	}
	n := len(columns[0])
	subset := make([]int, len(columns))
	for i, col := range columns {
		if len(col) != n {
			return nil, &RegressionError{Reason: "predictor columns have unequal lengths"}
		}
		subset[i] = i
	}

	return assemble(columns, subset, intercept), nil
}

func assemble(columns [][]float64, subset []int, intercept bool) *DesignMatrix {
	n := len(columns[0])
	offset := 0
	if intercept {
		offset = 1
	}

	X := mat.NewDense(n, len(columns)+offset, nil)
	if intercept {
		for i := 0; i < n; i++ {
			X.Set(i, 0, 1)
		}
	}
	for j, col := range columns {
		X.SetCol(j+offset, col)
	}

	return &DesignMatrix{
		X:         X,
		Subset:    append([]int(nil), subset...),
		Intercept: intercept,
	}
}

// Fit solves the ordinary-least-squares problem for the given design and
// target vector. The design matrix is factorized by SVD and its rank
// checked first: a smallest singular value below rankTolerance times the
// largest fails with a RegressionError instead of producing unstable
// coefficients. Each call is independent and side-effect-free, so Fit can
// be swept over growing PC subsets.
func Fit(design *DesignMatrix, target []float64) (*Model, error) {
	n, p := design.X.Dims()
	if len(target) != n {
		return nil, &RegressionError{
			Subset: design.Subset,
			Reason: fmt.Sprintf("target length %d does not match %d design rows", len(target), n),
		}
	}
	if n < p {
		return nil, &RegressionError{
			Subset: design.Subset,
			Reason: fmt.Sprintf("underdetermined system: %d samples for %d columns", n, p),
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(design.X, mat.SVDThin); !ok {
		return nil, &RegressionError{Subset: design.Subset, Reason: "SVD factorization failed"}
	}

	values := svd.Values(nil)
	if values[0] == 0 || values[len(values)-1] < rankTolerance*values[0] {
		return nil, &RegressionError{Subset: design.Subset, Reason: "design matrix is rank deficient (collinear predictors)"}
	}

	y := mat.NewDense(n, 1, append([]float64(nil), target...))
	var beta mat.Dense
	svd.SolveTo(&beta, y, len(values))

	model := &Model{Subset: append([]int(nil), design.Subset...)}
	offset := 0
	if design.Intercept {
		model.Intercept = beta.At(0, 0)
		offset = 1
	}
	model.Coefficients = make([]float64, len(design.Subset))
	for i := range model.Coefficients {
		model.Coefficients[i] = beta.At(i+offset, 0)
	}

	return model, nil
}

// Predict evaluates the model over every row of the design matrix,
// returning the fitted values.
func (m *Model) Predict(design *DesignMatrix) []float64 {
	n, _ := design.X.Dims()
	offset := 0
	if design.Intercept {
		offset = 1
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := m.Intercept
		for j, c := range m.Coefficients {
			v += c * design.X.At(i, j+offset)
		}
		out[i] = v
	}
	return out
}
