package analysis

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"afmfusion/internal/models"
	"afmfusion/pkg/decomposition"
	"afmfusion/pkg/regression"
)

// mixtureCube builds a rank-2 hyperspectral cube from two component
// spectra and returns the cube together with its abundance maps.
func mixtureCube(rows, cols, channels int) (*models.Cube, []float64, []float64) {
	e1 := make([]float64, channels)
	e2 := make([]float64, channels)
	for ch := 0; ch < channels; ch++ {
		e1[ch] = math.Exp(-float64(ch) / 2)
		e2[ch] = float64(ch+1) / float64(channels)
	}

	cube := models.NewCube(rows, cols, channels)
	a1 := make([]float64, rows*cols)
	a2 := make([]float64, rows*cols)
	rng := rand.New(rand.NewSource(7))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := r*cols + c
			a1[i] = rng.Float64()
			a2[i] = rng.Float64()
			for ch := 0; ch < channels; ch++ {
				cube.Set(r, c, ch, a1[i]*e1[ch]+a2[i]*e2[ch])
			}
		}
	}
	return cube, a1, a2
}

// TestScoreExactFit verifies the metrics of a perfect fit. The model is
// built by hand so the residuals are exactly zero.
func TestScoreExactFit(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []float64{3, 5, 7, 9, 11, 13} // y = 1 + 2x

	design, err := regression.NewDesignMatrixFromColumns([][]float64{x}, true)
	if err != nil {
		t.Fatalf("Failed to build design matrix: %v", err)
	}
	model := &regression.Model{Coefficients: []float64{2}, Intercept: 1, Subset: []int{0}}

	metrics, err := Score(model, design, y)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if metrics.RSS != 0 {
		t.Errorf("Expected RSS 0 for exact fit, got %v", metrics.RSS)
	}
	if math.Abs(metrics.R2-1) > 1e-12 {
		t.Errorf("Expected R2 = 1 for exact fit, got %v", metrics.R2)
	}
	if !math.IsInf(metrics.FStat, 1) {
		t.Errorf("Expected infinite F-statistic for exact fit, got %v", metrics.FStat)
	}
	if metrics.Samples != 6 || metrics.Predictors != 1 {
		t.Errorf("Expected 6 samples and 1 predictor, got %d and %d",
			metrics.Samples, metrics.Predictors)
	}
}

// TestScoreNoisyFit verifies that the F-statistic is positive and finite
// for an imperfect fit.
func TestScoreNoisyFit(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	y := []float64{2.9, 5.2, 6.8, 9.1, 10.9, 13.2, 14.8, 17.1}

	design, err := regression.NewDesignMatrixFromColumns([][]float64{x}, true)
	if err != nil {
		t.Fatalf("Failed to build design matrix: %v", err)
	}
	model, err := regression.Fit(design, y)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	metrics, err := Score(model, design, y)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}

	if metrics.R2 <= 0.9 || metrics.R2 >= 1 {
		t.Errorf("Expected R2 in (0.9, 1), got %v", metrics.R2)
	}
	if metrics.FStat <= 0 || math.IsInf(metrics.FStat, 0) || math.IsNaN(metrics.FStat) {
		t.Errorf("Expected positive finite F-statistic, got %v", metrics.FStat)
	}
}

// TestScoreDegreesOfFreedom verifies that a trial without residual
// degrees of freedom fails.
func TestScoreDegreesOfFreedom(t *testing.T) {
	design, err := regression.NewDesignMatrixFromColumns(
		[][]float64{{1, 2, 3}, {2, 1, 4}}, false)
	if err != nil {
		t.Fatalf("Failed to build design matrix: %v", err)
	}

	// 3 samples and 2 predictors leave N - p - 1 = 0.
	_, err = Score(&regression.Model{}, design, []float64{1, 2, 3})
	if err == nil {
		t.Fatal("Expected error for zero residual degrees of freedom")
	}

	var dofErr *DegreesOfFreedomError
	if !errors.As(err, &dofErr) {
		t.Fatalf("Expected DegreesOfFreedomError, got %T: %v", err, err)
	}
}

// TestSweepNestedR2 verifies that R2 never decreases as components are
// added to the nested models.
func TestSweepNestedR2(t *testing.T) {
	cube, a1, a2 := mixtureCube(10, 10, 5)

	// Perturb the cube so all four components carry variance and every
	// trial of the sweep has a full-rank design.
	rng := rand.New(rand.NewSource(3))
	for i := range cube.Data {
		cube.Data[i] += 0.01 * rng.NormFloat64()
	}

	pca, err := decomposition.Decompose(cube, 4)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	target := make([]float64, len(a1))
	rng = rand.New(rand.NewSource(11))
	for i := range target {
		target[i] = 3*a1[i] - a2[i] + 0.05*rng.NormFloat64()
	}

	trials := Sweep(pca, target, 4, true)
	if len(trials) != 4 {
		t.Fatalf("Expected 4 trials, got %d", len(trials))
	}

	prev := math.Inf(-1)
	for _, trial := range trials {
		if trial.Err != nil {
			t.Fatalf("Trial with %d PCs failed: %v", trial.NumPCs, trial.Err)
		}
		if trial.Metrics.R2 < prev-1e-9 {
			t.Errorf("R2 decreased at %d PCs: %v after %v", trial.NumPCs, trial.Metrics.R2, prev)
		}
		prev = trial.Metrics.R2
	}
}

// TestSweepExplainsLinearTarget verifies the end-to-end property: for a
// cube with a 2-component generative structure and a target that is a
// linear function of the abundances, two principal components explain
// the target exactly.
func TestSweepExplainsLinearTarget(t *testing.T) {
	cube, a1, a2 := mixtureCube(10, 10, 5)
	pca, err := decomposition.Decompose(cube, 4)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	target := make([]float64, len(a1))
	for i := range target {
		target[i] = 1.5 + 2*a1[i] - 0.5*a2[i]
	}

	trials := Sweep(pca, target, 2, true)
	last := trials[len(trials)-1]
	if last.Err != nil {
		t.Fatalf("Trial with 2 PCs failed: %v", last.Err)
	}

	if math.Abs(last.Metrics.R2-1) > 1e-6 {
		t.Errorf("Expected R2 ~1 with 2 PCs, got %v", last.Metrics.R2)
	}
	if last.Metrics.RSS > 1e-6 {
		t.Errorf("Expected RSS ~0 with 2 PCs, got %v", last.Metrics.RSS)
	}
}

// TestSweepRecordsFailures verifies that a failing trial is recorded
// without stopping the sweep.
func TestSweepRecordsFailures(t *testing.T) {
	cube, a1, _ := mixtureCube(6, 6, 4)
	pca, err := decomposition.Decompose(cube, 2)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	// Sweeping past the available component count makes the later
	// trials fail on their out-of-range subsets.
	trials := Sweep(pca, a1, 4, true)
	if len(trials) != 4 {
		t.Fatalf("Expected 4 trials, got %d", len(trials))
	}

	for _, trial := range trials {
		if trial.NumPCs <= 2 && trial.Err != nil {
			t.Errorf("Trial with %d PCs should succeed, got %v", trial.NumPCs, trial.Err)
		}
		if trial.NumPCs > 2 && trial.Err == nil {
			t.Errorf("Trial with %d PCs should fail on the missing components", trial.NumPCs)
		}
	}
}
