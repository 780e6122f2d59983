// Package analysis scores fitted regression models and sweeps nested
// models over growing PC subsets to quantify how much predictive power
// each added component contributes.
package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"afmfusion/pkg/decomposition"
	"afmfusion/pkg/regression"
)

// FitMetrics is the goodness-of-fit record for one regression trial.
// It is computed once and never mutated.
type FitMetrics struct {
	// RSS is the residual sum of squares.
	RSS float64

	// TSS is the total sum of squares of the target about its mean.
	TSS float64

	// R2 is the coefficient of determination, 1 - RSS/TSS.
	R2 float64

	// FStat is the F-statistic ((TSS-RSS)/p) / (RSS/(N-p-1)). An exact
	// fit (RSS = 0 with nonzero TSS) reports +Inf.
	FStat float64

	// Samples is N, the number of pixels used.
	Samples int

	// Predictors is p, the number of PC predictors (intercept excluded).
	Predictors int
}

// DegreesOfFreedomError reports that a trial has too few samples for its
// predictor count to support an F-statistic (N - p - 1 <= 0).
type DegreesOfFreedomError struct {
	Samples    int
	Predictors int
}

func (e *DegreesOfFreedomError) Error() string {
	return fmt.Sprintf("analysis: %d samples leave no residual degrees of freedom for %d predictors",
		e.Samples, e.Predictors)
}

// Score computes the fit metrics for a fitted model against its design
// matrix and target vector. Fails with a DegreesOfFreedomError when the
// residual degrees of freedom are not positive.
func Score(model *regression.Model, design *regression.DesignMatrix, target []float64) (FitMetrics, error) {
	n := design.Samples()
	p := design.Predictors()
	if n-p-1 <= 0 {
		return FitMetrics{}, &DegreesOfFreedomError{Samples: n, Predictors: p}
	}

	fitted := model.Predict(design)

	mean := stat.Mean(target, nil)
	rss := 0.0
	tss := 0.0
	for i, y := range target {
		r := y - fitted[i]
		rss += r * r
		d := y - mean
		tss += d * d
	}

	m := FitMetrics{
		RSS:        rss,
		TSS:        tss,
		Samples:    n,
		Predictors: p,
	}
	if tss > 0 {
		m.R2 = 1 - rss/tss
	}
	if rss > 0 {
		m.FStat = ((tss - rss) / float64(p)) / (rss / float64(n-p-1))
	} else if tss > 0 {
		m.FStat = math.Inf(1)
	}

	return m, nil
}

// Trial records one model of a nested sweep: the leading-n PC subset, the
// fitted model and its metrics, or the error that made this trial fail.
// A failed trial never aborts the sweep it belongs to.
type Trial struct {
	// NumPCs is how many leading principal components the trial used.
	NumPCs int

	// Model is the fitted model, nil when Err is set.
	Model *regression.Model

	// Metrics is the trial's goodness of fit, zero when Err is set.
	Metrics FitMetrics

	// Err records why this trial failed, nil on success.
	Err error
}

// Sweep fits nested models predicting the target from the first n
// principal components for n = 1..maxPCs, scoring each. Per-trial
// failures are recorded on the trial and do not stop the sweep. Because
// the models are nested, R2 is non-decreasing in n across successful
// trials.
func Sweep(pca *decomposition.Result, target []float64, maxPCs int, intercept bool) []Trial {
	trials := make([]Trial, 0, maxPCs)

	for n := 1; n <= maxPCs; n++ {
		trial := Trial{NumPCs: n}

		subset := make([]int, n)
		for i := range subset {
			subset[i] = i
		}

		design, err := regression.NewDesignMatrix(pca, subset, intercept)
		if err != nil {
			trial.Err = err
			trials = append(trials, trial)
			continue
		}

		model, err := regression.Fit(design, target)
		if err != nil {
			trial.Err = err
			trials = append(trials, trial)
			continue
		}

		metrics, err := Score(model, design, target)
		if err != nil {
			trial.Err = err
			trials = append(trials, trial)
			continue
		}

		trial.Model = model
		trial.Metrics = metrics
		trials = append(trials, trial)
	}

	return trials
}
