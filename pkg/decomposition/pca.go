// Package decomposition reduces the spectral dimensionality of a
// hyperspectral cube with principal component analysis.
package decomposition

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"afmfusion/internal/models"
)

// Result holds the outcome of a principal component analysis of a
// hyperspectral cube. Components are ordered by descending explained
// variance and are orthogonal by construction.
type Result struct {
	// Scores is the pixels-by-k matrix of component scores, one row per
	// flattened pixel in row-major spatial order.
	Scores *mat.Dense

	// Loadings is the channels-by-k matrix of component loading
	// vectors.
	Loadings *mat.Dense

	// ExplainedVariance holds the variance of each component's scores,
	// descending.
	ExplainedVariance []float64

	// VarianceRatios holds each component's share of the total spectral
	// variance. Entries are non-negative, non-increasing, and sum to at
	// most one.
	VarianceRatios []float64

	// Rows and Cols record the spatial grid so score maps can be
	// reshaped back into images.
	Rows, Cols int
}

// Components returns the number of retained components.
func (r *Result) Components() int {
	_, k := r.Scores.Dims()
	return k
}

// ScoreMap returns component i's scores as a flat row-major image.
func (r *Result) ScoreMap(i int) []float64 {
	out := make([]float64, r.Rows*r.Cols)
	mat.Col(out, i, r.Scores)
	return out
}

// DecompositionError reports an invalid component request or a failed
// factorization.
type DecompositionError struct {
	// K is the requested component count.
	K int

	// Channels is the cube's spectral channel count.
	Channels int

	// Reason describes the failure.
	Reason string
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("decomposition: k=%d, channels=%d: %s", e.K, e.Channels, e.Reason)
}

// Decompose flattens the cube to a pixels-by-channels matrix, subtracts
// the channel-wise mean, and computes PCA, returning exactly k components
// ordered by descending explained variance. The computation is
// deterministic: identical input yields identical output.
func Decompose(cube *models.Cube, k int) (*Result, error) {
	pixels := cube.Pixels()
	if k < 1 {
		return nil, &DecompositionError{K: k, Channels: cube.Channels, Reason: "component count must be positive"}
	}
	if k > cube.Channels {
		return nil, &DecompositionError{K: k, Channels: cube.Channels, Reason: "component count exceeds channel count"}
	}
	if pixels < 2 {
		return nil, &DecompositionError{K: k, Channels: cube.Channels, Reason: "need at least two pixels"}
	}

	// Flatten to pixels x channels and center each channel.
	data := mat.NewDense(pixels, cube.Channels, nil)
	means := make([]float64, cube.Channels)
	col := make([]float64, pixels)
	for ch := 0; ch < cube.Channels; ch++ {
		for i := 0; i < pixels; i++ {
			col[i] = cube.Data[i*cube.Channels+ch]
		}
		means[ch] = stat.Mean(col, nil)
		for i := 0; i < pixels; i++ {
			data.Set(i, ch, col[i]-means[ch])
		}
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, &DecompositionError{K: k, Channels: cube.Channels, Reason: "principal component factorization failed"}
	}

	vars := pc.VarsTo(nil)
	if k > len(vars) {
		return nil, &DecompositionError{
			K:        k,
			Channels: cube.Channels,
			Reason:   fmt.Sprintf("only %d components available from %d pixels", len(vars), pixels),
		}
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)

	loadings := mat.NewDense(cube.Channels, k, nil)
	loadings.Copy(vectors.Slice(0, cube.Channels, 0, k))

	scores := mat.NewDense(pixels, k, nil)
	scores.Mul(data, loadings)

	total := floats.Sum(vars)
	ratios := make([]float64, k)
	explained := make([]float64, k)
	for i := 0; i < k; i++ {
		explained[i] = vars[i]
		if total > 0 {
			ratios[i] = vars[i] / total
		}
	}

	return &Result{
		Scores:            scores,
		Loadings:          loadings,
		ExplainedVariance: explained,
		VarianceRatios:    ratios,
		Rows:              cube.Rows,
		Cols:              cube.Cols,
	}, nil
}
