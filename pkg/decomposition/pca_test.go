package decomposition

import (
	"errors"
	"math"
	"testing"

	"afmfusion/internal/models"
)

// twoComponentCube builds a hyperspectral cube whose spectra are exact
// linear mixtures of two fixed component spectra with smoothly varying
// abundances.
func twoComponentCube(rows, cols, channels int) *models.Cube {
	e1 := make([]float64, channels)
	e2 := make([]float64, channels)
	for ch := 0; ch < channels; ch++ {
		e1[ch] = 1.0 - float64(ch)/float64(channels)
		e2[ch] = float64(ch*ch) / float64(channels*channels)
	}

	cube := models.NewCube(rows, cols, channels)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			a1 := float64(r) / float64(rows)
			a2 := float64(c)/float64(cols) + 0.1*float64(r*c)/float64(rows*cols)
			for ch := 0; ch < channels; ch++ {
				cube.Set(r, c, ch, a1*e1[ch]+a2*e2[ch])
			}
		}
	}
	return cube
}

// TestDecomposeVarianceRatios verifies the ordering and bounds of the
// explained-variance ratios for every valid component count.
func TestDecomposeVarianceRatios(t *testing.T) {
	cube := twoComponentCube(10, 10, 5)

	for k := 1; k <= 5; k++ {
		result, err := Decompose(cube, k)
		if err != nil {
			t.Fatalf("Decompose with k=%d failed: %v", k, err)
		}

		if result.Components() != k {
			t.Fatalf("k=%d: expected %d components, got %d", k, k, result.Components())
		}
		if len(result.VarianceRatios) != k {
			t.Fatalf("k=%d: expected %d ratios, got %d", k, k, len(result.VarianceRatios))
		}

		sum := 0.0
		for i, ratio := range result.VarianceRatios {
			if ratio < 0 {
				t.Errorf("k=%d: ratio %d is negative: %v", k, i, ratio)
			}
			if i > 0 && ratio > result.VarianceRatios[i-1]+1e-12 {
				t.Errorf("k=%d: ratios increase at %d: %v > %v", k, i, ratio, result.VarianceRatios[i-1])
			}
			sum += ratio
		}
		if sum > 1+1e-9 {
			t.Errorf("k=%d: ratios sum to %v > 1", k, sum)
		}
	}
}

// TestDecomposeRecoversRank verifies that a cube with a 2-component
// generative structure concentrates essentially all variance in the
// first two components.
func TestDecomposeRecoversRank(t *testing.T) {
	cube := twoComponentCube(10, 10, 5)

	result, err := Decompose(cube, 2)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	sum := result.VarianceRatios[0] + result.VarianceRatios[1]
	if sum < 1-1e-9 {
		t.Errorf("Two components should explain all variance of rank-2 data, got %v", sum)
	}
}

// TestDecomposeInvalidK verifies the failure modes for invalid
// component counts.
func TestDecomposeInvalidK(t *testing.T) {
	cube := twoComponentCube(4, 4, 3)

	for _, k := range []int{0, -1, 4} {
		_, err := Decompose(cube, k)
		if err == nil {
			t.Fatalf("Expected error for k=%d", k)
		}

		var decompErr *DecompositionError
		if !errors.As(err, &decompErr) {
			t.Fatalf("k=%d: expected DecompositionError, got %T: %v", k, err, err)
		}
	}
}

// TestDecomposeDeterministic verifies that identical input yields
// identical output.
func TestDecomposeDeterministic(t *testing.T) {
	cube := twoComponentCube(8, 8, 4)

	first, err := Decompose(cube, 3)
	if err != nil {
		t.Fatalf("First decomposition failed: %v", err)
	}
	second, err := Decompose(cube, 3)
	if err != nil {
		t.Fatalf("Second decomposition failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if first.VarianceRatios[i] != second.VarianceRatios[i] {
			t.Errorf("Ratio %d differs between runs: %v vs %v",
				i, first.VarianceRatios[i], second.VarianceRatios[i])
		}
	}
	for i := 0; i < first.Rows*first.Cols; i++ {
		for j := 0; j < 3; j++ {
			if first.Scores.At(i, j) != second.Scores.At(i, j) {
				t.Fatalf("Score (%d,%d) differs between runs", i, j)
			}
		}
	}
}

// TestScoreMap verifies the reshaped score image matches the score
// matrix column.
func TestScoreMap(t *testing.T) {
	cube := twoComponentCube(6, 4, 3)

	result, err := Decompose(cube, 2)
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	scoreMap := result.ScoreMap(1)
	if len(scoreMap) != 24 {
		t.Fatalf("Expected 24 pixels, got %d", len(scoreMap))
	}
	for i := range scoreMap {
		if math.Abs(scoreMap[i]-result.Scores.At(i, 1)) > 1e-15 {
			t.Errorf("ScoreMap[%d] does not match score matrix", i)
		}
	}
}
