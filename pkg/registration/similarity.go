package registration

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// similarity scores how well two equally-sized flat images agree under
// the chosen metric. Higher is better for both metrics.
func similarity(a, b []float64, metric Metric) float64 {
	switch metric {
	case MutualInformation:
		return mutualInformation(a, b)
	default:
		return crossCorrelation(a, b)
	}
}

// crossCorrelation returns the Pearson correlation of the two images.
// Constant images have no defined correlation and score zero.
func crossCorrelation(a, b []float64) float64 {
	r := stat.Correlation(a, b, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// miBins is the per-axis bin count of the joint intensity histogram.
// 64 bins keeps the joint histogram populated for typical scan sizes.
const miBins = 64

// mutualInformation estimates I(A;B) = H(A) + H(B) - H(A,B) from a
// binned joint intensity histogram.
func mutualInformation(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}

	aMin, aMax := minMax(a)
	bMin, bMax := minMax(b)
	if aMax <= aMin || bMax <= bMin {
		return 0
	}

	joint := make([]float64, miBins*miBins)
	for i := 0; i < n; i++ {
		ai := histBin(a[i], aMin, aMax)
		bi := histBin(b[i], bMin, bMax)
		joint[ai*miBins+bi]++
	}

	// Marginals from the joint histogram.
	margA := make([]float64, miBins)
	margB := make([]float64, miBins)
	for i := 0; i < miBins; i++ {
		for j := 0; j < miBins; j++ {
			margA[i] += joint[i*miBins+j]
			margB[j] += joint[i*miBins+j]
		}
	}

	total := float64(n)
	return histEntropy(margA, total) + histEntropy(margB, total) - histEntropy(joint, total)
}

func histBin(v, lo, hi float64) int {
	idx := int((v - lo) / (hi - lo) * miBins)
	if idx >= miBins {
		idx = miBins - 1
	} else if idx < 0 {
		idx = 0
	}
	return idx
}

// histEntropy computes the Shannon entropy of a count histogram.
func histEntropy(hist []float64, total float64) float64 {
	entropy := 0.0
	for _, count := range hist {
		if count > 0 {
			p := count / total
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}

func minMax(data []float64) (float64, float64) {
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
