package unmixing

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"afmfusion/internal/models"
)

// NMF factorizes the non-negative pixel-by-channel matrix V into
// abundances W and endmember spectra H by multiplicative updates.
// The random initialization is driven by an explicit seed, never by
// ambient process-wide state, so runs are reproducible. Abundances are
// renormalized to sum to one per pixel.
type NMF struct {
	// Seed drives the random initialization of both factors.
	Seed int64

	// MaxIterations bounds the multiplicative update loop.
	MaxIterations int

	// Tolerance stops the loop when the relative improvement of the
	// Frobenius reconstruction error falls below it.
	Tolerance float64
}

// NewNMF returns an NMF unmixer with the default iteration budget.
func NewNMF(seed int64) *NMF {
	return &NMF{
		Seed:          seed,
		MaxIterations: 500,
		Tolerance:     1e-6,
	}
}

// Name implements Unmixer.
func (n *NMF) Name() string { return "NMF" }

// Extract implements Unmixer.
func (n *NMF) Extract(cube *models.Cube, k int) (*Result, error) {
	if err := validate(cube, k); err != nil {
		return nil, err
	}

	pixels := cube.Pixels()
	channels := cube.Channels

	// Shift the data to be non-negative; PiFM intensities are usually
	// positive already, but detrended channels can dip below zero.
	v := cubeMatrix(cube)
	shift := mat.Min(v)
	if shift < 0 {
		for i := 0; i < pixels; i++ {
			for j := 0; j < channels; j++ {
				v.Set(i, j, v.At(i, j)-shift)
			}
		}
	}

	rng := rand.New(rand.NewSource(n.Seed))
	w := randomMatrix(rng, pixels, k)
	h := randomMatrix(rng, k, channels)

	const eps = 1e-12
	prevErr := math.Inf(1)

	var wtv, wtwh, wtw, vht, whht, hht, wh mat.Dense
	for iter := 0; iter < n.MaxIterations; iter++ {
		// H <- H .* (W^T V) ./ (W^T W H)
		wtv.Mul(w.T(), v)
		wtw.Mul(w.T(), w)
		wtwh.Mul(&wtw, h)
		hadamardUpdate(h, &wtv, &wtwh, eps)

		// W <- W .* (V H^T) ./ (W H H^T)
		vht.Mul(v, h.T())
		hht.Mul(h, h.T())
		whht.Mul(w, &hht)
		hadamardUpdate(w, &vht, &whht, eps)

		wh.Mul(w, h)
		wh.Sub(&wh, v)
		frob := mat.Norm(&wh, 2)
		if prevErr < math.Inf(1) && prevErr > 0 {
			if (prevErr-frob)/prevErr < n.Tolerance {
				break
			}
		}
		prevErr = frob
	}

	endmembers := mat.NewDense(k, channels, nil)
	endmembers.Copy(h)

	abundances, err := sumToOneAbundances(w, cube.Rows, cube.Cols, k)
	if err != nil {
		return nil, err
	}

	return &Result{Endmembers: endmembers, Abundances: abundances}, nil
}

// randomMatrix fills a matrix with values uniform in (0, 1].
func randomMatrix(rng *rand.Rand, rows, cols int) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = 1 - rng.Float64()
	}
	return mat.NewDense(rows, cols, data)
}

// hadamardUpdate applies dst <- dst .* num ./ (den + eps) elementwise.
func hadamardUpdate(dst, num, den *mat.Dense, eps float64) {
	rows, cols := dst.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			dst.Set(i, j, dst.At(i, j)*num.At(i, j)/(den.At(i, j)+eps))
		}
	}
}

// sumToOneAbundances normalizes each pixel's factor weights into a
// composition summing to exactly one. A pixel whose weights sum to zero
// cannot be normalized.
func sumToOneAbundances(w *mat.Dense, rows, cols, k int) (*models.Cube, error) {
	out := models.NewCube(rows, cols, k)
	pixels := rows * cols
	for i := 0; i < pixels; i++ {
		sum := 0.0
		for j := 0; j < k; j++ {
			sum += w.At(i, j)
		}
		if sum <= 0 {
			return nil, fmt.Errorf("pixel %d has zero total abundance", i)
		}
		for j := 0; j < k; j++ {
			out.Data[i*k+j] = w.At(i, j) / sum
		}
	}
	return out, nil
}
