package unmixing

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"afmfusion/internal/models"
	"afmfusion/pkg/decomposition"
)

// VCA implements vertex component analysis: the data is projected onto a
// k-dimensional signal subspace and the simplex vertices are found one
// at a time by projecting a seeded random direction orthogonal to the
// endmembers already selected and taking the extreme pixel.
type VCA struct {
	// Seed draws the per-iteration random directions.
	Seed int64
}

// NewVCA returns a VCA unmixer.
func NewVCA(seed int64) *VCA {
	return &VCA{Seed: seed}
}

// Name implements Unmixer.
func (v *VCA) Name() string { return "VCA" }

// Extract implements Unmixer.
func (v *VCA) Extract(cube *models.Cube, k int) (*Result, error) {
	if err := validate(cube, k); err != nil {
		return nil, err
	}

	// Signal subspace from PCA; augment the projected coordinates with
	// a constant so the subspace is affine and a k-vertex simplex is
	// identifiable. For k == channels the full spectral space is used.
	dims := k
	if dims > cube.Channels {
		dims = cube.Channels
	}

	pca, err := decomposition.Decompose(cube, dims)
	if err != nil {
		return nil, fmt.Errorf("subspace projection: %w", err)
	}

	pixels := cube.Pixels()

	// y has k rows per pixel column: the first k-1 PCA coordinates and
	// a trailing one.
	y := mat.NewDense(k, pixels, nil)
	for i := 0; i < pixels; i++ {
		for j := 0; j < k-1; j++ {
			y.Set(j, i, pca.Scores.At(i, j))
		}
		y.Set(k-1, i, 1)
	}

	rng := rand.New(rand.NewSource(v.Seed))
	a := mat.NewDense(k, k, nil)

	indices := make([]int, k)
	w := make([]float64, k)
	for i := 0; i < k; i++ {
		// Direction orthogonal to the span of the selected vertices:
		// f = (I - A A^+) w, for a random w.
		for j := range w {
			w[j] = rng.NormFloat64()
		}
		f := orthogonalComponent(a, w, i)

		// Extreme pixel along f.
		bestIdx := 0
		bestV := math.Inf(-1)
		for px := 0; px < pixels; px++ {
			dot := 0.0
			for j := 0; j < k; j++ {
				dot += f[j] * y.At(j, px)
			}
			if abs := math.Abs(dot); abs > bestV {
				bestV = abs
				bestIdx = px
			}
		}
		indices[i] = bestIdx
		for j := 0; j < k; j++ {
			a.Set(j, i, y.At(j, bestIdx))
		}
	}

	m := cubeMatrix(cube)
	endmembers := endmembersAt(m, indices)
	abundances, err := abundanceMaps(m, endmembers, cube.Rows, cube.Cols)
	if err != nil {
		return nil, err
	}

	return &Result{Endmembers: endmembers, Abundances: abundances}, nil
}

// orthogonalComponent returns the component of w orthogonal to the first
// selected columns of a, normalized to unit length. Before any vertex is
// selected the direction is w itself.
func orthogonalComponent(a *mat.Dense, w []float64, selected int) []float64 {
	k := len(w)
	f := make([]float64, k)
	copy(f, w)

	if selected > 0 {
		sub := a.Slice(0, k, 0, selected)

		// Projection onto the span via the pseudo-inverse:
		// f = w - A (A^+ w).
		var svd mat.SVD
		if ok := svd.Factorize(sub, mat.SVDThin); ok {
			values := svd.Values(nil)
			rank := 0
			for _, s := range values {
				if values[0] > 0 && s > 1e-12*values[0] {
					rank++
				}
			}
			if rank > 0 {
				wVec := mat.NewDense(k, 1, append([]float64(nil), w...))
				var coef mat.Dense
				svd.SolveTo(&coef, wVec, rank)

				var proj mat.Dense
				proj.Mul(sub, &coef)
				for j := 0; j < k; j++ {
					f[j] -= proj.At(j, 0)
				}
			}
		}
	}

	norm := 0.0
	for _, x := range f {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for j := range f {
			f[j] /= norm
		}
	}
	return f
}

var _ Unmixer = (*VCA)(nil)
