package unmixing

import (
	"gonum.org/v1/gonum/floats"

	"afmfusion/internal/models"
)

// ATGP implements automatic target generation by orthogonal subspace
// projection: the first endmember is the brightest pixel, and each
// subsequent endmember is the pixel with the largest residual after
// projecting out the spectra already selected. Deterministic.
type ATGP struct{}

// NewATGP returns an ATGP unmixer.
func NewATGP() *ATGP {
	return &ATGP{}
}

// Name implements Unmixer.
func (a *ATGP) Name() string { return "ATGP" }

// Extract implements Unmixer.
func (a *ATGP) Extract(cube *models.Cube, k int) (*Result, error) {
	if err := validate(cube, k); err != nil {
		return nil, err
	}

	m := cubeMatrix(cube)
	pixels, channels := m.Dims()

	// Orthonormal basis of the selected spectra, grown one vector at a
	// time by Gram-Schmidt.
	basis := make([][]float64, 0, k)
	indices := make([]int, 0, k)

	residual := make([]float64, channels)
	for len(indices) < k {
		bestIdx := -1
		bestNorm := -1.0
		for i := 0; i < pixels; i++ {
			copy(residual, m.RawRowView(i))
			for _, q := range basis {
				proj := floats.Dot(q, residual)
				floats.AddScaled(residual, -proj, q)
			}
			norm := floats.Norm(residual, 2)
			if norm > bestNorm {
				bestNorm = norm
				bestIdx = i
			}
		}

		// Orthonormalize the chosen spectrum into the basis. A zero
		// residual means the data has collapsed onto the selected
		// subspace; keep the pixel anyway so exactly k endmembers are
		// returned.
		copy(residual, m.RawRowView(bestIdx))
		for _, q := range basis {
			proj := floats.Dot(q, residual)
			floats.AddScaled(residual, -proj, q)
		}
		if norm := floats.Norm(residual, 2); norm > 0 {
			q := make([]float64, channels)
			for j := range q {
				q[j] = residual[j] / norm
			}
			basis = append(basis, q)
		}
		indices = append(indices, bestIdx)
	}

	endmembers := endmembersAt(m, indices)
	abundances, err := abundanceMaps(m, endmembers, cube.Rows, cube.Cols)
	if err != nil {
		return nil, err
	}

	return &Result{Endmembers: endmembers, Abundances: abundances}, nil
}

var _ Unmixer = (*ATGP)(nil)
