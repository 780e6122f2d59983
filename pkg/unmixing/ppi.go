package unmixing

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"afmfusion/internal/models"
)

// PPI implements the pixel purity index: the data is projected onto a
// set of random unit vectors (skewers) and each pixel counts how often
// it is an extreme of a projection. The k most frequently extreme pixels
// are taken as endmembers. The skewers come from an explicit seed.
type PPI struct {
	// Seed draws the skewer directions.
	Seed int64

	// NumSkewers is the number of random projections.
	NumSkewers int
}

// NewPPI returns a PPI unmixer with the default skewer count.
func NewPPI(seed int64) *PPI {
	return &PPI{Seed: seed, NumSkewers: 1000}
}

// Name implements Unmixer.
func (p *PPI) Name() string { return "PPI" }

// Extract implements Unmixer.
func (p *PPI) Extract(cube *models.Cube, k int) (*Result, error) {
	if err := validate(cube, k); err != nil {
		return nil, err
	}

	m := cubeMatrix(cube)
	pixels, channels := m.Dims()

	rng := rand.New(rand.NewSource(p.Seed))
	counts := make([]int, pixels)
	skewer := make([]float64, channels)

	for s := 0; s < p.NumSkewers; s++ {
		randomUnitVector(rng, skewer)

		minIdx, maxIdx := 0, 0
		minV, maxV := floats.Dot(m.RawRowView(0), skewer), floats.Dot(m.RawRowView(0), skewer)
		for i := 1; i < pixels; i++ {
			v := floats.Dot(m.RawRowView(i), skewer)
			if v < minV {
				minV, minIdx = v, i
			}
			if v > maxV {
				maxV, maxIdx = v, i
			}
		}
		counts[minIdx]++
		counts[maxIdx]++
	}

	// Rank pixels by purity count, ties broken by pixel index so the
	// selection is stable for a fixed seed.
	order := make([]int, pixels)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if counts[order[a]] != counts[order[b]] {
			return counts[order[a]] > counts[order[b]]
		}
		return order[a] < order[b]
	})
	indices := order[:k]

	endmembers := endmembersAt(m, indices)
	abundances, err := abundanceMaps(m, endmembers, cube.Rows, cube.Cols)
	if err != nil {
		return nil, err
	}

	return &Result{Endmembers: endmembers, Abundances: abundances}, nil
}

// randomUnitVector fills dst with an isotropic unit direction.
func randomUnitVector(rng *rand.Rand, dst []float64) {
	for {
		for i := range dst {
			dst[i] = rng.NormFloat64()
		}
		if norm := floats.Norm(dst, 2); norm > 0 {
			floats.Scale(1/norm, dst)
			return
		}
	}
}

var _ Unmixer = (*PPI)(nil)
