package unmixing

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"afmfusion/internal/models"
	"afmfusion/pkg/decomposition"
)

// NFINDR implements N-FINDR endmember extraction: the k pixels forming
// the largest-volume simplex in the (k-1)-dimensional PCA subspace are
// taken as the endmembers. The initial simplex is drawn with an explicit
// seed; the vertex exchange loop itself is deterministic.
type NFINDR struct {
	// Seed draws the initial simplex vertices.
	Seed int64

	// MaxIterations bounds the vertex exchange passes.
	MaxIterations int
}

// NewNFINDR returns an N-FINDR unmixer with the default iteration budget.
func NewNFINDR(seed int64) *NFINDR {
	return &NFINDR{Seed: seed, MaxIterations: 20}
}

// Name implements Unmixer.
func (n *NFINDR) Name() string { return "N-FINDR" }

// Extract implements Unmixer.
func (n *NFINDR) Extract(cube *models.Cube, k int) (*Result, error) {
	if err := validate(cube, k); err != nil {
		return nil, err
	}
	if k < 2 {
		return nil, fmt.Errorf("N-FINDR needs at least 2 endmembers, got %d", k)
	}

	// Work in the (k-1)-dimensional PCA subspace, where a k-vertex
	// simplex has nonzero volume.
	pca, err := decomposition.Decompose(cube, k-1)
	if err != nil {
		return nil, fmt.Errorf("subspace projection: %w", err)
	}

	pixels := cube.Pixels()
	points := make([][]float64, pixels)
	for i := 0; i < pixels; i++ {
		points[i] = make([]float64, k-1)
		for j := 0; j < k-1; j++ {
			points[i][j] = pca.Scores.At(i, j)
		}
	}

	rng := rand.New(rand.NewSource(n.Seed))
	indices := distinctIndices(rng, pixels, k)

	volume := simplexVolume(points, indices)
	for iter := 0; iter < n.MaxIterations; iter++ {
		improved := false
		for vertex := 0; vertex < k; vertex++ {
			original := indices[vertex]
			bestIdx := original
			bestVolume := volume
			for p := 0; p < pixels; p++ {
				indices[vertex] = p
				if v := simplexVolume(points, indices); v > bestVolume {
					bestVolume = v
					bestIdx = p
				}
			}
			indices[vertex] = bestIdx
			if bestIdx != original {
				volume = bestVolume
				improved = true
			}
		}
		if !improved {
			break
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

// simplexVolume computes the (unnormalized) volume of the simplex with
// the given vertex indices: |det| of the augmented matrix with a leading
// row of ones.
func simplexVolume(points [][]float64, indices []int) float64 {
	k := len(indices)
	a := mat.NewDense(k, k, nil)
	for col, idx := range indices {
		a.Set(0, col, 1)
		for row := 0; row < k-1; row++ {
			a.Set(row+1, col, points[idx][row])
		}
	}
	return math.Abs(mat.Det(a))
}

// distinctIndices draws k distinct pixel indices.
func distinctIndices(rng *rand.Rand, pixels, k int) []int {
	perm := rng.Perm(pixels)
	indices := make([]int, k)
	copy(indices, perm[:k])
	return indices
}

var _ Unmixer = (*NFINDR)(nil)
