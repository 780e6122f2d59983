// Package unmixing resolves the chemical components of a hyperspectral
// cube. Five endmember extraction algorithms are provided behind one
// Unmixer capability so the Comparator can run them uniformly and
// tabulate their results side by side.
package unmixing

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"afmfusion/internal/models"
)

// Result holds the endmember spectra and abundance maps recovered by one
// algorithm.
type Result struct {
	// Endmembers is the k-by-channels matrix of recovered pure-component
	// spectra, one spectrum per row.
	Endmembers *mat.Dense

	// Abundances is a cube with one channel per endmember holding each
	// pixel's fractional contribution. Sum-to-one algorithms (NMF here)
	// normalize each pixel's fractions to exactly one; the geometric
	// algorithms clamp least-squares fractions to [0, 1].
	Abundances *models.Cube
}

// Unmixer is the capability every endmember extraction algorithm
// implements. Extract treats the cube as read-only.
type Unmixer interface {
	// Name identifies the algorithm in comparison tables.
	Name() string

	// Extract recovers k endmembers and their abundance maps.
	Extract(cube *models.Cube, k int) (*Result, error)
}

// UnmixingError wraps one algorithm's failure with its name so a failed
// algorithm can be reported without discarding the others' results.
type UnmixingError struct {
	// Algorithm is the failing Unmixer's name.
	Algorithm string

	// Err is the underlying cause.
	Err error
}

func (e *UnmixingError) Error() string {
	return fmt.Sprintf("unmixing %s: %v", e.Algorithm, e.Err)
}

func (e *UnmixingError) Unwrap() error { return e.Err }

// Comparator runs a set of unmixing algorithms over the same cube and
// collects their results into one mapping.
type Comparator struct {
	unmixers []Unmixer
}

// NewComparator builds a comparator over the given algorithms.
func NewComparator(unmixers ...Unmixer) *Comparator {
	return &Comparator{unmixers: unmixers}
}

// DefaultComparator returns a comparator over all five bundled
// algorithms. The seed feeds every stochastic algorithm so a run is
// reproducible end to end.
func DefaultComparator(seed int64) *Comparator {
	return NewComparator(
		NewNMF(seed),
		NewATGP(),
		NewNFINDR(seed),
		NewPPI(seed),
		NewVCA(seed),
	)
}

// Run invokes every algorithm with the same cube and endmember count.
// The algorithms share no mutable state, so they run concurrently; the
// result mapping has no ordering dependency between them. A failing
// algorithm is recorded in the error mapping as an UnmixingError and
// never prevents collection of the remaining results.
func (c *Comparator) Run(cube *models.Cube, k int) (map[string]*Result, map[string]error) {
	type outcome struct {
		name   string
		result *Result
		err    error
	}
	outcomes := make(chan outcome)

	for _, u := range c.unmixers {
		go func(u Unmixer) {
			result, err := u.Extract(cube, k)
			if err != nil {
				err = &UnmixingError{Algorithm: u.Name(), Err: err}
			}
			outcomes <- outcome{name: u.Name(), result: result, err: err}
		}(u)
	}

	results := make(map[string]*Result)
	failures := make(map[string]error)
	for range c.unmixers {
		o := <-outcomes
		if o.err != nil {
			failures[o.name] = o.err
			continue
		}
		results[o.name] = o.result
	}

	return results, failures
}

// validate rejects endmember counts the cube cannot support.
func validate(cube *models.Cube, k int) error {
	if k < 1 {
		return fmt.Errorf("endmember count %d must be positive", k)
	}
	if k > cube.Channels {
		return fmt.Errorf("endmember count %d exceeds %d spectral channels", k, cube.Channels)
	}
	if k > cube.Pixels() {
		return fmt.Errorf("endmember count %d exceeds %d pixels", k, cube.Pixels())
	}
	return nil
}

// cubeMatrix flattens the cube to a pixels-by-channels matrix.
func cubeMatrix(cube *models.Cube) *mat.Dense {
	m := mat.NewDense(cube.Pixels(), cube.Channels, nil)
	for i := 0; i < cube.Pixels(); i++ {
		for ch := 0; ch < cube.Channels; ch++ {
			m.Set(i, ch, cube.Data[i*cube.Channels+ch])
		}
	}
	return m
}

// endmembersAt gathers the spectra of the selected pixels into a
// k-by-channels endmember matrix.
func endmembersAt(m *mat.Dense, indices []int) *mat.Dense {
	_, channels := m.Dims()
	e := mat.NewDense(len(indices), channels, nil)
	for i, idx := range indices {
		e.SetRow(i, m.RawRowView(idx))
	}
	return e
}

// abundanceMaps solves the per-pixel least-squares mixing problem
// against the endmember matrix and clamps the fractions to [0, 1].
// Used by the geometric (pure-pixel) algorithms, whose abundances are
// unconstrained estimates rather than a sum-to-one composition.
func abundanceMaps(m, endmembers *mat.Dense, rows, cols int) (*models.Cube, error) {
	pixels, _ := m.Dims()
	k, _ := endmembers.Dims()

	// Solve E^T A = M^T for A (k x pixels) in one factorization.
	var svd mat.SVD
	if ok := svd.Factorize(endmembers.T(), mat.SVDThin); !ok {
		return nil, fmt.Errorf("abundance solve: SVD factorization failed")
	}
	values := svd.Values(nil)
	rank := 0
	for _, v := range values {
		if v > 1e-12*values[0] {
			rank++
		}
	}
	if rank == 0 {
		return nil, fmt.Errorf("abundance solve: endmember matrix is zero")
	}

	var a mat.Dense
	svd.SolveTo(&a, m.T(), rank)

	out := models.NewCube(rows, cols, k)
	for i := 0; i < pixels; i++ {
		for j := 0; j < k; j++ {
			v := a.At(j, i)
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			out.Data[i*k+j] = v
		}
	}
	return out, nil
}
