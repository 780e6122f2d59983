package models

import (
	"fmt"
)

// Modality identifies which AFM instrument mode produced a cube.
type Modality int

const (
	// PiFM is photo-induced force microscopy, producing a hyperspectral
	// cube with one spectral channel per wavenumber bin.
	PiFM Modality = iota

	// CAFM is conductive AFM, producing a single-channel scalar image
	// of a conductivity-like response.
	CAFM
)

// String returns the short name of the modality
func (m Modality) String() string {
	switch m {
	case PiFM:
		return "PiFM"
	case CAFM:
		return "cAFM"
	default:
		return fmt.Sprintf("Modality(%d)", int(m))
	}
}

// Grid holds the pixel-to-physical mapping of a scan.
type Grid struct {
	// PitchX, PitchY are the physical pixel sizes in micrometers.
	// They must be consistent across a single cube.
	PitchX, PitchY float64
}

// Cube is an image cube indexed by (row, col, channel) and stored flat
// with the spectrum of each pixel contiguous in memory. For PiFM data the
// channel axis indexes wavenumber bins; for cAFM images Channels is 1.
type Cube struct {
	// Data holds Rows*Cols*Channels values in (row, col, channel) order.
	Data []float64

	// Rows and Cols define the spatial grid of the scan.
	Rows, Cols int

	// Channels is the number of spectral bins (1 for scalar images).
	Channels int

	// Grid is the physical pixel pitch metadata for this cube.
	Grid Grid

	// Modality records which instrument mode produced the cube.
	Modality Modality

	// Wavelengths is the per-channel wavenumber axis in cm^-1 for
	// hyperspectral cubes. It is nil for scalar images; when present its
	// length equals Channels.
	Wavelengths []float64
}

// NewCube allocates a zero-filled cube with the given dimensions.
func NewCube(rows, cols, channels int) *Cube {
	return &Cube{
		Data:     make([]float64, rows*cols*channels),
		Rows:     rows,
		Cols:     cols,
		Channels: channels,
	}
}

// Pixels returns the number of spatial pixels in the cube.
func (c *Cube) Pixels() int {
	return c.Rows * c.Cols
}

// At returns the value at the given row, column and channel.
func (c *Cube) At(row, col, ch int) float64 {
	return c.Data[(row*c.Cols+col)*c.Channels+ch]
}

// Set stores a value at the given row, column and channel.
func (c *Cube) Set(row, col, ch int, v float64) {
	c.Data[(row*c.Cols+col)*c.Channels+ch] = v
}

// Spectrum returns a copy of the per-channel values at one pixel.
func (c *Cube) Spectrum(row, col int) []float64 {
	base := (row*c.Cols + col) * c.Channels
	out := make([]float64, c.Channels)
	copy(out, c.Data[base:base+c.Channels])
	return out
}

// Band returns a copy of one spectral channel as a flat row-major image
// of Rows*Cols values.
func (c *Cube) Band(ch int) []float64 {
	out := make([]float64, c.Rows*c.Cols)
	for i := range out {
		out[i] = c.Data[i*c.Channels+ch]
	}
	return out
}

// ChannelMean collapses the spectral axis, returning the per-pixel mean
// over all channels as a flat row-major image. This is the structure
// image used when comparing cubes of different modalities.
func (c *Cube) ChannelMean() []float64 {
	out := make([]float64, c.Rows*c.Cols)
	for i := range out {
		base := i * c.Channels
		sum := 0.0
		for ch := 0; ch < c.Channels; ch++ {
			sum += c.Data[base+ch]
		}
		out[i] = sum / float64(c.Channels)
	}
	return out
}

// Clone returns a deep copy of the cube.
func (c *Cube) Clone() *Cube {
	out := &Cube{
		Data:     make([]float64, len(c.Data)),
		Rows:     c.Rows,
		Cols:     c.Cols,
		Channels: c.Channels,
		Grid:     c.Grid,
		Modality: c.Modality,
	}
	copy(out.Data, c.Data)
	if c.Wavelengths != nil {
		out.Wavelengths = make([]float64, len(c.Wavelengths))
		copy(out.Wavelengths, c.Wavelengths)
	}
	return out
}

// RegisteredPair holds a hyperspectral cube and a scalar cube resampled
// onto the same spatial grid. After registration both cubes have identical
// Rows and Cols, and pixels at the same (row, col) index correspond to the
// same physical location on the sample.
type RegisteredPair struct {
	// Hyper is the reference hyperspectral cube.
	Hyper *Cube

	// Scalar is the moving scalar image resampled onto Hyper's grid.
	Scalar *Cube
}
