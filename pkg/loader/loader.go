package loader

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"afmfusion/internal/models"
)

// LoadError reports a malformed or inconsistent input file.
type LoadError struct {
	// Path is the file that failed to load.
	Path string

	// Reason describes the inconsistency.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Path, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadPiFM reads a PiFM hyperspectral cube from an Anfatec scan directory.
// paramPath names the parameter file; the first channel description is
// taken as the hyperspectral bitfile, with its wavenumber axis loaded from
// the wavelengths table the description names.
//
// The raw data is stored as little-endian int32 counts, one spectrum per
// pixel, scaled into physical units by the channel's Scale factor. The
// cube is rotated into display orientation before being returned.
func LoadPiFM(paramPath string) (*models.Cube, error) {
	params, channels, err := ReadAnfatecParams(paramPath)
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 {
		return nil, &LoadError{Path: paramPath, Reason: "no channel descriptions in parameter file"}
	}

	hyperDesc := channels[0]
	if hyperDesc.FileNameWavelengths == "" {
		return nil, &LoadError{Path: paramPath, Reason: "first channel has no wavelengths table"}
	}

	dir := filepath.Dir(paramPath)
	wavelengths, err := readWavelengths(filepath.Join(dir, hyperDesc.FileNameWavelengths))
	if err != nil {
		return nil, err
	}

	cube, err := readRawChannel(filepath.Join(dir, hyperDesc.FileName), params, hyperDesc.Scale, len(wavelengths))
	if err != nil {
		return nil, err
	}
	cube.Modality = models.PiFM
	cube.Wavelengths = wavelengths

	return orientCube(cube), nil
}

// LoadCAFM reads a scalar cAFM image from an Anfatec scan directory.
// caption selects the channel whose Caption contains the given substring
// (case-insensitive), e.g. "Current". The returned cube has Channels == 1.
func LoadCAFM(paramPath, caption string) (*models.Cube, error) {
	params, channels, err := ReadAnfatecParams(paramPath)
	if err != nil {
		return nil, err
	}

	var desc *ChannelDesc
	for i := range channels {
		if strings.Contains(strings.ToLower(channels[i].Caption), strings.ToLower(caption)) {
			desc = &channels[i]
			break
		}
	}
	if desc == nil {
		return nil, &LoadError{
			Path:   paramPath,
			Reason: fmt.Sprintf("no channel with caption matching %q", caption),
		}
	}

	dir := filepath.Dir(paramPath)
	cube, err := readRawChannel(filepath.Join(dir, desc.FileName), params, desc.Scale, 1)
	if err != nil {
		return nil, err
	}
	cube.Modality = models.CAFM

	return orientCube(cube), nil
}

// readRawChannel reads a little-endian int32 bitfile into a cube of the
// declared dimensions, scaling counts into physical units.
func readRawChannel(path string, params *ScanParams, scale float64, channels int) (*models.Cube, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "cannot read data file", Err: err}
	}

	want := params.XPixels * params.YPixels * channels * 4
	if len(raw) != want {
		return nil, &LoadError{
			Path: path,
			Reason: fmt.Sprintf("data size %d bytes does not match declared %dx%dx%d grid (%d bytes)",
				len(raw), params.XPixels, params.YPixels, channels, want),
		}
	}

	cube := models.NewCube(params.YPixels, params.XPixels, channels)
	for i := 0; i < len(cube.Data); i++ {
		counts := int32(binary.LittleEndian.Uint32(raw[i*4:]))
		cube.Data[i] = scale * float64(counts)
	}

	if params.XPixels > 0 && params.XLength > 0 {
		cube.Grid.PitchX = params.XLength / float64(params.XPixels)
	}
	if params.YPixels > 0 && params.YLength > 0 {
		cube.Grid.PitchY = params.YLength / float64(params.YPixels)
	}

	return cube, nil
}

// readWavelengths loads the wavenumber table, one value per line.
func readWavelengths(path string) ([]float64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: "cannot read wavelengths table", Err: err}
	}

	var values []float64
	for _, line := range strings.Fields(string(raw)) {
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, &LoadError{Path: path, Reason: "invalid wavenumber entry", Err: err}
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, &LoadError{Path: path, Reason: "empty wavelengths table"}
	}

	return values, nil
}

// orientCube rotates the raw scan order into display orientation. The
// instrument writes scan lines that come out rotated and mirrored relative
// to the on-screen view; the combined fix is a transpose of the spatial
// axes.
func orientCube(c *models.Cube) *models.Cube {
	out := models.NewCube(c.Cols, c.Rows, c.Channels)
	out.Grid = models.Grid{PitchX: c.Grid.PitchY, PitchY: c.Grid.PitchX}
	out.Modality = c.Modality
	out.Wavelengths = c.Wavelengths
	for r := 0; r < c.Rows; r++ {
		for col := 0; col < c.Cols; col++ {
			for ch := 0; ch < c.Channels; ch++ {
				out.Set(col, r, ch, c.At(r, col, ch))
			}
		}
	}
	return out
}

// DetrendChannel removes a per-row least-squares line from one channel of
// the cube in place. The instrument leaves a linear background on the
// topography channel from scanner drift; detrending each scan line removes
// it without touching the other channels.
func DetrendChannel(c *models.Cube, ch int) {
	cols := c.Cols
	if cols < 2 {
		return
	}

	// Closed-form simple linear regression against the column index.
	// The x values are 0..cols-1 for every row, so their moments are
	// computed once.
	xMean := float64(cols-1) / 2
	xVar := 0.0
	for x := 0; x < cols; x++ {
		d := float64(x) - xMean
		xVar += d * d
	}

	for r := 0; r < c.Rows; r++ {
		yMean := 0.0
		for x := 0; x < cols; x++ {
			yMean += c.At(r, x, ch)
		}
		yMean /= float64(cols)

		cov := 0.0
		for x := 0; x < cols; x++ {
			cov += (float64(x) - xMean) * (c.At(r, x, ch) - yMean)
		}
		slope := cov / xVar
		intercept := yMean - slope*xMean

		for x := 0; x < cols; x++ {
			c.Set(r, x, ch, c.At(r, x, ch)-(slope*float64(x)+intercept))
		}
	}
}

// Hyperslice sums the spectral intensity between two wavenumbers,
// returning a flat row-major image. The wavenumber axis is stored in
// descending instrument order, so the bounds are located by value rather
// than index. Fails when either wavenumber lies outside the recorded axis.
func Hyperslice(c *models.Cube, startWavenumber, stopWavenumber float64) ([]float64, error) {
	if c.Wavelengths == nil {
		return nil, &LoadError{Reason: "cube has no wavenumber axis"}
	}
	if startWavenumber > stopWavenumber {
		startWavenumber, stopWavenumber = stopWavenumber, startWavenumber
	}

	out := make([]float64, c.Rows*c.Cols)
	found := false
	for ch, w := range c.Wavelengths {
		if w < startWavenumber || w > stopWavenumber {
			continue
		}
		found = true
		for i := range out {
			out[i] += c.Data[i*c.Channels+ch]
		}
	}
	if !found {
		return nil, &LoadError{
			Reason: fmt.Sprintf("no channels between %.1f and %.1f cm^-1", startWavenumber, stopWavenumber),
		}
	}

	return out, nil
}

// NormalizeLaserPower divides the cube's intensities by the laser power
// in place, so spectra from scans taken at different power settings are
// comparable. laserPower <= 0 leaves the cube untouched.
func NormalizeLaserPower(c *models.Cube, laserPower float64) {
	if laserPower <= 0 {
		return
	}
	for i := range c.Data {
		c.Data[i] /= laserPower
	}
}

// ToMatrix restructures a cube into a pixels-by-channels matrix, dividing
// out the laser power so spectra from scans at different power settings
// are comparable. laserPower <= 0 is treated as no correction.
func ToMatrix(c *models.Cube, laserPower float64) *mat.Dense {
	if laserPower <= 0 {
		laserPower = 1
	}

	m := mat.NewDense(c.Pixels(), c.Channels, nil)
	for i := 0; i < c.Pixels(); i++ {
		for ch := 0; ch < c.Channels; ch++ {
			m.Set(i, ch, c.Data[i*c.Channels+ch]/laserPower)
		}
	}
	return m
}
