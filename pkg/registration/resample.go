package registration

import (
	"math"

	"afmfusion/internal/models"
)

// Resample maps a cube onto a rows-by-cols output grid using the given
// transform: each output pixel is sampled from the source cube at the
// transformed coordinate, channel by channel. Coordinates outside the
// source grid sample as zero. The source cube is not modified.
func Resample(src *models.Cube, t Transform, rows, cols int, interp Interp) *models.Cube {
	out := models.NewCube(rows, cols, src.Channels)
	out.Grid = src.Grid
	out.Modality = src.Modality
	if src.Wavelengths != nil {
		out.Wavelengths = append([]float64(nil), src.Wavelengths...)
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			sr, sc := t.Apply(float64(r), float64(c))
			for ch := 0; ch < src.Channels; ch++ {
				out.Set(r, c, ch, sample(src, sr, sc, ch, interp))
			}
		}
	}
	return out
}

// sample reads one channel at a fractional (row, col) coordinate.
func sample(src *models.Cube, row, col float64, ch int, interp Interp) float64 {
	switch interp {
	case Nearest:
		return sampleNearest(src, row, col, ch)
	case Cubic:
		return sampleBicubic(src, row, col, ch)
	default:
		return sampleBilinear(src, row, col, ch)
	}
}

func sampleNearest(src *models.Cube, row, col float64, ch int) float64 {
	r := int(math.Round(row))
	c := int(math.Round(col))
	if r < 0 || r >= src.Rows || c < 0 || c >= src.Cols {
		return 0
	}
	return src.At(r, c, ch)
}

func sampleBilinear(src *models.Cube, row, col float64, ch int) float64 {
	if row < 0 || row > float64(src.Rows-1) || col < 0 || col > float64(src.Cols-1) {
		return 0
	}

	r0 := int(math.Floor(row))
	c0 := int(math.Floor(col))
	r1 := min(r0+1, src.Rows-1)
	c1 := min(c0+1, src.Cols-1)
	fr := row - float64(r0)
	fc := col - float64(c0)

	top := (1-fc)*src.At(r0, c0, ch) + fc*src.At(r0, c1, ch)
	bottom := (1-fc)*src.At(r1, c0, ch) + fc*src.At(r1, c1, ch)
	return (1-fr)*top + fr*bottom
}

func sampleBicubic(src *models.Cube, row, col float64, ch int) float64 {
	if row < 0 || row > float64(src.Rows-1) || col < 0 || col > float64(src.Cols-1) {
		return 0
	}

	r0 := int(math.Floor(row))
	c0 := int(math.Floor(col))
	fr := row - float64(r0)
	fc := col - float64(c0)

	// Separable Catmull-Rom: interpolate 4 rows along the column axis,
	// then interpolate the results along the row axis. Border pixels
	// are clamped.
	var rowVals [4]float64
	for i := 0; i < 4; i++ {
		r := clampIndex(r0-1+i, src.Rows)
		var colVals [4]float64
		for j := 0; j < 4; j++ {
			c := clampIndex(c0-1+j, src.Cols)
			colVals[j] = src.At(r, c, ch)
		}
		rowVals[i] = catmullRom(colVals, fc)
	}
	return catmullRom(rowVals, fr)
}

// catmullRom evaluates the Catmull-Rom spline through four samples at
// parameter t in [0, 1] between p[1] and p[2].
func catmullRom(p [4]float64, t float64) float64 {
	return p[1] + 0.5*t*(p[2]-p[0]+
		t*(2*p[0]-5*p[1]+4*p[2]-p[3]+
			t*(3*(p[1]-p[2])+p[3]-p[0])))
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
