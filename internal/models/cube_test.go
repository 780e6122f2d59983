package models

import (
	"math"
	"testing"
)

// TestCubeIndexing verifies the (row, col, channel) addressing of the
// flat data layout.
func TestCubeIndexing(t *testing.T) {
	cube := NewCube(2, 3, 4)

	if len(cube.Data) != 2*3*4 {
		t.Fatalf("Expected %d values, got %d", 2*3*4, len(cube.Data))
	}
	if cube.Pixels() != 6 {
		t.Errorf("Expected 6 pixels, got %d", cube.Pixels())
	}

	// Give every cell a unique value and read it back.
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			for ch := 0; ch < cube.Channels; ch++ {
				cube.Set(r, c, ch, float64(r*100+c*10+ch))
			}
		}
	}
	for r := 0; r < cube.Rows; r++ {
		for c := 0; c < cube.Cols; c++ {
			for ch := 0; ch < cube.Channels; ch++ {
				want := float64(r*100 + c*10 + ch)
				if got := cube.At(r, c, ch); got != want {
					t.Errorf("At(%d,%d,%d): expected %v, got %v", r, c, ch, want, got)
				}
			}
		}
	}
}

// TestSpectrumAndBand verifies the per-pixel and per-channel views.
func TestSpectrumAndBand(t *testing.T) {
	cube := NewCube(2, 2, 3)
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			for ch := 0; ch < 3; ch++ {
				cube.Set(r, c, ch, float64((r*2+c)*10+ch))
			}
		}
	}

	spectrum := cube.Spectrum(1, 0)
	want := []float64{20, 21, 22}
	for i := range want {
		if spectrum[i] != want[i] {
			t.Errorf("Spectrum(1,0)[%d]: expected %v, got %v", i, want[i], spectrum[i])
		}
	}

	band := cube.Band(1)
	wantBand := []float64{1, 11, 21, 31}
	for i := range wantBand {
		if band[i] != wantBand[i] {
			t.Errorf("Band(1)[%d]: expected %v, got %v", i, wantBand[i], band[i])
		}
	}

	// Band returns a copy, not a view into the cube.
	band[0] = 999
	if cube.At(0, 0, 1) == 999 {
		t.Error("Band should return a copy of the channel")
	}
}

// TestChannelMean verifies the structure image collapse.
func TestChannelMean(t *testing.T) {
	cube := NewCube(1, 2, 2)
	cube.Set(0, 0, 0, 1)
	cube.Set(0, 0, 1, 3)
	cube.Set(0, 1, 0, 10)
	cube.Set(0, 1, 1, 20)

	mean := cube.ChannelMean()
	if math.Abs(mean[0]-2) > 1e-12 || math.Abs(mean[1]-15) > 1e-12 {
		t.Errorf("ChannelMean: expected [2 15], got %v", mean)
	}
}

// TestClone verifies deep copying.
func TestClone(t *testing.T) {
	cube := NewCube(2, 2, 1)
	cube.Set(0, 0, 0, 7)
	cube.Wavelengths = []float64{1000}
	cube.Grid = Grid{PitchX: 0.5, PitchY: 0.5}
	cube.Modality = PiFM

	clone := cube.Clone()
	clone.Set(0, 0, 0, 99)
	clone.Wavelengths[0] = 0

	if cube.At(0, 0, 0) != 7 {
		t.Error("Clone should not share data with the original")
	}
	if cube.Wavelengths[0] != 1000 {
		t.Error("Clone should not share the wavenumber axis")
	}
	if clone.Grid != cube.Grid || clone.Modality != cube.Modality {
		t.Error("Clone should carry over grid and modality metadata")
	}
}

// TestModalityString verifies the display names.
func TestModalityString(t *testing.T) {
	if PiFM.String() != "PiFM" {
		t.Errorf("Expected PiFM, got %s", PiFM.String())
	}
	if CAFM.String() != "cAFM" {
		t.Errorf("Expected cAFM, got %s", CAFM.String())
	}
}
