package pipeline

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
)

// saveMap writes a flat row-major map as a 16-bit grayscale PNG under
// the intermediary directory, normalized to the map's own value range so
// score and abundance maps of any scale stay visible.
func (p *Pipeline) saveMap(stage, name string, data []float64, rows, cols int) error {
	stageDir := filepath.Join(p.params.IntermediaryDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %v", err)
	}

	img := mapToImage(data, rows, cols)
	filename := filepath.Join(stageDir, name+".png")
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create image file: %v", err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode image: %v", err)
	}

	return nil
}

// mapToImage converts a flat float map to a Gray16 image, stretching the
// value range to the full 16-bit scale. A constant map renders black.
func mapToImage(data []float64, rows, cols int) image.Image {
	lo, hi := data[0], data[0]
	for _, v := range data {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 65535.0 / (hi - lo)
	}

	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			idx := y*cols + x
			if idx < len(data) {
				img.Set(x, y, color.Gray16{Y: uint16((data[idx] - lo) * scale)})
			}
		}
	}

	return img
}
