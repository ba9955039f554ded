package geometry

import (
	"fmt"

	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// Warp resamples src into a new width×height image such that destination
// point p takes the color of src at h⁻¹(p). h maps source coordinates to
// destination coordinates. Sampling is bilinear; destination pixels whose
// preimage falls outside src stay black.
func Warp(src *imaging.FloatImage, h Homography, width, height int) (*imaging.FloatImage, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid warp size %dx%d", width, height)
	}
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}

	dst := imaging.NewFloatImage(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p, ok := inv.Apply(Point{float64(x) + 0.5, float64(y) + 0.5})
			if !ok {
				continue
			}
			if c, ok := src.Bilinear(p.X, p.Y); ok {
				dst.Set(x, y, c)
			}
		}
	}
	return dst, nil
}
