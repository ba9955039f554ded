package calibrate

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// ExtractPatches samples every cell of the raw grid described by layout from
// a rectified image. Patches are returned in raw row-major order with
// RawIndex set; Index and ReferenceLab are filled in after canonicalization.
//
// Each cell is sampled over its central region, inset by PatchSampleInset of
// the cell size on every side. Pixels that look like specular highlights
// (bright and nearly colorless) are masked out, and each channel is reduced
// to a trimmed mean of the rest. A cell with no pixels to sample is a
// wrapped ErrPatchSamplingFailure.
func ExtractPatches(rect *imaging.FloatImage, layout card.Layout, cfg CorrectionConfig) ([]Patch, error) {
	patches := make([]Patch, 0, layout.Patches())
	for r := 0; r < layout.Rows; r++ {
		for c := 0; c < layout.Cols; c++ {
			x0, y0, x1, y1 := layout.Cell(r, c)
			ix := (x1 - x0) * cfg.PatchSampleInset
			iy := (y1 - y0) * cfg.PatchSampleInset
			p, err := samplePatch(rect, x0+ix, y0+iy, x1-ix, y1-iy, cfg)
			if err != nil {
				return nil, fmt.Errorf("cell (%d, %d): %w", r, c, err)
			}
			p.RawIndex = r*layout.Cols + c
			patches = append(patches, p)
		}
	}
	return patches, nil
}

// samplePatch measures the pixels whose centers fall inside [x0,x1)×[y0,y1).
func samplePatch(img *imaging.FloatImage, x0, y0, x1, y1 float64, cfg CorrectionConfig) (Patch, error) {
	px0 := max(0, int(math.Ceil(x0-0.5)))
	py0 := max(0, int(math.Ceil(y0-0.5)))
	px1 := min(img.Width, int(math.Ceil(x1-0.5)))
	py1 := min(img.Height, int(math.Ceil(y1-0.5)))
	if px1 <= px0 || py1 <= py0 {
		return Patch{}, fmt.Errorf("%w: empty sample region", ErrPatchSamplingFailure)
	}

	var all, kept []colorsci.RGB
	for y := py0; y < py1; y++ {
		for x := px0; x < px1; x++ {
			c := img.At(x, y)
			all = append(all, c)
			if !isSpecular(c, cfg) {
				kept = append(kept, c)
			}
		}
	}

	p := Patch{
		SpecularFraction: 1 - float64(len(kept))/float64(len(all)),
		SampleRect:       [4]int{px0, py0, px1, py1},
	}
	if len(kept) == 0 {
		kept = all
	}
	for ch := 0; ch < 3; ch++ {
		p.Measured[ch] = trimmedMean(kept, ch, cfg.TrimFraction)
	}

	switch {
	case p.SpecularFraction > cfg.MaxSpecularFractionPerPatch:
		p.Status = PatchSpecular
	case p.Measured[0] >= cfg.ClipLevel || p.Measured[1] >= cfg.ClipLevel || p.Measured[2] >= cfg.ClipLevel:
		p.Status = PatchClipped
	default:
		p.Status = PatchUsable
	}
	return p, nil
}

func isSpecular(c colorsci.RGB, cfg CorrectionConfig) bool {
	return c.Luminance() > cfg.SpecularLuminanceThreshold && c.Saturation() < cfg.SpecularSaturationThreshold
}

// trimmedMean drops the lowest and highest trim fraction of one channel and
// averages the rest.
func trimmedMean(px []colorsci.RGB, ch int, trim float64) float64 {
	vals := make([]float64, len(px))
	for i, c := range px {
		vals[i] = c[ch]
	}
	sort.Float64s(vals)

	cut := int(math.Floor(trim * float64(len(vals))))
	return stat.Mean(vals[cut:len(vals)-cut], nil)
}
