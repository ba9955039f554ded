// Package colorsci holds the color math shared by the calibration pipeline:
// linear RGB triples, CIE L*a*b* values and the CIEDE2000 color difference.
//
// Conversions go through go-colorful, which works on a 0..1 Lab scale. Values
// returned here use the conventional 0..100 L* scale so that delta E numbers
// line up with published tables.
//
// All RGB values in this package are linear-light sRGB primaries (D65) unless a
// function name says otherwise.
package colorsci

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// labScale converts between go-colorful's Lab range and the 0..100 convention.
const labScale = 100.0

// RGB is a linear-light sRGB triple. Components are nominally in [0,1] but
// corrected values may fall outside that range before clipping.
type RGB [3]float64

// Lab is a CIE L*a*b* color relative to D65 with L* in 0..100.
type Lab struct {
	L float64 `json:"l"`
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// Array returns the Lab value as a plain triple for flat serialization.
func (c Lab) Array() [3]float64 {
	return [3]float64{c.L, c.A, c.B}
}

// Chroma returns sqrt(a² + b²).
func (c Lab) Chroma() float64 {
	return math.Hypot(c.A, c.B)
}

// Lab converts a linear RGB triple to CIE L*a*b*.
func (c RGB) Lab() Lab {
	x, y, z := colorful.LinearRgbToXyz(c[0], c[1], c[2])
	l, a, b := colorful.XyzToLab(x, y, z)
	return Lab{L: l * labScale, A: a * labScale, B: b * labScale}
}

// RGB converts a Lab color back to linear RGB. Out-of-gamut colors produce
// components outside [0,1]; callers decide whether to clip.
func (c Lab) RGB() RGB {
	x, y, z := colorful.LabToXyz(c.L/labScale, c.A/labScale, c.B/labScale)
	r, g, b := colorful.XyzToLinearRgb(x, y, z)
	return RGB{r, g, b}
}

// Luminance returns the relative luminance Y using Rec. 709 weights.
func (c RGB) Luminance() float64 {
	return 0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2]
}

// Saturation returns the HSV saturation (max-min)/max, or 0 for black.
func (c RGB) Saturation() float64 {
	hi := math.Max(c[0], math.Max(c[1], c[2]))
	lo := math.Min(c[0], math.Min(c[1], c[2]))
	if hi <= 0 {
		return 0
	}
	return (hi - lo) / hi
}

// Scale multiplies each channel by the matching gain.
func (c RGB) Scale(gains [3]float64) RGB {
	return RGB{c[0] * gains[0], c[1] * gains[1], c[2] * gains[2]}
}

// Transform returns m·c.
func (c RGB) Transform(m [3][3]float64) RGB {
	var out RGB
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*c[0] + m[i][1]*c[1] + m[i][2]*c[2]
	}
	return out
}

// Clamp limits every channel to [0,1].
func (c RGB) Clamp() RGB {
	for i := range c {
		c[i] = math.Min(1, math.Max(0, c[i]))
	}
	return c
}

// DecodeSRGB applies the sRGB transfer function inverse to gamma-encoded
// components in [0,1], yielding linear light.
func DecodeSRGB(r, g, b float64) RGB {
	lr, lg, lb := colorful.Color{R: r, G: g, B: b}.LinearRgb()
	return RGB{lr, lg, lb}
}

// EncodeSRGB gamma-encodes a linear triple with the sRGB transfer function.
func EncodeSRGB(c RGB) [3]float64 {
	enc := colorful.LinearRgb(c[0], c[1], c[2])
	return [3]float64{enc.R, enc.G, enc.B}
}

// FromSRGB8 converts 8-bit gamma-encoded sRGB components to linear RGB.
func FromSRGB8(rgb [3]uint8) RGB {
	return DecodeSRGB(float64(rgb[0])/255, float64(rgb[1])/255, float64(rgb[2])/255)
}
