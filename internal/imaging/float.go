package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
)

// ColorSpace names the transfer function of stored pixel values.
type ColorSpace string

const (
	// LinearSRGB means pixel values are proportional to light (sRGB primaries).
	LinearSRGB ColorSpace = "linear_srgb"

	// SRGB means pixel values carry the standard sRGB gamma encoding.
	SRGB ColorSpace = "srgb"
)

// Valid reports whether s is a known color space.
func (s ColorSpace) Valid() bool {
	return s == LinearSRGB || s == SRGB
}

// FloatImage is a linear-light RGB image with float64 channels, stored
// row-major as interleaved R, G, B triples.
//
// All calibration math runs on FloatImage so 8- and 16-bit inputs are treated
// identically and no precision is lost between stages.
type FloatImage struct {
	Width  int
	Height int
	Pix    []float64
}

// NewFloatImage allocates a black image of the given size.
func NewFloatImage(width, height int) *FloatImage {
	return &FloatImage{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height*3),
	}
}

// At returns the pixel at (x, y). No bounds checking is performed.
func (f *FloatImage) At(x, y int) colorsci.RGB {
	i := (y*f.Width + x) * 3
	return colorsci.RGB{f.Pix[i], f.Pix[i+1], f.Pix[i+2]}
}

// Set stores c at (x, y). No bounds checking is performed.
func (f *FloatImage) Set(x, y int, c colorsci.RGB) {
	i := (y*f.Width + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = c[0], c[1], c[2]
}

// Bilinear samples the image at continuous coordinates where pixel (i, j)
// covers [i, i+1) × [j, j+1) and its center is (i+0.5, j+0.5). The second
// result is false when the point lies outside the image.
func (f *FloatImage) Bilinear(x, y float64) (colorsci.RGB, bool) {
	if x < 0 || y < 0 || x > float64(f.Width) || y > float64(f.Height) {
		return colorsci.RGB{}, false
	}
	fx := x - 0.5
	fy := y - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	x1 := clampInt(x0+1, 0, f.Width-1)
	y1 := clampInt(y0+1, 0, f.Height-1)
	x0 = clampInt(x0, 0, f.Width-1)
	y0 = clampInt(y0, 0, f.Height-1)

	var out colorsci.RGB
	i00 := (y0*f.Width + x0) * 3
	i10 := (y0*f.Width + x1) * 3
	i01 := (y1*f.Width + x0) * 3
	i11 := (y1*f.Width + x1) * 3
	for c := 0; c < 3; c++ {
		top := f.Pix[i00+c]*(1-tx) + f.Pix[i10+c]*tx
		bottom := f.Pix[i01+c]*(1-tx) + f.Pix[i11+c]*tx
		out[c] = top*(1-ty) + bottom*ty
	}
	return out, true
}

// Map returns a new image with fn applied to every pixel.
func (f *FloatImage) Map(fn func(colorsci.RGB) colorsci.RGB) *FloatImage {
	out := NewFloatImage(f.Width, f.Height)
	for i := 0; i < len(f.Pix); i += 3 {
		c := fn(colorsci.RGB{f.Pix[i], f.Pix[i+1], f.Pix[i+2]})
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c[0], c[1], c[2]
	}
	return out
}

// srgbDecodeTable maps every 16-bit sRGB-encoded value to linear light.
var srgbDecodeTable = sync.OnceValue(func() []float64 {
	t := make([]float64, 65536)
	for i := range t {
		v := float64(i) / 65535
		t[i] = colorsci.DecodeSRGB(v, v, v)[0]
	}
	return t
})

// FromImage converts img into a FloatImage, decoding the sRGB transfer
// function when space is SRGB. Alpha is ignored; transparent pixels keep
// whatever color the decoder reports.
//
// Parameters:
//   - img: Any decoded image. 8-bit values are widened to 16 bits first.
//   - space: The transfer function the stored values carry.
//
// Returns:
//   - *FloatImage: Linear-light copy of img with its origin moved to (0,0).
//   - error: Non-nil if space is unknown or the image is empty.
func FromImage(img image.Image, space ColorSpace) (*FloatImage, error) {
	if !space.Valid() {
		return nil, fmt.Errorf("unknown color space %q", space)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image is empty")
	}

	out := NewFloatImage(bounds.Dx(), bounds.Dy())
	var lut []float64
	if space == SRGB {
		lut = srgbDecodeTable()
	}

	decode := func(v uint32) float64 {
		if lut != nil {
			return lut[v]
		}
		return float64(v) / 65535
	}

	for y := 0; y < out.Height; y++ {
		for x := 0; x < out.Width; x++ {
			var r, g, b uint32
			switch src := img.(type) {
			case *image.NRGBA64:
				c := src.NRGBA64At(x+bounds.Min.X, y+bounds.Min.Y)
				r, g, b = uint32(c.R), uint32(c.G), uint32(c.B)
			case *image.NRGBA:
				c := src.NRGBAAt(x+bounds.Min.X, y+bounds.Min.Y)
				r, g, b = uint32(c.R)*0x101, uint32(c.G)*0x101, uint32(c.B)*0x101
			default:
				c := color.NRGBA64Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.NRGBA64)
				r, g, b = uint32(c.R), uint32(c.G), uint32(c.B)
			}
			out.Set(x, y, colorsci.RGB{decode(r), decode(g), decode(b)})
		}
	}
	return out, nil
}

// ToNRGBA64 clips the image to [0,1], encodes it into space and returns a
// 16-bit image.
func (f *FloatImage) ToNRGBA64(space ColorSpace) *image.NRGBA64 {
	out := image.NewNRGBA64(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := f.At(x, y).Clamp()
			if space == SRGB {
				enc := colorsci.EncodeSRGB(c)
				c = colorsci.RGB(enc)
			}
			out.SetNRGBA64(x, y, color.NRGBA64{
				R: to16(c[0]),
				G: to16(c[1]),
				B: to16(c[2]),
				A: 0xFFFF,
			})
		}
	}
	return out
}

// ToNRGBA is like ToNRGBA64 but produces an 8-bit image.
func (f *FloatImage) ToNRGBA(space ColorSpace) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := f.At(x, y).Clamp()
			if space == SRGB {
				c = colorsci.RGB(colorsci.EncodeSRGB(c))
			}
			out.SetNRGBA(x, y, color.NRGBA{
				R: uint8(math.Round(c[0] * 255)),
				G: uint8(math.Round(c[1] * 255)),
				B: uint8(math.Round(c[2] * 255)),
				A: 0xFF,
			})
		}
	}
	return out
}

func to16(v float64) uint16 {
	return uint16(math.Round(math.Min(1, math.Max(0, v)) * 65535))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
