package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
)

// Box is an axis-aligned pixel rectangle with a numeric label, used to mark
// the sampled area of a patch.
type Box struct {
	Rect  image.Rectangle
	Label int
}

// OverlayResult is an annotated preview image.
type OverlayResult struct {
	EncodedImage
	Boxes int `json:"boxes"`
}

// BoxOverlay outlines each box on a copy of img and writes its label in the
// box's top-left corner, then encodes the result like Encode.
//
// Parameters:
//   - img: Image to annotate. Not modified.
//   - boxes: Rectangles in img's coordinate space.
//   - colorHex: Outline color as "#RRGGBB" or "#RRGGBBAA". Invalid values
//     fall back to opaque red.
//   - maxSide: Passed to Encode. 0 keeps the full size.
func BoxOverlay(img image.Image, boxes []Box, colorHex string, maxSide int) (*OverlayResult, error) {
	bounds := img.Bounds()
	outline, err := parseHexColor(colorHex)
	if err != nil {
		outline = color.RGBA{255, 0, 0, 255}
	}

	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	labelColor := color.RGBA{255, 255, 255, 255}
	bgColor := color.RGBA{0, 0, 0, 180}
	for _, b := range boxes {
		r := b.Rect.Intersect(bounds)
		if r.Empty() {
			continue
		}
		for x := r.Min.X; x < r.Max.X; x++ {
			result.Set(x, r.Min.Y, outline)
			result.Set(x, r.Max.Y-1, outline)
		}
		for y := r.Min.Y; y < r.Max.Y; y++ {
			result.Set(r.Min.X, y, outline)
			result.Set(r.Max.X-1, y, outline)
		}
		drawLabel(result, r.Min.X+2, r.Min.Y+2, strconv.Itoa(b.Label), labelColor, bgColor)
	}

	enc, err := Encode(result, maxSide)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{EncodedImage: *enc, Boxes: len(boxes)}, nil
}

// parseHexColor parses a hex color string like "#FF0000" or "#FF000080"
func parseHexColor(hex string) (color.RGBA, error) {
	if len(hex) == 0 {
		return color.RGBA{}, fmt.Errorf("empty color string")
	}
	if hex[0] == '#' {
		hex = hex[1:]
	}

	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 6:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 16)
		g = uint8(val >> 8)
		b = uint8(val)
	case 8:
		val, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return color.RGBA{}, err
		}
		r = uint8(val >> 24)
		g = uint8(val >> 16)
		b = uint8(val >> 8)
		a = uint8(val)
	default:
		return color.RGBA{}, fmt.Errorf("invalid hex color length")
	}

	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}

// glyphs is a 3x5 pixel font for digits.
var glyphs = map[rune][]string{
	'0': {"111", "101", "101", "101", "111"},
	'1': {"010", "110", "010", "010", "111"},
	'2': {"111", "001", "111", "100", "111"},
	'3': {"111", "001", "111", "001", "111"},
	'4': {"101", "101", "111", "001", "001"},
	'5': {"111", "100", "111", "001", "111"},
	'6': {"111", "100", "111", "101", "111"},
	'7': {"111", "001", "001", "001", "001"},
	'8': {"111", "101", "111", "101", "111"},
	'9': {"111", "101", "111", "001", "111"},
}

// drawLabel draws text on a filled background at (x, y). Characters without
// a glyph leave a gap.
func drawLabel(img *image.RGBA, x, y int, text string, fg, bg color.RGBA) {
	bounds := img.Bounds()
	charWidth := 4
	labelWidth := len(text) * charWidth
	labelHeight := 7

	for dy := -1; dy < labelHeight; dy++ {
		for dx := -1; dx < labelWidth; dx++ {
			px, py := x+dx, y+dy
			if (image.Point{px, py}).In(bounds) {
				img.Set(px, py, bg)
			}
		}
	}

	cx := x
	for _, ch := range text {
		glyph, ok := glyphs[ch]
		if !ok {
			cx += charWidth
			continue
		}
		for row, line := range glyph {
			for col, on := range line {
				if on != '1' {
					continue
				}
				px, py := cx+col, y+row
				if (image.Point{px, py}).In(bounds) {
					img.Set(px, py, fg)
				}
			}
		}
		cx += charWidth
	}
}
