// Package synth renders synthetic color-card images: printable targets for
// the render-target command and known-answer inputs for tests.
//
// A card is drawn in card units (see package card) on a canvas that adds
// Padding units around the marker-center rectangle, then scaled to pixels.
// Colors are linear light; callers encode the result with
// FloatImage.ToNRGBA or ToNRGBA64.
package synth

import (
	"fmt"
	"math"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
	"github.com/ironsheep/colorcard-mcp/internal/detection"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

const (
	// Padding is the blank border, in card units, around the marker-center
	// rectangle. It leaves room for the outer half of each marker.
	Padding = card.Margin

	// DefaultScale is the default number of pixels per card unit.
	DefaultScale = 1.5

	// DefaultBackground is the linear gray level of the card stock.
	DefaultBackground = 0.9

	// swatchFill is the share of a grid cell covered by its color swatch.
	swatchFill = 0.84
)

// Options controls card rendering. The zero value renders the default card.
type Options struct {
	// Scale is pixels per card unit. Default DefaultScale.
	Scale float64

	// Dictionary names the marker codebook. Default detection.DefaultDictionary.
	Dictionary detection.DictionaryName

	// Table supplies patch colors. Default card.Default().
	Table *card.ReferenceTable

	// Colors overrides the linear color of each canonical patch. When
	// non-nil it must have one entry per patch.
	Colors []colorsci.RGB

	// Background is the linear gray of the card stock. Default
	// DefaultBackground.
	Background float64

	// Supersample is the number of samples per pixel along each axis.
	// Default 2.
	Supersample int
}

func (o Options) withDefaults() (Options, error) {
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}
	if o.Scale < 0.5 {
		return o, fmt.Errorf("scale %.3g too small to resolve markers", o.Scale)
	}
	if o.Dictionary == "" {
		o.Dictionary = detection.DefaultDictionary
	}
	if o.Table == nil {
		t, err := card.Default()
		if err != nil {
			return o, err
		}
		o.Table = t
	}
	if o.Colors != nil && len(o.Colors) != o.Table.Len() {
		return o, fmt.Errorf("got %d patch colors, want %d", len(o.Colors), o.Table.Len())
	}
	if o.Background == 0 {
		o.Background = DefaultBackground
	}
	if o.Supersample <= 0 {
		o.Supersample = 2
	}
	return o, nil
}

// CanvasSize returns the canvas size in pixels for a scale.
func CanvasSize(scale float64) (width, height int) {
	l := card.NewLayout(card.DefaultRows, card.DefaultCols)
	return int(math.Round((l.Width + 2*Padding) * scale)), int(math.Round((l.Height + 2*Padding) * scale))
}

// MarkerCenters returns the pixel positions of marker centers 0..3 on an
// upright canvas rendered at scale.
func MarkerCenters(scale float64) [4]geometry.Point {
	l := card.NewLayout(card.DefaultRows, card.DefaultCols)
	var out [4]geometry.Point
	for i, c := range l.Corners() {
		out[i] = geometry.Point{X: (c.X + Padding) * scale, Y: (c.Y + Padding) * scale}
	}
	return out
}

// Card renders an upright landscape card with markers 0 to 3 clockwise from
// the top-left.
func Card(opts Options) (*imaging.FloatImage, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	dict, err := detection.NewDictionary(opts.Dictionary)
	if err != nil {
		return nil, err
	}

	layout := card.NewLayout(card.DefaultRows, card.DefaultCols)
	if layout.Patches() != opts.Table.Len() {
		return nil, fmt.Errorf("layout has %d cells but table has %d patches", layout.Patches(), opts.Table.Len())
	}
	colors := opts.Colors
	if colors == nil {
		colors = make([]colorsci.RGB, opts.Table.Len())
		for i := range colors {
			colors[i] = opts.Table.Linear(i)
		}
	}

	s := scene{
		layout:     layout,
		dict:       dict,
		colors:     colors,
		background: colorsci.RGB{opts.Background, opts.Background, opts.Background},
	}

	width, height := CanvasSize(opts.Scale)
	out := imaging.NewFloatImage(width, height)
	n := opts.Supersample
	weight := 1 / float64(n*n)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var acc colorsci.RGB
			for sy := 0; sy < n; sy++ {
				for sx := 0; sx < n; sx++ {
					u := (float64(x)+(float64(sx)+0.5)/float64(n))/opts.Scale - Padding
					v := (float64(y)+(float64(sy)+0.5)/float64(n))/opts.Scale - Padding
					c := s.colorAt(u, v)
					for i := range acc {
						acc[i] += c[i] * weight
					}
				}
			}
			out.Set(x, y, acc)
		}
	}
	return out, nil
}

// Project warps an upright canvas so that its four corners land on dst
// (clockwise from the canvas top-left) in a width×height image. Uncovered
// pixels are black.
func Project(canvas *imaging.FloatImage, dst [4]geometry.Point, width, height int) (*imaging.FloatImage, error) {
	w, h := float64(canvas.Width), float64(canvas.Height)
	src := [4]geometry.Point{{X: 0, Y: 0}, {X: w, Y: 0}, {X: w, Y: h}, {X: 0, Y: h}}
	hm, err := geometry.SolveHomography(src, dst)
	if err != nil {
		return nil, err
	}
	return geometry.Warp(canvas, hm, width, height)
}

// scene answers "what color is at this card-unit position".
type scene struct {
	layout     card.Layout
	dict       *detection.Dictionary
	colors     []colorsci.RGB
	background colorsci.RGB
}

var black = colorsci.RGB{}

// colorAt returns the color at (u, v) in card units, with the origin at the
// center of marker 0.
func (s scene) colorAt(u, v float64) colorsci.RGB {
	half := card.MarkerSize / 2
	for id, c := range s.layout.Corners() {
		if math.Abs(u-c.X) < half && math.Abs(v-c.Y) < half {
			return s.markerColor(id, u-(c.X-half), v-(c.Y-half))
		}
	}

	for r := 0; r < s.layout.Rows; r++ {
		for c := 0; c < s.layout.Cols; c++ {
			x0, y0, x1, y1 := s.layout.Cell(r, c)
			insetX := (x1 - x0) * (1 - swatchFill) / 2
			insetY := (y1 - y0) * (1 - swatchFill) / 2
			if u >= x0+insetX && u < x1-insetX && v >= y0+insetY && v < y1-insetY {
				return s.colors[r*s.layout.Cols+c]
			}
		}
	}
	return s.background
}

// markerColor returns the color of marker id at offset (du, dv) from its
// top-left corner.
func (s scene) markerColor(id int, du, dv float64) colorsci.RGB {
	cells := s.dict.Bits + 2
	cell := card.MarkerSize / float64(cells)
	c := int(du / cell)
	r := int(dv / cell)
	if r <= 0 || c <= 0 || r >= cells-1 || c >= cells-1 {
		return black
	}
	if s.dict.Bit(id, r-1, c-1) {
		return s.background
	}
	return black
}
