// Package card describes the physical reference card: where its fiducial
// markers and patches sit, and the certified color of every patch.
package card

import "github.com/ironsheep/colorcard-mcp/internal/geometry"

// Canonical card geometry, in rectified pixels. Marker centers sit on the
// corners of a Width×Height rectangle; the patch grid fills that rectangle
// minus the margins.
const (
	DefaultRows = 4
	DefaultCols = 6

	CellWidth  = 80.0
	CellHeight = 70.0
	Margin     = 60.0

	// MarkerSize is the printed side of a marker, black border included.
	MarkerSize = 80.0
)

// Marker IDs by card corner, clockwise from the top-left.
const (
	MarkerTopLeft = iota
	MarkerTopRight
	MarkerBottomRight
	MarkerBottomLeft
)

// Layout is the patch grid of a card as seen in a rectified image.
// A portrait layout is the landscape layout turned a quarter turn, so rows
// and columns swap along with width and height.
type Layout struct {
	Rows    int     `json:"rows"`
	Cols    int     `json:"cols"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
	MarginX float64 `json:"margin_x"`
	MarginY float64 `json:"margin_y"`
}

// NewLayout returns the landscape layout for a rows×cols grid.
func NewLayout(rows, cols int) Layout {
	return Layout{
		Rows:    rows,
		Cols:    cols,
		Width:   2*Margin + float64(cols)*CellWidth,
		Height:  2*Margin + float64(rows)*CellHeight,
		MarginX: Margin,
		MarginY: Margin,
	}
}

// Transposed returns the layout rotated by a quarter turn.
func (l Layout) Transposed() Layout {
	return Layout{
		Rows:    l.Cols,
		Cols:    l.Rows,
		Width:   l.Height,
		Height:  l.Width,
		MarginX: l.MarginY,
		MarginY: l.MarginX,
	}
}

// Patches returns the number of cells in the grid.
func (l Layout) Patches() int {
	return l.Rows * l.Cols
}

// Cell returns the bounds of grid cell (row, col) as [x0, x1) × [y0, y1).
func (l Layout) Cell(row, col int) (x0, y0, x1, y1 float64) {
	cw := (l.Width - 2*l.MarginX) / float64(l.Cols)
	ch := (l.Height - 2*l.MarginY) / float64(l.Rows)
	x0 = l.MarginX + float64(col)*cw
	y0 = l.MarginY + float64(row)*ch
	return x0, y0, x0 + cw, y0 + ch
}

// Corners returns the four marker-center positions, clockwise from the
// top-left.
func (l Layout) Corners() [4]geometry.Point {
	return [4]geometry.Point{
		{X: 0, Y: 0},
		{X: l.Width, Y: 0},
		{X: l.Width, Y: l.Height},
		{X: 0, Y: l.Height},
	}
}

// PixelSize returns the rectified image size for the layout.
func (l Layout) PixelSize() (width, height int) {
	return int(l.Width + 0.5), int(l.Height + 0.5)
}
