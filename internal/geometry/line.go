package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Line is an infinite line in normal form: Normal·p = Offset, with Normal of
// unit length.
type Line struct {
	Normal Point
	Offset float64
}

// Distance returns the signed distance of p from the line.
func (l Line) Distance(p Point) float64 {
	return l.Normal.X*p.X + l.Normal.Y*p.Y - l.Offset
}

// Shift moves the line by d along its normal.
func (l Line) Shift(d float64) Line {
	return Line{Normal: l.Normal, Offset: l.Offset + d}
}

// FitLine returns the total-least-squares line through pts: the normal is the
// eigenvector of the point covariance with the smallest eigenvalue.
func FitLine(pts []Point) (Line, error) {
	if len(pts) < 2 {
		return Line{}, fmt.Errorf("need at least 2 points, got %d", len(pts))
	}
	c := Centroid(pts)
	var sxx, sxy, syy float64
	for _, p := range pts {
		dx, dy := p.X-c.X, p.Y-c.Y
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(mat.NewSymDense(2, []float64{sxx, sxy, sxy, syy}), true); !ok {
		return Line{}, fmt.Errorf("eigen decomposition failed")
	}
	values := eig.Values(nil)
	if values[1] <= 0 {
		return Line{}, fmt.Errorf("points are coincident")
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	// Eigenvalues are ascending, so column 0 is the normal direction.
	n := Point{vecs.At(0, 0), vecs.At(1, 0)}
	norm := math.Hypot(n.X, n.Y)
	n = n.Scale(1 / norm)
	return Line{Normal: n, Offset: n.X*c.X + n.Y*c.Y}, nil
}

// Intersect returns the intersection of two lines. The second result is false
// for parallel lines.
func Intersect(a, b Line) (Point, bool) {
	det := a.Normal.X*b.Normal.Y - a.Normal.Y*b.Normal.X
	if math.Abs(det) < 1e-9 {
		return Point{}, false
	}
	x := (a.Offset*b.Normal.Y - b.Offset*a.Normal.Y) / det
	y := (a.Normal.X*b.Offset - b.Normal.X*a.Offset) / det
	return Point{x, y}, true
}
