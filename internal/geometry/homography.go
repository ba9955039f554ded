// Package geometry provides the planar projective geometry used to rectify a
// photographed color card: points, homographies, degeneracy checks, line fits
// and inverse-mapped warping.
//
// # Coordinate System
//
// Points use continuous pixel coordinates with the origin at the top-left
// corner of the image, X increasing rightward and Y increasing downward. The
// center of pixel (i, j) is (i+0.5, j+0.5).
//
// # Orientation
//
// Because Y points down, a polygon listed in visual clockwise order has a
// positive shoelace area. All quadrilaterals in this package are expected in
// that order: top-left, top-right, bottom-right, bottom-left.
package geometry

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateHomography reports that four points cannot define a usable
// projective mapping: three of them are collinear, the quadrilateral folds
// over itself, or the solved transform is singular or mirrored.
var ErrDegenerateHomography = errors.New("degenerate homography")

const (
	// collinearTolerance bounds triangle area relative to its longest side
	// squared. Below it the three points are treated as collinear.
	collinearTolerance = 1e-3

	// determinantTolerance bounds the determinant of the Frobenius-normalized
	// 3×3 matrix.
	determinantTolerance = 1e-10
)

// Point is a 2D coordinate in continuous pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 { return math.Hypot(p.X-q.X, p.Y-q.Y) }

// Cross returns the z component of the cross product of p and q.
func (p Point) Cross(q Point) float64 { return p.X*q.Y - p.Y*q.X }

// Centroid returns the mean of pts.
func Centroid(pts []Point) Point {
	var c Point
	for _, p := range pts {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(pts))
	return Point{c.X / n, c.Y / n}
}

// SignedArea returns the shoelace area of a polygon. It is positive for
// visually clockwise polygons in image coordinates.
func SignedArea(pts []Point) float64 {
	var a float64
	for i := range pts {
		j := (i + 1) % len(pts)
		a += pts[i].Cross(pts[j])
	}
	return a / 2
}

// Homography is a 3×3 projective transform acting on homogeneous points
// (x, y, 1). It is stored row-major.
type Homography [3][3]float64

// Identity returns the identity transform.
func Identity() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply maps p through the homography. The second result is false when the
// point maps to infinity.
func (h Homography) Apply(p Point) (Point, bool) {
	x := h[0][0]*p.X + h[0][1]*p.Y + h[0][2]
	y := h[1][0]*p.X + h[1][1]*p.Y + h[1][2]
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if math.Abs(w) < 1e-12 {
		return Point{}, false
	}
	return Point{x / w, y / w}, true
}

// Mul returns h·g, the transform that applies g first and then h.
func (h Homography) Mul(g Homography) Homography {
	var out Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += h[i][k] * g[k][j]
			}
		}
	}
	return out
}

func (h Homography) dense() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		h[0][0], h[0][1], h[0][2],
		h[1][0], h[1][1], h[1][2],
		h[2][0], h[2][1], h[2][2],
	})
}

// NormalizedDeterminant returns the determinant of h after scaling it to unit
// Frobenius norm, making the value independent of the arbitrary projective
// scale.
func (h Homography) NormalizedDeterminant() float64 {
	m := h.dense()
	norm := mat.Norm(m, 2)
	if norm == 0 {
		return 0
	}
	m.Scale(1/norm, m)
	return mat.Det(m)
}

// Inverse returns the inverse transform.
func (h Homography) Inverse() (Homography, error) {
	var inv mat.Dense
	if err := inv.Inverse(h.dense()); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateHomography, err)
	}
	w := inv.At(2, 2)
	if w == 0 {
		w = 1
	}
	var out Homography
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = inv.At(i, j) / w
		}
	}
	return out, nil
}

// SolveHomography computes the homography that maps each src point onto the
// dst point with the same index.
//
// Points are first normalized (centroid at the origin, mean distance √2) so
// the 8×8 system stays well conditioned for large images. The projective
// weight of the result is positive at the src centroid.
//
// Returns ErrDegenerateHomography (wrapped) when either quadrilateral has
// three collinear points or is not convex, when the linear system is
// singular, or when the normalized determinant is near zero or negative.
func SolveHomography(src, dst [4]Point) (Homography, error) {
	if err := CheckQuad(src[:]); err != nil {
		return Homography{}, fmt.Errorf("source points: %w", err)
	}
	if err := CheckQuad(dst[:]); err != nil {
		return Homography{}, fmt.Errorf("destination points: %w", err)
	}

	ts, _ := normalization(src[:])
	td, tdInv := normalization(dst[:])

	// h11..h32 with h33 = 1:
	//   u = (h11 x + h12 y + h13) / (h31 x + h32 y + 1)
	//   v = (h21 x + h22 y + h23) / (h31 x + h32 y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		s, _ := ts.Apply(src[i])
		d, _ := td.Apply(dst[i])
		x, y, u, v := s.X, s.Y, d.X, d.Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -u*x)
		A.Set(i*2, 7, -u*y)
		B.SetVec(i*2, u)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -v*x)
		A.Set(i*2+1, 7, -v*y)
		B.SetVec(i*2+1, v)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateHomography, err)
	}

	hn := Homography{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
		{params.AtVec(6), params.AtVec(7), 1},
	}

	// In normalized coordinates the src centroid sits at the origin, where
	// the weight is h33 = 1, so the sign is already fixed and the
	// determinant is free of translation effects.
	if det := hn.NormalizedDeterminant(); det < determinantTolerance {
		return Homography{}, fmt.Errorf("%w: normalized determinant %.3g", ErrDegenerateHomography, det)
	}

	// H = Td⁻¹ · Hn · Ts
	return tdInv.Mul(hn).Mul(ts), nil
}

// normalization returns the similarity that moves pts to zero mean and
// mean distance √2 from the origin, along with its inverse.
func normalization(pts []Point) (t, inv Homography) {
	c := Centroid(pts)
	var mean float64
	for _, p := range pts {
		mean += p.Distance(c)
	}
	mean /= float64(len(pts))
	s := 1.0
	if mean > 0 {
		s = math.Sqrt2 / mean
	}
	t = Homography{{s, 0, -s * c.X}, {0, s, -s * c.Y}, {0, 0, 1}}
	inv = Homography{{1 / s, 0, c.X}, {0, 1 / s, c.Y}, {0, 0, 1}}
	return t, inv
}

// CheckQuad verifies that four points form a convex, non-degenerate
// quadrilateral in clockwise order. It returns a wrapped
// ErrDegenerateHomography describing the first failed condition.
func CheckQuad(q []Point) error {
	if len(q) != 4 {
		return fmt.Errorf("%w: need 4 points, got %d", ErrDegenerateHomography, len(q))
	}
	for i := 0; i < 4; i++ {
		a, b, c := q[i], q[(i+1)%4], q[(i+2)%4]
		if Collinear(a, b, c) {
			return fmt.Errorf("%w: points %d, %d, %d are collinear", ErrDegenerateHomography, i, (i+1)%4, (i+2)%4)
		}
	}
	for i := 0; i < 4; i++ {
		a, b, c := q[i], q[(i+1)%4], q[(i+2)%4]
		if b.Sub(a).Cross(c.Sub(b)) <= 0 {
			return fmt.Errorf("%w: quadrilateral is not convex and clockwise", ErrDegenerateHomography)
		}
	}
	return nil
}

// Collinear reports whether the triangle abc is too thin to be trusted:
// its area relative to the square of its longest side is below tolerance.
func Collinear(a, b, c Point) bool {
	side := math.Max(a.Distance(b), math.Max(b.Distance(c), c.Distance(a)))
	if side == 0 {
		return true
	}
	area := math.Abs(b.Sub(a).Cross(c.Sub(a))) / 2
	return area/(side*side) < collinearTolerance
}
