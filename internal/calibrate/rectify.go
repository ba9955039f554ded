package calibrate

import (
	"fmt"
	"math"
	"sort"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/detection"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
)

// MarkerPositions orders the four card markers clockwise by where their
// centers sit in the image, starting from the center with the smallest x+y.
// The result maps marker ID to position: 0 top-left, 1 top-right,
// 2 bottom-right, 3 bottom-left.
//
// Returns ErrDegenerateHomography (wrapped) when three centers are collinear
// or the centers do not form a convex quadrilateral.
func MarkerPositions(markers [4]detection.Marker) ([4]int, error) {
	var pts [4]geometry.Point
	for i, m := range markers {
		pts[i] = m.Center
	}
	c := geometry.Centroid(pts[:])

	// With y pointing down, increasing atan2 runs clockwise on screen.
	order := []int{0, 1, 2, 3}
	sort.Slice(order, func(i, j int) bool {
		a, b := pts[order[i]], pts[order[j]]
		return math.Atan2(a.Y-c.Y, a.X-c.X) < math.Atan2(b.Y-c.Y, b.X-c.X)
	})

	start := 0
	for i := 1; i < 4; i++ {
		p, s := pts[order[i]], pts[order[start]]
		if p.X+p.Y < s.X+s.Y {
			start = i
		}
	}

	var pos [4]int
	var quad [4]geometry.Point
	for i := 0; i < 4; i++ {
		id := order[(start+i)%4]
		pos[id] = i
		quad[i] = pts[id]
	}
	if err := geometry.CheckQuad(quad[:]); err != nil {
		return pos, fmt.Errorf("marker centers: %w", err)
	}
	return pos, nil
}

// Rectify solves the homography that maps the marker centers onto the
// corners of the rectified card.
//
// The rectified frame is landscape when markers 0 and 1 share a horizontal
// edge of the image ordering and portrait otherwise; the returned layout is
// the card layout turned to match, so its Rows and Cols are the raw grid
// dimensions seen in the rectified image.
func Rectify(markers [4]detection.Marker, pos [4]int, layout card.Layout) (geometry.Homography, card.Layout, error) {
	rect := layout
	if !sharesHorizontalEdge(pos[card.MarkerTopLeft], pos[card.MarkerTopRight]) {
		rect = layout.Transposed()
	}

	var src [4]geometry.Point
	for id, p := range pos {
		src[p] = markers[id].Center
	}
	h, err := geometry.SolveHomography(src, rect.Corners())
	if err != nil {
		return geometry.Homography{}, rect, err
	}
	return h, rect, nil
}

// sharesHorizontalEdge reports whether two clockwise positions are the two
// ends of the top or the bottom edge.
func sharesHorizontalEdge(a, b int) bool {
	top := (a == 0 && b == 1) || (a == 1 && b == 0)
	bottom := (a == 2 && b == 3) || (a == 3 && b == 2)
	return top || bottom
}
