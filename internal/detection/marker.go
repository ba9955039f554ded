package detection

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/histogram"
	"github.com/anthonynsimon/bild/segment"

	"github.com/ironsheep/colorcard-mcp/internal/geometry"
)

// CardMarkerCount is the number of corner markers on a color card. Card
// markers use IDs 0 through CardMarkerCount-1.
const CardMarkerCount = 4

var (
	// ErrInsufficientMarkers reports that fewer than four distinct card
	// markers were found.
	ErrInsufficientMarkers = errors.New("insufficient markers")

	// ErrDuplicateMarkerID reports that a card marker ID was decoded from
	// more than one location.
	ErrDuplicateMarkerID = errors.New("duplicate marker id")
)

const (
	// quadEdgeTolerance is how far, in pixels, a boundary point may sit from
	// the fitted quadrilateral and still count as lying on it.
	quadEdgeTolerance = 2.5

	// minQuadFit is the share of boundary points that must lie on the quad.
	minQuadFit = 0.85

	// minContrast is the smallest difference between the darkest and the
	// brightest cell mean, on a 0..255 scale, for a decode to be trusted.
	minContrast = 0.15 * 255

	// maxMarkerFraction bounds a marker's side relative to the shorter image
	// side.
	maxMarkerFraction = 0.5
)

// Marker is a decoded fiducial marker.
type Marker struct {
	// ID is the dictionary index of the decoded code.
	ID int `json:"id"`

	// Corners are the sub-pixel corners in the marker's own frame: index 0
	// is the corner that is top-left when the marker is upright, followed
	// clockwise.
	Corners [4]geometry.Point `json:"corners"`

	// Center is the intersection of the diagonals.
	Center geometry.Point `json:"center"`

	// Rotation is the number of clockwise quarter turns between the upright
	// marker and its appearance in the image.
	Rotation int `json:"rotation"`

	// Hamming is the number of corrected code bits.
	Hamming int `json:"hamming"`

	// Confidence is 1 minus the share of misread cells, border included.
	Confidence float64 `json:"confidence"`
}

// Detector locates and decodes square fiducial markers. It is immutable and
// safe for concurrent use.
type Detector struct {
	dict              *Dictionary
	minConfidence     float64
	minMarkerFraction float64
	blurRadius        float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithBlur smooths the grayscale image with a Gaussian of the given radius
// before binarization. Useful for noisy captures.
func WithBlur(radius float64) Option {
	return func(d *Detector) { d.blurRadius = radius }
}

// NewDetector creates a detector for the named dictionary.
//
// Parameters:
//   - name: Marker dictionary, one of Dictionaries().
//   - minConfidence: Markers decoded with lower confidence are dropped. 0 to 1.
//   - minMarkerFraction: Smallest marker side, as a fraction of the longer
//     image side. Typical: 0.01 to 0.05.
func NewDetector(name DictionaryName, minConfidence, minMarkerFraction float64, opts ...Option) (*Detector, error) {
	if minConfidence < 0 || minConfidence > 1 {
		return nil, fmt.Errorf("min marker confidence %.3g out of range [0, 1]", minConfidence)
	}
	if minMarkerFraction <= 0 || minMarkerFraction >= maxMarkerFraction {
		return nil, fmt.Errorf("min marker fraction %.3g out of range (0, %.1f)", minMarkerFraction, maxMarkerFraction)
	}
	dict, err := NewDictionary(name)
	if err != nil {
		return nil, err
	}
	d := &Detector{
		dict:              dict,
		minConfidence:     minConfidence,
		minMarkerFraction: minMarkerFraction,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.blurRadius < 0 {
		return nil, fmt.Errorf("blur radius %.3g must not be negative", d.blurRadius)
	}
	return d, nil
}

// Dictionary returns the detector's codebook.
func (d *Detector) Dictionary() *Dictionary { return d.dict }

// Detect finds the four card markers in img and returns them ordered by ID.
//
// Returns ErrDuplicateMarkerID or ErrInsufficientMarkers (wrapped) when the
// image does not hold exactly one marker for each of IDs 0 to 3.
func (d *Detector) Detect(img image.Image) ([]Marker, error) {
	found, err := CardMarkers(d.Scan(img))
	if err != nil {
		return nil, err
	}
	return found[:], nil
}

// CardMarkers selects the markers with IDs 0 to 3 from a scan, ordered by ID.
// Markers with other IDs are ignored.
func CardMarkers(markers []Marker) ([4]Marker, error) {
	var out [4]Marker
	var seen [CardMarkerCount]bool
	count := 0
	for _, m := range markers {
		if m.ID < 0 || m.ID >= CardMarkerCount {
			continue
		}
		if seen[m.ID] {
			return out, fmt.Errorf("%w: marker %d found more than once", ErrDuplicateMarkerID, m.ID)
		}
		seen[m.ID] = true
		out[m.ID] = m
		count++
	}
	if count < CardMarkerCount {
		var missing []int
		for id, ok := range seen {
			if !ok {
				missing = append(missing, id)
			}
		}
		return out, fmt.Errorf("%w: found %d of %d, missing %v", ErrInsufficientMarkers, count, CardMarkerCount, missing)
	}
	return out, nil
}

// Binarize returns the grayscale version of img and its Otsu-thresholded
// mask, in which candidate marker pixels are black.
func (d *Detector) Binarize(img image.Image) (*image.RGBA, *image.Gray) {
	gray := effect.Grayscale(img)
	if d.blurRadius > 0 {
		gray = effect.Grayscale(blur.Gaussian(gray, d.blurRadius))
	}
	level := otsuLevel(histogram.NewRGBAHistogram(gray).R.Bins)
	return gray, segment.Threshold(gray, level)
}

// Scan returns every marker in img that decodes with at least the minimum
// confidence, ordered by ID and then by decreasing confidence. No card-level
// checks are made.
//
// # Algorithm
//
//  1. Grayscale, optional blur, Otsu threshold
//  2. Dark 8-connected components within the marker size range
//  3. Quadrilateral fit on the hole-filled outline
//  4. Sub-pixel corners from per-side line fits
//  5. Cell sampling through the cell-to-image homography
//  6. Nearest code over all rotations
func (d *Detector) Scan(img image.Image) []Marker {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	gray, mask := d.Binarize(img)

	cells := d.dict.Bits + 2
	minSide := math.Max(d.minMarkerFraction*float64(max(width, height)), float64(4*cells))
	maxSide := maxMarkerFraction * float64(min(width, height))

	var markers []Marker
	for _, c := range darkComponents(mask, int(minSide)) {
		if c.touchesBorder {
			continue
		}
		side := float64(max(c.width(), c.height()))
		if side < minSide || side > maxSide {
			continue
		}
		outline, area := c.outline()
		quad, ok := fitQuad(outline, area)
		if !ok {
			continue
		}
		quad = refineCorners(quad, outline)
		m, ok := d.decode(gray, quad)
		if !ok || m.Confidence < d.minConfidence {
			continue
		}
		offset := geometry.Point{X: float64(bounds.Min.X), Y: float64(bounds.Min.Y)}
		for i := range m.Corners {
			m.Corners[i] = m.Corners[i].Add(offset)
		}
		m.Center = m.Center.Add(offset)
		markers = append(markers, m)
	}

	sort.SliceStable(markers, func(i, j int) bool {
		if markers[i].ID != markers[j].ID {
			return markers[i].ID < markers[j].ID
		}
		return markers[i].Confidence > markers[j].Confidence
	})
	return markers
}

// otsuLevel returns the binarization level that maximizes the between-class
// variance of a 256-bin histogram. Values at or above the level are
// foreground (white).
func otsuLevel(bins []int) uint8 {
	var total, sum float64
	for i, n := range bins {
		total += float64(n)
		sum += float64(i * n)
	}

	var wB, sumB float64
	best, threshold := -1.0, 127
	for i, n := range bins {
		wB += float64(n)
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * n)
		mB := sumB / wB
		mF := (sum - sumB) / wF
		if between := wB * wF * (mB - mF) * (mB - mF); between > best {
			best, threshold = between, i
		}
	}
	if threshold >= 255 {
		return 255
	}
	return uint8(threshold + 1)
}

// fitQuad approximates a hole-filled outline with a clockwise quadrilateral.
// The first corner is the one nearest the image origin.
func fitQuad(outline []geometry.Point, area int) ([4]geometry.Point, bool) {
	var quad [4]geometry.Point
	if len(outline) < 8 {
		return quad, false
	}

	center := geometry.Centroid(outline)
	p0 := farthest(outline, center)
	p2 := farthest(outline, p0)
	diag := p0.Distance(p2)
	if diag == 0 {
		return quad, false
	}

	axis := p2.Sub(p0)
	var p1, p3 geometry.Point
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, p := range outline {
		cr := axis.Cross(p.Sub(p0))
		if cr > hi {
			hi, p1 = cr, p
		}
		if cr < lo {
			lo, p3 = cr, p
		}
	}
	// Both off-diagonal corners must stand well clear of the diagonal.
	if hi/diag < 0.2*diag || -lo/diag < 0.2*diag {
		return quad, false
	}

	quad = [4]geometry.Point{p0, p1, p2, p3}
	if geometry.SignedArea(quad[:]) < 0 {
		quad = [4]geometry.Point{p0, p3, p2, p1}
	}

	start := 0
	for i := 1; i < 4; i++ {
		if quad[i].X+quad[i].Y < quad[start].X+quad[start].Y {
			start = i
		}
	}
	quad = [4]geometry.Point{quad[start], quad[(start+1)%4], quad[(start+2)%4], quad[(start+3)%4]}

	if geometry.CheckQuad(quad[:]) != nil {
		return quad, false
	}

	// Reject blobs that are not four-sided: most outline points must hug an
	// edge and the filled area must match the quad's.
	onEdge := 0
	for _, p := range outline {
		if distanceToQuad(quad, p) <= quadEdgeTolerance {
			onEdge++
		}
	}
	if float64(onEdge) < minQuadFit*float64(len(outline)) {
		return quad, false
	}
	ratio := float64(area) / geometry.SignedArea(quad[:])
	if ratio < 0.8 || ratio > 1.25 {
		return quad, false
	}
	return quad, true
}

// refineCorners fits a line to the outline points along each side of quad and
// moves each corner to the intersection of its two sides. A corner stays put
// when its side has too few points or the refined position jumps too far.
func refineCorners(quad [4]geometry.Point, outline []geometry.Point) [4]geometry.Point {
	center := geometry.Centroid(quad[:])
	var lines [4]geometry.Line
	var fitted [4]bool
	minSide := math.Inf(1)

	for i := 0; i < 4; i++ {
		a, b := quad[i], quad[(i+1)%4]
		length := a.Distance(b)
		minSide = math.Min(minSide, length)
		tol := math.Max(2, 0.02*length)
		dir := b.Sub(a).Scale(1 / length)

		var pts []geometry.Point
		for _, p := range outline {
			d := p.Sub(a)
			t := (d.X*dir.X + d.Y*dir.Y) / length
			if t < 0.1 || t > 0.9 {
				continue
			}
			if math.Abs(dir.Cross(d)) <= tol {
				pts = append(pts, p)
			}
		}
		if len(pts) < 5 {
			continue
		}
		line, err := geometry.FitLine(pts)
		if err != nil {
			continue
		}
		if line.Distance(center) > 0 {
			line = geometry.Line{Normal: line.Normal.Scale(-1), Offset: -line.Offset}
		}
		// Outline points are pixel centers, half a pixel inside the edge.
		lines[i] = line.Shift(0.5)
		fitted[i] = true
	}

	out := quad
	for i := 0; i < 4; i++ {
		prev := (i + 3) % 4
		if !fitted[prev] || !fitted[i] {
			continue
		}
		p, ok := geometry.Intersect(lines[prev], lines[i])
		if !ok || p.Distance(quad[i]) > 0.1*minSide {
			continue
		}
		out[i] = p
	}
	if geometry.CheckQuad(out[:]) != nil {
		return quad
	}
	return out
}

// decode reads the cell grid inside quad and matches it against the
// dictionary.
func (d *Detector) decode(gray *image.RGBA, quad [4]geometry.Point) (Marker, bool) {
	n := d.dict.Bits
	cells := n + 2
	fc := float64(cells)
	h, err := geometry.SolveHomography(
		[4]geometry.Point{{X: 0, Y: 0}, {X: fc, Y: 0}, {X: fc, Y: fc}, {X: 0, Y: fc}},
		quad,
	)
	if err != nil {
		return Marker{}, false
	}

	means := make([]float64, cells*cells)
	lo, hi := math.Inf(1), math.Inf(-1)
	for r := 0; r < cells; r++ {
		for c := 0; c < cells; c++ {
			var sum float64
			count := 0
			// 4×4 samples over the central half of the cell.
			for sy := 0; sy < 4; sy++ {
				for sx := 0; sx < 4; sx++ {
					p, ok := h.Apply(geometry.Point{
						X: float64(c) + 0.25 + (float64(sx)+0.5)*0.125,
						Y: float64(r) + 0.25 + (float64(sy)+0.5)*0.125,
					})
					if !ok {
						continue
					}
					if v, ok := grayBilinear(gray, p.X, p.Y); ok {
						sum += v
						count++
					}
				}
			}
			if count == 0 {
				return Marker{}, false
			}
			m := sum / float64(count)
			means[r*cells+c] = m
			lo = math.Min(lo, m)
			hi = math.Max(hi, m)
		}
	}
	if hi-lo < minContrast {
		return Marker{}, false
	}
	threshold := (lo + hi) / 2

	var code uint64
	borderErrors := 0
	for r := 0; r < cells; r++ {
		for c := 0; c < cells; c++ {
			white := means[r*cells+c] > threshold
			if r == 0 || c == 0 || r == cells-1 || c == cells-1 {
				if white {
					borderErrors++
				}
				continue
			}
			if white {
				bit := (r-1)*n + (c - 1)
				code |= 1 << (n*n - 1 - bit)
			}
		}
	}

	id, rotation, hamming, ok := d.dict.Match(code)
	if !ok {
		return Marker{}, false
	}

	m := Marker{
		ID:         id,
		Rotation:   rotation,
		Hamming:    hamming,
		Confidence: 1 - float64(borderErrors+hamming)/float64(cells*cells),
	}
	for i := 0; i < 4; i++ {
		m.Corners[i] = quad[(i+rotation)%4]
	}
	m.Center = diagonalCrossing(quad)
	return m, true
}

// grayBilinear samples the red channel of a grayscale image at continuous
// coordinates relative to its bounds, with pixel centers at +0.5.
func grayBilinear(gray *image.RGBA, x, y float64) (float64, bool) {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	if x < 0 || y < 0 || x > float64(w) || y > float64(h) {
		return 0, false
	}
	fx, fy := x-0.5, y-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := fx-float64(x0), fy-float64(y0)
	at := func(px, py int) float64 {
		px = min(max(px, 0), w-1)
		py = min(max(py, 0), h-1)
		return float64(gray.Pix[py*gray.Stride+px*4])
	}
	top := at(x0, y0)*(1-tx) + at(x0+1, y0)*tx
	bottom := at(x0, y0+1)*(1-tx) + at(x0+1, y0+1)*tx
	return top*(1-ty) + bottom*ty, true
}

func farthest(pts []geometry.Point, from geometry.Point) geometry.Point {
	best, bestDist := pts[0], -1.0
	for _, p := range pts {
		if d := p.Distance(from); d > bestDist {
			best, bestDist = p, d
		}
	}
	return best
}

// distanceToQuad returns the distance from p to the nearest side of quad.
func distanceToQuad(quad [4]geometry.Point, p geometry.Point) float64 {
	best := math.Inf(1)
	for i := 0; i < 4; i++ {
		best = math.Min(best, distanceToSegment(quad[i], quad[(i+1)%4], p))
	}
	return best
}

func distanceToSegment(a, b, p geometry.Point) float64 {
	ab := b.Sub(a)
	l2 := ab.X*ab.X + ab.Y*ab.Y
	if l2 == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*ab.X + (p.Y-a.Y)*ab.Y) / l2
	t = math.Max(0, math.Min(1, t))
	return p.Distance(a.Add(ab.Scale(t)))
}

// diagonalCrossing returns the intersection of the quad's diagonals, or its
// vertex mean if they are parallel.
func diagonalCrossing(q [4]geometry.Point) geometry.Point {
	r := q[2].Sub(q[0])
	s := q[3].Sub(q[1])
	den := r.Cross(s)
	if den == 0 {
		return geometry.Centroid(q[:])
	}
	t := q[1].Sub(q[0]).Cross(s) / den
	return q[0].Add(r.Scale(t))
}
