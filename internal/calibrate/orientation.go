package calibrate

import (
	"fmt"

	"github.com/ironsheep/colorcard-mcp/internal/card"
)

// ClassifyOrientation returns the number of clockwise quarter turns k that
// take the upright card to its appearance in the rectified image.
//
// A marker with a given ID found at clockwise position p implies
// k = (p - id) mod 4. All four markers must agree, and the raw grid must be
// the canonical grid for even k or its transpose for odd k. Anything else
// (a mirrored print, a mislabelled marker) is ErrAmbiguousOrientation.
func ClassifyOrientation(pos [4]int, rawRows, rawCols int, layout card.Layout) (int, error) {
	k := -1
	for id, p := range pos {
		turns := ((p-id)%4 + 4) % 4
		if k == -1 {
			k = turns
			continue
		}
		if turns != k {
			return 0, fmt.Errorf("%w: marker 0 implies %d quarter turns but marker %d implies %d",
				ErrAmbiguousOrientation, k, id, turns)
		}
	}

	wantRows, wantCols := layout.Rows, layout.Cols
	if k%2 == 1 {
		wantRows, wantCols = wantCols, wantRows
	}
	if rawRows != wantRows || rawCols != wantCols {
		return 0, fmt.Errorf("%w: %d quarter turns need a %dx%d grid, found %dx%d",
			ErrAmbiguousOrientation, k, wantRows, wantCols, rawRows, rawCols)
	}
	return k, nil
}

// CanonicalOrder returns, for each canonical patch index of an R0×C0 grid,
// the row-major raw index it was sampled from, given a rawRows×rawCols grid
// seen after k clockwise quarter turns.
//
// Canonical (r, c) comes from raw cell:
//
//	k=0: (r, c)
//	k=1: (c, R0-1-r)
//	k=2: (R0-1-r, C0-1-c)
//	k=3: (C0-1-c, r)
func CanonicalOrder(rawRows, rawCols, k int) []int {
	k = ((k % 4) + 4) % 4
	r0, c0 := rawRows, rawCols
	if k%2 == 1 {
		r0, c0 = rawCols, rawRows
	}

	order := make([]int, r0*c0)
	for r := 0; r < r0; r++ {
		for c := 0; c < c0; c++ {
			var rr, rc int
			switch k {
			case 0:
				rr, rc = r, c
			case 1:
				rr, rc = c, r0-1-r
			case 2:
				rr, rc = r0-1-r, c0-1-c
			case 3:
				rr, rc = c0-1-c, r
			}
			order[r*c0+c] = rr*rawCols + rc
		}
	}
	return order
}

// Canonicalize reorders raw patches into canonical order and stamps each
// with its canonical index.
func Canonicalize(raw []Patch, rawRows, rawCols, k int) []Patch {
	order := CanonicalOrder(rawRows, rawCols, k)
	out := make([]Patch, len(order))
	for i, ri := range order {
		out[i] = raw[ri]
		out[i].Index = i
	}
	return out
}
