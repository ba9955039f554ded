package detection

import (
	"fmt"
	"math/bits"
	"sort"
)

// DictionaryName identifies a fiducial codebook.
type DictionaryName string

// Supported codebooks. The name encodes the inner bit grid and the number of
// markers.
const (
	Dict4x4 DictionaryName = "4x4_50"
	Dict5x5 DictionaryName = "5x5_50"
	Dict6x6 DictionaryName = "6x6_50"

	DefaultDictionary = Dict5x5
)

type dictionarySpec struct {
	bits        int
	size        int
	minDistance int
}

var dictionarySpecs = map[DictionaryName]dictionarySpec{
	Dict4x4: {bits: 4, size: 50, minDistance: 3},
	Dict5x5: {bits: 5, size: 50, minDistance: 5},
	Dict6x6: {bits: 6, size: 50, minDistance: 7},
}

// Dictionaries returns the supported dictionary names, sorted.
func Dictionaries() []DictionaryName {
	names := make([]DictionaryName, 0, len(dictionarySpecs))
	for n := range dictionarySpecs {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Dictionary is a fixed codebook of square binary markers.
//
// Each code is an n×n bit grid stored row-major with the top-left bit as the
// most significant of the n² used bits. A set bit is a white cell. Codes are
// chosen so that every code differs from every other code, in any of its four
// rotations, by at least MinDistance bits, and no code resembles its own
// rotations. Up to (MinDistance-1)/2 misread bits can therefore be corrected
// without ambiguity.
type Dictionary struct {
	Name        DictionaryName
	Bits        int
	MinDistance int

	// rotations[id][k] is code id turned k quarter turns clockwise.
	rotations [][4]uint64
}

// NewDictionary builds the named codebook. Generation is deterministic, so a
// given name always yields the same codes.
func NewDictionary(name DictionaryName) (*Dictionary, error) {
	spec, ok := dictionarySpecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown marker dictionary %q", name)
	}

	n := spec.bits
	cells := n * n
	rng := xorshift(0x9E3779B97F4A7C15 ^ uint64(n*1000+spec.size))
	d := &Dictionary{Name: name, Bits: n, MinDistance: spec.minDistance}

	const maxCandidates = 1 << 22
	for tries := 0; len(d.rotations) < spec.size && tries < maxCandidates; tries++ {
		code := rng.next() >> (64 - cells)
		ones := bits.OnesCount64(code)
		if ones < cells/4 || ones > 3*cells/4 {
			continue
		}

		var rots [4]uint64
		rots[0] = code
		for k := 1; k < 4; k++ {
			rots[k] = rotateCW(rots[k-1], n)
		}
		if selfDistance(rots) < spec.minDistance {
			continue
		}
		if d.nearest(code) < spec.minDistance {
			continue
		}
		d.rotations = append(d.rotations, rots)
	}
	if len(d.rotations) < spec.size {
		return nil, fmt.Errorf("dictionary %s: generated %d of %d codes", name, len(d.rotations), spec.size)
	}
	return d, nil
}

// Len returns the number of markers in the dictionary.
func (d *Dictionary) Len() int { return len(d.rotations) }

// Code returns the canonical bit pattern of marker id.
func (d *Dictionary) Code(id int) uint64 { return d.rotations[id][0] }

// MaxCorrection returns the number of bit errors Match will correct.
func (d *Dictionary) MaxCorrection() int { return (d.MinDistance - 1) / 2 }

// Match finds the code closest to an observed bit pattern over all ids and
// rotations. rotation is the number of clockwise quarter turns that map the
// canonical code onto the observation. ok is false when the best distance
// exceeds MaxCorrection.
func (d *Dictionary) Match(observed uint64) (id, rotation, distance int, ok bool) {
	distance = d.Bits*d.Bits + 1
	for i, rots := range d.rotations {
		for k, code := range rots {
			if dist := bits.OnesCount64(observed ^ code); dist < distance {
				id, rotation, distance = i, k, dist
			}
		}
	}
	return id, rotation, distance, distance <= d.MaxCorrection()
}

// Bit reports whether cell (row, col) of marker id is white.
func (d *Dictionary) Bit(id, row, col int) bool {
	shift := d.Bits*d.Bits - 1 - (row*d.Bits + col)
	return d.rotations[id][0]>>shift&1 == 1
}

// nearest returns the smallest distance from code to any rotation of any code
// already in the dictionary.
func (d *Dictionary) nearest(code uint64) int {
	best := d.Bits*d.Bits + 1
	for _, rots := range d.rotations {
		for _, r := range rots {
			if dist := bits.OnesCount64(code ^ r); dist < best {
				best = dist
			}
		}
	}
	return best
}

func selfDistance(rots [4]uint64) int {
	best := 64
	for k := 1; k < 4; k++ {
		if dist := bits.OnesCount64(rots[0] ^ rots[k]); dist < best {
			best = dist
		}
	}
	return best
}

// rotateCW turns an n×n bit grid a quarter turn clockwise:
// new[r][c] = old[n-1-c][r].
func rotateCW(code uint64, n int) uint64 {
	var out uint64
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			src := (n-1-c)*n + r
			if code>>(n*n-1-src)&1 == 1 {
				out |= 1 << (n*n - 1 - (r*n + c))
			}
		}
	}
	return out
}

// xorshift is a xorshift64* generator. It only needs to be deterministic.
type xorshift uint64

func (x *xorshift) next() uint64 {
	v := uint64(*x)
	v ^= v >> 12
	v ^= v << 25
	v ^= v >> 27
	*x = xorshift(v)
	return v * 2685821657736338717
}
