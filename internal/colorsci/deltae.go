package colorsci

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// pow25to7 is 25^7, the chroma pivot shared by the G and R_C terms.
const pow25to7 = 6103515625.0

// DeltaE2000 returns the CIEDE2000 color difference between two Lab colors
// with unit weighting factors (kL = kC = kH = 1).
//
// The implementation follows Sharma, Wu and Dalal (2005), including the
// chroma-dependent a* rescaling G, the hue weighting T and the blue-region
// rotation term R_T. The result is symmetric in its arguments and zero only
// for identical inputs.
func DeltaE2000(x, y Lab) float64 {
	c1 := math.Hypot(x.A, x.B)
	c2 := math.Hypot(y.A, y.B)
	cBar7 := math.Pow((c1+c2)/2, 7)
	g := 0.5 * (1 - math.Sqrt(cBar7/(cBar7+pow25to7)))

	a1 := (1 + g) * x.A
	a2 := (1 + g) * y.A
	cp1 := math.Hypot(a1, x.B)
	cp2 := math.Hypot(a2, y.B)
	hp1 := hueAngle(a1, x.B)
	hp2 := hueAngle(a2, y.B)

	dL := y.L - x.L
	dC := cp2 - cp1

	cpProd := cp1 * cp2
	var dh float64
	if cpProd != 0 {
		dh = hp2 - hp1
		switch {
		case dh > 180:
			dh -= 360
		case dh < -180:
			dh += 360
		}
	}
	dH := 2 * math.Sqrt(cpProd) * math.Sin(radians(dh/2))

	lBar := (x.L + y.L) / 2
	cpBar := (cp1 + cp2) / 2

	hBar := hp1 + hp2
	if cpProd != 0 {
		switch {
		case math.Abs(hp1-hp2) <= 180:
			hBar /= 2
		case hp1+hp2 < 360:
			hBar = (hBar + 360) / 2
		default:
			hBar = (hBar - 360) / 2
		}
	}

	t := 1 -
		0.17*math.Cos(radians(hBar-30)) +
		0.24*math.Cos(radians(2*hBar)) +
		0.32*math.Cos(radians(3*hBar+6)) -
		0.20*math.Cos(radians(4*hBar-63))

	dTheta := 30 * math.Exp(-math.Pow((hBar-275)/25, 2))
	cpBar7 := math.Pow(cpBar, 7)
	rc := 2 * math.Sqrt(cpBar7/(cpBar7+pow25to7))
	lBar50 := (lBar - 50) * (lBar - 50)
	sl := 1 + 0.015*lBar50/math.Sqrt(20+lBar50)
	sc := 1 + 0.045*cpBar
	sh := 1 + 0.015*cpBar*t
	rt := -math.Sin(radians(2*dTheta)) * rc

	lTerm := dL / sl
	cTerm := dC / sc
	hTerm := dH / sh
	return math.Sqrt(lTerm*lTerm + cTerm*cTerm + hTerm*hTerm + rt*cTerm*hTerm)
}

// hueAngle returns atan2(b, a) in degrees within [0, 360), or 0 when both
// components are zero.
func hueAngle(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 0
	}
	h := math.Atan2(b, a) * 180 / math.Pi
	if h < 0 {
		h += 360
	}
	return h
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// DeltaE76 returns the CIE76 color difference, the Euclidean distance in Lab.
func DeltaE76(x, y Lab) float64 {
	return math.Sqrt(sq(x.L-y.L) + sq(x.A-y.A) + sq(x.B-y.B))
}

// DeltaE94 returns the CIE94 color difference with graphic arts weights
// (kL = 1, K1 = 0.045, K2 = 0.015). x is the reference; swapping the
// arguments changes the result.
func DeltaE94(x, y Lab) float64 {
	const k1, k2 = 0.045, 0.015
	c1, c2 := x.Chroma(), y.Chroma()
	dL := x.L - y.L
	dC := c1 - c2
	dH2 := math.Max(0, sq(x.A-y.A)+sq(x.B-y.B)-sq(dC))
	sc := 1 + k1*c1
	sh := 1 + k2*c1
	return math.Sqrt(sq(dL) + sq(dC/sc) + dH2/sq(sh))
}

func sq(v float64) float64 { return v * v }

// DeltaEMethod names a color difference formula.
type DeltaEMethod string

const (
	CIE76     DeltaEMethod = "cie76"
	CIE94     DeltaEMethod = "cie94"
	CIEDE2000 DeltaEMethod = "ciede2000"
)

// Func returns the difference function for m, or nil for an unknown name.
func (m DeltaEMethod) Func() func(x, y Lab) float64 {
	switch m {
	case CIE76:
		return DeltaE76
	case CIE94:
		return DeltaE94
	case CIEDE2000:
		return DeltaE2000
	}
	return nil
}

// Stats summarizes a set of delta E values.
type Stats struct {
	Mean  float64 `json:"mean"`
	Max   float64 `json:"max"`
	Min   float64 `json:"min"`
	Count int     `json:"count"`
}

// Summarize computes mean, max and min over values. An empty slice yields the
// zero Stats.
func Summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	return Stats{
		Mean:  stat.Mean(values, nil),
		Max:   floats.Max(values),
		Min:   floats.Min(values),
		Count: len(values),
	}
}
