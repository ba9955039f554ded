package colorsci

import (
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
)

// XYZ is a CIE 1931 tristimulus value with Y = 1 for the white of the
// linear RGB space.
type XYZ [3]float64

// XYZ converts a linear RGB triple to CIE XYZ.
func (c RGB) XYZ() XYZ {
	x, y, z := colorful.LinearRgbToXyz(c[0], c[1], c[2])
	return XYZ{x, y, z}
}

// RGB converts an XYZ value back to linear RGB.
func (c XYZ) RGB() RGB {
	r, g, b := colorful.XyzToLinearRgb(c[0], c[1], c[2])
	return RGB{r, g, b}
}

// bradford maps XYZ to the sharpened cone response space of the Bradford
// chromatic adaptation transform.
var bradford = mat.NewDense(3, 3, []float64{
	0.8951, 0.2664, -0.1614,
	-0.7502, 1.7135, 0.0367,
	0.0389, -0.0685, 1.0296,
})

var bradfordInverse = sync.OnceValue(func() *mat.Dense {
	var inv mat.Dense
	if err := inv.Inverse(bradford); err != nil {
		panic("colorsci: bradford matrix is singular: " + err.Error())
	}
	return &inv
})

// Bradford returns the XYZ matrix that maps colors seen under the src white
// to how they appear under dst:
//
//	M = B⁻¹ · diag(B·dst / B·src) · B
func Bradford(src, dst XYZ) [3][3]float64 {
	s := mat.NewVecDense(3, src[:])
	d := mat.NewVecDense(3, dst[:])
	var sc, dc mat.VecDense
	sc.MulVec(bradford, s)
	dc.MulVec(bradford, d)

	scale := mat.NewDiagDense(3, nil)
	for i := 0; i < 3; i++ {
		scale.SetDiag(i, dc.AtVec(i)/sc.AtVec(i))
	}

	var m mat.Dense
	m.Product(bradfordInverse(), scale, bradford)
	return toArray(&m)
}

// AdaptRGB is Bradford expressed on linear RGB: the returned matrix takes a
// color lit by the src white to the same color lit by dst. Whites are given
// as linear RGB and only their chromaticity matters.
func AdaptRGB(src, dst RGB) [3][3]float64 {
	toXYZ := basis(func(c RGB) [3]float64 { return c.XYZ() })
	toRGB := basis(func(c RGB) [3]float64 { return XYZ(c).RGB() })
	a := Bradford(src.XYZ(), dst.XYZ())

	var m mat.Dense
	m.Product(toDense(toRGB), toDense(a), toDense(toXYZ))
	return toArray(&m)
}

// basis builds the matrix of a linear map from its images of the unit
// vectors.
func basis(f func(RGB) [3]float64) [3][3]float64 {
	var m [3][3]float64
	for j := 0; j < 3; j++ {
		var e RGB
		e[j] = 1
		col := f(e)
		for i := 0; i < 3; i++ {
			m[i][j] = col[i]
		}
	}
	return m
}

func toDense(m [3][3]float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

func toArray(m mat.Matrix) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
