package calibrate

import (
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/gonum/mat"

	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// minConditionRatio bounds σmin/σmax of the measurement matrix. Below it the
// patches do not span enough of the color space to fit nine coefficients.
const minConditionRatio = 1e-3

// IdentityCCM returns the 3×3 identity.
func IdentityCCM() [3][3]float64 {
	return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// SolveCCM finds the 3×3 matrix M minimizing Σ‖M·measured_i − reference_i‖²
// by QR least squares.
//
// Returns ErrSingularCCMSystem (wrapped) when there are fewer than three
// pairs or the measurements are too close to linearly dependent, for example
// when every patch is gray.
func SolveCCM(measured, reference []colorsci.RGB) ([3][3]float64, error) {
	n := len(measured)
	if n != len(reference) {
		return [3][3]float64{}, fmt.Errorf("got %d measurements and %d references", n, len(reference))
	}
	if n < 3 {
		return [3][3]float64{}, fmt.Errorf("%w: %d patches, need at least 3", ErrSingularCCMSystem, n)
	}

	a := mat.NewDense(n, 3, nil)
	b := mat.NewDense(n, 3, nil)
	for i := 0; i < n; i++ {
		a.SetRow(i, measured[i][:])
		b.SetRow(i, reference[i][:])
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDNone); !ok {
		return [3][3]float64{}, fmt.Errorf("%w: SVD did not converge", ErrSingularCCMSystem)
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[len(sv)-1]/sv[0] < minConditionRatio {
		return [3][3]float64{}, fmt.Errorf("%w: condition ratio %.3g", ErrSingularCCMSystem, sv[len(sv)-1]/sv[0])
	}

	var qr mat.QR
	qr.Factorize(a)
	var x mat.Dense
	if err := qr.SolveTo(&x, false, b); err != nil {
		return [3][3]float64{}, fmt.Errorf("%w: %v", ErrSingularCCMSystem, err)
	}

	// Rows of A·X = B are measured_iᵀ·X = reference_iᵀ, so M = Xᵀ.
	var ccm [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			ccm[i][j] = x.At(j, i)
		}
	}
	return ccm, nil
}

// composeMatrix returns a·b.
func composeMatrix(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

// EffectiveMatrix folds white balance gains into a CCM: ccm·diag(gains).
func EffectiveMatrix(ccm [3][3]float64, gains [3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = ccm[i][j] * gains[j]
		}
	}
	return out
}

// ApplyMatrix multiplies every pixel's stored RGB by ccm and clips to [0,1].
// Values are transformed as stored, without any transfer function.
func ApplyMatrix(img image.Image, ccm [3][3]float64) *image.NRGBA64 {
	bounds := img.Bounds()
	out := image.NewNRGBA64(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			c := color.NRGBA64Model.Convert(img.At(x+bounds.Min.X, y+bounds.Min.Y)).(color.NRGBA64)
			rgb := colorsci.RGB{float64(c.R) / 0xFFFF, float64(c.G) / 0xFFFF, float64(c.B) / 0xFFFF}
			rgb = rgb.Transform(ccm).Clamp()
			out.SetNRGBA64(x, y, color.NRGBA64{
				R: uint16(rgb[0]*0xFFFF + 0.5),
				G: uint16(rgb[1]*0xFFFF + 0.5),
				B: uint16(rgb[2]*0xFFFF + 0.5),
				A: c.A,
			})
		}
	}
	return out
}

// Apply corrects a whole image: decode from space, linearize with the fitted
// tone curve, apply CCM·diag(WhiteBalanceGains), clip, and re-encode into
// space. The stored EffectiveMatrix is output only and is not read.
//
// Returns ErrInvalidCorrection (wrapped) for a nil result, a gain that is not
// a positive finite number, or an all-zero CCM.
func Apply(img image.Image, res *CorrectionResult, space imaging.ColorSpace) (*image.NRGBA64, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}
	f, err := imaging.FromImage(img, space)
	if err != nil {
		return nil, err
	}
	m := EffectiveMatrix(res.CCM, res.WhiteBalanceGains)
	corrected := f.Map(func(c colorsci.RGB) colorsci.RGB {
		return Linearize(c, res.ToneGamma).Transform(m)
	})
	return corrected.ToNRGBA64(space), nil
}
