package calibrate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
)

// Quality is the rating of an average ΔE2000.
type Quality string

const (
	Excellent        Quality = "EXCELLENT"
	VeryGood         Quality = "VERY_GOOD"
	Good             Quality = "GOOD"
	NeedsImprovement Quality = "NEEDS_IMPROVEMENT"
)

// Rate maps an average ΔE onto a quality band. Each threshold is an
// exclusive upper bound.
func Rate(avgDeltaE float64, t QualityThresholds) Quality {
	switch {
	case avgDeltaE < t.Excellent:
		return Excellent
	case avgDeltaE < t.VeryGood:
		return VeryGood
	case avgDeltaE < t.Good:
		return Good
	default:
		return NeedsImprovement
	}
}

// Accuracy holds secondary error measures over the usable patches. RGB
// errors are in linear light; the ΔE averages use the older CIE76 and CIE94
// formulas for comparison with tools that report them.
type Accuracy struct {
	MAE             [3]float64 `json:"mae_rgb"`
	RMSE            float64    `json:"rmse"`
	MaxError        float64    `json:"max_error"`
	AverageDeltaE76 float64    `json:"average_delta_e76"`
	AverageDeltaE94 float64    `json:"average_delta_e94"`
}

// MeasureAccuracy compares corrected colors with their references pairwise.
func MeasureAccuracy(corrected, reference []colorsci.RGB) Accuracy {
	var a Accuracy
	n := min(len(corrected), len(reference))
	if n == 0 {
		return a
	}
	de76 := make([]float64, n)
	de94 := make([]float64, n)
	var sumSq float64
	for i := 0; i < n; i++ {
		for ch := 0; ch < 3; ch++ {
			d := math.Abs(corrected[i][ch] - reference[i][ch])
			a.MAE[ch] += d
			sumSq += d * d
			a.MaxError = math.Max(a.MaxError, d)
		}
		ref, got := reference[i].Lab(), corrected[i].Lab()
		de76[i] = colorsci.DeltaE76(ref, got)
		de94[i] = colorsci.DeltaE94(ref, got)
	}
	for ch := range a.MAE {
		a.MAE[ch] /= float64(n)
	}
	a.RMSE = math.Sqrt(sumSq / float64(3*n))
	a.AverageDeltaE76 = stat.Mean(de76, nil)
	a.AverageDeltaE94 = stat.Mean(de94, nil)
	return a
}
