package calibrate

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
)

const (
	minGamma = 0.5
	maxGamma = 2.0

	// minToneSamples is the fewest usable neutral patches a tone fit needs.
	minToneSamples = 3

	// toneFloor keeps log() away from zero on black patches.
	toneFloor = 1e-6
)

// FitTone estimates a per-channel power law between reference and measured
// values on the usable neutral patches:
//
//	log m = log a + γ·log ref
//
// γ is clamped to [0.5, 2]. With ToneNone, or with fewer than three usable
// neutrals, every γ is 1; the latter also yields a tone_fit_skipped warning.
func FitTone(patches []Patch, table *card.ReferenceTable, method ToneMethod) ([3]float64, []Warning) {
	gamma := [3]float64{1, 1, 1}
	if method == ToneNone {
		return gamma, nil
	}

	var neutrals []Patch
	for _, p := range patches {
		if p.Usable() && table.Patch(p.Index).Neutral {
			neutrals = append(neutrals, p)
		}
	}
	if len(neutrals) < minToneSamples {
		return gamma, []Warning{{Code: WarnToneFitSkipped}}
	}

	for ch := 0; ch < 3; ch++ {
		var x, y []float64
		for _, p := range neutrals {
			ref := table.Linear(p.Index)[ch]
			m := p.Measured[ch]
			if ref <= toneFloor || m <= toneFloor {
				continue
			}
			x = append(x, math.Log(ref))
			y = append(y, math.Log(m))
		}
		if len(x) < minToneSamples || !(stat.Variance(x, nil) > 0) {
			continue
		}
		_, g := stat.LinearRegression(x, y, nil, false)
		if math.IsNaN(g) {
			continue
		}
		gamma[ch] = math.Max(minGamma, math.Min(maxGamma, g))
	}
	return gamma, nil
}

// Linearize undoes a fitted tone curve: m' = m^(1/γ) per channel. Values at
// or below zero are left unchanged, and a γ that is not positive counts as 1.
func Linearize(c colorsci.RGB, gamma [3]float64) colorsci.RGB {
	for ch := range c {
		if c[ch] > 0 && gamma[ch] > 0 && gamma[ch] != 1 {
			c[ch] = math.Pow(c[ch], 1/gamma[ch])
		}
	}
	return c
}
