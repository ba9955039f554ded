package calibrate

import (
	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
)

// minGainDenominator is the smallest channel value a gain may divide by.
const minGainDenominator = 1e-6

// ComputeGains estimates per-channel white balance gains from the usable
// patches. linear holds the tone-linearized measurement of each patch, in
// the same order as patches.
//
// gray_world scales each channel's mean to the mean reference luminance of
// the same patches. white_patch matches the brightest usable neutral patch
// (by reference L*) to its reference color, falling back to gray_world with a
// white_patch_unavailable warning when no neutral is usable. Gains above
// maxGain, or over a near-zero channel, are clamped to maxGain with a
// white_balance_gain_clamped warning naming the channel.
func ComputeGains(patches []Patch, linear []colorsci.RGB, table *card.ReferenceTable, method WhiteBalanceMethod, maxGain float64) ([3]float64, []Warning) {
	var warnings []Warning
	var num, den [3]float64

	if method == WhitePatch {
		best := -1
		for i, p := range patches {
			if !p.Usable() || !table.Patch(p.Index).Neutral {
				continue
			}
			if best < 0 || table.Lab(p.Index).L > table.Lab(patches[best].Index).L {
				best = i
			}
		}
		if best >= 0 {
			num = table.Linear(patches[best].Index)
			den = linear[best]
		} else {
			warnings = append(warnings, Warning{Code: WarnWhitePatchUnavailable})
			method = GrayWorld
		}
	}

	if method == GrayWorld {
		var target float64
		n := 0
		for i, p := range patches {
			if !p.Usable() {
				continue
			}
			target += table.Linear(p.Index).Luminance()
			for ch := 0; ch < 3; ch++ {
				den[ch] += linear[i][ch]
			}
			n++
		}
		if n > 0 {
			target /= float64(n)
			for ch := 0; ch < 3; ch++ {
				den[ch] /= float64(n)
				num[ch] = target
			}
		}
	}

	var gains [3]float64
	for ch := 0; ch < 3; ch++ {
		if den[ch] < minGainDenominator || num[ch]/den[ch] > maxGain {
			gains[ch] = maxGain
			warnings = append(warnings, Warning{Code: WarnGainClamped, Channel: channelNames[ch]})
			continue
		}
		gains[ch] = num[ch] / den[ch]
	}
	return gains, warnings
}

// EstimateIlluminant returns the color of the scene light relative to the
// card's D65 references, normalized to green = 1: per channel, the summed
// measurement over the summed reference of the usable patches. Without
// usable signal it returns neutral white.
func EstimateIlluminant(patches []Patch, linear []colorsci.RGB, table *card.ReferenceTable) colorsci.RGB {
	var meas, ref colorsci.RGB
	for i, p := range patches {
		if !p.Usable() {
			continue
		}
		r := table.Linear(p.Index)
		for ch := 0; ch < 3; ch++ {
			meas[ch] += linear[i][ch]
			ref[ch] += r[ch]
		}
	}
	var illum colorsci.RGB
	for ch := 0; ch < 3; ch++ {
		if ref[ch] < minGainDenominator || meas[ch] < minGainDenominator {
			return colorsci.RGB{1, 1, 1}
		}
		illum[ch] = meas[ch] / ref[ch]
	}
	g := illum[1]
	return colorsci.RGB{illum[0] / g, 1, illum[2] / g}
}
