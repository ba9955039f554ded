package calibrate

import (
	"fmt"
	"math"

	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
	"github.com/ironsheep/colorcard-mcp/internal/detection"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
)

// PatchStatus classifies a sampled patch.
type PatchStatus string

const (
	PatchUsable   PatchStatus = "usable"
	PatchSpecular PatchStatus = "specular"
	PatchClipped  PatchStatus = "clipped"
)

// Patch is one sampled grid cell.
type Patch struct {
	// Index is the canonical patch index into the reference table.
	Index int `json:"index"`

	// RawIndex is the row-major index of the cell in the rectified image.
	RawIndex int `json:"raw_index"`

	// Measured is the trimmed-mean linear RGB of the unmasked sample pixels.
	Measured colorsci.RGB `json:"measured_rgb"`

	SpecularFraction float64     `json:"specular_fraction"`
	Status           PatchStatus `json:"status"`
	ReferenceLab     [3]float64  `json:"reference_lab"`

	// SampleRect is the sampled area in rectified pixels: x0, y0, x1, y1.
	SampleRect [4]int `json:"sample_rect"`
}

// Usable reports whether the patch contributes to the fit.
func (p Patch) Usable() bool { return p.Status == PatchUsable }

// Err returns a wrapped ErrPatchSamplingFailure for a patch dominated by
// specular highlights, or nil.
func (p Patch) Err() error {
	if p.Status != PatchSpecular {
		return nil
	}
	return fmt.Errorf("%w: patch %d is %.0f%% specular", ErrPatchSamplingFailure, p.Index, 100*p.SpecularFraction)
}

// Warning codes attached to a CorrectionResult.
const (
	WarnToneFitSkipped         = "tone_fit_skipped"
	WarnWhitePatchUnavailable  = "white_patch_unavailable"
	WarnGainClamped            = "white_balance_gain_clamped"
	WarnCorrectionNotImproving = "correction_not_improving"
	WarnPatchSpecular          = "patch_specular"
	WarnPatchClipped           = "patch_clipped"
)

// Warning is a non-fatal condition met while fitting. Channel and Patch are
// set only when the warning concerns one of them.
type Warning struct {
	Code    string `json:"code"`
	Channel string `json:"channel,omitempty"`
	Patch   *int   `json:"patch,omitempty"`
}

func patchWarning(code string, index int) Warning {
	return Warning{Code: code, Patch: &index}
}

var channelNames = [3]string{"r", "g", "b"}

// DetectionResult locates the card in one image. It holds only numbers and
// can be stored and passed back to Correct.
type DetectionResult struct {
	Markers [4]detection.Marker `json:"markers"`

	// Homography maps source image coordinates onto the rectified image.
	Homography geometry.Homography `json:"homography"`

	// RotationDegrees is the clockwise rotation of the card in the image:
	// 0, 90, 180 or 270.
	RotationDegrees int `json:"rotation_degrees"`

	RawRows         int     `json:"raw_rows"`
	RawCols         int     `json:"raw_cols"`
	RectifiedWidth  int     `json:"rectified_width"`
	RectifiedHeight int     `json:"rectified_height"`
	Confidence      float64 `json:"confidence"`
}

// QuarterTurns returns RotationDegrees as a count of clockwise quarter turns.
func (d *DetectionResult) QuarterTurns() int {
	return ((d.RotationDegrees/90)%4 + 4) % 4
}

// CorrectionResult is the fitted correction and its residual error. Per-patch
// slices are indexed by canonical patch index.
type CorrectionResult struct {
	WhiteBalanceGains [3]float64    `json:"white_balance_gains"`
	CCM               [3][3]float64 `json:"ccm"`
	ToneGamma         [3]float64    `json:"tone_gamma"`

	// EffectiveMatrix is CCM·diag(WhiteBalanceGains), the single linear
	// map applied after tone linearization. Reported only; Apply derives it.
	EffectiveMatrix [3][3]float64 `json:"effective_matrix"`

	PerPatchDeltaE       []float64 `json:"per_patch_delta_e"`
	PerPatchDeltaEBefore []float64 `json:"per_patch_delta_e_before"`
	AverageDeltaE        float64   `json:"average_delta_e"`
	AverageDeltaEBefore  float64   `json:"average_delta_e_before"`
	MaxDeltaE            float64   `json:"max_delta_e"`
	MinDeltaE            float64   `json:"min_delta_e"`

	// Accuracy is measured on the same usable patches as AverageDeltaE.
	Accuracy Accuracy `json:"accuracy"`

	// Illuminant is the estimated scene light as linear RGB with green = 1.
	Illuminant colorsci.RGB `json:"illuminant"`

	PatchesAboveThreshold int     `json:"patches_above_threshold"`
	DeltaEThreshold       float64 `json:"delta_e_threshold"`
	Quality               Quality `json:"quality"`

	PatchStatus   []PatchStatus `json:"patch_status"`
	UsablePatches int           `json:"usable_patches"`
	Warnings      []Warning     `json:"warnings"`
}

// Validate checks that r can be applied to an image. Only the gains and the
// CCM are checked; a missing tone_gamma reads as γ = 1.
func (r *CorrectionResult) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: correction is nil", ErrInvalidCorrection)
	}
	for ch, g := range r.WhiteBalanceGains {
		if !(g > 0) || math.IsInf(g, 0) {
			return fmt.Errorf("%w: white balance gain %s = %v", ErrInvalidCorrection, channelNames[ch], g)
		}
	}
	if r.CCM == ([3][3]float64{}) {
		return fmt.Errorf("%w: ccm is all zero", ErrInvalidCorrection)
	}
	return nil
}

// Report bundles a full detect-and-correct run.
type Report struct {
	Detection  *DetectionResult  `json:"detection"`
	Correction *CorrectionResult `json:"correction"`
	Patches    []Patch           `json:"patches"`
}
