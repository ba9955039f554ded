// Package calibrate turns a photo of a color card into a color correction.
//
// A Pipeline finds the card's four corner markers, rectifies the card,
// samples its patches in canonical order, and fits tone curves, white
// balance gains and a 3×3 color correction matrix against the certified
// reference colors. Residual error is reported as CIEDE2000 per patch and
// rated on a four-step quality scale.
package calibrate

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
	"github.com/ironsheep/colorcard-mcp/internal/detection"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
	"github.com/ironsheep/colorcard-mcp/internal/logging"
)

// Pipeline runs detection and correction with a fixed configuration. It is
// immutable after NewPipeline and safe for concurrent use.
type Pipeline struct {
	detection  DetectionConfig
	correction CorrectionConfig
	table      *card.ReferenceTable
	layout     card.Layout
	detector   *detection.Detector
	log        *slog.Logger

	solve func(measured, reference []colorsci.RGB) ([3][3]float64, error)
}

// NewPipeline validates the configuration and builds a pipeline.
//
// Returns ErrInvalidConfig (wrapped) when a field is out of range or the
// grid does not hold one cell per reference patch.
func NewPipeline(dc DetectionConfig, cc CorrectionConfig, table *card.ReferenceTable) (*Pipeline, error) {
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	if err := cc.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, invalid("reference table is nil")
	}
	if dc.GridRows*dc.GridCols != table.Len() {
		return nil, invalid("grid %dx%d has %d cells but reference table %q has %d patches",
			dc.GridRows, dc.GridCols, dc.GridRows*dc.GridCols, table.Name(), table.Len())
	}
	if cc.MinUsablePatches > table.Len() {
		return nil, invalid("min_usable_patches %d exceeds the %d patches on the card", cc.MinUsablePatches, table.Len())
	}

	var opts []detection.Option
	if dc.BlurRadius > 0 {
		opts = append(opts, detection.WithBlur(dc.BlurRadius))
	}
	det, err := detection.NewDetector(dc.MarkerDictionary, dc.MinMarkerConfidence, dc.MinMarkerFraction, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Pipeline{
		detection:  dc,
		correction: cc,
		table:      table,
		layout:     card.NewLayout(dc.GridRows, dc.GridCols),
		detector:   det,
		log:        logging.New("calibrate"),
		solve:      SolveCCM,
	}, nil
}

// Table returns the reference table the pipeline fits against.
func (p *Pipeline) Table() *card.ReferenceTable { return p.table }

// DetectionConfig returns the pipeline's detection settings.
func (p *Pipeline) DetectionConfig() DetectionConfig { return p.detection }

// CorrectionConfig returns the pipeline's correction settings.
func (p *Pipeline) CorrectionConfig() CorrectionConfig { return p.correction }

// Detect locates the card in img.
//
// Returns ErrInsufficientMarkers, ErrDuplicateMarkerID,
// ErrDegenerateHomography or ErrAmbiguousOrientation (wrapped).
func (p *Pipeline) Detect(img image.Image) (*DetectionResult, error) {
	found, err := p.detector.Detect(img)
	if err != nil {
		return nil, err
	}
	var markers [4]detection.Marker
	copy(markers[:], found)

	pos, err := MarkerPositions(markers)
	if err != nil {
		return nil, err
	}
	h, rect, err := Rectify(markers, pos, p.layout)
	if err != nil {
		return nil, err
	}
	k, err := ClassifyOrientation(pos, rect.Rows, rect.Cols, p.layout)
	if err != nil {
		return nil, err
	}

	w, hh := rect.PixelSize()
	res := &DetectionResult{
		Markers:         markers,
		Homography:      h,
		RotationDegrees: 90 * k,
		RawRows:         rect.Rows,
		RawCols:         rect.Cols,
		RectifiedWidth:  w,
		RectifiedHeight: hh,
		Confidence:      1,
	}
	for _, m := range markers {
		res.Confidence = min(res.Confidence, m.Confidence)
	}

	p.log.Debug("card detected",
		"rotation", res.RotationDegrees,
		"grid", fmt.Sprintf("%dx%d", res.RawRows, res.RawCols),
		"confidence", res.Confidence)
	return res, nil
}

// Rectified warps img into the card's rectified frame using a stored
// detection. The result is linear light.
func (p *Pipeline) Rectified(img image.Image, det *DetectionResult) (*imaging.FloatImage, error) {
	rect, _, err := p.rectified(img, det)
	return rect, err
}

func (p *Pipeline) rectified(img image.Image, det *DetectionResult) (*imaging.FloatImage, card.Layout, error) {
	if det == nil {
		return nil, card.Layout{}, fmt.Errorf("detection result is nil")
	}
	layout, err := p.rawLayout(det)
	if err != nil {
		return nil, layout, err
	}
	src, err := imaging.FromImage(img, p.correction.InputColorSpace)
	if err != nil {
		return nil, layout, err
	}
	rect, err := geometry.Warp(src, det.Homography, det.RectifiedWidth, det.RectifiedHeight)
	return rect, layout, err
}

// rawLayout returns the grid as it appears in the rectified frame of det.
func (p *Pipeline) rawLayout(det *DetectionResult) (card.Layout, error) {
	l := p.layout
	if det.QuarterTurns()%2 == 1 {
		l = l.Transposed()
	}
	if det.RawRows != l.Rows || det.RawCols != l.Cols {
		return l, fmt.Errorf("%w: detection grid %dx%d does not match %dx%d at %d degrees",
			ErrAmbiguousOrientation, det.RawRows, det.RawCols, l.Rows, l.Cols, det.RotationDegrees)
	}
	return l, nil
}

// Correct samples the card located by det and fits a correction to it.
//
// Specular and clipped patches are excluded from the fit and reported as
// warnings. If the fitted correction does not lower the average ΔE over the
// usable patches, the identity correction is returned instead with a
// correction_not_improving warning.
//
// Returns ErrInsufficientUsablePatches or ErrSingularCCMSystem (wrapped).
func (p *Pipeline) Correct(img image.Image, det *DetectionResult) (*CorrectionResult, error) {
	res, _, err := p.correct(img, det)
	return res, err
}

// Run detects the card and corrects against it.
func (p *Pipeline) Run(img image.Image) (*Report, error) {
	det, err := p.Detect(img)
	if err != nil {
		return nil, err
	}
	res, patches, err := p.correct(img, det)
	if err != nil {
		return nil, err
	}
	return &Report{Detection: det, Correction: res, Patches: patches}, nil
}

// Apply corrects a whole image with a fitted result, reading and writing
// pixel values in the configured input color space.
func (p *Pipeline) Apply(img image.Image, res *CorrectionResult) (*image.NRGBA64, error) {
	return Apply(img, res, p.correction.InputColorSpace)
}

// Sample extracts the canonical patches of the card located by det without
// fitting anything.
func (p *Pipeline) Sample(img image.Image, det *DetectionResult) ([]Patch, error) {
	rect, layout, err := p.rectified(img, det)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractPatches(rect, layout, p.correction)
	if err != nil {
		return nil, err
	}
	patches := Canonicalize(raw, layout.Rows, layout.Cols, det.QuarterTurns())
	for i := range patches {
		patches[i].ReferenceLab = p.table.Lab(i).Array()
	}
	return patches, nil
}

func (p *Pipeline) correct(img image.Image, det *DetectionResult) (*CorrectionResult, []Patch, error) {
	cfg := p.correction
	patches, err := p.Sample(img, det)
	if err != nil {
		return nil, nil, err
	}

	res := &CorrectionResult{
		DeltaEThreshold: cfg.DeltaEThreshold,
		PatchStatus:     make([]PatchStatus, len(patches)),
		Warnings:        []Warning{},
	}
	for i, pt := range patches {
		res.PatchStatus[i] = pt.Status
		switch pt.Status {
		case PatchSpecular:
			res.Warnings = append(res.Warnings, patchWarning(WarnPatchSpecular, i))
			p.log.Debug("patch excluded", "patch", i, "error", pt.Err())
		case PatchClipped:
			res.Warnings = append(res.Warnings, patchWarning(WarnPatchClipped, i))
		default:
			res.UsablePatches++
		}
	}
	if res.UsablePatches < cfg.MinUsablePatches {
		return nil, patches, fmt.Errorf("%w: %d usable, need %d",
			ErrInsufficientUsablePatches, res.UsablePatches, cfg.MinUsablePatches)
	}

	gamma, warnings := FitTone(patches, p.table, cfg.ToneLinearization)
	res.Warnings = append(res.Warnings, warnings...)

	linear := make([]colorsci.RGB, len(patches))
	for i, pt := range patches {
		linear[i] = Linearize(pt.Measured, gamma)
	}
	res.Illuminant = EstimateIlluminant(patches, linear, p.table)
	gains, adapt := [3]float64{1, 1, 1}, IdentityCCM()
	if cfg.WhiteBalanceMethod == Bradford {
		adapt = colorsci.AdaptRGB(res.Illuminant, colorsci.RGB{1, 1, 1})
	} else {
		gains, warnings = ComputeGains(patches, linear, p.table, cfg.WhiteBalanceMethod, cfg.MaxWhiteBalanceGain)
		res.Warnings = append(res.Warnings, warnings...)
	}

	var measured, reference []colorsci.RGB
	for i, pt := range patches {
		if pt.Usable() {
			measured = append(measured, linear[i].Scale(gains).Transform(adapt))
			reference = append(reference, p.table.Linear(i))
		}
	}
	ccm, err := p.solve(measured, reference)
	if err != nil {
		return nil, patches, err
	}
	ccm = composeMatrix(ccm, adapt)

	res.ToneGamma = gamma
	res.WhiteBalanceGains = gains
	res.CCM = ccm
	res.EffectiveMatrix = EffectiveMatrix(ccm, gains)
	p.score(res, patches)

	if res.AverageDeltaE > res.AverageDeltaEBefore {
		p.log.Warn("correction increased error, using identity",
			"before", res.AverageDeltaEBefore, "after", res.AverageDeltaE)
		res.Warnings = append(res.Warnings, Warning{Code: WarnCorrectionNotImproving})
		res.ToneGamma = [3]float64{1, 1, 1}
		res.WhiteBalanceGains = [3]float64{1, 1, 1}
		res.CCM = IdentityCCM()
		res.EffectiveMatrix = IdentityCCM()
		p.score(res, patches)
	}

	res.Quality = Rate(res.AverageDeltaE, cfg.QualityThresholds)
	p.log.Info("correction fitted",
		"usable", res.UsablePatches,
		"delta_e_before", res.AverageDeltaEBefore,
		"delta_e", res.AverageDeltaE,
		"quality", res.Quality)
	return res, patches, nil
}

// score fills the ΔE fields of res. Per-patch values cover every patch;
// averages, extremes and the threshold count cover usable patches only.
func (p *Pipeline) score(res *CorrectionResult, patches []Patch) {
	res.PerPatchDeltaE = make([]float64, len(patches))
	res.PerPatchDeltaEBefore = make([]float64, len(patches))

	var before, after []float64
	var fitted, targets []colorsci.RGB
	above := 0
	for i, pt := range patches {
		ref := p.table.Lab(i)
		corrected := Linearize(pt.Measured, res.ToneGamma).Transform(res.EffectiveMatrix).Clamp()
		res.PerPatchDeltaEBefore[i] = colorsci.DeltaE2000(pt.Measured.Lab(), ref)
		res.PerPatchDeltaE[i] = colorsci.DeltaE2000(corrected.Lab(), ref)
		if !pt.Usable() {
			continue
		}
		fitted = append(fitted, corrected)
		targets = append(targets, p.table.Linear(i))
		before = append(before, res.PerPatchDeltaEBefore[i])
		after = append(after, res.PerPatchDeltaE[i])
		if res.PerPatchDeltaE[i] > res.DeltaEThreshold {
			above++
		}
	}

	sa := colorsci.Summarize(after)
	res.AverageDeltaE = sa.Mean
	res.MaxDeltaE = sa.Max
	res.MinDeltaE = sa.Min
	res.AverageDeltaEBefore = colorsci.Summarize(before).Mean
	res.PatchesAboveThreshold = above
	res.Accuracy = MeasureAccuracy(fitted, targets)
}
