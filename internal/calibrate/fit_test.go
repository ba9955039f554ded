package calibrate

import (
	"math"
	"testing"

	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/colorsci"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
)

// measuredPatches returns one usable patch per reference entry with
// measured = f(reference linear RGB).
func measuredPatches(table *card.ReferenceTable, f func(colorsci.RGB) colorsci.RGB) []Patch {
	patches := make([]Patch, table.Len())
	for i := range patches {
		patches[i] = Patch{Index: i, RawIndex: i, Status: PatchUsable, Measured: f(table.Linear(i))}
	}
	return patches
}

func codes(ws []Warning) []string {
	var out []string
	for _, w := range ws {
		out = append(out, w.Code)
	}
	return out
}

func TestFitTone_RecoversGamma(t *testing.T) {
	table := defaultTable(t)
	wantGamma := [3]float64{0.8, 0.9, 1.25}
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{
			0.9 * math.Pow(c[0], wantGamma[0]),
			math.Pow(c[1], wantGamma[1]),
			1.1 * math.Pow(c[2], wantGamma[2]),
		}
	})

	gamma, warnings := FitTone(patches, table, ToneNeutralRamp)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", codes(warnings))
	}
	for ch := range gamma {
		if math.Abs(gamma[ch]-wantGamma[ch]) > 1e-6 {
			t.Errorf("gamma[%d] = %.6f, want %.6f", ch, gamma[ch], wantGamma[ch])
		}
	}
}

func TestFitTone_ClampsGamma(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{math.Pow(c[0], 3), math.Pow(c[1], 0.2), c[2]}
	})
	gamma, _ := FitTone(patches, table, ToneNeutralRamp)
	if gamma[0] != maxGamma || gamma[1] != minGamma {
		t.Errorf("gamma = %v, want [%v %v ~1]", gamma, maxGamma, minGamma)
	}
}

func TestFitTone_SkippedWithoutNeutrals(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB { return c })
	for i, idx := range table.Neutrals() {
		if i >= 4 {
			break
		}
		patches[idx].Status = PatchClipped
	}

	gamma, warnings := FitTone(patches, table, ToneNeutralRamp)
	if gamma != [3]float64{1, 1, 1} {
		t.Errorf("gamma = %v, want identity", gamma)
	}
	if len(warnings) != 1 || warnings[0].Code != WarnToneFitSkipped {
		t.Errorf("warnings = %v, want [%s]", codes(warnings), WarnToneFitSkipped)
	}
}

func TestFitTone_None(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{c[0] * c[0], c[1], c[2]}
	})
	gamma, warnings := FitTone(patches, table, ToneNone)
	if gamma != [3]float64{1, 1, 1} || len(warnings) != 0 {
		t.Errorf("FitTone(none) = %v, %v; want identity and no warnings", gamma, codes(warnings))
	}
}

func TestLinearize(t *testing.T) {
	got := Linearize(colorsci.RGB{0.25, 0, 0.5}, [3]float64{0.5, 2, 1})
	want := colorsci.RGB{0.0625, 0, 0.5}
	for ch := range got {
		if math.Abs(got[ch]-want[ch]) > 1e-12 {
			t.Errorf("channel %d = %v, want %v", ch, got[ch], want[ch])
		}
	}

	// A correction decoded without tone_gamma has zeros there.
	in := colorsci.RGB{0.3, 0.6, 0.9}
	if got := Linearize(in, [3]float64{}); got != in {
		t.Errorf("zero gamma: got %v, want %v", got, in)
	}
}

func linearOf(patches []Patch) []colorsci.RGB {
	out := make([]colorsci.RGB, len(patches))
	for i, p := range patches {
		out[i] = p.Measured
	}
	return out
}

func TestComputeGains_GrayWorld(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{c[0] * 0.5, c[1], c[2] * 2}
	})

	clean := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB { return c })

	gains, warnings := ComputeGains(patches, linearOf(patches), table, GrayWorld, 8)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", codes(warnings))
	}
	base, _ := ComputeGains(clean, linearOf(clean), table, GrayWorld, 8)

	// A per-channel scale on the input is undone exactly by the gains.
	want := [3]float64{2, 1, 0.5}
	for ch := range gains {
		if r := gains[ch] / base[ch]; math.Abs(r-want[ch]) > 1e-9 {
			t.Errorf("gain[%d] ratio = %.6f, want %.6f", ch, r, want[ch])
		}
	}
}

func TestEstimateIlluminant(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{c[0] * 0.9, c[1] * 0.6, c[2] * 0.3}
	})
	// An unusable patch with a wild value must not move the estimate.
	patches[0].Status = PatchSpecular
	patches[0].Measured = colorsci.RGB{1, 0, 0}

	got := EstimateIlluminant(patches, linearOf(patches), table)
	want := colorsci.RGB{1.5, 1, 0.5}
	for ch := range want {
		if math.Abs(got[ch]-want[ch]) > 1e-9 {
			t.Errorf("illuminant = %v, want %v", got, want)
			break
		}
	}

	dark := measuredPatches(table, func(colorsci.RGB) colorsci.RGB { return colorsci.RGB{} })
	if got := EstimateIlluminant(dark, linearOf(dark), table); got != (colorsci.RGB{1, 1, 1}) {
		t.Errorf("illuminant without signal = %v, want white", got)
	}
}

func TestMeasureAccuracy(t *testing.T) {
	ref := []colorsci.RGB{{0.2, 0.4, 0.6}, {0.5, 0.5, 0.5}}
	got := []colorsci.RGB{{0.3, 0.4, 0.6}, {0.5, 0.5, 0.4}}

	a := MeasureAccuracy(got, ref)
	if math.Abs(a.MAE[0]-0.05) > 1e-12 || a.MAE[1] != 0 || math.Abs(a.MAE[2]-0.05) > 1e-12 {
		t.Errorf("MAE = %v, want [0.05 0 0.05]", a.MAE)
	}
	if want := math.Sqrt(0.02 / 6); math.Abs(a.RMSE-want) > 1e-12 {
		t.Errorf("RMSE = %g, want %g", a.RMSE, want)
	}
	if math.Abs(a.MaxError-0.1) > 1e-12 {
		t.Errorf("MaxError = %g, want 0.1", a.MaxError)
	}
	if a.AverageDeltaE76 <= 0 || a.AverageDeltaE94 <= 0 || a.AverageDeltaE94 > a.AverageDeltaE76 {
		t.Errorf("ΔE76 %g, ΔE94 %g", a.AverageDeltaE76, a.AverageDeltaE94)
	}

	if exact := MeasureAccuracy(ref, ref); exact != (Accuracy{}) {
		t.Errorf("identical colors: %+v", exact)
	}
}

func TestComputeGains_WhitePatch(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{c[0] * 0.5, c[1] * 0.8, c[2]}
	})

	gains, warnings := ComputeGains(patches, linearOf(patches), table, WhitePatch, 8)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", codes(warnings))
	}
	want := [3]float64{2, 1.25, 1}
	for ch := range gains {
		if math.Abs(gains[ch]-want[ch]) > 1e-9 {
			t.Errorf("gain[%d] = %.6f, want %.6f", ch, gains[ch], want[ch])
		}
	}
}

func TestComputeGains_WhitePatchFallsBack(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB { return c })
	for _, idx := range table.Neutrals() {
		patches[idx].Status = PatchSpecular
	}

	_, warnings := ComputeGains(patches, linearOf(patches), table, WhitePatch, 8)
	if len(warnings) != 1 || warnings[0].Code != WarnWhitePatchUnavailable {
		t.Errorf("warnings = %v, want [%s]", codes(warnings), WarnWhitePatchUnavailable)
	}
}

func TestComputeGains_Clamped(t *testing.T) {
	table := defaultTable(t)
	patches := measuredPatches(table, func(c colorsci.RGB) colorsci.RGB {
		return colorsci.RGB{c[0], 0, c[2] / 20}
	})

	gains, warnings := ComputeGains(patches, linearOf(patches), table, GrayWorld, 8)
	if gains[1] != 8 || gains[2] != 8 {
		t.Errorf("gains = %v, want green and blue clamped to 8", gains)
	}
	var channels []string
	for _, w := range warnings {
		if w.Code != WarnGainClamped {
			t.Errorf("unexpected warning %s", w.Code)
		}
		channels = append(channels, w.Channel)
	}
	if len(channels) != 2 || channels[0] != "g" || channels[1] != "b" {
		t.Errorf("clamped channels = %v, want [g b]", channels)
	}
}

func uniformImage(w, h int, c colorsci.RGB) *imaging.FloatImage {
	img := imaging.NewFloatImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestExtractPatches(t *testing.T) {
	layout := card.NewLayout(2, 3)
	w, h := layout.PixelSize()
	img := uniformImage(w, h, colorsci.RGB{0.2, 0.4, 0.6})

	// Cell (0, 1) is fully covered by a highlight, cell (1, 2) is saturated.
	x0, y0, x1, y1 := layout.Cell(0, 1)
	for y := int(y0); y < int(y1); y++ {
		for x := int(x0); x < int(x1); x++ {
			img.Set(x, y, colorsci.RGB{1, 1, 1})
		}
	}
	x0, y0, x1, y1 = layout.Cell(1, 2)
	for y := int(y0); y < int(y1); y++ {
		for x := int(x0); x < int(x1); x++ {
			img.Set(x, y, colorsci.RGB{1, 0.1, 0.1})
		}
	}

	patches, err := ExtractPatches(img, layout, DefaultCorrectionConfig())
	if err != nil {
		t.Fatalf("ExtractPatches failed: %v", err)
	}
	if len(patches) != 6 {
		t.Fatalf("got %d patches, want 6", len(patches))
	}

	wantStatus := []PatchStatus{PatchUsable, PatchSpecular, PatchUsable, PatchUsable, PatchUsable, PatchClipped}
	for i, p := range patches {
		if p.RawIndex != i {
			t.Errorf("patch %d RawIndex = %d", i, p.RawIndex)
		}
		if p.Status != wantStatus[i] {
			t.Errorf("patch %d status = %s, want %s", i, p.Status, wantStatus[i])
		}
	}

	if p := patches[0]; math.Abs(p.Measured[1]-0.4) > 1e-12 || p.SpecularFraction != 0 {
		t.Errorf("patch 0 = %+v, want measured green 0.4 and no highlight", p)
	}
	if p := patches[1]; p.SpecularFraction != 1 || p.Err() == nil {
		t.Errorf("patch 1 specular fraction = %.2f, err = %v", p.SpecularFraction, p.Err())
	}

	// Sample rect is inset from the cell on every side.
	r := patches[0].SampleRect
	cx0, cy0, cx1, cy1 := layout.Cell(0, 0)
	if float64(r[0]) <= cx0 || float64(r[1]) <= cy0 || float64(r[2]) >= cx1 || float64(r[3]) >= cy1 {
		t.Errorf("sample rect %v not inside cell [%v %v %v %v]", r, cx0, cy0, cx1, cy1)
	}
}

func TestExtractPatches_EmptyCell(t *testing.T) {
	layout := card.NewLayout(2, 3)
	img := uniformImage(10, 10, colorsci.RGB{0.5, 0.5, 0.5})
	if _, err := ExtractPatches(img, layout, DefaultCorrectionConfig()); err == nil {
		t.Fatal("expected error for cells outside the image")
	}
}

func TestTrimmedMean(t *testing.T) {
	px := make([]colorsci.RGB, 10)
	for i := range px {
		px[i] = colorsci.RGB{float64(i), 0, 0}
	}
	px[9][0] = 1000

	// 10% trim drops 0 and the 1000 outlier, leaving 1..8.
	if got := trimmedMean(px, 0, 0.1); math.Abs(got-4.5) > 1e-12 {
		t.Errorf("trimmedMean = %v, want 4.5", got)
	}
	if got := trimmedMean(px[:1], 0, 0.4); got != 0 {
		t.Errorf("trimmedMean of one value = %v, want 0", got)
	}
}
