package server

import (
	"encoding/json"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/card"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
	"github.com/ironsheep/colorcard-mcp/internal/synth"
)

// cardPixels renders the default card once for every test in the package.
var cardPixels = sync.OnceValues(func() (*image.NRGBA64, error) {
	canvas, err := synth.Card(synth.Options{})
	if err != nil {
		return nil, err
	}
	return canvas.ToNRGBA64(imaging.SRGB), nil
})

// newTestServer returns a server whose pipeline reads sRGB-encoded files,
// which is how createCardFile writes them.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	table, err := card.Default()
	if err != nil {
		t.Fatal(err)
	}
	cc := calibrate.DefaultCorrectionConfig()
	cc.InputColorSpace = imaging.SRGB
	p, err := calibrate.NewPipeline(calibrate.DefaultDetectionConfig(), cc, table)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	return New(p, "test")
}

// createCardFile writes the rendered card as a PNG and returns its path.
func createCardFile(t *testing.T) string {
	t.Helper()
	img, err := cardPixels()
	if err != nil {
		t.Fatalf("failed to render card: %v", err)
	}
	path := filepath.Join(t.TempDir(), "card.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to save card: %v", err)
	}
	return path
}

// createBlankFile writes a flat light gray PNG with no card in it.
func createBlankFile(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for i := range img.Pix {
		img.Pix[i] = 0xE0
	}
	path := filepath.Join(t.TempDir(), "blank.png")
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("failed to save image: %v", err)
	}
	return path
}

func callTool(t *testing.T, s *Server, name string, args interface{}) *MCPResponse {
	t.Helper()
	params := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("failed to marshal params: %v", err)
	}

	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  paramsJSON,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

// decodeResult unpacks the JSON text content of a successful tool call into v.
func decodeResult(t *testing.T, resp *MCPResponse, v interface{}) {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) != 1 {
		t.Fatalf("content should hold one entry, got %v", result["content"])
	}
	if content[0]["type"] != "text" {
		t.Errorf("content type: got %v, want text", content[0]["type"])
	}
	text, _ := content[0]["text"].(string)
	if err := json.Unmarshal([]byte(text), v); err != nil {
		t.Fatalf("failed to decode tool result: %v", err)
	}
}

// toolError returns the ToolError of a failed tool call.
func toolError(t *testing.T, resp *MCPResponse) ToolError {
	t.Helper()
	if resp.Error == nil {
		t.Fatal("Expected error response")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
	data, ok := resp.Error.Data.(ToolError)
	if !ok {
		t.Fatalf("Error data should be a ToolError, got %T", resp.Error.Data)
	}
	return data
}

func TestHandleToolsCall_ImageLoad(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var info imaging.ImageInfo
	decodeResult(t, callTool(t, s, "image_load", map[string]interface{}{"path": path}), &info)

	w, h := synth.CanvasSize(synth.DefaultScale)
	if info.Width != w || info.Height != h {
		t.Errorf("size: got %dx%d, want %dx%d", info.Width, info.Height, w, h)
	}
	if info.Format != "png" {
		t.Errorf("format: got %s, want png", info.Format)
	}
	if info.ColorDepth != "16-bit" {
		t.Errorf("color depth: got %s, want 16-bit", info.ColorDepth)
	}
}

func TestHandleToolsCall_ImageLoadMissingFile(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "image_load", map[string]interface{}{
		"path": filepath.Join(t.TempDir(), "missing.png"),
	})
	if data := toolError(t, resp); data.Kind != "Internal" {
		t.Errorf("kind: got %s, want Internal", data.Kind)
	}
}

func TestHandleToolsCall_Detect(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var det struct {
		calibrate.DetectionResult
		Preview *imaging.OverlayResult `json:"preview"`
	}
	decodeResult(t, callTool(t, s, "colorcard_detect", map[string]interface{}{
		"path":         path,
		"preview_size": 200,
	}), &det)

	if det.RotationDegrees != 0 {
		t.Errorf("rotation: got %d, want 0", det.RotationDegrees)
	}
	if det.RawRows != card.DefaultRows || det.RawCols != card.DefaultCols {
		t.Errorf("grid: got %dx%d", det.RawRows, det.RawCols)
	}
	if det.Confidence < 0.8 {
		t.Errorf("confidence: got %.3f", det.Confidence)
	}
	if det.Preview == nil {
		t.Fatal("preview missing")
	}
	if det.Preview.Boxes != 4 {
		t.Errorf("preview boxes: got %d, want 4", det.Preview.Boxes)
	}
	if max(det.Preview.Width, det.Preview.Height) != 200 {
		t.Errorf("preview size: got %dx%d", det.Preview.Width, det.Preview.Height)
	}
}

func TestHandleToolsCall_DetectNoCard(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "colorcard_detect", map[string]interface{}{"path": createBlankFile(t)})

	data := toolError(t, resp)
	if data.Kind != "InsufficientMarkers" {
		t.Errorf("kind: got %s, want InsufficientMarkers", data.Kind)
	}
	if data.Message == "" {
		t.Error("message is empty")
	}
}

func TestHandleToolsCall_Rectify(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var out imaging.OverlayResult
	decodeResult(t, callTool(t, s, "colorcard_rectify", map[string]interface{}{"path": path}), &out)

	if out.Boxes != card.DefaultRows*card.DefaultCols {
		t.Errorf("boxes: got %d, want %d", out.Boxes, card.DefaultRows*card.DefaultCols)
	}
	if out.Width <= out.Height {
		t.Errorf("rectified card should be landscape, got %dx%d", out.Width, out.Height)
	}
	if out.ImageBase64 == "" {
		t.Error("image is empty")
	}
}

func TestHandleToolsCall_CorrectThenApply(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)
	outPath := filepath.Join(t.TempDir(), "corrected.png")

	var report struct {
		calibrate.Report
		OutputPath string `json:"output_path"`
	}
	decodeResult(t, callTool(t, s, "colorcard_correct", map[string]interface{}{
		"path":        path,
		"output_path": outPath,
	}), &report)

	res := report.Correction
	if res == nil {
		t.Fatal("correction missing")
	}
	if res.Quality != calibrate.Excellent {
		t.Errorf("quality: got %s, want %s (average ΔE %.3f)", res.Quality, calibrate.Excellent, res.AverageDeltaE)
	}
	if len(res.PerPatchDeltaE) != card.DefaultRows*card.DefaultCols {
		t.Errorf("per-patch ΔE count: got %d", len(res.PerPatchDeltaE))
	}
	if len(report.Patches) != card.DefaultRows*card.DefaultCols {
		t.Errorf("patch count: got %d", len(report.Patches))
	}
	if report.OutputPath != outPath {
		t.Errorf("output_path: got %s, want %s", report.OutputPath, outPath)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("corrected image not written: %v", err)
	}

	applied := filepath.Join(t.TempDir(), "applied.png")
	var out applyResult
	decodeResult(t, callTool(t, s, "colorcard_apply", map[string]interface{}{
		"path":        path,
		"correction":  res,
		"output_path": applied,
	}), &out)

	w, h := synth.CanvasSize(synth.DefaultScale)
	if out.Width != w || out.Height != h {
		t.Errorf("applied size: got %dx%d, want %dx%d", out.Width, out.Height, w, h)
	}
	if _, err := os.Stat(applied); err != nil {
		t.Fatalf("applied image not written: %v", err)
	}
}

func TestHandleToolsCall_CorrectWithDetection(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)

	var det calibrate.DetectionResult
	decodeResult(t, callTool(t, s, "colorcard_detect", map[string]interface{}{"path": path}), &det)

	var report calibrate.Report
	decodeResult(t, callTool(t, s, "colorcard_correct", map[string]interface{}{
		"path":      path,
		"detection": det,
	}), &report)

	if report.Detection == nil || report.Detection.Homography != det.Homography {
		t.Error("report should carry the supplied detection")
	}
	if report.Correction == nil || report.Correction.UsablePatches == 0 {
		t.Fatalf("correction: %+v", report.Correction)
	}
}

func TestHandleToolsCall_ApplyRequiresCorrection(t *testing.T) {
	s := newTestServer(t)
	resp := callTool(t, s, "colorcard_apply", map[string]interface{}{
		"path":        createCardFile(t),
		"output_path": filepath.Join(t.TempDir(), "out.png"),
	})
	if te := toolError(t, resp); te.Kind != "InvalidCorrection" {
		t.Errorf("kind: got %s, want InvalidCorrection", te.Kind)
	}
}

func TestHandleToolsCall_ApplyGainsAndCCMOnly(t *testing.T) {
	s := newTestServer(t)
	path := createCardFile(t)
	out := filepath.Join(t.TempDir(), "out.png")

	var res applyResult
	decodeResult(t, callTool(t, s, "colorcard_apply", map[string]interface{}{
		"path": path,
		"correction": map[string]interface{}{
			"white_balance_gains": []float64{1, 1, 1},
			"ccm":                 [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		},
		"output_path": out,
	}), &res)

	// Identity correction: the output must match the input, not go black.
	src, err := cardPixels()
	if err != nil {
		t.Fatal(err)
	}
	written, err := imaging.NewImageCache().Load(out)
	if err != nil {
		t.Fatalf("output not readable: %v", err)
	}
	b := src.Bounds()
	for _, pt := range []image.Point{{b.Dx() / 2, b.Dy() / 2}, {b.Dx() / 3, b.Dy() / 3}} {
		wr, wg, wb, _ := src.At(pt.X, pt.Y).RGBA()
		gr, gg, gb, _ := written.At(pt.X, pt.Y).RGBA()
		for _, d := range []int{int(gr) - int(wr), int(gg) - int(wg), int(gb) - int(wb)} {
			if d < -2 || d > 2 {
				t.Fatalf("pixel %v: got %d,%d,%d want %d,%d,%d", pt, gr, gg, gb, wr, wg, wb)
			}
		}
	}

	resp := callTool(t, s, "colorcard_apply", map[string]interface{}{
		"path":        path,
		"correction":  map[string]interface{}{"white_balance_gains": []float64{1, 1, 1}},
		"output_path": filepath.Join(t.TempDir(), "zero.png"),
	})
	if te := toolError(t, resp); te.Kind != "InvalidCorrection" {
		t.Errorf("missing ccm kind: got %s, want InvalidCorrection", te.Kind)
	}
}

func TestHandleToolsCall_CorrectBatch(t *testing.T) {
	s := newTestServer(t)
	good := createCardFile(t)
	blank := createBlankFile(t)

	var out correctBatchResult
	decodeResult(t, callTool(t, s, "colorcard_correct_batch", map[string]interface{}{
		"paths":    []string{good, blank},
		"parallel": 2,
	}), &out)

	if out.Succeeded != 1 || out.Failed != 1 {
		t.Errorf("succeeded/failed: got %d/%d, want 1/1", out.Succeeded, out.Failed)
	}
	if len(out.Items) != 2 {
		t.Fatalf("items: got %d, want 2", len(out.Items))
	}
	if out.Items[0].Path != good || out.Items[0].Report == nil {
		t.Errorf("first item: %+v", out.Items[0])
	}
	if out.Items[1].Kind != "InsufficientMarkers" {
		t.Errorf("second item kind: got %s, want InsufficientMarkers", out.Items[1].Kind)
	}
	if n := s.cache.Len(); n != 0 {
		t.Errorf("cache holds %d images after batch, want 0", n)
	}
}

func TestHandleToolsCall_CorrectBatchEmpty(t *testing.T) {
	s := newTestServer(t)
	toolError(t, callTool(t, s, "colorcard_correct_batch", map[string]interface{}{"paths": []string{}}))
}

func TestHandleToolsCall_RenderTarget(t *testing.T) {
	s := newTestServer(t)
	outPath := filepath.Join(t.TempDir(), "target.png")

	var out renderTargetResult
	decodeResult(t, callTool(t, s, "colorcard_render_target", map[string]interface{}{
		"output_path": outPath,
		"scale":       1,
	}), &out)

	w, h := synth.CanvasSize(1)
	if out.Width != w || out.Height != h {
		t.Errorf("size: got %dx%d, want %dx%d", out.Width, out.Height, w, h)
	}
	if out.Table != s.pipeline.Table().Name() {
		t.Errorf("table: got %s, want %s", out.Table, s.pipeline.Table().Name())
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("target not written: %v", err)
	}

	// The rendered target must be detectable by the same server.
	var det calibrate.DetectionResult
	decodeResult(t, callTool(t, s, "colorcard_detect", map[string]interface{}{"path": outPath}), &det)
	if det.RotationDegrees != 0 {
		t.Errorf("rotation: got %d, want 0", det.RotationDegrees)
	}
}

func TestHandleToolsCall_UnknownTool(t *testing.T) {
	s := newTestServer(t)
	data := toolError(t, callTool(t, s, "image_crop", map[string]interface{}{}))
	if data.Kind != "Internal" {
		t.Errorf("kind: got %s, want Internal", data.Kind)
	}
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := newTestServer(t)
	resp := s.handleRequest(&MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  json.RawMessage(`"not an object"`),
	})
	if resp == nil || resp.Error == nil {
		t.Fatal("Expected error response")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error code: got %d, want -32602", resp.Error.Code)
	}
}

func TestMarkerBounds(t *testing.T) {
	corners := [4]geometry.Point{{X: 10.2, Y: 20.7}, {X: 30.5, Y: 19.1}, {X: 29.9, Y: 40.4}, {X: 9.8, Y: 41}}
	got := markerBounds(corners)
	want := image.Rect(9, 19, 31, 41)
	if got != want {
		t.Errorf("markerBounds = %v, want %v", got, want)
	}
}
