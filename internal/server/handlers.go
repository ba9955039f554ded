package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/colorcard-mcp/internal/calibrate"
	"github.com/ironsheep/colorcard-mcp/internal/geometry"
	"github.com/ironsheep/colorcard-mcp/internal/imaging"
	"github.com/ironsheep/colorcard-mcp/internal/synth"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_load", "colorcard_correct").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolError is the data attached to a failed tool call. Kind is the flat
// pipeline error name from calibrate.ErrorKind.
type ToolError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// and a ToolError as data.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Warn("tool failed", "tool", params.Name, "error", err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", ToolError{
			Kind:    calibrate.ErrorKind(err),
			Message: err.Error(),
		})
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads images from cache as needed
//  4. Runs the calibration pipeline
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Basic Image Information
	case "image_load":
		return s.handleImageLoad(args)

	// Card Location
	case "colorcard_detect":
		return s.handleDetect(args)
	case "colorcard_rectify":
		return s.handleRectify(args)

	// Correction
	case "colorcard_correct":
		return s.handleCorrect(args)
	case "colorcard_apply":
		return s.handleApply(args)
	case "colorcard_correct_batch":
		return s.handleCorrectBatch(args)

	// Targets
	case "colorcard_render_target":
		return s.handleRenderTarget(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// unmarshalArgs decodes tool arguments, treating a missing object as empty.
func unmarshalArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

// === Basic Image Information Handlers ===

type imageLoadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleImageLoad(args json.RawMessage) (interface{}, error) {
	var a imageLoadArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	return imaging.LoadImageInfo(s.cache, a.Path)
}

// === Card Location Handlers ===

type detectArgs struct {
	Path        string `json:"path"`
	PreviewSize int    `json:"preview_size"`
}

type detectResult struct {
	*calibrate.DetectionResult
	Preview *imaging.OverlayResult `json:"preview,omitempty"`
}

func (s *Server) handleDetect(args json.RawMessage) (interface{}, error) {
	var a detectArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	det, err := s.pipeline.Detect(img)
	if err != nil {
		return nil, err
	}

	out := detectResult{DetectionResult: det}
	if a.PreviewSize > 0 {
		boxes := make([]imaging.Box, 0, len(det.Markers))
		for _, m := range det.Markers {
			boxes = append(boxes, imaging.Box{Rect: markerBounds(m.Corners), Label: m.ID})
		}
		out.Preview, err = imaging.BoxOverlay(img, boxes, "#00FF00", a.PreviewSize)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rectifyArgs struct {
	Path    string `json:"path"`
	MaxSize int    `json:"max_size"`
	Color   string `json:"color"`
}

func (s *Server) handleRectify(args json.RawMessage) (interface{}, error) {
	var a rectifyArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.MaxSize == 0 {
		a.MaxSize = 800
	}
	if a.Color == "" {
		a.Color = "#FF0000"
	}

	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	det, err := s.pipeline.Detect(img)
	if err != nil {
		return nil, err
	}
	rect, err := s.pipeline.Rectified(img, det)
	if err != nil {
		return nil, err
	}
	patches, err := s.pipeline.Sample(img, det)
	if err != nil {
		return nil, err
	}

	boxes := make([]imaging.Box, len(patches))
	for i, p := range patches {
		r := p.SampleRect
		boxes[i] = imaging.Box{Rect: image.Rect(r[0], r[1], r[2], r[3]), Label: p.Index}
	}
	space := s.pipeline.CorrectionConfig().InputColorSpace
	return imaging.BoxOverlay(rect.ToNRGBA(space), boxes, a.Color, a.MaxSize)
}

// === Correction Handlers ===

type correctArgs struct {
	Path       string                     `json:"path"`
	Detection  *calibrate.DetectionResult `json:"detection"`
	OutputPath string                     `json:"output_path"`
}

type correctResult struct {
	*calibrate.Report
	OutputPath string `json:"output_path,omitempty"`
}

func (s *Server) handleCorrect(args json.RawMessage) (interface{}, error) {
	var a correctArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	var report *calibrate.Report
	if a.Detection != nil {
		res, err := s.pipeline.Correct(img, a.Detection)
		if err != nil {
			return nil, err
		}
		report = &calibrate.Report{Detection: a.Detection, Correction: res}
	} else {
		report, err = s.pipeline.Run(img)
		if err != nil {
			return nil, err
		}
	}

	out := correctResult{Report: report}
	if a.OutputPath != "" {
		if err := s.writeCorrected(img, report.Correction, a.OutputPath); err != nil {
			return nil, err
		}
		out.OutputPath = a.OutputPath
	}
	return out, nil
}

type applyArgs struct {
	Path       string                      `json:"path"`
	Correction *calibrate.CorrectionResult `json:"correction"`
	OutputPath string                      `json:"output_path"`
}

type applyResult struct {
	OutputPath string `json:"output_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

func (s *Server) handleApply(args json.RawMessage) (interface{}, error) {
	var a applyArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if err := a.Correction.Validate(); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, errors.New("output_path is required")
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}
	if err := s.writeCorrected(img, a.Correction, a.OutputPath); err != nil {
		return nil, err
	}
	b := img.Bounds()
	return applyResult{OutputPath: a.OutputPath, Width: b.Dx(), Height: b.Dy()}, nil
}

func (s *Server) writeCorrected(img image.Image, res *calibrate.CorrectionResult, path string) error {
	corrected, err := s.pipeline.Apply(img, res)
	if err != nil {
		return err
	}
	if err := imaging.Save(corrected, path); err != nil {
		return err
	}
	s.cache.Evict(path)
	return nil
}

type correctBatchArgs struct {
	Paths    []string `json:"paths"`
	Parallel int      `json:"parallel"`
}

type correctBatchResult struct {
	Items     []calibrate.BatchItem `json:"items"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

func (s *Server) handleCorrectBatch(args json.RawMessage) (interface{}, error) {
	var a correctBatchArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if len(a.Paths) == 0 {
		return nil, errors.New("paths must not be empty")
	}
	if a.Parallel == 0 {
		a.Parallel = 4
	}

	items, err := calibrate.RunBatch(context.Background(), s.pipeline, s.cache.Transient(), a.Paths, a.Parallel)
	if err != nil {
		return nil, err
	}
	out := correctBatchResult{Items: items}
	for _, item := range items {
		if item.Failed() {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}
	return out, nil
}

// === Target Handlers ===

type renderTargetArgs struct {
	OutputPath string  `json:"output_path"`
	Scale      float64 `json:"scale"`
}

type renderTargetResult struct {
	OutputPath string `json:"output_path"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Dictionary string `json:"dictionary"`
	Table      string `json:"reference_table"`
}

func (s *Server) handleRenderTarget(args json.RawMessage) (interface{}, error) {
	var a renderTargetArgs
	if err := unmarshalArgs(args, &a); err != nil {
		return nil, err
	}
	if a.OutputPath == "" {
		return nil, errors.New("output_path is required")
	}
	if a.Scale == 0 {
		a.Scale = 4
	}

	dict := s.pipeline.DetectionConfig().MarkerDictionary
	canvas, err := synth.Card(synth.Options{
		Scale:      a.Scale,
		Dictionary: dict,
		Table:      s.pipeline.Table(),
	})
	if err != nil {
		return nil, err
	}
	if err := imaging.Save(canvas.ToNRGBA(imaging.SRGB), a.OutputPath); err != nil {
		return nil, err
	}
	return renderTargetResult{
		OutputPath: a.OutputPath,
		Width:      canvas.Width,
		Height:     canvas.Height,
		Dictionary: string(dict),
		Table:      s.pipeline.Table().Name(),
	}, nil
}

// markerBounds returns the pixel rectangle enclosing a marker's corners.
func markerBounds(corners [4]geometry.Point) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		minX, maxX = math.Min(minX, c.X), math.Max(maxX, c.X)
		minY, maxY = math.Min(minY, c.Y), math.Max(maxY, c.Y)
	}
	return image.Rect(int(math.Floor(minX)), int(math.Floor(minY)), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
}
