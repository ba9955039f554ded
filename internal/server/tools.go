package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the image file",
	}
}

func previewProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Longest side of the returned preview in pixels. 0 omits the preview. Default 0",
		"default":     0,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Basic Image Information
		{
			Name:        "image_load",
			Description: "Load an image file and return its dimensions, format and bit depth. The decoded image is cached for later calls.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Card Location
		{
			Name:        "colorcard_detect",
			Description: "Find the color card's four corner markers and return its homography, rotation and grid. The result can be passed back to colorcard_correct to skip detection.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         pathProperty(),
					"preview_size": previewProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "colorcard_rectify",
			Description: "Return the card warped to its rectified frame with every patch's sample area outlined and labelled by canonical patch index.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"max_size": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the returned image in pixels. Default 800",
						"default":     800,
					},
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Outline color as #RRGGBB. Default #FF0000",
						"default":     "#FF0000",
					},
				},
				"required": []string{"path"},
			},
		},

		// Correction
		{
			Name:        "colorcard_correct",
			Description: "Detect the card, fit tone, white balance and a 3x3 color correction matrix, and report per-patch CIEDE2000 error with a quality rating. Optionally writes the corrected image.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"detection": map[string]interface{}{
						"type":        "object",
						"description": "Optional detection result from colorcard_detect for this image",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Optional path for the corrected image. Format follows the extension",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "colorcard_apply",
			Description: "Apply a correction from colorcard_correct to another image taken under the same conditions and write the result.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"correction": map[string]interface{}{
						"type":        "object",
						"description": "The correction object returned by colorcard_correct. Only white_balance_gains, ccm and tone_gamma are read",
					},
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Path for the corrected image. Format follows the extension",
					},
				},
				"required": []string{"path", "correction", "output_path"},
			},
		},
		{
			Name:        "colorcard_correct_batch",
			Description: "Run colorcard_correct on several images in parallel. A failing image is reported in its own entry and does not stop the others.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"paths": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string"},
						"description": "Absolute paths to the image files",
					},
					"parallel": map[string]interface{}{
						"type":        "integer",
						"description": "Images processed at once. Default 4",
						"default":     4,
					},
				},
				"required": []string{"paths"},
			},
		},

		// Targets
		{
			Name:        "colorcard_render_target",
			Description: "Render a printable color card with the configured marker dictionary and reference colors.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Path for the rendered card. Format follows the extension",
					},
					"scale": map[string]interface{}{
						"type":        "number",
						"description": "Pixels per card unit. Default 4",
						"default":     4.0,
					},
				},
				"required": []string{"output_path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
