// Package server implements the MCP (Model Context Protocol) server for color
// card calibration.
//
// The server exposes a calibrate.Pipeline as JSON-RPC 2.0 tools so that MCP
// clients can locate a color card in a photo, fit a color correction to it
// and apply that correction to other shots taken under the same light.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Basic Image Information:
//   - image_load: Load image and get metadata
//
// Card Location:
//   - colorcard_detect: Find the corner markers, homography and rotation
//   - colorcard_rectify: Preview the rectified card with patch sample areas
//
// Correction:
//   - colorcard_correct: Fit tone, white balance and CCM; report ΔE and quality
//   - colorcard_apply: Apply a fitted correction to another image
//   - colorcard_correct_batch: Correct several images in parallel
//
// Targets:
//   - colorcard_render_target: Render a printable card
//
// # Image Caching
//
// Images are cached by path and reused across tool calls. Writing a corrected
// image evicts that path so a later load sees the new file.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with code
// -32000 and a ToolError as data. ToolError.Kind is the flat pipeline error
// name from calibrate.ErrorKind, e.g. "InsufficientMarkers", so clients can
// branch on it without parsing the message. Unparseable request lines get a
// -32700 response.
//
// # Usage
//
//	p, err := calibrate.NewPipeline(cfg.Detection, cfg.Correction, table)
//	if err != nil {
//	    return err
//	}
//	return server.New(p, version).Run()
package server
