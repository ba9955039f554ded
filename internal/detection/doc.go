// Package detection finds square binary fiducial markers in images.
//
// A color card carries four markers, one per corner, with IDs 0 to 3 from a
// fixed Dictionary. Detector.Detect returns exactly those four markers with
// sub-pixel corners, or an error saying which are missing.
//
// # Algorithm Overview
//
//  1. Binarization: Convert to grayscale, optionally blur, and threshold at
//     the Otsu level of the histogram
//  2. Candidates: Collect dark 8-connected components within the marker size
//     range that do not touch the image border
//  3. Quadrilateral fit: Reduce each hole-filled outline to four corners and
//     refine them with per-side line fits
//  4. Decoding: Sample the cell grid through the cell-to-image homography and
//     match the bits against every code in all four rotations
//
// # Coordinate System
//
// All coordinates use the standard image convention:
//   - Origin (0, 0) at top-left corner
//   - X increases rightward
//   - Y increases downward
//
// Corners are reported in the marker's own frame, so Corners[0] is the corner
// that is top-left when the marker is upright, whatever the image rotation.
//
// # Confidence Scores
//
// A marker's confidence is 1 minus the share of misread cells, black border
// included (1.0 = every cell read correctly). Codes are at least
// MinDistance bits apart, so up to (MinDistance-1)/2 misread bits are
// corrected before a candidate is rejected.
//
// # Limitations
//
// Markers must appear at least min_marker_fraction of the longest image side
// and need a white quiet zone around the black border. Heavy motion blur or
// glare across a marker will drop it below the confidence threshold.
package detection
