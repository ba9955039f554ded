// Package imaging provides image loading, color-managed pixel buffers and
// preview encoding for the calibration pipeline.
//
// Files are decoded once through ImageCache and converted to FloatImage, a
// linear-light RGB buffer, using an explicit ColorSpace. Calibration works on
// FloatImage and converts back to 16-bit NRGBA only when writing results.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For boxes, Min is inclusive (top-left) and Max is exclusive (bottom-right)
//
// FloatImage.Bilinear samples at continuous coordinates where pixel (i, j)
// covers [i, i+1) × [j, j+1), so its center is (i+0.5, j+0.5).
//
// # Color Spaces
//
//   - linear_srgb: stored values are already linear (raw or linear exports)
//   - srgb: stored values carry the sRGB transfer curve and are decoded on load
//
// # Thread Safety
//
// The ImageCache type is safe for concurrent use. FloatImage operations return
// new buffers and never modify their receiver, except Set.
//
// # Performance Considerations
//
// Images stay cached for the life of the process. Use Evict() after writing a
// file that may be read again, or Clear() to release memory.
package imaging
