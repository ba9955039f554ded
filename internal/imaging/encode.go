package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

// EncodedImage is a PNG image ready to be returned over JSON.
type EncodedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Encode PNG-encodes img as base64. When maxSide is positive and the image is
// larger, it is first scaled down with Lanczos resampling so that neither
// side exceeds maxSide.
func Encode(img image.Image, maxSide int) (*EncodedImage, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("image is empty")
	}
	if maxSide > 0 && (bounds.Dx() > maxSide || bounds.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	out := img.Bounds()
	return &EncodedImage{
		Width:       out.Dx(),
		Height:      out.Dy(),
		ImageBase64: base64.StdEncoding.EncodeToString(buf.Bytes()),
		MimeType:    "image/png",
	}, nil
}

// Save writes img to path. The format follows the file extension (PNG, JPEG,
// GIF, TIFF or BMP).
func Save(img image.Image, path string) error {
	if err := imaging.Save(img, path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// Rotate turns img clockwise by the given number of quarter turns. Negative
// values turn counter-clockwise.
func Rotate(img image.Image, quarterTurns int) *image.NRGBA {
	switch ((quarterTurns % 4) + 4) % 4 {
	case 1:
		return imaging.Rotate270(img)
	case 2:
		return imaging.Rotate180(img)
	case 3:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}
