// Package preprocess inspects and normalizes images before they are sent to
// the OCR backend. Large photos are downscaled and flattened to grayscale,
// which shrinks upload size without hurting recognition.
package preprocess

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/image2doc/image2doc/internal/model"
)

// MaxDimension is the longest edge kept after normalization. OCR accuracy
// plateaus well below this for typical document scans.
const MaxDimension = 2400

func toFormat(format string) (imaging.Format, error) {
	switch format {
	case "jpeg", "jpg":
		return imaging.JPEG, nil
	case "png":
		return imaging.PNG, nil
	case "gif":
		return imaging.GIF, nil
	case "bmp":
		return imaging.BMP, nil
	case "tiff", "tif":
		return imaging.TIFF, nil
	default:
		return 0, fmt.Errorf("unsupported image format %q", format)
	}
}

// Inspect decodes just enough of the stream to report dimensions and format.
func Inspect(r io.Reader) (model.ImageMetadata, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return model.ImageMetadata{}, fmt.Errorf("decode image header: %w", err)
	}
	return model.ImageMetadata{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// Normalize decodes the image, downscales anything larger than MaxDimension
// and converts to grayscale. The result is re-encoded in the source format.
// Images already within bounds are only grayscaled.
func Normalize(r io.Reader) ([]byte, model.ImageMetadata, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, model.ImageMetadata{}, fmt.Errorf("decode image: %w", err)
	}
	enc, err := toFormat(format)
	if err != nil {
		return nil, model.ImageMetadata{}, err
	}

	bounds := img.Bounds()
	if bounds.Dx() > MaxDimension || bounds.Dy() > MaxDimension {
		img = imaging.Fit(img, MaxDimension, MaxDimension, imaging.Lanczos)
	}
	img = imaging.Grayscale(img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, enc); err != nil {
		return nil, model.ImageMetadata{}, fmt.Errorf("encode image: %w", err)
	}
	meta := model.ImageMetadata{
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
		Format: format,
	}
	return buf.Bytes(), meta, nil
}
