package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"

	"golang.org/x/image/draw"

	"github.com/vbonduro/insightstudio/internal/vision"
)

// ErrUnsupportedFormat is returned for uploads that are not JPEG or PNG.
var ErrUnsupportedFormat = errors.New("unsupported image format: upload a JPEG or PNG")

// ErrImageTooLarge is returned when the declared dimensions exceed the pixel
// limit. The check runs on the header, before any pixel memory is allocated.
var ErrImageTooLarge = errors.New("image dimensions too large")

// DefaultMaxPixels bounds decoded uploads to roughly 160 MB of RGBA.
const DefaultMaxPixels = 40_000_000

const previewJPEGQuality = 85

// Decoded is an upload that has been sniffed and fully decoded.
type Decoded struct {
	Image  *vision.Image
	pixels image.Image
}

// SniffMIME returns the detected MIME type and true if data is an accepted
// format. Detection uses magic bytes only; the file name is ignored.
func SniffMIME(data []byte) (string, bool) {
	switch mime := http.DetectContentType(data); mime {
	case "image/jpeg", "image/png":
		return mime, true
	default:
		return "", false
	}
}

// Decode validates data as a JPEG or PNG and decodes every pixel, so a
// truncated or corrupt file is rejected here rather than by the model.
// Images whose header declares more than maxPixels pixels are rejected with
// ErrImageTooLarge before decoding. maxPixels <= 0 selects DefaultMaxPixels.
func Decode(data []byte, maxPixels int64) (*Decoded, error) {
	mime, ok := SniffMIME(data)
	if !ok {
		return nil, ErrUnsupportedFormat
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot identify image file: %w", err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds the %d pixel limit", ErrImageTooLarge, cfg.Width, cfg.Height, maxPixels)
	}

	var img image.Image
	switch mime {
	case "image/png":
		img, err = png.Decode(bytes.NewReader(data))
	default:
		img, err = jpeg.Decode(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("cannot identify image file: %w", err)
	}

	b := img.Bounds()
	return &Decoded{
		Image: &vision.Image{
			Data:     data,
			MIMEType: mime,
			Width:    b.Dx(),
			Height:   b.Dy(),
		},
		pixels: img,
	}, nil
}

// Preview returns a data URI for displaying the upload, scaled down so that
// neither side exceeds maxDim. maxDim <= 0 disables scaling.
func (d *Decoded) Preview(maxDim int) (string, error) {
	w, h := fit(d.Image.Width, d.Image.Height, maxDim)
	if w == d.Image.Width && h == d.Image.Height {
		return d.Image.DataURI(), nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), d.pixels, d.pixels.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	var err error
	if d.Image.MIMEType == "image/png" {
		err = png.Encode(&buf, dst)
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: previewJPEGQuality})
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}

	preview := vision.Image{Data: buf.Bytes(), MIMEType: d.Image.MIMEType}
	return preview.DataURI(), nil
}

// fit scales (w, h) to fit within maxDim while keeping the aspect ratio.
func fit(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
