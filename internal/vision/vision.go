package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	// ErrEmptyResponse is returned when the service answers without any text.
	ErrEmptyResponse = errors.New("model returned no text")
	// ErrBlocked is returned when the service refuses the prompt.
	ErrBlocked = errors.New("model blocked the request")
)

// Image is a decoded upload ready to be sent to a model.
type Image struct {
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURI returns the image as a data: URI.
func (i *Image) DataURI() string {
	return "data:" + i.MIMEType + ";base64," + i.Base64()
}

// Part is one element of a multimodal request. Exactly one of Text or Image
// is set.
type Part struct {
	Text  string
	Image *Image
}

func TextPart(s string) Part { return Part{Text: s} }

func ImagePart(img *Image) Part { return Part{Image: img} }

func (p Part) IsImage() bool { return p.Image != nil }

// Response is the only thing read back from a backend.
type Response struct {
	Text string
}

// Generator sends one non-streaming multimodal request to a model backend.
// Implementations must preserve the order of parts.
type Generator interface {
	Generate(ctx context.Context, parts []Part) (*Response, error)
	Model() string
}

// JoinText concatenates the non-empty text parts with blank lines, for
// backends that take a single prompt string.
func JoinText(parts []Part) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			continue
		}
		if t := strings.TrimSpace(p.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return strings.Join(texts, "\n\n")
}

// Images returns the image parts in order.
func Images(parts []Part) []*Image {
	var imgs []*Image
	for _, p := range parts {
		if p.IsImage() {
			imgs = append(imgs, p.Image)
		}
	}
	return imgs
}

// NormaliseText wraps s in a Response, reporting ErrEmptyResponse when s is
// blank. Non-blank text is returned unmodified.
func NormaliseText(s string) (*Response, error) {
	if strings.TrimSpace(s) == "" {
		return nil, ErrEmptyResponse
	}
	return &Response{Text: s}, nil
}
