package web

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/insightstudio/internal/analysis"
	"github.com/vbonduro/insightstudio/internal/imaging"
)

func newBareServer(opts Options) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(nil, nil, logger, opts)
}

func multipartRequest(t *testing.T, fields map[string]string, filename string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		fw, err := w.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 4, 3))))
	return buf.Bytes()
}

func TestParseSubmission(t *testing.T) {
	s := newBareServer(Options{})

	t.Run("image and instructions", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"instructions": "Focus on cracks"}, "wall.png", tinyPNG(t))
		sub, err := s.parseSubmission(httptest.NewRecorder(), req)
		require.NoError(t, err)
		assert.Equal(t, "Focus on cracks", sub.instructions)
		assert.Equal(t, "wall.png", sub.filename)
		require.NotNil(t, sub.decoded)
		assert.Equal(t, "image/png", sub.decoded.Image.MIMEType)
		assert.Equal(t, 4, sub.decoded.Image.Width)

		r := sub.request()
		assert.Equal(t, "Focus on cracks", r.Instructions)
		assert.Same(t, sub.decoded.Image, r.Image)
	})

	t.Run("no file", func(t *testing.T) {
		req := multipartRequest(t, map[string]string{"instructions": "check for cracks"}, "", nil)
		sub, err := s.parseSubmission(httptest.NewRecorder(), req)
		require.NoError(t, err)
		assert.Nil(t, sub.decoded)
		assert.Nil(t, sub.request().Image)
	})

	t.Run("empty file", func(t *testing.T) {
		req := multipartRequest(t, nil, "empty.jpg", []byte{})
		sub, err := s.parseSubmission(httptest.NewRecorder(), req)
		require.NoError(t, err)
		assert.Nil(t, sub.decoded)
	})

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/analyze", strings.NewReader("instructions=hello"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		sub, err := s.parseSubmission(httptest.NewRecorder(), req)
		require.NoError(t, err)
		assert.Equal(t, "hello", sub.instructions)
		assert.Nil(t, sub.decoded)
	})

	t.Run("file name is ignored for detection", func(t *testing.T) {
		req := multipartRequest(t, nil, "photo.jpg", tinyPNG(t))
		sub, err := s.parseSubmission(httptest.NewRecorder(), req)
		require.NoError(t, err)
		assert.Equal(t, "image/png", sub.decoded.Image.MIMEType)
	})

	t.Run("corrupt image", func(t *testing.T) {
		req := multipartRequest(t, nil, "broken.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10})
		sub, err := s.parseSubmission(httptest.NewRecorder(), req)
		require.Error(t, err)
		assert.Equal(t, analysis.KindInvalidImage, analysis.KindOf(err))
		assert.Equal(t, "broken.jpg", sub.filename)
	})

	t.Run("unsupported format", func(t *testing.T) {
		req := multipartRequest(t, nil, "anim.gif", []byte("GIF89a...."))
		_, err := s.parseSubmission(httptest.NewRecorder(), req)
		assert.Equal(t, analysis.KindInvalidImage, analysis.KindOf(err))
	})
}

func TestParseSubmission_UploadLimit(t *testing.T) {
	s := newBareServer(Options{MaxUploadBytes: 16})

	req := multipartRequest(t, nil, "big.png", tinyPNG(t))
	_, err := s.parseSubmission(httptest.NewRecorder(), req)
	require.Error(t, err)
	assert.Equal(t, analysis.KindInvalidImage, analysis.KindOf(err))
	assert.Contains(t, err.Error(), "16 byte upload limit")
}

func TestParseSubmission_PixelLimit(t *testing.T) {
	s := newBareServer(Options{MaxImagePixels: 5})

	req := multipartRequest(t, nil, "wall.png", tinyPNG(t))
	_, err := s.parseSubmission(httptest.NewRecorder(), req)
	require.Error(t, err)
	assert.Equal(t, analysis.KindInvalidImage, analysis.KindOf(err))
	assert.ErrorIs(t, err, imaging.ErrImageTooLarge)
}

func TestFailure(t *testing.T) {
	s := newBareServer(Options{})

	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantMsg   string
	}{
		{
			name:      "missing image",
			err:       &analysis.Error{Kind: analysis.KindMissingInput, Message: analysis.MissingImageMessage},
			wantLevel: "warning",
			wantMsg:   "Please upload an image to analyze.",
		},
		{
			name:      "busy",
			err:       &analysis.Error{Kind: analysis.KindBusy, Message: analysis.BusyMessage},
			wantLevel: "warning",
			wantMsg:   analysis.BusyMessage,
		},
		{
			name:      "invalid image",
			err:       analysis.InvalidImage(errors.New("cannot identify image file")),
			wantLevel: "error",
			wantMsg:   "Error: cannot identify image file",
		},
		{
			name:      "service failure",
			err:       &analysis.Error{Kind: analysis.KindServiceFailure, Message: "API key not valid"},
			wantLevel: "error",
			wantMsg:   "Error: API key not valid",
		},
		{
			name:      "plain error",
			err:       errors.New("boom"),
			wantLevel: "error",
			wantMsg:   "Error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.failure(tt.err)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.Nil(t, got.Result)
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(analysis.KindMissingInput))
	assert.Equal(t, http.StatusBadRequest, statusFor(analysis.KindInvalidImage))
	assert.Equal(t, http.StatusTooManyRequests, statusFor(analysis.KindBusy))
	assert.Equal(t, http.StatusBadGateway, statusFor(analysis.KindServiceFailure))
	assert.Equal(t, http.StatusInternalServerError, statusFor(analysis.KindUnknown))
}

func TestCORSOptions_NoOriginsRefusesAll(t *testing.T) {
	s := newBareServer(Options{})
	opts := s.corsOptions()
	require.NotNil(t, opts.AllowOriginFunc)
	assert.False(t, opts.AllowOriginFunc(httptest.NewRequest(http.MethodOptions, "/", nil), "https://any.example"))

	s = newBareServer(Options{CORSAllowedOrigins: []string{"https://a.example"}})
	assert.Nil(t, s.corsOptions().AllowOriginFunc)
}
