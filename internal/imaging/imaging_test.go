package imaging

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 130, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(w, h), nil))
	return buf.Bytes()
}

func decodeDataURI(t *testing.T, uri string) (string, image.Image) {
	t.Helper()
	header, payload, ok := strings.Cut(uri, ",")
	require.True(t, ok)
	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	raw, err := base64.StdEncoding.DecodeString(payload)
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	return mime, img
}

func TestSniffMIME(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantOK   bool
	}{
		{"JPEG", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}, "image/jpeg", true},
		{"PNG", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}, "image/png", true},
		{"GIF is not accepted", []byte("GIF89a"), "", false},
		{"PDF disguised as image", []byte("%PDF-1.4 malicious content"), "", false},
		{"empty", []byte{}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, ok := SniffMIME(tt.data)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantMIME, mime)
		})
	}
}

func TestDecode(t *testing.T) {
	t.Run("jpeg", func(t *testing.T) {
		d, err := Decode(encodeJPEG(t, 40, 30), 0)
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", d.Image.MIMEType)
		assert.Equal(t, 40, d.Image.Width)
		assert.Equal(t, 30, d.Image.Height)
	})

	t.Run("png", func(t *testing.T) {
		data := encodePNG(t, 10, 20)
		d, err := Decode(data, 0)
		require.NoError(t, err)
		assert.Equal(t, "image/png", d.Image.MIMEType)
		assert.Equal(t, data, d.Image.Data, "original bytes are kept for the model")
	})

	t.Run("text file named .jpg", func(t *testing.T) {
		_, err := Decode([]byte("this is not an image at all"), 0)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("truncated jpeg", func(t *testing.T) {
		data := encodeJPEG(t, 64, 64)
		_, err := Decode(data[:len(data)/3], 0)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnsupportedFormat)
	})

	t.Run("jpeg magic with garbage", func(t *testing.T) {
		data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0x42}, 512)...)
		_, err := Decode(data, 0)
		assert.Error(t, err)
	})
}

// pngHeaderOnly builds a well-formed PNG whose IHDR declares w x h RGBA
// pixels but carries almost no image data.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	chunk := func(typ string, data []byte) {
		_ = binary.Write(&buf, binary.BigEndian, uint32(len(data)))
		crc := crc32.NewIEEE()
		crc.Write([]byte(typ))
		crc.Write(data)
		buf.WriteString(typ)
		buf.Write(data)
		_ = binary.Write(&buf, binary.BigEndian, crc.Sum32())
	}
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	chunk("IHDR", ihdr)
	chunk("IDAT", make([]byte, 1024))
	chunk("IEND", nil)
	return buf.Bytes()
}

func TestDecodeRejectsOversizedDimensions(t *testing.T) {
	data := pngHeaderOnly(60000, 60000)
	require.Less(t, len(data), 2048)

	_, err := Decode(data, 0)
	require.ErrorIs(t, err, ErrImageTooLarge)
	assert.Contains(t, err.Error(), "60000x60000")
}

func TestDecodePixelLimit(t *testing.T) {
	data := encodePNG(t, 20, 10)

	_, err := Decode(data, 199)
	assert.ErrorIs(t, err, ErrImageTooLarge)

	d, err := Decode(data, 200)
	require.NoError(t, err)
	assert.Equal(t, 20, d.Image.Width)
}

func TestPreviewWithinBounds(t *testing.T) {
	data := encodePNG(t, 50, 40)
	d, err := Decode(data, 0)
	require.NoError(t, err)

	uri, err := d.Preview(800)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(data), uri)
}

func TestPreviewScalesDown(t *testing.T) {
	d, err := Decode(encodeJPEG(t, 400, 200), 0)
	require.NoError(t, err)

	uri, err := d.Preview(100)
	require.NoError(t, err)

	mime, img := decodeDataURI(t, uri)
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())
}

func TestPreviewPortraitPNG(t *testing.T) {
	d, err := Decode(encodePNG(t, 30, 300), 0)
	require.NoError(t, err)

	uri, err := d.Preview(60)
	require.NoError(t, err)

	mime, img := decodeDataURI(t, uri)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, 6, img.Bounds().Dx())
	assert.Equal(t, 60, img.Bounds().Dy())
}

func TestFit(t *testing.T) {
	w, h := fit(1000, 10, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 1, h)

	w, h = fit(1000, 1, 100)
	assert.Equal(t, 100, w)
	assert.Equal(t, 1, h, "never scales a side to zero")

	w, h = fit(300, 200, 0)
	assert.Equal(t, 300, w)
	assert.Equal(t, 200, h)
}
