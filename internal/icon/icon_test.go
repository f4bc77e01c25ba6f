package icon

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode_PNG(t *testing.T) {
	out, err := Decode(bytes.NewReader(encodePNG(t, 32, 32)))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestDecode_JPEGReencodedAsPNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := Decode(&buf)
	require.NoError(t, err)

	_, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

func TestDecode_ScalesLargeImages(t *testing.T) {
	out, err := Decode(bytes.NewReader(encodePNG(t, 400, 200)))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, img.Bounds().Dx())
	assert.Equal(t, MaxDimension/2, img.Bounds().Dy())
}

func TestDecode_RejectsOversizedSources(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, MaxSourceDimension+1, 1))))
	_, err := Decode(&buf)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Decode(bytes.NewReader(make([]byte, MaxSourceBytes+1)))
	assert.ErrorIs(t, err, ErrTooLarge)

	// At the limit is still fine.
	buf.Reset()
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, MaxSourceDimension, 1))))
	out, err := Decode(&buf)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, MaxDimension, img.Bounds().Dx())
}

func TestDecode_Garbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not an image")))
	assert.Error(t, err)

	_, err = Decode(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestLoad(t *testing.T) {
	out, err := Load(Bytes(encodePNG(t, 4, 4)))
	require.NoError(t, err)
	assert.NotEmpty(t, out)

	_, err = Load(nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestFallback(t *testing.T) {
	fb := Fallback()
	require.NotEmpty(t, fb)

	img, err := png.Decode(bytes.NewReader(fb))
	require.NoError(t, err)
	assert.Equal(t, fallbackSize, img.Bounds().Dx())

	assert.True(t, IsFallback(Fallback()))
	assert.False(t, IsFallback(encodePNG(t, 4, 4)))
	assert.False(t, IsFallback(nil))
}
