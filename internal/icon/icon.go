// Package icon converts application icon images into the registry's stored
// bitmap format (PNG, bounded to MaxDimension pixels on each side) and
// supplies the fallback icon used when nothing can be resolved.
package icon

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"sync"
)

// MaxDimension bounds the width and height of stored icons.
const MaxDimension = 192

// fallbackSize is the edge length of the generated fallback icon.
const fallbackSize = 48

// Limits on what Decode accepts from a source.
const (
	MaxSourceBytes     = 8 << 20
	MaxSourceDimension = 4096
)

var (
	// ErrEmpty is returned by Decode when the source has no data.
	ErrEmpty = errors.New("icon: empty image data")

	// ErrTooLarge is returned by Decode when the source exceeds
	// MaxSourceBytes or MaxSourceDimension.
	ErrTooLarge = errors.New("icon: image too large")
)

// Source yields raw image bytes in any registered format.
type Source interface {
	Open() (io.ReadCloser, error)
}

// Bytes is an in-memory Source.
type Bytes []byte

// Open implements Source.
func (b Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Load opens src and encodes it. A nil src yields ErrEmpty.
func Load(src Source) ([]byte, error) {
	if src == nil {
		return nil, ErrEmpty
	}
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("open icon: %w", err)
	}
	defer rc.Close()
	return Decode(rc)
}

// Decode reads an image in any registered format and returns it PNG-encoded,
// scaled down to fit MaxDimension when larger. The header is checked
// against MaxSourceDimension before any pixels are decoded.
func Decode(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSourceBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read icon: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxSourceBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, MaxSourceBytes)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode icon: %w", err)
	}
	if cfg.Width > MaxSourceDimension || cfg.Height > MaxSourceDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode icon: %w", err)
	}

	img = fit(img, MaxDimension)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode icon: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	fallbackOnce sync.Once
	fallbackPNG  []byte
)

// Fallback returns the default icon. Callers must not modify the slice.
func Fallback() []byte {
	fallbackOnce.Do(func() {
		img := image.NewNRGBA(image.Rect(0, 0, fallbackSize, fallbackSize))
		fill := color.NRGBA{R: 0x9e, G: 0x9e, B: 0x9e, A: 0xff}
		border := color.NRGBA{R: 0x61, G: 0x61, B: 0x61, A: 0xff}
		for y := 0; y < fallbackSize; y++ {
			for x := 0; x < fallbackSize; x++ {
				c := fill
				if x < 2 || y < 2 || x >= fallbackSize-2 || y >= fallbackSize-2 {
					c = border
				}
				img.SetNRGBA(x, y, c)
			}
		}
		var buf bytes.Buffer
		// Encoding an in-memory NRGBA into a buffer cannot fail.
		_ = png.Encode(&buf, img)
		fallbackPNG = buf.Bytes()
	})
	return fallbackPNG
}

// IsFallback reports whether data is the fallback icon.
func IsFallback(data []byte) bool {
	return len(data) > 0 && bytes.Equal(data, Fallback())
}

// fit scales img down with nearest-neighbour sampling so that neither side
// exceeds limit. Smaller images are returned unchanged.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= limit && h <= limit {
		return img
	}

	nw, nh := limit, limit
	if w > h {
		nh = h * limit / w
	} else {
		nw = w * limit / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}
