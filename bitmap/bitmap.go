// Package bitmap defines the decoded image resource that the memory cache
// stores. A Bitmap is owned by whoever decoded it; the cache only holds
// references and never frees or recycles one itself.
package bitmap

import (
	"fmt"
	"image"
	"image/draw"
	"sync/atomic"

	"github.com/google/uuid"
)

// Config describes how pixels are laid out in memory.
type Config uint8

const (
	// ARGB8888 stores each pixel in 4 bytes.
	ARGB8888 Config = iota
	// RGB565 stores each pixel in 2 bytes without alpha.
	RGB565
	// Alpha8 stores only an 8-bit alpha channel.
	Alpha8
	// RGBAF16 stores each channel as a half float (8 bytes per pixel).
	RGBAF16
)

// BytesPerPixel returns the allocation cost of a single pixel.
func (c Config) BytesPerPixel() int {
	switch c {
	case RGB565:
		return 2
	case Alpha8:
		return 1
	case RGBAF16:
		return 8
	default:
		return 4
	}
}

func (c Config) String() string {
	switch c {
	case RGB565:
		return "RGB_565"
	case Alpha8:
		return "ALPHA_8"
	case RGBAF16:
		return "RGBA_F16"
	default:
		return "ARGB_8888"
	}
}

// Bitmap is a decoded, in-memory image.
//
// Identity matters: two Bitmaps with equal pixels are still distinct
// instances, and caches track them by pointer.
type Bitmap struct {
	id     uuid.UUID
	width  int
	height int
	config Config
	pix    []byte

	recycled atomic.Bool
}

// New allocates a zeroed bitmap of the given size.
// It panics on negative dimensions.
func New(width, height int, cfg Config) *Bitmap {
	if width < 0 || height < 0 {
		panic(fmt.Sprintf("bitmap: negative dimensions %dx%d", width, height))
	}
	return &Bitmap{
		id:     uuid.New(),
		width:  width,
		height: height,
		config: cfg,
		pix:    make([]byte, width*height*cfg.BytesPerPixel()),
	}
}

// FromImage copies img into a new ARGB8888 bitmap.
func FromImage(img image.Image) *Bitmap {
	r := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, r.Min, draw.Src)
	return &Bitmap{
		id:     uuid.New(),
		width:  r.Dx(),
		height: r.Dy(),
		config: ARGB8888,
		pix:    rgba.Pix,
	}
}

// ID returns the instance identifier. It is meant for logs and debugging;
// caches compare bitmaps by pointer.
func (b *Bitmap) ID() uuid.UUID { return b.id }

// Width returns the width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Bitmap) Height() int { return b.height }

// Config returns the pixel layout.
func (b *Bitmap) Config() Config { return b.config }

// Pix returns the backing pixel buffer. Callers must not use it after Recycle.
func (b *Bitmap) Pix() []byte { return b.pix }

// ByteCount returns the allocation footprint of the pixel buffer.
func (b *Bitmap) ByteCount() int64 { return int64(cap(b.pix)) }

// Recycle marks the bitmap as invalid. Caches stop returning it immediately.
// Recycle is idempotent and safe for concurrent use.
func (b *Bitmap) Recycle() { b.recycled.Store(true) }

// IsRecycled reports whether Recycle has been called.
func (b *Bitmap) IsRecycled() bool { return b.recycled.Load() }

func (b *Bitmap) String() string {
	return fmt.Sprintf("Bitmap(%s %dx%d %s)", b.id, b.width, b.height, b.config)
}
