// Package vipsdecode implements loader.Decoder on top of libvips.
//
// vips.Startup must have been called before the first Decode.
package vipsdecode

import (
	"bytes"
	"context"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cshum/vipsgen/vips"
	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
	"github.com/IvanBrykalov/bitmapcache/loader"
)

// DefaultQuality is the JPEG quality of the intermediate buffer.
const DefaultQuality = 90

type Decoder struct {
	quality int
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{quality: DefaultQuality, logger: logger}
}

// Decode reads req.Data from disk and, when the request carries a target
// size smaller than the source, downsamples to fit inside it.
func (d *Decoder) Decode(ctx context.Context, req loader.Request) (*bitmap.Bitmap, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !Supported(req.Data) {
		return nil, false, errors.Newf(errors.CodeNotFound, "unsupported image format: %s", filepath.Ext(req.Data))
	}
	if _, err := os.Stat(req.Data); err != nil {
		return nil, false, errors.Wrap(err, errors.CodeNotFound, "image not found")
	}

	image, err := loadImage(req.Data)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeExecutionFailed, "failed to open image")
	}
	defer image.Close()

	srcW, srcH := image.Width(), image.Height()
	scale := fitScale(srcW, srcH, req.Width, req.Height)
	sampled := scale < 1
	if sampled {
		resizeOpts := vips.DefaultResizeOptions()
		resizeOpts.Kernel = vips.KernelLanczos3
		if err := image.Resize(scale, resizeOpts); err != nil {
			return nil, false, errors.Wrap(err, errors.CodeExecutionFailed, "failed to resize")
		}
	}

	// Decode cancellation is checked between libvips steps only.
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	jpegOpts := vips.DefaultJpegsaveBufferOptions()
	jpegOpts.Q = d.quality
	jpegOpts.Interlace = false
	buf, err := image.JpegsaveBuffer(jpegOpts)
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeExecutionFailed, "failed to export")
	}

	img, err := jpeg.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, false, errors.Wrap(err, errors.CodeExecutionFailed, "failed to decode export")
	}
	b := bitmap.FromImage(img)

	d.logger.Debug("Image decoded",
		zap.String("path", req.Data),
		zap.Int("src_width", srcW),
		zap.Int("src_height", srcH),
		zap.Int("width", b.Width()),
		zap.Int("height", b.Height()),
		zap.Bool("sampled", sampled),
	)
	return b, sampled, nil
}

// Supported reports whether path has an extension libvips is asked to load.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff", ".jpg", ".jpeg", ".png", ".webp":
		return true
	}
	return false
}

// fitScale returns the factor that fits src inside dst, capped at 1.
// A zero dst dimension leaves that axis unconstrained.
func fitScale(srcW, srcH, dstW, dstH int) float64 {
	if srcW <= 0 || srcH <= 0 {
		return 1
	}
	scale := 1.0
	if dstW > 0 {
		scale = math.Min(scale, float64(dstW)/float64(srcW))
	}
	if dstH > 0 {
		scale = math.Min(scale, float64(dstH)/float64(srcH))
	}
	return scale
}

// loadImage loads an image based on file extension
func loadImage(path string) (*vips.Image, error) {
	ext := strings.ToLower(filepath.Ext(path))

	// The whole image is read once, top to bottom.
	access := vips.AccessSequential

	switch ext {
	case ".tif", ".tiff":
		opts := vips.DefaultTiffloadOptions()
		opts.Access = access
		return vips.NewTiffload(path, opts)
	case ".jpg", ".jpeg":
		opts := vips.DefaultJpegloadOptions()
		opts.Access = access
		return vips.NewJpegload(path, opts)
	case ".png":
		opts := vips.DefaultPngloadOptions()
		opts.Access = access
		return vips.NewPngload(path, opts)
	case ".webp":
		opts := vips.DefaultWebploadOptions()
		opts.Access = access
		return vips.NewWebpload(path, opts)
	default:
		return nil, errors.Newf(errors.CodeNotFound, "unsupported image format: %s", ext)
	}
}
