// Package loader is the pipeline side of the bitmap cache: it turns
// requests into cache keys, decodes on a miss and writes the decoded
// result back into the cache.
//
// Concurrent loads of the same key are coalesced so that only one decode
// runs at a time; the others wait for and share its result.
package loader

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jmgilman/go/errors"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
	"github.com/IvanBrykalov/bitmapcache/cache"
	"github.com/IvanBrykalov/bitmapcache/internal/singleflight"
)

// Request describes one image load.
type Request struct {
	// Data is the source (path or URI). Required.
	Data string
	// Width and Height are the target size; zero means original size.
	Width, Height int
	// Transformations are applied in order and take part in the key.
	Transformations []string
	// Parameters are free-form qualifiers that take part in the key.
	Parameters map[string]string
}

// KeyFactory derives the cache key of a request.
type KeyFactory func(Request) cache.Key

// DefaultKey keys a request by its data source, qualified by target size,
// each transformation (by position) and each parameter.
func DefaultKey(req Request) cache.Key {
	extras := make(map[string]string, 1+len(req.Transformations)+len(req.Parameters))
	if req.Width > 0 || req.Height > 0 {
		extras["size"] = fmt.Sprintf("%dx%d", req.Width, req.Height)
	}
	for i, tr := range req.Transformations {
		extras["transformation."+strconv.Itoa(i)] = tr
	}
	for name, v := range req.Parameters {
		extras["parameter."+name] = v
	}
	return cache.NewKeyWithExtras(req.Data, extras)
}

// Decoder produces a bitmap for a request. sampled reports whether the
// result was downsampled from the source.
type Decoder interface {
	Decode(ctx context.Context, req Request) (b *bitmap.Bitmap, sampled bool, err error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, req Request) (*bitmap.Bitmap, bool, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, req Request) (*bitmap.Bitmap, bool, error) {
	return f(ctx, req)
}

// Options configures a Loader. Cache and Decoder are required.
type Options struct {
	Cache      cache.Cache
	Decoder    Decoder
	KeyFactory KeyFactory // default DefaultKey
	Logger     *zap.Logger
}

// Loader serves requests from the cache and decodes on a miss.
type Loader struct {
	cache cache.Cache
	dec   Decoder
	keys  KeyFactory
	log   *zap.Logger
	sf    singleflight.Group[cache.Key, cache.Value]
}

// New validates opt and returns a Loader.
func New(opt Options) (*Loader, error) {
	if opt.Cache == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "loader: cache is required")
	}
	if opt.Decoder == nil {
		return nil, errors.New(errors.CodeInvalidConfig, "loader: decoder is required")
	}
	if opt.KeyFactory == nil {
		opt.KeyFactory = DefaultKey
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &Loader{
		cache: opt.Cache,
		dec:   opt.Decoder,
		keys:  opt.KeyFactory,
		log:   opt.Logger,
	}, nil
}

// Key returns the cache key Load would use for req.
func (l *Loader) Key(req Request) cache.Key { return l.keys(req) }

// Load returns the bitmap for req, from the cache when present. On a miss
// the decoder runs once per key regardless of how many callers are
// waiting, and the result is stored before it is returned.
func (l *Loader) Load(ctx context.Context, req Request) (cache.Value, error) {
	if req.Data == "" {
		return cache.Value{}, errors.New(errors.CodeInvalidInput, "loader: request has no data")
	}
	key := l.keys(req)
	if v, ok := l.cache.Get(key); ok {
		return v, nil
	}

	v, shared, err := l.sf.Do(ctx, key, func() (cache.Value, error) {
		// A previous leader may have stored the value after our lookup.
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		return l.decode(ctx, key, req)
	})
	if err != nil {
		return cache.Value{}, err
	}
	if shared {
		l.log.Debug("shared decode", zap.Stringer("key", key))
	}
	return v, nil
}

// Prefetch loads every request, stopping at the first error.
func (l *Loader) Prefetch(ctx context.Context, reqs []Request) error {
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := l.Load(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) decode(ctx context.Context, key cache.Key, req Request) (cache.Value, error) {
	b, sampled, err := l.dec.Decode(ctx, req)
	if err != nil {
		return cache.Value{}, errors.WrapWithContext(err, errors.CodeExecutionFailed, "loader: decode failed", map[string]interface{}{
			"data": req.Data,
			"key":  key.String(),
		})
	}
	if b == nil {
		return cache.Value{}, errors.Newf(errors.CodeExecutionFailed, "loader: decoder returned no bitmap for %s", req.Data)
	}

	v := cache.NewValue(b, sampled)
	l.cache.Set(key, v)
	l.log.Debug("decoded",
		zap.Stringer("key", key),
		zap.Stringer("bitmap", b),
		zap.Bool("sampled", sampled),
		zap.Int64("bytes", b.ByteCount()),
	)
	return v, nil
}
