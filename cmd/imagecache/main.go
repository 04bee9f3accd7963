// Command imagecache decodes a directory of images through the loader and
// the two-tier bitmap cache, then serves cache stats and Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/cshum/vipsgen/vips"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/bitmapcache/cache"
	"github.com/IvanBrykalov/bitmapcache/internal/config"
	"github.com/IvanBrykalov/bitmapcache/internal/logger"
	"github.com/IvanBrykalov/bitmapcache/loader"
	"github.com/IvanBrykalov/bitmapcache/loader/vipsdecode"
	pmet "github.com/IvanBrykalov/bitmapcache/metrics/prom"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer log.Sync()

	vipsConfig := &vips.Config{
		ConcurrencyLevel: cfg.VipsConcurrency,
		MaxCacheMem:      cfg.VipsMaxCacheMB * 1024 * 1024, // Convert MB to bytes
		MaxCacheFiles:    0,                                // Disable disk cache
		MaxCacheSize:     0,                                // Disable disk cache
		ReportLeaks:      false,
		CacheTrace:       false,
		VectorEnabled:    true,
	}

	vips.SetLogging(func(domain string, level vips.LogLevel, message string) {
		if level >= vips.LogLevelError {
			log.Error("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		} else if level >= vips.LogLevelWarning {
			log.Warn("vips", zap.String("domain", domain), zap.Int("level", int(level)), zap.String("message", message))
		}
	}, vips.LogLevelError)

	vips.Startup(vipsConfig)
	defer vips.Shutdown()

	c := cache.New(cache.Options{
		MaxSize:     cfg.CacheMaxBytes,
		DisableWeak: cfg.DisableWeak,
		Metrics:     pmet.New(nil, "bitmapcache", "imagecache", nil),
		Logger:      log,
	})

	l, err := loader.New(loader.Options{
		Cache:   c,
		Decoder: vipsdecode.New(log),
		Logger:  log,
	})
	if err != nil {
		log.Fatal("Failed to initialize loader", zap.Error(err))
	}

	log.Info("Starting imagecache",
		zap.String("image_dir", cfg.ImageDir),
		zap.Int64("max_bytes", c.MaxSize()),
		zap.Bool("weak", !cfg.DisableWeak),
		zap.Int("workers", cfg.DecodeWorkers),
	)

	reqs, err := scan(cfg.ImageDir, cfg.TargetSize)
	if err != nil {
		log.Fatal("Scan failed", zap.Error(err))
	}

	// Two passes: the first decodes, the second is served from memory.
	for pass := 1; pass <= 2; pass++ {
		start := time.Now()
		failed := warm(context.Background(), l, reqs, cfg.DecodeWorkers, log)
		log.Info("Pass completed",
			zap.Int("pass", pass),
			zap.Int("images", len(reqs)),
			zap.Int("failed", failed),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("entries", c.Len()),
			zap.Int("weak_entries", c.WeakLen()),
			zap.Int64("bytes", c.Size()),
		)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats(c))
	})
	mux.HandleFunc("/trim", func(w http.ResponseWriter, r *http.Request) {
		level, err := strconv.Atoi(r.URL.Query().Get("level"))
		if err != nil {
			http.Error(w, "level must be an integer", http.StatusBadRequest)
			return
		}
		c.TrimMemory(cache.TrimLevel(level))
		log.Info("Trimmed cache", zap.Int("level", level), zap.Int64("bytes", c.Size()))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats(c))
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("addr", cfg.MetricsAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	c.Clear()

	log.Info("Server stopped")
}

// scan lists the decodable images directly under dir as square requests
// of the given target size.
func scan(dir string, target int) ([]loader.Request, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var reqs []loader.Request
	for _, entry := range entries {
		if entry.IsDir() || !vipsdecode.Supported(entry.Name()) {
			continue
		}
		reqs = append(reqs, loader.Request{
			Data:   filepath.Join(dir, entry.Name()),
			Width:  target,
			Height: target,
		})
	}
	return reqs, nil
}

// warm loads every request with at most workers decodes in flight and
// returns the number of failures.
func warm(ctx context.Context, l *loader.Loader, reqs []loader.Request, workers int, log *zap.Logger) int {
	if workers <= 0 {
		workers = 1
	}

	var failed int
	results := make(chan error, len(reqs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, req := range reqs {
		g.Go(func() error {
			_, err := l.Load(ctx, req)
			if err != nil {
				log.Warn("Load failed", zap.String("path", req.Data), zap.Error(err))
			}
			results <- err
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	for err := range results {
		if err != nil {
			failed++
		}
	}
	return failed
}

type cacheStats struct {
	Entries     int   `json:"entries"`
	WeakEntries int   `json:"weak_entries"`
	Bytes       int64 `json:"bytes"`
	MaxBytes    int64 `json:"max_bytes"`
}

func stats(c cache.Cache) cacheStats {
	return cacheStats{
		Entries:     c.Len(),
		WeakEntries: c.WeakLen(),
		Bytes:       c.Size(),
		MaxBytes:    c.MaxSize(),
	}
}
