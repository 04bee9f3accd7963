// Command bench runs a synthetic bitmap workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/bitmapcache/bitmap"
	"github.com/IvanBrykalov/bitmapcache/cache"
	"github.com/IvanBrykalov/bitmapcache/internal/config"
	"github.com/IvanBrykalov/bitmapcache/internal/logger"
	pmet "github.com/IvanBrykalov/bitmapcache/metrics/prom"
)

// sides are the square bitmap sizes the workload draws from.
var sides = []int{16, 32, 64, 128}

func main() {
	cfg := config.Load()

	// ---- Flags ----
	var (
		maxBytes    = flag.Int64("max_bytes", cfg.CacheMaxBytes, "strong tier budget in bytes")
		disableWeak = flag.Bool("no_weak", cfg.DisableWeak, "disable the weak tier")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")
		trimPct  = flag.Float64("trims", 0.01, "TrimMemory percentage of writes [0..100]")

		keys    = flag.Int("keys", 100_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 1_000, "preload entries")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", cfg.MetricsAddr, "serve Prometheus metrics at addr")
		logLevel    = flag.String("log", cfg.LogLevel, "log level: debug | info | warn | error")
	)
	flag.Parse()

	log, err := logger.New(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info("pprof: serving", zap.String("addr", *pprofAddr))
			log.Warn("pprof server stopped", zap.Error(http.ListenAndServe(*pprofAddr, nil)))
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "bitmapcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info("metrics: serving", zap.String("addr", *metricsAddr))
		log.Warn("metrics server stopped", zap.Error(http.ListenAndServe(*metricsAddr, nil)))
	}()

	// ---- Build cache ----
	c := cache.New(cache.Options{
		MaxSize:     *maxBytes,
		DisableWeak: *disableWeak,
		Metrics:     metrics,
		Logger:      log,
	})
	defer c.Clear()

	// ---- Preload for a realistic hit-rate ----
	for i := 0; i < *preload; i++ {
		side := sides[i%len(sides)]
		c.Set(keyFor(uint64(i), side), cache.NewValue(bitmap.New(side, side, bitmap.ARGB8888), false))
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	trimPctVal := *trimPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, trims, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workersN; w++ {
		id := w
		g.Go(func() error {
			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			for {
				select {
				case <-ctx.Done():
					return nil
				default:
				}

				atomic.AddUint64(&total, 1)
				n := localZipf.Uint64()
				side := sides[n%uint64(len(sides))]
				k := keyFor(n, side)

				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(k); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
					continue
				}

				atomic.AddUint64(&writes, 1)
				c.Set(k, cache.NewValue(bitmap.New(side, side, bitmap.ARGB8888), localR.Intn(2) == 0))
				if localR.Float64()*100 < trimPctVal {
					atomic.AddUint64(&trims, 1)
					c.TrimMemory(cache.TrimRunningLow)
				}
			}
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	fmt.Printf("max_bytes=%d weak=%t workers=%d keys=%d dur=%v seed=%d\n",
		c.MaxSize(), !*disableWeak, workersN, *keys, elapsed, seedBase)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d  trims=%d\n",
		ops, float64(ops)/elapsed.Seconds(), readsN, writesN, atomic.LoadUint64(&trims))
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%\n", hitsN, missesN, hitRate)
	fmt.Printf("Len()=%d  WeakLen()=%d  Size()=%d\n", c.Len(), c.WeakLen(), c.Size())
}

func keyFor(n uint64, side int) cache.Key {
	return cache.NewKeyWithExtras("img:"+strconv.FormatUint(n, 10), map[string]string{
		"size": strconv.Itoa(side) + "x" + strconv.Itoa(side),
	})
}
