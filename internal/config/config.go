// Package config reads command configuration from the environment.
package config

import (
	"os"
	"runtime"
	"strconv"
)

type Config struct {
	CacheMaxBytes   int64
	DisableWeak     bool
	ImageDir        string
	TargetSize      int
	DecodeWorkers   int
	VipsMaxCacheMB  int
	VipsConcurrency int
	MetricsAddr     string
	LogLevel        string
}

func Load() *Config {
	return &Config{
		CacheMaxBytes:   getEnvInt64("CACHE_MAX_BYTES", DefaultCacheMaxBytes()),
		DisableWeak:     getEnvBool("CACHE_DISABLE_WEAK", false),
		ImageDir:        getEnv("IMAGE_DIR", "."),
		TargetSize:      getEnvInt("TARGET_SIZE", 256),
		DecodeWorkers:   getEnvInt("DECODE_WORKERS", runtime.GOMAXPROCS(0)),
		VipsMaxCacheMB:  getEnvInt("VIPS_MAX_CACHE_MB", 64),
		VipsConcurrency: getEnvInt("VIPS_CONCURRENCY", 1),
		MetricsAddr:     getEnv("METRICS_ADDR", ":8080"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
	}
}

// DefaultCacheMaxBytes is 25% of the memory the Go runtime has obtained from
// the OS, with a 32 MiB floor.
func DefaultCacheMaxBytes() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	budget := int64(ms.Sys / 4)
	if budget < 32<<20 {
		budget = 32 << 20
	}
	return budget
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
