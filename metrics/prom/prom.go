// Package prom exports cache.Metrics signals as Prometheus metrics.
package prom

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/bitmapcache/cache"
)

// Adapter implements cache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits        *prometheus.CounterVec
	misses      prometheus.Counter
	evicts      *prometheus.CounterVec
	sizeEntries prometheus.Gauge
	sizeBytes   prometheus.Gauge
	weakEntries prometheus.Gauge
	weakBytes   prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "hits_total",
				Help:        "Cache hits by serving tier",
				ConstLabels: constLabels,
			},
			[]string{"tier"},
		),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "misses_total",
			Help:        "Cache misses in both tiers",
			ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Entries leaving a tier by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		sizeEntries: gauge("strong_entries", "Entries resident in the strong tier"),
		sizeBytes:   gauge("strong_bytes", "Bytes held by the strong tier"),
		weakEntries: gauge("weak_entries", "Entries in the weak tier"),
		weakBytes:   gauge("weak_bytes", "Bytes of distinct bitmaps referenced by the weak tier"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEntries, a.sizeBytes, a.weakEntries, a.weakBytes)
	return a
}

// Hit increments the hit counter for the serving tier.
func (a *Adapter) Hit(t cache.Tier) { a.hits.WithLabelValues(t.String()).Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r cache.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// Size updates the strong tier gauges.
func (a *Adapter) Size(entries int, bytes int64) {
	a.sizeEntries.Set(float64(entries))
	a.sizeBytes.Set(float64(bytes))
}

// WeakSize updates the weak tier gauges.
func (a *Adapter) WeakSize(entries int, bytes int64) {
	a.weakEntries.Set(float64(entries))
	a.weakBytes.Set(float64(bytes))
}

// Compile-time check: ensure Adapter implements cache.Metrics.
var _ cache.Metrics = (*Adapter)(nil)
