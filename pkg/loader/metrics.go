package loader

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the loader collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests      *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	CacheEntries  prometheus.Gauge
}

// NewMetrics creates the loader collectors; call Register to expose them
func NewMetrics() *Metrics {
	return &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "jsonld",
				Subsystem: "loader",
				Name:      "requests_total",
				Help:      "Document loads by source (network or cache) and outcome",
			},
			[]string{"source", "status"},
		),

		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "jsonld",
				Subsystem: "loader",
				Name:      "fetch_duration_seconds",
				Help:      "Network fetch duration in seconds, redirects included",
				Buckets:   prometheus.DefBuckets,
			},
		),

		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "jsonld",
				Subsystem: "loader",
				Name:      "memory_cache_entries",
				Help:      "Documents held by the in-memory cache",
			},
		),
	}
}

// Register adds every collector to reg
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if m == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{m.Requests, m.FetchDuration, m.CacheEntries} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) recordRequest(source, status string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(source, status).Inc()
}

func (m *Metrics) recordFetch(start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) setCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}
