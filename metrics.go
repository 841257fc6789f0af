package geoartifacts

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "geoartifacts"

// cacheMetrics counts cache and download activity per provider.
type cacheMetrics struct {
	Hits             *prometheus.CounterVec
	Misses           *prometheus.CounterVec
	DownloadErrors   *prometheus.CounterVec
	DownloadBytes    *prometheus.CounterVec
	DownloadDuration *prometheus.HistogramVec
}

// newCacheMetrics registers the cache collectors on reg. A nil reg gets a
// private registry so that several clients can coexist in one process.
func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &cacheMetrics{
		Hits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_hits_total",
				Help:      "Resources served from the local cache",
			},
			[]string{"provider"},
		),
		Misses: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cache_misses_total",
				Help:      "Resources that had to be downloaded",
			},
			[]string{"provider"},
		),
		DownloadErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "download_errors_total",
				Help:      "Failed downloads",
			},
			[]string{"provider"},
		),
		DownloadBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "download_bytes_total",
				Help:      "Bytes written to the cache by downloads",
			},
			[]string{"provider"},
		),
		DownloadDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "download_duration_seconds",
				Help:      "Download duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider"},
		),
	}
}
