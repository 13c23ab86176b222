package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for the holiday service.
type Metrics struct {
	RefreshTotal      *prometheus.CounterVec   // labels: mode={model,manual}, outcome={success,error}
	NormalizeFallback *prometheus.CounterVec   // labels: path={model,manual}
	ProviderDuration  *prometheus.HistogramVec // labels: provider
	NewsFetchTotal    *prometheus.CounterVec   // labels: outcome={success,error}
	CacheRequests     *prometheus.CounterVec   // labels: op={get,put}, result={hit,miss,ok,error}
}

// NewMetrics creates the holiday metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holiday",
			Name:      "refresh_total",
			Help:      "Refresh requests by mode and outcome.",
		}, []string{"mode", "outcome"}),
		NormalizeFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holiday",
			Name:      "normalize_fallback_total",
			Help:      "Results that needed at least one default filled in.",
		}, []string{"path"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "holiday",
			Name:      "provider_duration_seconds",
			Help:      "Model provider call duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		NewsFetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holiday",
			Name:      "news_fetch_total",
			Help:      "News source fetches by outcome.",
		}, []string{"outcome"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holiday",
			Name:      "cache_requests_total",
			Help:      "Result cache operations by op and result.",
		}, []string{"op", "result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RefreshTotal,
			m.NormalizeFallback,
			m.ProviderDuration,
			m.NewsFetchTotal,
			m.CacheRequests,
		)
	}

	return m
}
