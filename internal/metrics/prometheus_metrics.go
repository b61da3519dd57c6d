// Package metrics exposes the scan loop's Prometheus instrumentation,
// adapted from the teacher's PrometheusMetrics struct: same registration
// and HTTP-server lifecycle, renamed gauges/counters for the scan
// pipeline instead of exchange WebSocket ingestion.
package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScanMetrics handles all Prometheus metrics for the scan pipeline.
type ScanMetrics struct {
	ScanDuration      *prometheus.HistogramVec
	TokensScanned     *prometheus.CounterVec
	TokensSkipped     *prometheus.CounterVec
	SignalsEmitted    *prometheus.CounterVec
	SignalsSuppressed *prometheus.CounterVec
	TokenHealthScore  *prometheus.GaugeVec
	UpstreamRequests  *prometheus.CounterVec
	UpstreamLatency   *prometheus.HistogramVec
	CacheHits         *prometheus.CounterVec
	ServiceUptime     *prometheus.GaugeVec
	RedisOperations   *prometheus.CounterVec

	server *http.Server
}

// New creates a new ScanMetrics instance and registers it with the
// default Prometheus registry.
func New() *ScanMetrics {
	m := &ScanMetrics{
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexsurveil_scan_duration_seconds",
				Help:    "Duration of one full scan tick across all tracked tokens",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),

		TokensScanned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_tokens_scanned_total",
				Help: "Total number of tokens processed in a scan tick",
			},
			[]string{},
		),

		TokensSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_tokens_skipped_total",
				Help: "Total number of tokens skipped mid-pipeline, by reason",
			},
			[]string{"reason"},
		),

		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_signals_emitted_total",
				Help: "Total number of signals published to the chat sink",
			},
			[]string{"signal_kind"},
		),

		SignalsSuppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_signals_suppressed_total",
				Help: "Total number of signals withheld by the cooldown gate",
			},
			[]string{"signal_kind"},
		),

		TokenHealthScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexsurveil_token_health_score",
				Help: "Most recent health score observed for a token",
			},
			[]string{"token_address", "status"},
		),

		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_upstream_requests_total",
				Help: "Total requests made to external aggregator/holder APIs",
			},
			[]string{"provider", "status"},
		),

		UpstreamLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dexsurveil_upstream_latency_seconds",
				Help:    "Latency of external aggregator/holder API calls",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_analysis_cache_total",
				Help: "AnalysisEngine cache lookups, by hit/miss",
			},
			[]string{"outcome"},
		),

		ServiceUptime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dexsurveil_service_uptime_seconds",
				Help: "Service uptime in seconds",
			},
			[]string{"service"},
		),

		RedisOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dexsurveil_redis_operations_total",
				Help: "Total number of Redis operations, by outcome",
			},
			[]string{"operation", "status"},
		),
	}

	prometheus.MustRegister(
		m.ScanDuration,
		m.TokensScanned,
		m.TokensSkipped,
		m.SignalsEmitted,
		m.SignalsSuppressed,
		m.TokenHealthScore,
		m.UpstreamRequests,
		m.UpstreamLatency,
		m.CacheHits,
		m.ServiceUptime,
		m.RedisOperations,
	)

	return m
}

// Start starts the Prometheus metrics HTTP server.
func (m *ScanMetrics) Start(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	m.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Printf("metrics: serving Prometheus metrics on %s/metrics", addr)

	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics: server error: %v", err)
		}
	}()

	return nil
}

// Stop stops the Prometheus metrics server.
func (m *ScanMetrics) Stop() error {
	if m.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}

// RecordScanTick records the duration and outcome of one scan tick.
func (m *ScanMetrics) RecordScanTick(duration time.Duration, outcome string) {
	m.ScanDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordTokenSkipped records a token skipped mid-pipeline.
func (m *ScanMetrics) RecordTokenSkipped(reason string) {
	m.TokensSkipped.WithLabelValues(reason).Inc()
}

// RecordSignalEmitted records a signal published to the chat sink.
func (m *ScanMetrics) RecordSignalEmitted(signalKind string) {
	m.SignalsEmitted.WithLabelValues(signalKind).Inc()
}

// RecordSignalSuppressed records a signal withheld by the cooldown gate.
func (m *ScanMetrics) RecordSignalSuppressed(signalKind string) {
	m.SignalsSuppressed.WithLabelValues(signalKind).Inc()
}

// SetTokenHealthScore records the most recent health score for a token.
func (m *ScanMetrics) SetTokenHealthScore(tokenAddress, status string, score float64) {
	m.TokenHealthScore.WithLabelValues(tokenAddress, status).Set(score)
}

// RecordUpstreamRequest records a call to an external provider.
func (m *ScanMetrics) RecordUpstreamRequest(provider, status string, latency time.Duration) {
	m.UpstreamRequests.WithLabelValues(provider, status).Inc()
	m.UpstreamLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// RecordCacheLookup records an AnalysisEngine cache hit or miss.
func (m *ScanMetrics) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheHits.WithLabelValues(outcome).Inc()
}

// SetServiceUptime records the service's uptime.
func (m *ScanMetrics) SetServiceUptime(service string, uptime time.Duration) {
	m.ServiceUptime.WithLabelValues(service).Set(uptime.Seconds())
}

// RecordRedisOperation records a Redis operation outcome.
func (m *ScanMetrics) RecordRedisOperation(operation, status string) {
	m.RedisOperations.WithLabelValues(operation, status).Inc()
}
