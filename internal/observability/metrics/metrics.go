// Package metrics provides Prometheus instrumentation for crowdfund-deploy.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Pipeline metrics
	stepTotal         *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
	gasUsedTotal      *prometheus.CounterVec
	tiersSeededTotal  prometheus.Counter
	confirmationPolls prometheus.Histogram
	verificationTotal *prometheus.CounterVec
)

// Init initializes the metrics system. Each call starts a fresh registry.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		registry = nil
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	constLabels := prometheus.Labels{"service": svcName}

	httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: constLabels,
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request latency in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"method", "path"},
	)

	// Pipeline step outcomes: ok, failed, skipped
	stepTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "crowdfund_step_total",
			Help:        "Total number of pipeline steps by outcome",
			ConstLabels: constLabels,
		},
		[]string{"step", "result"},
	)

	stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "crowdfund_step_duration_seconds",
			Help:        "Pipeline step latency in seconds",
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
		[]string{"step"},
	)

	gasUsedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "crowdfund_gas_used_total",
			Help:        "Gas consumed by mined transactions",
			ConstLabels: constLabels,
		},
		[]string{"step"},
	)

	tiersSeededTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name:        "crowdfund_tiers_seeded_total",
			Help:        "Total number of tiers added to deployed campaigns",
			ConstLabels: constLabels,
		},
	)

	confirmationPolls = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "crowdfund_confirmation_polls",
			Help:        "Block height polls needed to reach the confirmation depth",
			Buckets:     prometheus.LinearBuckets(1, 2, 10),
			ConstLabels: constLabels,
		},
	)

	verificationTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "crowdfund_verification_total",
			Help:        "Total number of explorer verification outcomes",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// WriteTextfile writes the current metrics in the node_exporter textfile
// collector format. It is a no-op when metrics are disabled.
func WriteTextfile(path string) error {
	if !enabled || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, registry)
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
