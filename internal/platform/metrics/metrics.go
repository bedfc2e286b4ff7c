// Package metrics holds the Prometheus collectors of the partitions service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics owns a private registry so tests can build as many as they like.
// The zero value and nil are valid and record nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	resolutions       *prometheus.CounterVec
	resolutionLatency *prometheus.HistogramVec
	plansBuilt        *prometheus.CounterVec
	partitionBytes    *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assets_http_requests_total",
				Help: "HTTP requests served by method and status code.",
			},
			[]string{"method", "code"},
		),
		resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assets_partition_resolutions_total",
				Help: "Partition range resolutions by direction and outcome.",
			},
			[]string{"direction", "outcome"},
		),
		resolutionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assets_partition_resolution_duration_seconds",
				Help:    "Time taken to resolve a partition range across one edge.",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
			[]string{"direction"},
		),
		plansBuilt: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assets_execution_plans_total",
				Help: "Execution plans built by job and outcome.",
			},
			[]string{"job", "outcome"},
		),
		partitionBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assets_partition_io_bytes_total",
				Help: "Encoded partition bytes moved through the IO manager.",
			},
			[]string{"op"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.resolutions,
		m.resolutionLatency,
		m.plansBuilt,
		m.partitionBytes,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP matches httpserver.RequestObserver.
func (m *Metrics) ObserveHTTP(method string, status int, _ time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func (m *Metrics) ObserveResolution(direction string, err error, elapsed time.Duration) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(direction, outcome(err)).Inc()
	m.resolutionLatency.WithLabelValues(direction).Observe(elapsed.Seconds())
}

func (m *Metrics) ObservePlan(job string, err error) {
	if m == nil || m.plansBuilt == nil {
		return
	}
	m.plansBuilt.WithLabelValues(job, outcome(err)).Inc()
}

// ObservePartitionBytes implements iomanager.Observer.
func (m *Metrics) ObservePartitionBytes(op string, n int) {
	if m == nil || m.partitionBytes == nil {
		return
	}
	m.partitionBytes.WithLabelValues(op).Add(float64(n))
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
