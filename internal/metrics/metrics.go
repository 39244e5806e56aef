package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry  *prometheus.Registry
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	Payments  *prometheus.CounterVec
	Refunds   *prometheus.CounterVec
	Voids     *prometheus.CounterVec
	Variance  *prometheus.HistogramVec
}

func New() *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpoint",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tillpoint",
		Subsystem: "http",
		Name:      "request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"handler"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpoint",
		Subsystem: "checkout",
		Name:      "payments_total",
		Help:      "Payments attempted, by method and outcome.",
	}, []string{"method", "outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpoint",
		Subsystem: "ledger",
		Name:      "refunds_total",
		Help:      "Refunds attempted, by method and outcome.",
	}, []string{"method", "outcome"})
	voids := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tillpoint",
		Subsystem: "ledger",
		Name:      "voids_total",
		Help:      "Voids attempted, by outcome.",
	}, []string{"outcome"})
	variance := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "tillpoint",
		Subsystem: "shift",
		Name:      "cash_variance_cents",
		Help:      "Absolute cash drawer variance at end of day, in cents.",
		Buckets:   []float64{0, 25, 100, 500, 1000, 5000, 10000},
	}, []string{"direction"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(requests, latency, payments, refunds, voids, variance)
	return &Metrics{
		registry:  registry,
		Requests:  requests,
		LatencyMS: latency,
		Payments:  payments,
		Refunds:   refunds,
		Voids:     voids,
		Variance:  variance,
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(handler string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) ObservePayment(method string, outcome string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveRefund(method string, outcome string) {
	if m == nil {
		return
	}
	m.Refunds.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveVoid(outcome string) {
	if m == nil {
		return
	}
	m.Voids.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveVariance(differenceCents int64) {
	if m == nil {
		return
	}
	direction := "balanced"
	switch {
	case differenceCents > 0:
		direction = "over"
	case differenceCents < 0:
		direction = "short"
		differenceCents = -differenceCents
	}
	m.Variance.WithLabelValues(direction).Observe(float64(differenceCents))
}
