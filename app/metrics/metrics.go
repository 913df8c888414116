package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "course_payments"

const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeTransport = "transport_error"
	OutcomeError     = "error"
)

// Collector owns the service metrics on a private registry. A nil Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	gatewayRequests *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	verifications   *prometheus.CounterVec
	promotions      prometheus.Counter
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		gatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Payment gateway calls by gateway, operation and outcome.",
		}, []string{"gateway", "operation", "outcome"}),
		gatewayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway", "operation"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Payment verifications by result.",
		}, []string{"outcome"}),
		promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollments_promoted_total",
			Help:      "Enrollments moved to paid.",
		}),
	}

	c.registry.MustRegister(
		c.gatewayRequests,
		c.gatewayDuration,
		c.verifications,
		c.promotions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

func (c *Collector) ObserveGatewayRequest(gateway, operation, outcome string, latency time.Duration) {
	if c == nil {
		return
	}
	c.gatewayRequests.WithLabelValues(gateway, operation, outcome).Inc()
	c.gatewayDuration.WithLabelValues(gateway, operation).Observe(latency.Seconds())
}

func (c *Collector) IncVerification(outcome string) {
	if c == nil {
		return
	}
	c.verifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) IncEnrollmentPromoted() {
	if c == nil {
		return
	}
	c.promotions.Inc()
}
