package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the portal's HTTP and lifecycle metrics.
type Recorder struct {
	requests    *prometheus.HistogramVec
	transitions *prometheus.CounterVec
}

// New registers the metrics on reg. A nil reg yields a no-op recorder.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		return &Recorder{}
	}
	requests := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_transitions_total",
		Help: "State transitions applied to policies, claims and requests.",
	}, []string{"entity", "action"})
	reg.MustRegister(requests, transitions)
	return &Recorder{requests: requests, transitions: transitions}
}

// Transition counts one applied state change.
func (r *Recorder) Transition(entity, action string) {
	if r == nil || r.transitions == nil {
		return
	}
	r.transitions.WithLabelValues(normalizeLabel(entity), normalizeLabel(action)).Inc()
}

// Middleware observes request latency labelled by the matched route pattern.
func (r *Recorder) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if r == nil || r.requests == nil {
			return c.Next()
		}
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		route := "unmatched"
		if rt := c.Route(); rt != nil && rt.Path != "" {
			route = rt.Path
		}
		r.requests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
		return err
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
