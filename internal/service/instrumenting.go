package service

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/prometheus/client_golang/prometheus"

	"ohlcv-analyst/internal/agents"
)

// Metric names.
const (
	MetricsNamespace    = "analyst"
	MetricsSubsystem    = "chat"
	MetricsNameCount    = "request_count"
	MetricsNameDuration = "request_duration_seconds"
)

// Metrics holds the request counter and duration histogram.
type Metrics struct {
	RequestCount    metrics.Counter
	RequestDuration metrics.Histogram
}

// NewMetrics creates the service metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	labels := []string{"method", "error"}
	count := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      MetricsNameCount,
		Help:      "Number of chat requests received.",
	}, labels)
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystem,
		Name:      MetricsNameDuration,
		Help:      "Total duration of chat requests in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, labels)
	reg.MustRegister(count, duration)

	return &Metrics{
		RequestCount:    kitprometheus.NewCounter(count),
		RequestDuration: kitprometheus.NewHistogram(duration),
	}
}

// instrumentingMiddleware wraps Service and enables request metrics
type instrumentingMiddleware struct {
	reqCount    metrics.Counter
	reqDuration metrics.Histogram
	svc         Service
}

func (s *instrumentingMiddleware) Ask(ctx context.Context, query string) (cot *agents.ChainOfThought, err error) {
	defer func(begin time.Time) {
		s.recordMetrics("Ask", begin, err)
	}(time.Now())
	return s.svc.Ask(ctx, query)
}

func (s *instrumentingMiddleware) recordMetrics(method string, startTime time.Time, err error) {
	labels := []string{
		"method", method,
		"error", strconv.FormatBool(err != nil),
	}
	s.reqCount.With(labels...).Add(1)
	s.reqDuration.With(labels...).Observe(time.Since(startTime).Seconds())
}

// NewInstrumentingMiddleware records count and duration of every call.
func NewInstrumentingMiddleware(m *Metrics, svc Service) Service {
	return &instrumentingMiddleware{
		reqCount:    m.RequestCount,
		reqDuration: m.RequestDuration,
		svc:         svc,
	}
}
