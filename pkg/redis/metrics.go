package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

var (
	redisRequestsTotal   *prometheus.CounterVec
	redisErrorsTotal     *prometheus.CounterVec
	redisRequestDuration *prometheus.HistogramVec
)

func init() {
	redisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_requests_total",
			Help: "Total number of Redis requests by method.",
		},
		[]string{"method"},
	)
	redisErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_errors_total",
			Help: "Total number of Redis errors by method.",
		},
		[]string{"method"},
	)
	redisRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_request_duration_seconds",
			Help:    "Redis request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	prometheus.MustRegister(redisRequestsTotal, redisErrorsTotal, redisRequestDuration)
}

// MetricsClient wraps Client to collect Prometheus metrics.
type MetricsClient struct {
	next *Client
}

// NewMetricsClient creates an instrumented Redis client.
func NewMetricsClient(next *Client) *MetricsClient {
	return &MetricsClient{next: next}
}

// Get instruments Client.Get.
func (m *MetricsClient) Get(ctx context.Context, key string) (string, error) {
	var result string
	err := Observe("get", func() error {
		var err error
		result, err = m.next.Get(ctx, key)
		return err
	})
	return result, err
}

// Set instruments Client.Set.
func (m *MetricsClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return Observe("set", func() error {
		return m.next.Set(ctx, key, value, ttl)
	})
}

// Delete instruments Client.Delete.
func (m *MetricsClient) Delete(ctx context.Context, key string) error {
	return Observe("delete", func() error {
		return m.next.Delete(ctx, key)
	})
}

// TxPipeline forwards to the underlying client.
func (m *MetricsClient) TxPipeline() goredis.Pipeliner {
	return m.next.TxPipeline()
}

// Close closes the underlying client.
func (m *MetricsClient) Close() error {
	return m.next.Close()
}

func record(method string, err error) {
	redisRequestsTotal.WithLabelValues(method).Inc()
	if err != nil {
		redisErrorsTotal.WithLabelValues(method).Inc()
	}
}

// Observe times a Redis operation and records it under method.
func Observe(method string, fn func() error) error {
	timer := prometheus.NewTimer(redisRequestDuration.WithLabelValues(method))
	err := fn()
	timer.ObserveDuration()
	record(method, err)
	return err
}
