package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "engagement"

// Metrics holds the collector's prometheus collectors.
type Metrics struct {
	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ingestion
	RecordsTotal    *prometheus.CounterVec
	BatchSize       *prometheus.HistogramVec
	PublishFailures prometheus.Counter
}

// NewMetrics registers every collector on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.RequestsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	m.RequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "route"})

	m.RecordsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_records_total",
		Help:      "Tracked records received, by kind and outcome",
	}, []string{"kind", "outcome"})

	m.BatchSize = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "ingest_batch_size",
		Help:      "Records per ingestion request",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
	}, []string{"kind"})

	m.PublishFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "kafka_publish_failures_total",
		Help:      "Accepted events that could not be published to kafka",
	})

	return m
}

func (m *Metrics) ObserveIngest(kind string, accepted, rejected int) {
	m.RecordsTotal.WithLabelValues(kind, "accepted").Add(float64(accepted))
	m.RecordsTotal.WithLabelValues(kind, "rejected").Add(float64(rejected))
	m.BatchSize.WithLabelValues(kind).Observe(float64(accepted + rejected))
}

func (m *Metrics) ObservePublishFailure() {
	m.PublishFailures.Inc()
}

// Middleware records every request under its route template, so path
// parameters do not explode label cardinality.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
