package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its registry so several routers (tests) can coexist.
type Collector struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// outcome is "applied" or "stale"
	Upserts *prometheus.CounterVec
	// outcome is "accepted" or "rejected", counted per incoming item
	SyncItems *prometheus.CounterVec
	Deletes   *prometheus.CounterVec
}

func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_upserts_total",
				Help:      "Single-item writes by collection and outcome",
			},
			[]string{"collection", "outcome"},
		),
		SyncItems: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_items_total",
				Help:      "Items received through sync by collection and merge outcome",
			},
			[]string{"collection", "outcome"},
		),
		Deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_deletes_total",
				Help:      "Items removed by delete",
			},
			[]string{"collection"},
		),
	}

	registry.MustRegister(
		c.HTTPRequests,
		c.HTTPDuration,
		c.Upserts,
		c.SyncItems,
		c.Deletes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

func (c *Collector) RecordHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) RecordUpsert(collection string, applied bool) {
	if applied {
		c.Upserts.WithLabelValues(collection, "applied").Inc()
		return
	}
	c.Upserts.WithLabelValues(collection, "stale").Inc()
}

func (c *Collector) RecordSync(collection string, accepted, rejected int) {
	c.SyncItems.WithLabelValues(collection, "accepted").Add(float64(accepted))
	c.SyncItems.WithLabelValues(collection, "rejected").Add(float64(rejected))
}

func (c *Collector) RecordDelete(collection string) {
	c.Deletes.WithLabelValues(collection).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
