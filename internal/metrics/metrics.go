// Package metrics exposes the assistant's Prometheus collectors.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// Collector bundles the query, snapshot and polling metrics. A nil
// *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	Queries        *prometheus.CounterVec
	QueryDurations *prometheus.HistogramVec
	SnapshotRows   *prometheus.GaugeVec
	Traffic        prometheus.Gauge
	PollErrors     *prometheus.CounterVec
}

// New registers the collectors against reg, defaulting to the global
// Prometheus registry when nil.
func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	queries, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_queries_total",
		Help: "Answered queries, labeled by kind and outcome (found, not_found, unavailable).",
	}, []string{"kind", "outcome"}), "assistant_queries_total")
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "assistant_query_duration_seconds",
		Help:    "Query answer latency in seconds.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"kind"}), "assistant_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	rows, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "assistant_snapshot_rows",
		Help: "Rows per table in the current reference snapshot.",
	}, []string{"kind"}), "assistant_snapshot_rows")
	if err != nil {
		return nil, err
	}

	traffic, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "assistant_traffic_aircraft",
		Help: "Aircraft in the current live traffic set.",
	}), "assistant_traffic_aircraft")
	if err != nil {
		return nil, err
	}

	pollErrors, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "assistant_poll_errors_total",
		Help: "Failed polling cycles, labeled by loop.",
	}, []string{"loop"}), "assistant_poll_errors_total")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:       gatherer,
		Queries:        queries,
		QueryDurations: durations,
		SnapshotRows:   rows,
		Traffic:        traffic,
		PollErrors:     pollErrors,
	}, nil
}

// ObserveQuery records one answered query.
func (c *Collector) ObserveQuery(kind, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Queries.WithLabelValues(kind, outcome).Inc()
	c.QueryDurations.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// SetSnapshot publishes the row counts of s.
func (c *Collector) SetSnapshot(s *reference.Snapshot) {
	if c == nil {
		return
	}
	for kind, n := range s.Counts() {
		c.SnapshotRows.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// SetTraffic publishes the size of the live traffic set.
func (c *Collector) SetTraffic(n int) {
	if c == nil {
		return
	}
	c.Traffic.Set(float64(n))
}

// PollFailed counts a failed cycle of the named loop.
func (c *Collector) PollFailed(loop string) {
	if c == nil {
		return
	}
	c.PollErrors.WithLabelValues(loop).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	if c == nil || c.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// register adds col to reg, reusing an existing collector of the same type
// so that tests and restarts can share the default registry.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
