package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, reg
}

func TestObserveQuery(t *testing.T) {
	c, _ := newTestCollector(t)

	c.ObserveQuery("nearestAirport", "found", 2*time.Millisecond)
	c.ObserveQuery("nearestAirport", "found", time.Millisecond)
	c.ObserveQuery("metarAtAirport", "unavailable", time.Second)

	if got := testutil.ToFloat64(c.Queries.WithLabelValues("nearestAirport", "found")); got != 2 {
		t.Errorf("assistant_queries_total{nearestAirport,found} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Queries.WithLabelValues("metarAtAirport", "unavailable")); got != 1 {
		t.Errorf("assistant_queries_total{metarAtAirport,unavailable} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.QueryDurations); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestSnapshotAndTrafficGauges(t *testing.T) {
	c, _ := newTestCollector(t)

	c.SetSnapshot(reference.NewSnapshot(reference.Tables{
		Airports: []reference.Airport{{ICAO: "LFBO"}, {ICAO: "LFPG"}},
		Runways:  []reference.Runway{{AirportICAO: "LFBO", Ident: "14R"}},
	}))
	c.SetTraffic(17)
	c.PollFailed("airspace")

	if got := testutil.ToFloat64(c.SnapshotRows.WithLabelValues(string(reference.KindAirport))); got != 2 {
		t.Errorf("airport rows = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.SnapshotRows.WithLabelValues(string(reference.KindWaypoint))); got != 0 {
		t.Errorf("waypoint rows = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.Traffic); got != 17 {
		t.Errorf("traffic = %v, want 17", got)
	}
	if got := testutil.ToFloat64(c.PollErrors.WithLabelValues("airspace")); got != 1 {
		t.Errorf("poll errors = %v, want 1", got)
	}
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	second, err := New(reg)
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	first.ObserveQuery("clear", "found", 0)
	if got := testutil.ToFloat64(second.Queries.WithLabelValues("clear", "found")); got != 1 {
		t.Errorf("shared counter = %v, want 1", got)
	}
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	c.ObserveQuery("eta", "found", time.Millisecond)
	c.SetTraffic(3)
	c.SetSnapshot(nil)
	c.PollFailed("follow")
}

func TestHandlerExposesMetrics(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveQuery("checklist", "not_found", time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`assistant_queries_total{kind="checklist",outcome="not_found"} 1`,
		"assistant_query_duration_seconds_bucket",
		"assistant_traffic_aircraft 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
