package airspace

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/flightaware"
	"github.com/unklstewy/airspace-assistant/pkg/query"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

var toulouse = coordinates.Geographic{Latitude: 43.6293, Longitude: 1.3638}

// fakeSource is an in-memory adsb.DataSource.
type fakeSource struct {
	mu       sync.Mutex
	aircraft []adsb.Aircraft
	err      error
	calls    int
}

func (f *fakeSource) set(aircraft []adsb.Aircraft, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aircraft = aircraft
	f.err = err
}

func (f *fakeSource) GetAircraft(_ context.Context, _ coordinates.Geographic, _ float64) ([]adsb.Aircraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]adsb.Aircraft(nil), f.aircraft...), nil
}

func (f *fakeSource) GetAircraftByICAO(_ context.Context, icao string) (*adsb.Aircraft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	for _, ac := range f.aircraft {
		if strings.EqualFold(ac.ICAO, icao) {
			return &ac, nil
		}
	}
	return nil, nil
}

func (f *fakeSource) Close() error { return nil }

type staticReference struct{ snap *reference.Snapshot }

func (s staticReference) Current() *reference.Snapshot { return s.snap }

type recordingMetrics struct {
	mu       sync.Mutex
	failures map[string]int
	traffic  int
}

func (m *recordingMetrics) PollFailed(loop string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[loop]++
}

func (m *recordingMetrics) SetTraffic(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.traffic = n
}

type recordingSink struct {
	mu           sync.Mutex
	surroundings []Surroundings
	flights      []query.FlightData
}

func (s *recordingSink) PublishSurroundings(_ context.Context, v Surroundings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surroundings = append(s.surroundings, v)
	return nil
}

func (s *recordingSink) PublishFlight(_ context.Context, f query.FlightData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights = append(s.flights, f)
	return nil
}

type fakeFlights struct {
	flight *flightaware.Flight
	err    error
	asked  []string
}

func (f *fakeFlights) GetFlightByCallsign(_ context.Context, callsign string) (*flightaware.Flight, error) {
	f.asked = append(f.asked, callsign)
	return f.flight, f.err
}

func testSnapshot() *reference.Snapshot {
	return reference.NewSnapshot(reference.Tables{
		Airports: []reference.Airport{
			{ICAO: "LFBO", Name: "Toulouse-Blagnac", Position: toulouse},
			{ICAO: "LFPG", Name: "Paris Charles de Gaulle", Position: coordinates.Geographic{Latitude: 49.0097, Longitude: 2.5479}},
		},
		Runways: []reference.Runway{
			{AirportICAO: "LFBO", Ident: "14R", Begin: coordinates.Geographic{Latitude: 43.64, Longitude: 1.35}},
			{AirportICAO: "LFPG", Ident: "09L", Begin: coordinates.Geographic{Latitude: 49.02, Longitude: 2.52}},
		},
		Frequencies: []reference.Frequency{
			{AirportICAO: "LFBO", Type: "ATIS", MHz: 123.125},
			{AirportICAO: "LFBO", Type: "TWR", MHz: 118.1},
			{AirportICAO: "LFPG", Type: "TWR", MHz: 119.25},
		},
		Navaids: []reference.Navaid{
			{Ident: "TOU", Type: "VOR-DME", Position: coordinates.Geographic{Latitude: 43.68, Longitude: 1.31}},
		},
		Waypoints: []reference.Waypoint{
			{Ident: "FISTO", Position: coordinates.Geographic{Latitude: 43.9, Longitude: 1.1}},
			{Ident: "LUMAN", Position: coordinates.Geographic{Latitude: 48.8, Longitude: 2.4}},
		},
	})
}

func testTraffic() []adsb.Aircraft {
	return []adsb.Aircraft{
		{ICAO: "4CA2B1", Callsign: "EIN123 ", Registration: "EI-DEA", Latitude: 43.7, Longitude: 1.4, GroundSpeed: 250},
		{ICAO: "3944EF", Callsign: "AFR61CT", Latitude: 43.5, Longitude: 1.2},
		{ICAO: "400A1B", Callsign: "", Registration: "G-EZAA", Latitude: 48.9, Longitude: 2.5},
		{ICAO: "000000", Callsign: "NOPOS"},
	}
}

func TestTrafficStore(t *testing.T) {
	store := NewTrafficStore()
	if store.Aircraft() != nil || !store.UpdatedAt().IsZero() {
		t.Fatal("new store should be empty")
	}

	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store.Replace(testTraffic(), at)
	if len(store.Aircraft()) != 4 || !store.UpdatedAt().Equal(at) {
		t.Errorf("Replace() not visible: %d aircraft at %v", len(store.Aircraft()), store.UpdatedAt())
	}

	ac, ok := store.Find("ein123")
	if !ok || ac.ICAO != "4CA2B1" {
		t.Errorf("Find(callsign) = %+v, %v", ac, ok)
	}
	if _, ok := store.Find("ABCDEF"); ok {
		t.Error("Find() matched an unknown aircraft")
	}
}

func TestTrafficStoreSearch(t *testing.T) {
	store := NewTrafficStore()
	store.Replace(testTraffic(), time.Now())

	tests := []struct {
		name    string
		partial string
		limit   int
		want    []Suggestion
	}{
		{"callsign", "afr", 0, []Suggestion{{ID: "3944EF", Label: "AFR61CT"}}},
		{"registration in label", "ei-", 0, []Suggestion{{ID: "4CA2B1", Label: "EIN123 (EI-DEA)"}}},
		{"icao when no callsign", "400a", 0, []Suggestion{{ID: "400A1B", Label: "400A1B (G-EZAA)"}}},
		{"sorted and limited", "4", 2, []Suggestion{
			{ID: "400A1B", Label: "400A1B (G-EZAA)"},
			{ID: "3944EF", Label: "AFR61CT"},
		}},
		{"blank", "  ", 0, nil},
		{"no match", "XYZ", 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := store.Search(tt.partial, tt.limit)
			if len(got) != len(tt.want) {
				t.Fatalf("Search(%q) = %+v, want %+v", tt.partial, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Search(%q)[%d] = %+v, want %+v", tt.partial, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuildStatic(t *testing.T) {
	static := BuildStatic(testSnapshot(), toulouse, 50)

	if len(static.Airports) != 1 || static.Airports[0].ICAO != "LFBO" {
		t.Fatalf("Airports = %+v, want LFBO only", static.Airports)
	}
	if freqs := static.Airports[0].Frequencies; len(freqs) != 2 || freqs[0].Type != "ATIS" {
		t.Errorf("LFBO frequencies = %+v", freqs)
	}
	if len(static.Runways) != 1 || len(static.Navaids) != 1 || len(static.Waypoints) != 1 {
		t.Errorf("box filter: %d runways, %d navaids, %d waypoints",
			len(static.Runways), len(static.Navaids), len(static.Waypoints))
	}

	s := static.WithTraffic(testTraffic(), time.Now())
	if s.NumberFlights != 2 {
		t.Errorf("NumberFlights = %d, want the 2 aircraft inside the box", s.NumberFlights)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"number_flights":2`) || !strings.Contains(string(data), `"frequencies"`) {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestBuildStaticWithoutSnapshot(t *testing.T) {
	static := BuildStatic(nil, toulouse, 50)
	if len(static.Airports) != 0 || len(static.Runways) != 0 {
		t.Errorf("nil snapshot should give empty surroundings, got %+v", static)
	}
}

func newTestWorker(t *testing.T, source *fakeSource, sink *recordingSink, m *recordingMetrics) (*AirspaceWorker, *TrafficStore) {
	t.Helper()
	store := NewTrafficStore()
	w, err := NewAirspaceWorker(WorkerConfig{
		Source:    source,
		Reference: staticReference{testSnapshot()},
		Store:     store,
		Center:    toulouse,
		RadiusNM:  50,
		Interval:  time.Hour,
		Metrics:   m,
		Sinks:     []Sink{sink},
	})
	if err != nil {
		t.Fatalf("NewAirspaceWorker() error = %v", err)
	}
	return w, store
}

func TestNewAirspaceWorkerRequiresCollaborators(t *testing.T) {
	if _, err := NewAirspaceWorker(WorkerConfig{}); err == nil {
		t.Error("Expected error without source")
	}
}

func TestAirspaceWorkerUpdate(t *testing.T) {
	source := &fakeSource{aircraft: testTraffic()}
	sink := &recordingSink{}
	m := &recordingMetrics{}
	w, store := newTestWorker(t, source, sink, m)

	w.update(context.Background())

	if got := len(store.Aircraft()); got != 3 {
		t.Errorf("store holds %d aircraft, want 3 (no-position dropped)", got)
	}
	if m.traffic != 3 {
		t.Errorf("SetTraffic(%d), want 3", m.traffic)
	}
	if len(sink.surroundings) != 1 || sink.surroundings[0].NumberFlights != 2 {
		t.Fatalf("sink got %+v", sink.surroundings)
	}
	if latest := w.Latest(); latest.NumberFlights != 2 || len(latest.Airports) != 1 {
		t.Errorf("Latest() = %d flights, %d airports", latest.NumberFlights, len(latest.Airports))
	}
}

func TestAirspaceWorkerFailureKeepsTraffic(t *testing.T) {
	source := &fakeSource{aircraft: testTraffic()}
	sink := &recordingSink{}
	m := &recordingMetrics{}
	w, store := newTestWorker(t, source, sink, m)

	w.update(context.Background())
	source.set(nil, errors.New("connection refused"))
	w.update(context.Background())

	if m.failures[LoopAirspace] != 1 {
		t.Errorf("PollFailed(%q) called %d times, want 1", LoopAirspace, m.failures[LoopAirspace])
	}
	if len(store.Aircraft()) != 3 {
		t.Error("failed poll should keep the previous traffic")
	}
	if len(sink.surroundings) != 1 {
		t.Errorf("failed poll published %d surroundings", len(sink.surroundings)-1)
	}
}

func TestAirspaceWorkerDiscardsResultAfterCancel(t *testing.T) {
	source := &fakeSource{aircraft: testTraffic()}
	sink := &recordingSink{}
	w, store := newTestWorker(t, source, sink, &recordingMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.update(ctx)

	if store.Aircraft() != nil || len(sink.surroundings) != 0 {
		t.Error("update after cancel should not publish")
	}
}

func TestAirspaceWorkerSetCenter(t *testing.T) {
	source := &fakeSource{aircraft: testTraffic()}
	w, _ := newTestWorker(t, source, &recordingSink{}, &recordingMetrics{})
	w.update(context.Background())

	paris := coordinates.Geographic{Latitude: 49.0097, Longitude: 2.5479}
	w.SetCenter(paris)

	if w.Center() != paris {
		t.Errorf("Center() = %v", w.Center())
	}
	latest := w.Latest()
	if len(latest.Airports) != 1 || latest.Airports[0].ICAO != "LFPG" {
		t.Errorf("Airports after SetCenter = %+v, want LFPG", latest.Airports)
	}
	if latest.NumberFlights != 1 {
		t.Errorf("NumberFlights after SetCenter = %d, want 1", latest.NumberFlights)
	}
}

func TestAirspaceWorkerRunStops(t *testing.T) {
	source := &fakeSource{aircraft: testTraffic()}
	w, store := newTestWorker(t, source, &recordingSink{}, &recordingMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for store.Aircraft() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
	if store.Aircraft() == nil {
		t.Error("Run() should fetch once at start")
	}
}

func newTestFollower(t *testing.T, source *fakeSource, flights FlightInfo, clock *time.Time, sink *recordingSink) (*Follower, *recordingMetrics) {
	t.Helper()
	store := NewTrafficStore()
	store.Replace(testTraffic(), *clock)
	m := &recordingMetrics{}
	f, err := NewFollower(FollowerConfig{
		Source:   source,
		Flights:  flights,
		Store:    store,
		Interval: time.Hour,
		Metrics:  m,
		Sinks:    []FlightSink{sink},
		Now:      func() time.Time { return *clock },
	})
	if err != nil {
		t.Fatalf("NewFollower() error = %v", err)
	}
	return f, m
}

func TestFollowerFollow(t *testing.T) {
	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	eta := clock.Add(45 * time.Minute)
	flights := &fakeFlights{flight: &flightaware.Flight{
		Ident:        "EIN123",
		Registration: "EI-DEA",
		AircraftType: "A320",
		Origin:       flightaware.Airport{ICAO: "EIDW", Name: "Dublin"},
		Destination:  flightaware.Airport{ICAO: "LFBO", Name: "Toulouse-Blagnac"},
		EstimatedOn:  &eta,
	}}
	source := &fakeSource{aircraft: testTraffic()}
	sink := &recordingSink{}
	f, _ := newTestFollower(t, source, flights, &clock, sink)

	data, err := f.Follow(context.Background(), "ein123")
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	if !data.IsFollowing || data.ID != "4CA2B1" {
		t.Errorf("Follow() = %+v", data)
	}
	if data.OriginICAO != "EIDW" || data.Destination != "Toulouse-Blagnac" || data.Model != "A320" {
		t.Errorf("static data not merged: %+v", data)
	}
	if data.ETA == nil || !data.ETA.Equal(eta) {
		t.Errorf("ETA = %v, want %v", data.ETA, eta)
	}
	if data.Speed == nil || *data.Speed != 250 {
		t.Errorf("Speed = %v, want 250", data.Speed)
	}
	if len(flights.asked) != 1 {
		t.Errorf("flight lookups = %v", flights.asked)
	}
	if icao, ok := f.Following(); !ok || icao != "4CA2B1" {
		t.Errorf("Following() = %q, %v", icao, ok)
	}
	if len(sink.flights) != 1 {
		t.Errorf("sink got %d flights, want 1", len(sink.flights))
	}
	if got := f.Current(); got.ID != data.ID || !got.IsFollowing {
		t.Errorf("Current() = %+v", got)
	}
}

func TestFollowerFollowUnknown(t *testing.T) {
	clock := time.Now()
	f, _ := newTestFollower(t, &fakeSource{}, nil, &clock, &recordingSink{})

	tests := []string{"", "ABCDEF"}
	for _, id := range tests {
		t.Run(id, func(t *testing.T) {
			if _, err := f.Follow(context.Background(), id); !errors.Is(err, ErrNotTracked) {
				t.Errorf("Follow(%q) error = %v, want ErrNotTracked", id, err)
			}
		})
	}
	if _, ok := f.Following(); ok {
		t.Error("failed Follow should not start following")
	}
}

func TestFollowerFlightLookupFailure(t *testing.T) {
	clock := time.Now()
	flights := &fakeFlights{err: errors.New("rate limited")}
	f, _ := newTestFollower(t, &fakeSource{aircraft: testTraffic()}, flights, &clock, &recordingSink{})

	data, err := f.Follow(context.Background(), "3944EF")
	if err != nil {
		t.Fatalf("Follow() error = %v", err)
	}
	if data.OriginICAO != "" || data.Callsign != "AFR61CT" {
		t.Errorf("Follow() = %+v", data)
	}
}

func TestFollowerPollDeadReckoning(t *testing.T) {
	t0 := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := t0
	source := &fakeSource{aircraft: []adsb.Aircraft{
		{ICAO: "4CA2B1", Callsign: "EIN123", Latitude: 43.0, Longitude: 1.0,
			GroundSpeed: 360, Track: 0, Altitude: 10000, LastSeen: t0},
	}}
	sink := &recordingSink{}
	f, m := newTestFollower(t, source, nil, &clock, sink)

	if _, err := f.Follow(context.Background(), "4CA2B1"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	// The feed loses the aircraft: 10 s at 360 kt is 1 nm north
	source.set(nil, nil)
	clock = t0.Add(10 * time.Second)
	f.poll(context.Background())

	got := f.Current()
	if got.Latitude == nil || math.Abs(*got.Latitude-(43.0+1.0/60.0)) > 1e-3 {
		t.Errorf("dead reckoned latitude = %v, want about %.4f", got.Latitude, 43.0+1.0/60.0)
	}
	if !got.IsFollowing {
		t.Error("dead reckoned data should still be following")
	}
	if len(sink.flights) != 2 {
		t.Errorf("sink got %d flights, want 2", len(sink.flights))
	}

	// Past the prediction horizon the last position is kept
	clock = t0.Add(5 * time.Minute)
	f.poll(context.Background())
	if after := f.Current(); *after.Latitude != *got.Latitude {
		t.Errorf("lost aircraft moved to %v", *after.Latitude)
	}

	source.set(nil, errors.New("connection reset"))
	f.poll(context.Background())
	if m.failures[LoopFollow] != 1 {
		t.Errorf("PollFailed(%q) = %d, want 1", LoopFollow, m.failures[LoopFollow])
	}
}

func TestFollowerPollUpdates(t *testing.T) {
	clock := time.Now()
	source := &fakeSource{aircraft: testTraffic()}
	f, _ := newTestFollower(t, source, nil, &clock, &recordingSink{})
	if _, err := f.Follow(context.Background(), "3944EF"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	moved := testTraffic()
	moved[1].Latitude = 44.0
	source.set(moved, nil)
	f.poll(context.Background())

	if got := f.Current(); *got.Latitude != 44.0 {
		t.Errorf("Latitude after poll = %v, want 44", *got.Latitude)
	}
}

func TestFollowerUnfollow(t *testing.T) {
	clock := time.Now()
	source := &fakeSource{aircraft: testTraffic()}
	f, _ := newTestFollower(t, source, nil, &clock, &recordingSink{})
	if _, err := f.Follow(context.Background(), "3944EF"); err != nil {
		t.Fatalf("Follow() error = %v", err)
	}

	f.Unfollow()
	if got := f.Current(); got.IsFollowing || got.ID != "" {
		t.Errorf("Current() after Unfollow = %+v", got)
	}
	f.poll(context.Background())
	f.Unfollow()
}

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestNATSPublisher(t *testing.T) {
	conn := &recordingConn{}
	p := newNATSPublisher(conn, "airspace.surroundings")
	defer p.Close()

	s := BuildStatic(testSnapshot(), toulouse, 50).WithTraffic(testTraffic(), time.Now())
	if err := p.PublishSurroundings(context.Background(), s); err != nil {
		t.Fatalf("PublishSurroundings() error = %v", err)
	}
	if err := p.PublishFlight(context.Background(), query.FlightData{ID: "4CA2B1", IsFollowing: true}); err != nil {
		t.Fatalf("PublishFlight() error = %v", err)
	}

	want := []string{"airspace.surroundings", "airspace.surroundings.flight"}
	if len(conn.subjects) != 2 || conn.subjects[0] != want[0] || conn.subjects[1] != want[1] {
		t.Fatalf("subjects = %v, want %v", conn.subjects, want)
	}

	var decoded struct {
		NumberFlights int `json:"number_flights"`
	}
	if err := json.Unmarshal(conn.payloads[0], &decoded); err != nil || decoded.NumberFlights != 2 {
		t.Errorf("surroundings payload = %s (%v)", conn.payloads[0], err)
	}

	conn.err = errors.New("nats: connection closed")
	if err := p.PublishFlight(context.Background(), query.FlightData{}); err == nil {
		t.Error("Expected publish error")
	}
}
