package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/checklist"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
	"github.com/unklstewy/airspace-assistant/pkg/weather"
)

// Markers tell clients to render an Envelope specially.
const (
	MarkerMETAR     = "METAR"
	MarkerChecklist = "CHECKLIST"
	MarkerClear     = "CLEAR"
)

// Envelope is the answer to a query.
type Envelope struct {
	Kind    Kind    `json:"kind"`
	Text    string  `json:"text"`
	Outcome Outcome `json:"outcome"`

	// KindMarker and Args are set for answers with a structured payload
	KindMarker string `json:"kind_marker,omitempty"`
	Args       any    `json:"args,omitempty"`
}

// SnapshotSource returns the reference snapshot to answer against.
// *reference.Index satisfies it.
type SnapshotSource interface {
	Current() *reference.Snapshot
}

// TrafficSource returns the current live traffic set.
type TrafficSource interface {
	Aircraft() []adsb.Aircraft
}

// Observer records query metrics.
type Observer interface {
	ObserveQuery(kind, outcome string, elapsed time.Duration)
}

// Config wires a Dispatcher to its collaborators. Only Reference is
// required; queries needing a missing collaborator answer with their
// fallback sentence.
type Config struct {
	Reference  SnapshotSource
	Traffic    TrafficSource
	Weather    weather.Provider
	METAR      weather.METARProvider
	Checklists checklist.Provider

	// Timeout bounds each external provider call (default: 5 seconds)
	Timeout time.Duration

	Observer Observer
	Logger   *slog.Logger
}

// Dispatcher answers queries. It holds no mutable state of its own and is
// safe for concurrent use.
type Dispatcher struct {
	ref        SnapshotSource
	traffic    TrafficSource
	weather    weather.Provider
	metar      weather.METARProvider
	checklists checklist.Provider
	timeout    time.Duration
	observer   Observer
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	if cfg.Reference == nil {
		return nil, errors.New("query: reference source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		ref:        cfg.Reference,
		traffic:    cfg.Traffic,
		weather:    cfg.Weather,
		metar:      cfg.METAR,
		checklists: cfg.Checklists,
		timeout:    cfg.Timeout,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
	}, nil
}

// Dispatch answers req for the subject flight.
//
// The reference snapshot is read once, so every lookup of one query sees
// the same generation even if it is replaced concurrently.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, flight FlightData) (Envelope, error) {
	if req == nil {
		return Envelope{}, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}

	start := time.Now()
	snap := d.ref.Current()

	var env Envelope
	switch r := req.(type) {
	case DepartureAirport:
		env = d.departureAirport(flight)
	case ArrivalAirport:
		env = d.arrivalAirport(flight)
	case RunwaysAtAirport:
		env = d.runwaysAtAirport(snap, r, flight)
	case FrequencyAtAirport:
		env = d.frequencyAtAirport(snap, r, flight)
	case FrequencyAtArrival:
		env = d.frequencyAtArrival(snap, r, flight)
	case NearestAirport:
		env = d.nearestAirport(snap, flight)
	case CurrentParam:
		env = d.currentParam(r, flight)
	case RunwaysAtNearestAirport:
		env = d.runwaysAtNearestAirport(snap, flight)
	case NearestTraffic:
		env = d.nearestTraffic(r, flight)
	case LengthNearestRunway:
		env = d.lengthNearestRunway(snap, flight)
	case ETA:
		env = d.eta(r, flight)
	case WeatherAtAirport:
		env = d.weatherAtAirport(ctx, snap, r, flight)
	case WeatherAtLocation:
		env = d.weatherAtLocation(ctx, r)
	case WeatherAtWaypoint:
		env = d.weatherAtWaypoint(ctx, snap, r)
	case METARAtAirport:
		env = d.metarAtAirport(ctx, r, flight)
	case Checklist:
		env = d.checklist(ctx, r, flight)
	case Clear:
		env = Envelope{Text: textClear, KindMarker: MarkerClear}
	default:
		return Envelope{}, fmt.Errorf("%w: %T", ErrUnknownKind, req)
	}
	env.Kind = req.Kind()

	elapsed := time.Since(start)
	if d.observer != nil {
		d.observer.ObserveQuery(string(env.Kind), env.Outcome.String(), elapsed)
	}
	d.logger.Debug("query answered",
		"kind", env.Kind,
		"outcome", env.Outcome,
		"elapsed", elapsed)
	return env, nil
}

// DispatchRaw parses and answers a loose (kind, arg1, arg2) tuple.
func (d *Dispatcher) DispatchRaw(ctx context.Context, kind string, arg1, arg2 any, flight FlightData) (Envelope, error) {
	req, err := ParseRequest(kind, arg1, arg2)
	if err != nil {
		return Envelope{}, err
	}
	return d.Dispatch(ctx, req, flight)
}

// call runs fn under the provider timeout.
func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return fn(ctx)
}

// outcomeOf maps a provider error to an Outcome and logs failures.
func (d *Dispatcher) outcomeOf(kind Kind, err error) Outcome {
	switch {
	case err == nil:
		return Found
	case errors.Is(err, weather.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		d.logger.Warn("provider unavailable", "kind", kind, "error", err)
		return Unavailable
	default:
		d.logger.Debug("provider lookup failed", "kind", kind, "error", err)
		return NotFound
	}
}
