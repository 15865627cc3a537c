package airspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/flightaware"
	"github.com/unklstewy/airspace-assistant/pkg/query"
	"github.com/unklstewy/airspace-assistant/pkg/tracking"
)

// ErrNotTracked is returned by Follow when the aircraft is not in the feed.
var ErrNotTracked = errors.New("aircraft not tracked")

// FlightInfo provides the static data ADS-B does not broadcast.
// *flightaware.Client implements it.
type FlightInfo interface {
	GetFlightByCallsign(ctx context.Context, callsign string) (*flightaware.Flight, error)
}

// FlightSink receives every update of the followed flight.
type FlightSink interface {
	PublishFlight(ctx context.Context, f query.FlightData) error
}

// FollowerConfig configures a Follower.
type FollowerConfig struct {
	Source adsb.DataSource

	// Flights is optional; nil leaves static data to the feed
	Flights FlightInfo

	// Store is optional; it resolves callsigns to ICAO addresses
	Store *TrafficStore

	Interval time.Duration
	Retry    adsb.RetryConfig
	Metrics  Metrics
	Sinks    []FlightSink
	Logger   *slog.Logger

	// Now defaults to time.Now
	Now func() time.Time
}

// followed is the state of the followed flight.
type followed struct {
	icao    string
	static  query.FlightData
	last    adsb.Aircraft
	current query.FlightData
}

// Follower tracks a single aircraft and keeps its FlightData current.
type Follower struct {
	source   adsb.DataSource
	flights  FlightInfo
	store    *TrafficStore
	interval time.Duration
	retry    adsb.RetryConfig
	metrics  Metrics
	sinks    []FlightSink
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.RWMutex
	flight *followed
}

// NewFollower creates a follower. Source is required.
func NewFollower(cfg FollowerConfig) (*Follower, error) {
	if cfg.Source == nil {
		return nil, errors.New("follower needs a source")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Follower{
		source:   cfg.Source,
		flights:  cfg.Flights,
		store:    cfg.Store,
		interval: cfg.Interval,
		retry:    cfg.Retry,
		metrics:  cfg.Metrics,
		sinks:    cfg.Sinks,
		logger:   cfg.Logger.With("loop", LoopFollow),
		now:      cfg.Now,
	}, nil
}

// Follow starts following the aircraft identified by id, an ICAO address or
// a callsign present in the traffic store. The previous flight, if any, is
// dropped.
func (f *Follower) Follow(ctx context.Context, id string) (query.FlightData, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return query.FlightData{}, fmt.Errorf("%w: empty id", ErrNotTracked)
	}

	icao := id
	var fromStore *adsb.Aircraft
	if f.store != nil {
		if ac, ok := f.store.Find(id); ok {
			icao = ac.ICAO
			fromStore = &ac
		}
	}

	ac, err := adsb.RetryWithBackoffResult(ctx, f.retry, func() (*adsb.Aircraft, error) {
		return f.source.GetAircraftByICAO(ctx, icao)
	})
	if err != nil {
		f.logger.Warn("failed to fetch followed aircraft", "icao", icao, "error", err)
	}
	if ac == nil {
		ac = fromStore
	}
	if ac == nil {
		if err != nil {
			return query.FlightData{}, fmt.Errorf("%w: %s: %v", ErrNotTracked, id, err)
		}
		return query.FlightData{}, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}

	static := f.staticData(ctx, *ac)
	state := &followed{
		icao:    ac.ICAO,
		static:  static,
		last:    *ac,
		current: following(query.FromAircraft(static, *ac)),
	}

	f.mu.Lock()
	f.flight = state
	f.mu.Unlock()

	f.logger.Info("following aircraft", "icao", ac.ICAO, "callsign", ac.Label(),
		"origin", static.OriginICAO, "destination", static.DestinationICAO)
	f.publish(ctx, state.current)
	return state.current, nil
}

// staticData builds the static part of the flight from FlightAware. Lookup
// failures are logged and leave the fields unknown.
func (f *Follower) staticData(ctx context.Context, ac adsb.Aircraft) query.FlightData {
	var static query.FlightData
	if f.flights == nil || strings.TrimSpace(ac.Callsign) == "" {
		return static
	}

	flight, err := f.flights.GetFlightByCallsign(ctx, ac.Callsign)
	if err != nil {
		f.logger.Warn("flight lookup failed", "callsign", ac.Callsign, "error", err)
		return static
	}
	if flight == nil {
		return static
	}

	static.Registration = flight.Registration
	static.Model = flight.AircraftType
	static.Origin = flight.Origin.Name
	static.OriginICAO = flight.Origin.ICAO
	static.Destination = flight.Destination.Name
	static.DestinationICAO = flight.Destination.ICAO
	if eta, ok := flight.Arrival(); ok {
		static.ETA = &eta
	}
	return static
}

// Unfollow stops following. It is a no-op when nothing is followed.
func (f *Follower) Unfollow() {
	f.mu.Lock()
	prev := f.flight
	f.flight = nil
	f.mu.Unlock()

	if prev != nil {
		f.logger.Info("stopped following aircraft", "icao", prev.icao)
	}
}

// Current returns the followed flight's data, or an empty FlightData with
// IsFollowing false when nothing is followed.
func (f *Follower) Current() query.FlightData {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.flight == nil {
		return query.FlightData{}
	}
	return f.flight.current
}

// Following returns the ICAO address of the followed aircraft.
func (f *Follower) Following() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.flight == nil {
		return "", false
	}
	return f.flight.icao, true
}

// Run polls the followed aircraft until ctx is done.
func (f *Follower) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.poll(ctx)
		}
	}
}

// poll refreshes the followed flight once. When the feed misses the
// aircraft its position is dead-reckoned from the last fix, for at most
// tracking.MaxPredictionAge.
func (f *Follower) poll(ctx context.Context) {
	f.mu.RLock()
	state := f.flight
	f.mu.RUnlock()
	if state == nil {
		return
	}

	ac, err := adsb.RetryWithBackoffResult(ctx, f.retry, func() (*adsb.Aircraft, error) {
		return f.source.GetAircraftByICAO(ctx, state.icao)
	})
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		f.metrics.PollFailed(LoopFollow)
		f.logger.Warn("failed to fetch followed aircraft", "icao", state.icao, "error", err)
	}

	now := f.now().UTC()
	next := *state
	switch {
	case ac != nil:
		next.last = *ac
		next.current = following(query.FromAircraft(state.static, *ac))
	case now.Sub(state.last.LastSeen) <= tracking.MaxPredictionAge:
		predicted := tracking.Advance(state.last, now)
		next.current = following(query.FromAircraft(state.static, predicted))
		f.logger.Debug("aircraft missed, dead reckoning", "icao", state.icao,
			"age", now.Sub(state.last.LastSeen).Round(time.Second))
	default:
		f.logger.Debug("aircraft lost, keeping last position", "icao", state.icao)
		return
	}

	f.mu.Lock()
	if f.flight != state {
		// Followed flight changed during the fetch
		f.mu.Unlock()
		return
	}
	f.flight = &next
	f.mu.Unlock()

	f.publish(ctx, next.current)
}

func (f *Follower) publish(ctx context.Context, data query.FlightData) {
	for _, sink := range f.sinks {
		if err := sink.PublishFlight(ctx, data); err != nil {
			f.logger.Warn("failed to publish followed flight", "error", err)
		}
	}
}

func following(f query.FlightData) query.FlightData {
	f.IsFollowing = true
	return f
}
