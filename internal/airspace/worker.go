package airspace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// Loop names reported to Metrics.PollFailed.
const (
	LoopAirspace = "airspace"
	LoopFollow   = "follow"
)

// SnapshotSource provides the current reference snapshot.
type SnapshotSource interface {
	Current() *reference.Snapshot
}

// Metrics receives loop health. *metrics.Collector implements it.
type Metrics interface {
	PollFailed(loop string)
	SetTraffic(n int)
}

// Sink receives every rebuilt Surroundings.
type Sink interface {
	PublishSurroundings(ctx context.Context, s Surroundings) error
}

// WorkerConfig configures an AirspaceWorker.
type WorkerConfig struct {
	Source    adsb.DataSource
	Reference SnapshotSource
	Store     *TrafficStore

	Center   coordinates.Geographic
	RadiusNM float64
	Interval time.Duration
	Retry    adsb.RetryConfig

	Metrics Metrics
	Sinks   []Sink
	Logger  *slog.Logger
}

// AirspaceWorker polls traffic around a center and keeps the surroundings
// up to date.
type AirspaceWorker struct {
	source    adsb.DataSource
	reference SnapshotSource
	store     *TrafficStore
	radiusNM  float64
	interval  time.Duration
	retry     adsb.RetryConfig
	metrics   Metrics
	sinks     []Sink
	logger    *slog.Logger

	mu     sync.Mutex
	center coordinates.Geographic
	static Static
	built  bool

	latest atomic.Pointer[Surroundings]
	kick   chan struct{}

	// Statistics
	updates  atomic.Int64
	failures atomic.Int64
}

// NewAirspaceWorker creates a worker. Source, Reference and Store are required.
func NewAirspaceWorker(cfg WorkerConfig) (*AirspaceWorker, error) {
	if cfg.Source == nil || cfg.Reference == nil || cfg.Store == nil {
		return nil, errors.New("airspace worker needs a source, a reference and a store")
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
	return &AirspaceWorker{
		source:    cfg.Source,
		reference: cfg.Reference,
		store:     cfg.Store,
		radiusNM:  cfg.RadiusNM,
		interval:  cfg.Interval,
		retry:     cfg.Retry,
		metrics:   cfg.Metrics,
		sinks:     cfg.Sinks,
		logger:    cfg.Logger.With("loop", LoopAirspace),
		center:    cfg.Center,
		kick:      make(chan struct{}, 1),
	}, nil
}

// Run polls until ctx is done. The first update happens immediately.
func (w *AirspaceWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("airspace worker started", "interval", w.interval, "radius_nm", w.radiusNM)
	w.update(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("airspace worker stopped",
				"updates", w.updates.Load(), "failures", w.failures.Load())
			return nil
		case <-ticker.C:
			w.update(ctx)
		case <-w.kick:
			w.update(ctx)
		}
	}
}

// SetCenter moves the airspace center. The static surroundings are rebuilt
// at once and traffic is refetched on the next cycle.
func (w *AirspaceWorker) SetCenter(center coordinates.Geographic) {
	w.mu.Lock()
	w.center = center
	static := w.staticLocked()
	w.mu.Unlock()

	s := static.WithTraffic(w.store.Aircraft(), time.Now().UTC())
	w.latest.Store(&s)
	w.logger.Info("airspace center moved", "latitude", center.Latitude, "longitude", center.Longitude)

	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// Center returns the current airspace center.
func (w *AirspaceWorker) Center() coordinates.Geographic {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.center
}

// Latest returns the most recent surroundings. Before the first poll it holds
// the static data only.
func (w *AirspaceWorker) Latest() Surroundings {
	if s := w.latest.Load(); s != nil && !s.stale(w.reference.Current(), w.Center()) {
		return *s
	}
	w.mu.Lock()
	static := w.staticLocked()
	w.mu.Unlock()
	return static.WithTraffic(w.store.Aircraft(), w.store.UpdatedAt())
}

// staticLocked returns the static surroundings for the current center and
// snapshot, rebuilding them when either changed. w.mu must be held.
func (w *AirspaceWorker) staticLocked() Static {
	snap := w.reference.Current()
	if !w.built || w.static.stale(snap, w.center) {
		w.static = BuildStatic(snap, w.center, w.radiusNM)
		w.built = true
	}
	return w.static
}

// update fetches traffic once and publishes the result.
func (w *AirspaceWorker) update(ctx context.Context) {
	center := w.Center()

	aircraft, err := adsb.RetryWithBackoffResult(ctx, w.retry, func() ([]adsb.Aircraft, error) {
		return w.source.GetAircraft(ctx, center, w.radiusNM)
	})
	if ctx.Err() != nil {
		// Stopping: a late result is discarded
		return
	}
	if err != nil {
		w.failures.Add(1)
		w.metrics.PollFailed(LoopAirspace)
		w.logger.Warn("failed to fetch traffic, will retry next cycle", "error", err)
		return
	}

	valid := make([]adsb.Aircraft, 0, len(aircraft))
	for _, ac := range aircraft {
		if ac.Latitude == 0 && ac.Longitude == 0 {
			continue
		}
		valid = append(valid, ac)
	}

	now := time.Now().UTC()
	w.store.Replace(valid, now)
	w.metrics.SetTraffic(len(valid))
	n := w.updates.Add(1)

	w.mu.Lock()
	static := w.staticLocked()
	w.mu.Unlock()

	s := static.WithTraffic(valid, now)
	w.latest.Store(&s)
	w.logger.Debug("traffic updated", "update", n, "aircraft", len(valid), "in_box", s.NumberFlights)

	for _, sink := range w.sinks {
		if err := sink.PublishSurroundings(ctx, s); err != nil {
			w.logger.Warn("failed to publish surroundings", "error", err)
		}
	}
}

type noMetrics struct{}

func (noMetrics) PollFailed(string) {}
func (noMetrics) SetTraffic(int)    {}
