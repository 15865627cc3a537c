package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unklstewy/airspace-assistant/internal/db"
	"github.com/unklstewy/airspace-assistant/pkg/config"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// referenceLoader publishes reference snapshots into the index, from the
// database or from the snapshot file.
type referenceLoader struct {
	dbConfig config.DatabaseConfig
	cfg      config.ReferenceConfig
	index    *reference.Index
	logger   *slog.Logger

	mu       sync.Mutex
	database *db.DB
}

// conn returns the current database connection, nil when the file source is used.
func (l *referenceLoader) conn() *db.DB {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.database
}

// load fetches one snapshot and publishes it.
func (l *referenceLoader) load(ctx context.Context) error {
	start := time.Now()

	snap, origin, err := l.fetch(ctx)
	if err != nil {
		return err
	}
	l.index.Replace(snap)

	attrs := []any{"origin", origin, "elapsed", time.Since(start)}
	counts := snap.Counts()
	for _, kind := range reference.Kinds {
		attrs = append(attrs, string(kind), counts[kind])
	}
	l.logger.Info("reference data loaded", attrs...)
	return nil
}

func (l *referenceLoader) fetch(ctx context.Context) (*reference.Snapshot, string, error) {
	if l.cfg.Source == config.SourceFile {
		snap, err := reference.LoadFile(l.cfg.SnapshotFile)
		return snap, "file", err
	}

	database := l.conn()
	if database != nil {
		next, err := db.EnsureConnection(ctx, database, l.dbConfig, l.logger)
		if err == nil {
			if next != database {
				l.mu.Lock()
				l.database = next
				l.mu.Unlock()
			}

			repo := db.NewReferenceRepository(next)
			var snap *reference.Snapshot
			err = db.WithRetry(ctx, func() error {
				var err error
				snap, err = repo.LoadSnapshot(ctx)
				return err
			}, 3, l.logger)
			if err == nil {
				return snap, "database", nil
			}
		}
		l.logger.Warn("failed to load reference data from database", "error", err)
	}

	if l.cfg.SnapshotFile == "" {
		return nil, "", errors.New("reference data unavailable: no database and no snapshot file")
	}
	snap, err := reference.LoadFile(l.cfg.SnapshotFile)
	if err != nil {
		return nil, "", fmt.Errorf("reference data unavailable: %w", err)
	}
	return snap, "file", nil
}

// run reloads the snapshot every RefreshInterval until ctx is done.
// A failed reload keeps the previous snapshot.
func (l *referenceLoader) run(ctx context.Context) error {
	interval := l.cfg.RefreshInterval()
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.load(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Error("reference refresh failed", "error", err)
			}
		}
	}
}

// health reports whether queries can be answered.
func (l *referenceLoader) health(ctx context.Context) error {
	if !l.index.Ready() {
		return reference.ErrNotReady
	}
	if database := l.conn(); database != nil {
		if err := db.HealthCheck(ctx, database); err != nil {
			// The snapshot still answers queries; report but stay ready
			l.logger.Warn("database health check failed", "error", err)
		}
	}
	return nil
}
