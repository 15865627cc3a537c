package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/config"
)

const maxReconnectDelay = time.Minute

// ReconnectWithRetry opens the database, doubling the wait after each
// failure up to one minute. maxRetries of 0 keeps trying until ctx is done.
func ReconnectWithRetry(ctx context.Context, cfg config.DatabaseConfig, maxRetries int, initialDelay time.Duration, logger *slog.Logger) (*DB, error) {
	delay := initialDelay
	for attempt := 1; ; attempt++ {
		logger.Debug("opening database", "attempt", attempt, "driver", cfg.Driver)
		db, err := Connect(cfg)
		if err == nil {
			logger.Info("database connected", "attempt", attempt)
			return db, nil
		}
		if maxRetries > 0 && attempt >= maxRetries {
			return nil, fmt.Errorf("database still unreachable after %d attempts: %w", attempt, err)
		}

		logger.Warn("database unreachable", "error", err, "retry_in", delay)
		if err := pause(ctx, delay); err != nil {
			return nil, err
		}
		delay = min(2*delay, maxReconnectDelay)
	}
}

// EnsureConnection returns db while it answers a ping; otherwise the old
// handle is closed and a fresh one opened.
func EnsureConnection(ctx context.Context, db *DB, cfg config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if db != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		logger.Warn("database connection lost, reconnecting", "error", err)
		db.Close()
	}
	return ReconnectWithRetry(ctx, cfg, 3, time.Second, logger)
}

// HealthCheck pings the database and runs SELECT 1.
func HealthCheck(ctx context.Context, db *DB) error {
	if db == nil {
		return errors.New("no database connection")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("health check ping: %w", err)
	}
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health check query: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("health check returned %d", one)
	}
	return nil
}

// transientMessages are driver error fragments that mean the connection,
// not the statement, failed. SQLITE_BUSY is included since the writer
// usually finishes within the retry window.
var transientMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no connection",
	"eof",
	"timeout",
	"database is locked",
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientMessages, func(frag string) bool {
		return strings.Contains(msg, frag)
	})
}

// WithRetry runs op and retries it, waiting one more second each time,
// only while it fails with connection errors.
func WithRetry(ctx context.Context, op func() error, maxRetries int, logger *slog.Logger) error {
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil || !isConnectionError(err) || attempt > maxRetries {
			return err
		}

		wait := time.Duration(attempt) * time.Second
		logger.Warn("database operation failed",
			"attempt", attempt, "max_attempts", maxRetries+1, "error", err, "retry_in", wait)
		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
