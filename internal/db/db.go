package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"regexp"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/unklstewy/airspace-assistant/pkg/config"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

//go:embed schema_postgres.sql schema_sqlite.sql
var schemaSQL embed.FS

// DB wraps a database connection with helper methods.
type DB struct {
	*sql.DB
	config config.DatabaseConfig
}

// Connect opens the reference database with the configured driver
// (postgres or sqlite) and checks that it answers.
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	var (
		sqlDB *sql.DB
		err   error
	)

	switch cfg.Driver {
	case config.DriverPostgres, "":
		cfg.Driver = config.DriverPostgres
		connStr := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.Username,
			cfg.Password,
			cfg.Database,
			cfg.SSLMode,
		)
		sqlDB, err = sql.Open("postgres", connStr)
	case config.DriverSQLite:
		sqlDB, err = sql.Open("sqlite", cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	if cfg.Driver == config.DriverSQLite && cfg.Path == ":memory:" {
		// Every connection to :memory: is a separate database, so the one
		// connection must stay open in the idle pool.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
		sqlDB.SetConnMaxIdleTime(0)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Driver == config.DriverSQLite && cfg.Path != ":memory:" {
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
				sqlDB.Close()
				return nil, fmt.Errorf("failed to set %s: %w", pragma, err)
			}
		}
	}

	return &DB{DB: sqlDB, config: cfg}, nil
}

// Driver returns the driver name in use.
func (db *DB) Driver() string {
	return db.config.Driver
}

// InitSchema creates the reference tables if they do not exist.
// This should be called once at application startup.
func (db *DB) InitSchema(ctx context.Context) error {
	name := "schema_postgres.sql"
	if db.config.Driver == config.DriverSQLite {
		name = "schema_sqlite.sql"
	}

	schemaBytes, err := schemaSQL.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := db.ExecContext(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Rebind converts $N placeholders to the driver's syntax. Queries are
// written for PostgreSQL; SQLite takes ?N.
func (db *DB) Rebind(query string) string {
	if db.config.Driver != config.DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?$1")
}

// tables maps each reference kind to its table.
var tables = map[reference.Kind]string{
	reference.KindAirport:   "airports",
	reference.KindRunway:    "runways",
	reference.KindFrequency: "frequencies",
	reference.KindNavaid:    "navaids",
	reference.KindWaypoint:  "waypoints",
	reference.KindChecklist: "checklists",
}

// GetStats returns the row count of every reference table.
func (db *DB) GetStats(ctx context.Context) (map[reference.Kind]int, error) {
	stats := make(map[reference.Kind]int, len(tables))
	for _, kind := range reference.Kinds {
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tables[kind]).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", tables[kind], err)
		}
		stats[kind] = n
	}
	return stats, nil
}
