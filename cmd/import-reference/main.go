// Command import-reference loads OurAirports-style CSV files into the
// reference database and can export the result as a snapshot file.
//
// Files read from -data-dir (each optional):
//   - airports.csv, runways.csv, airport-frequencies.csv, navaids.csv
//     (https://ourairports.com/data/)
//   - waypoints.csv (ident,country,latitude,longitude)
//   - checklists.csv (type,model,file)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/unklstewy/airspace-assistant/internal/db"
	"github.com/unklstewy/airspace-assistant/internal/logging"
	"github.com/unklstewy/airspace-assistant/pkg/config"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "Path to configuration file")
	dataDir := flag.String("data-dir", "data/ourairports", "Directory containing the CSV files")
	export := flag.String("export", "", "Write a snapshot file to this path after importing")
	skipDB := flag.Bool("no-db", false, "Do not touch the database; requires -export")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging)
	logging.LogBuildInfo(logger, "import-reference")

	if *skipDB && *export == "" {
		logger.Error("-no-db needs -export")
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, *dataDir, *export, *skipDB, logger); err != nil {
		logger.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, dataDir, export string, skipDB bool, logger *slog.Logger) error {
	start := time.Now()

	tables, missing, err := readTables(dataDir)
	if err != nil {
		return err
	}
	for _, file := range missing {
		logger.Warn("file not found, skipping", "file", file, "dir", dataDir)
	}
	logger.Info("✓ CSV files read",
		"airports", len(tables.Airports),
		"runways", len(tables.Runways),
		"frequencies", len(tables.Frequencies),
		"navaids", len(tables.Navaids),
		"waypoints", len(tables.Waypoints),
		"checklists", len(tables.Checklists))

	snap := reference.NewSnapshot(tables)
	if !skipDB {
		snap, err = importTables(ctx, cfg, tables, logger)
		if err != nil {
			return err
		}
	}

	if export != "" {
		if err := reference.SaveFile(export, snap); err != nil {
			return err
		}
		logger.Info("✓ Snapshot exported", "path", export)
	}

	logger.Info("✓ Import complete", "elapsed", time.Since(start))
	return nil
}

// importTables upserts tables and returns the full database content, which
// also holds rows from earlier imports.
func importTables(ctx context.Context, cfg *config.Config, tables reference.Tables, logger *slog.Logger) (*reference.Snapshot, error) {
	database, err := db.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	defer database.Close()
	logger.Info("✓ Database connected", "driver", database.Driver())

	if err := database.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	repo := db.NewReferenceRepository(database)
	written, err := repo.ImportTables(ctx, tables)
	if err != nil {
		return nil, err
	}
	for _, kind := range reference.Kinds {
		logger.Info("✓ Imported", "kind", kind, "rows", written[kind])
	}

	stats, err := database.GetStats(ctx)
	if err != nil {
		return nil, err
	}
	for _, kind := range reference.Kinds {
		logger.Debug("table size", "kind", kind, "rows", stats[kind])
	}

	center := coordinates.Geographic{Latitude: cfg.Airspace.Latitude, Longitude: cfg.Airspace.Longitude}
	near, err := repo.AirportsNear(ctx, center, cfg.Airspace.RadiusNM)
	if err != nil {
		return nil, err
	}
	logger.Info("✓ Coverage around airspace center",
		"center", cfg.Airspace.CenterName,
		"radius_nm", cfg.Airspace.RadiusNM,
		"airports", len(near))

	return repo.LoadSnapshot(ctx)
}
