package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// ReferenceRepository reads and writes the reference tables.
type ReferenceRepository struct {
	db *DB
}

// NewReferenceRepository creates a new reference repository.
func NewReferenceRepository(db *DB) *ReferenceRepository {
	return &ReferenceRepository{db: db}
}

// LoadSnapshot reads all six tables concurrently and builds a Snapshot.
// The load is all-or-nothing: any failing table fails the whole load.
//
// Rows come back in insertion order (ORDER BY id), which fixes the
// first-match order of frequency lookups.
func (r *ReferenceRepository) LoadSnapshot(ctx context.Context) (*reference.Snapshot, error) {
	var t reference.Tables

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		t.Airports, err = r.loadAirports(ctx)
		return err
	})
	eg.Go(func() (err error) {
		t.Runways, err = r.loadRunways(ctx)
		return err
	})
	eg.Go(func() (err error) {
		t.Frequencies, err = r.loadFrequencies(ctx)
		return err
	})
	eg.Go(func() (err error) {
		t.Navaids, err = r.loadNavaids(ctx)
		return err
	})
	eg.Go(func() (err error) {
		t.Waypoints, err = r.loadWaypoints(ctx)
		return err
	})
	eg.Go(func() (err error) {
		t.Checklists, err = r.loadChecklists(ctx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	t.LoadedAt = time.Now().UTC()
	return reference.NewSnapshot(t), nil
}

// queryAll runs query and scans every row with scan.
func queryAll[T any](ctx context.Context, db *DB, table, query string, scan func(*sql.Rows) (T, error)) ([]T, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}
	return out, nil
}

func (r *ReferenceRepository) loadAirports(ctx context.Context) ([]reference.Airport, error) {
	return queryAll(ctx, r.db, "airports",
		`SELECT icao, iata, name, country, latitude, longitude, altitude_ft
		 FROM airports ORDER BY id`,
		func(rows *sql.Rows) (a reference.Airport, err error) {
			err = rows.Scan(&a.ICAO, &a.IATA, &a.Name, &a.Country,
				&a.Position.Latitude, &a.Position.Longitude, &a.AltitudeFt)
			return a, err
		})
}

func (r *ReferenceRepository) loadRunways(ctx context.Context) ([]reference.Runway, error) {
	return queryAll(ctx, r.db, "runways",
		`SELECT airport_icao, ident, couple, begin_lat, begin_lon, end_lat, end_lon,
		        length_ft, width_ft, surface, lighted, orientation, threshold_ft, altitude_ft
		 FROM runways ORDER BY id`,
		func(rows *sql.Rows) (rw reference.Runway, err error) {
			err = rows.Scan(&rw.AirportICAO, &rw.Ident, &rw.Couple,
				&rw.Begin.Latitude, &rw.Begin.Longitude, &rw.End.Latitude, &rw.End.Longitude,
				&rw.LengthFt, &rw.WidthFt, &rw.Surface, &rw.Lighted,
				&rw.Orientation, &rw.ThresholdFt, &rw.AltitudeFt)
			return rw, err
		})
}

func (r *ReferenceRepository) loadFrequencies(ctx context.Context) ([]reference.Frequency, error) {
	return queryAll(ctx, r.db, "frequencies",
		`SELECT airport_icao, type, description, mhz FROM frequencies ORDER BY id`,
		func(rows *sql.Rows) (f reference.Frequency, err error) {
			err = rows.Scan(&f.AirportICAO, &f.Type, &f.Description, &f.MHz)
			return f, err
		})
}

func (r *ReferenceRepository) loadNavaids(ctx context.Context) ([]reference.Navaid, error) {
	return queryAll(ctx, r.db, "navaids",
		`SELECT ident, name, type, frequency_khz, latitude, longitude, altitude_ft
		 FROM navaids ORDER BY id`,
		func(rows *sql.Rows) (n reference.Navaid, err error) {
			err = rows.Scan(&n.Ident, &n.Name, &n.Type, &n.FrequencyKHz,
				&n.Position.Latitude, &n.Position.Longitude, &n.AltitudeFt)
			return n, err
		})
}

func (r *ReferenceRepository) loadWaypoints(ctx context.Context) ([]reference.Waypoint, error) {
	return queryAll(ctx, r.db, "waypoints",
		`SELECT ident, country, latitude, longitude FROM waypoints ORDER BY id`,
		func(rows *sql.Rows) (w reference.Waypoint, err error) {
			err = rows.Scan(&w.Ident, &w.Country, &w.Position.Latitude, &w.Position.Longitude)
			return w, err
		})
}

func (r *ReferenceRepository) loadChecklists(ctx context.Context) ([]reference.Checklist, error) {
	return queryAll(ctx, r.db, "checklists",
		`SELECT type, model, file FROM checklists ORDER BY id`,
		func(rows *sql.Rows) (c reference.Checklist, err error) {
			err = rows.Scan(&c.Type, &c.Model, &c.File)
			return c, err
		})
}

// upsertAll writes rows in one transaction. Either every row is stored or
// none is.
func upsertAll[T any](ctx context.Context, db *DB, table, query string, rows []T, args func(T) []any) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin %s import: %w", table, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, db.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare %s upsert: %w", table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, args(row)...); err != nil {
			return 0, fmt.Errorf("failed to upsert %s row %d: %w", table, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s import: %w", table, err)
	}
	return len(rows), nil
}

// UpsertAirports inserts or updates airports keyed by ICAO code.
func (r *ReferenceRepository) UpsertAirports(ctx context.Context, airports []reference.Airport) (int, error) {
	return upsertAll(ctx, r.db, "airports",
		`INSERT INTO airports (icao, iata, name, country, latitude, longitude, altitude_ft)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (icao) DO UPDATE SET
			iata = excluded.iata,
			name = excluded.name,
			country = excluded.country,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			altitude_ft = excluded.altitude_ft`,
		airports,
		func(a reference.Airport) []any {
			return []any{a.ICAO, a.IATA, a.Name, a.Country,
				a.Position.Latitude, a.Position.Longitude, a.AltitudeFt}
		})
}

// UpsertRunways inserts or updates runway ends keyed by airport and designator.
func (r *ReferenceRepository) UpsertRunways(ctx context.Context, runways []reference.Runway) (int, error) {
	return upsertAll(ctx, r.db, "runways",
		`INSERT INTO runways (airport_icao, ident, couple, begin_lat, begin_lon, end_lat, end_lon,
		                      length_ft, width_ft, surface, lighted, orientation, threshold_ft, altitude_ft)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (airport_icao, ident) DO UPDATE SET
			couple = excluded.couple,
			begin_lat = excluded.begin_lat,
			begin_lon = excluded.begin_lon,
			end_lat = excluded.end_lat,
			end_lon = excluded.end_lon,
			length_ft = excluded.length_ft,
			width_ft = excluded.width_ft,
			surface = excluded.surface,
			lighted = excluded.lighted,
			orientation = excluded.orientation,
			threshold_ft = excluded.threshold_ft,
			altitude_ft = excluded.altitude_ft`,
		runways,
		func(rw reference.Runway) []any {
			return []any{rw.AirportICAO, rw.Ident, rw.Couple,
				rw.Begin.Latitude, rw.Begin.Longitude, rw.End.Latitude, rw.End.Longitude,
				rw.LengthFt, rw.WidthFt, rw.Surface, rw.Lighted,
				rw.Orientation, rw.ThresholdFt, rw.AltitudeFt}
		})
}

// UpsertFrequencies inserts or updates airport frequencies.
func (r *ReferenceRepository) UpsertFrequencies(ctx context.Context, freqs []reference.Frequency) (int, error) {
	return upsertAll(ctx, r.db, "frequencies",
		`INSERT INTO frequencies (airport_icao, type, description, mhz)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (airport_icao, type, mhz) DO UPDATE SET
			description = excluded.description`,
		freqs,
		func(f reference.Frequency) []any {
			return []any{f.AirportICAO, f.Type, f.Description, f.MHz}
		})
}

// UpsertNavaids inserts or updates navaids.
func (r *ReferenceRepository) UpsertNavaids(ctx context.Context, navaids []reference.Navaid) (int, error) {
	return upsertAll(ctx, r.db, "navaids",
		`INSERT INTO navaids (ident, name, type, frequency_khz, latitude, longitude, altitude_ft)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (ident, type, frequency_khz) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			altitude_ft = excluded.altitude_ft`,
		navaids,
		func(n reference.Navaid) []any {
			return []any{n.Ident, n.Name, n.Type, n.FrequencyKHz,
				n.Position.Latitude, n.Position.Longitude, n.AltitudeFt}
		})
}

// UpsertWaypoints inserts or updates waypoints keyed by ident and country.
func (r *ReferenceRepository) UpsertWaypoints(ctx context.Context, waypoints []reference.Waypoint) (int, error) {
	return upsertAll(ctx, r.db, "waypoints",
		`INSERT INTO waypoints (ident, country, latitude, longitude)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (ident, country) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude`,
		waypoints,
		func(w reference.Waypoint) []any {
			return []any{w.Ident, w.Country, w.Position.Latitude, w.Position.Longitude}
		})
}

// UpsertChecklists inserts or updates checklist catalogue entries.
func (r *ReferenceRepository) UpsertChecklists(ctx context.Context, checklists []reference.Checklist) (int, error) {
	return upsertAll(ctx, r.db, "checklists",
		`INSERT INTO checklists (type, model, file)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (type, model) DO UPDATE SET
			file = excluded.file`,
		checklists,
		func(c reference.Checklist) []any {
			return []any{c.Type, c.Model, c.File}
		})
}

// ImportTables upserts every table of t, airports first.
func (r *ReferenceRepository) ImportTables(ctx context.Context, t reference.Tables) (map[reference.Kind]int, error) {
	counts := make(map[reference.Kind]int)
	steps := []struct {
		kind reference.Kind
		run  func() (int, error)
	}{
		{reference.KindAirport, func() (int, error) { return r.UpsertAirports(ctx, t.Airports) }},
		{reference.KindRunway, func() (int, error) { return r.UpsertRunways(ctx, t.Runways) }},
		{reference.KindFrequency, func() (int, error) { return r.UpsertFrequencies(ctx, t.Frequencies) }},
		{reference.KindNavaid, func() (int, error) { return r.UpsertNavaids(ctx, t.Navaids) }},
		{reference.KindWaypoint, func() (int, error) { return r.UpsertWaypoints(ctx, t.Waypoints) }},
		{reference.KindChecklist, func() (int, error) { return r.UpsertChecklists(ctx, t.Checklists) }},
	}
	for _, s := range steps {
		n, err := s.run()
		if err != nil {
			return counts, err
		}
		counts[s.kind] = n
	}
	return counts, nil
}

// AirportsNear returns the airports inside the bounding box of a circle,
// filtered in SQL. Used by the importer to report coverage.
func (r *ReferenceRepository) AirportsNear(ctx context.Context, center coordinates.Geographic, radiusNM float64) ([]reference.Airport, error) {
	box := coordinates.BoundingBoxAround(center, radiusNM)
	rows, err := r.db.QueryContext(ctx, r.db.Rebind(
		`SELECT icao, iata, name, country, latitude, longitude, altitude_ft
		 FROM airports
		 WHERE latitude BETWEEN $1 AND $2 AND longitude BETWEEN $3 AND $4
		 ORDER BY id`),
		box.South, box.North, box.West, box.East)
	if err != nil {
		return nil, fmt.Errorf("failed to query airports near %v: %w", center, err)
	}
	defer rows.Close()

	var out []reference.Airport
	for rows.Next() {
		var a reference.Airport
		if err := rows.Scan(&a.ICAO, &a.IATA, &a.Name, &a.Country,
			&a.Position.Latitude, &a.Position.Longitude, &a.AltitudeFt); err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
