package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// File names read from the data directory.
const (
	airportsFile    = "airports.csv"
	runwaysFile     = "runways.csv"
	frequenciesFile = "airport-frequencies.csv"
	navaidsFile     = "navaids.csv"
	waypointsFile   = "waypoints.csv"
	checklistsFile  = "checklists.csv"
)

// row gives access to the fields of a CSV record by header name.
type row struct {
	columns map[string]int
	record  []string
}

func (r row) str(name string) string {
	i, ok := r.columns[name]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func (r row) float(name string) float64 {
	f, err := strconv.ParseFloat(r.str(name), 64)
	if err != nil {
		return 0
	}
	return f
}

func (r row) bool(name string) bool {
	switch strings.ToLower(r.str(name)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// readCSV calls fn for every record of path after its header line.
// A missing file reads as empty and reports os.ErrNotExist.
func readCSV(path string, required []string, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%s: failed to read header: %w", filepath.Base(path), err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return fmt.Errorf("%s: missing column %q", filepath.Base(path), name)
		}
	}

	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(row{columns: columns, record: record}); err != nil {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
	}
}

// readTables loads every known file of dir. Missing files are skipped and
// listed in the returned slice.
func readTables(dir string) (reference.Tables, []string, error) {
	var (
		t       reference.Tables
		missing []string
	)

	readers := []struct {
		file string
		read func(string, *reference.Tables) error
	}{
		{airportsFile, readAirports},
		{runwaysFile, readRunways},
		{frequenciesFile, readFrequencies},
		{navaidsFile, readNavaids},
		{waypointsFile, readWaypoints},
		{checklistsFile, readChecklists},
	}
	for _, r := range readers {
		err := r.read(filepath.Join(dir, r.file), &t)
		switch {
		case errors.Is(err, os.ErrNotExist):
			missing = append(missing, r.file)
		case err != nil:
			return reference.Tables{}, nil, err
		}
	}
	return t, missing, nil
}

func readAirports(path string, t *reference.Tables) error {
	return readCSV(path, []string{"ident", "name", "latitude_deg", "longitude_deg"}, func(r row) error {
		if r.str("type") == "closed" || r.str("ident") == "" {
			return nil
		}
		t.Airports = append(t.Airports, reference.Airport{
			ICAO:       strings.ToUpper(r.str("ident")),
			IATA:       r.str("iata_code"),
			Name:       r.str("name"),
			Country:    r.str("iso_country"),
			Position:   coordinates.Geographic{Latitude: r.float("latitude_deg"), Longitude: r.float("longitude_deg")},
			AltitudeFt: r.float("elevation_ft"),
		})
		return nil
	})
}

// readRunways turns each strip into its two runway ends.
func readRunways(path string, t *reference.Tables) error {
	return readCSV(path, []string{"airport_ident", "le_ident", "he_ident"}, func(r row) error {
		if r.bool("closed") {
			return nil
		}
		airport := strings.ToUpper(r.str("airport_ident"))
		le, he := r.str("le_ident"), r.str("he_ident")
		couple := le
		if he != "" {
			couple = le + "/" + he
		}

		end := func(prefix, other string) reference.Runway {
			return reference.Runway{
				AirportICAO: airport,
				Ident:       r.str(prefix + "_ident"),
				Couple:      couple,
				Begin:       coordinates.Geographic{Latitude: r.float(prefix + "_latitude_deg"), Longitude: r.float(prefix + "_longitude_deg")},
				End:         coordinates.Geographic{Latitude: r.float(other + "_latitude_deg"), Longitude: r.float(other + "_longitude_deg")},
				LengthFt:    r.float("length_ft"),
				WidthFt:     r.float("width_ft"),
				Surface:     r.str("surface"),
				Lighted:     r.bool("lighted"),
				Orientation: r.float(prefix + "_heading_degT"),
				ThresholdFt: r.float(prefix + "_displaced_threshold_ft"),
				AltitudeFt:  r.float(prefix + "_elevation_ft"),
			}
		}

		if le != "" {
			t.Runways = append(t.Runways, end("le", "he"))
		}
		if he != "" {
			t.Runways = append(t.Runways, end("he", "le"))
		}
		return nil
	})
}

func readFrequencies(path string, t *reference.Tables) error {
	return readCSV(path, []string{"airport_ident", "type", "frequency_mhz"}, func(r row) error {
		mhz := r.float("frequency_mhz")
		if mhz == 0 {
			return nil
		}
		t.Frequencies = append(t.Frequencies, reference.Frequency{
			AirportICAO: strings.ToUpper(r.str("airport_ident")),
			Type:        strings.ToUpper(r.str("type")),
			Description: r.str("description"),
			MHz:         mhz,
		})
		return nil
	})
}

func readNavaids(path string, t *reference.Tables) error {
	return readCSV(path, []string{"ident", "type", "latitude_deg", "longitude_deg"}, func(r row) error {
		t.Navaids = append(t.Navaids, reference.Navaid{
			Ident:        strings.ToUpper(r.str("ident")),
			Name:         r.str("name"),
			Type:         r.str("type"),
			FrequencyKHz: r.float("frequency_khz"),
			Position:     coordinates.Geographic{Latitude: r.float("latitude_deg"), Longitude: r.float("longitude_deg")},
			AltitudeFt:   r.float("elevation_ft"),
		})
		return nil
	})
}

func readWaypoints(path string, t *reference.Tables) error {
	return readCSV(path, []string{"ident", "latitude", "longitude"}, func(r row) error {
		t.Waypoints = append(t.Waypoints, reference.Waypoint{
			Ident:    strings.ToUpper(r.str("ident")),
			Country:  r.str("country"),
			Position: coordinates.Geographic{Latitude: r.float("latitude"), Longitude: r.float("longitude")},
		})
		return nil
	})
}

func readChecklists(path string, t *reference.Tables) error {
	return readCSV(path, []string{"type", "model", "file"}, func(r row) error {
		t.Checklists = append(t.Checklists, reference.Checklist{
			Type:  r.str("type"),
			Model: r.str("model"),
			File:  r.str("file"),
		})
		return nil
	})
}
