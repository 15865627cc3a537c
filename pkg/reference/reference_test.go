package reference

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

func geo(lat, lon float64) coordinates.Geographic {
	return coordinates.Geographic{Latitude: lat, Longitude: lon}
}

// testTables is a small extract around Toulouse.
func testTables() Tables {
	return Tables{
		Airports: []Airport{
			{ICAO: "LFBO", IATA: "TLS", Name: "Toulouse-Blagnac", Country: "FR", Position: geo(43.6293, 1.3638), AltitudeFt: 499},
			{ICAO: "LFBF", Name: "Toulouse-Francazal", Country: "FR", Position: geo(43.5455, 1.3675), AltitudeFt: 535},
			{ICAO: "LFPG", IATA: "CDG", Name: "Paris-Charles de Gaulle", Country: "FR", Position: geo(49.0097, 2.5479), AltitudeFt: 392},
		},
		Runways: []Runway{
			{AirportICAO: "LFBO", Ident: "14R", Couple: "14R/32L", Begin: geo(43.645, 1.345), LengthFt: 11483},
			{AirportICAO: "LFBO", Ident: "14L", Couple: "14L/32R", Begin: geo(43.640, 1.355), LengthFt: 11483},
			{AirportICAO: "LFBF", Ident: "15", Couple: "15/33", Begin: geo(43.552, 1.362), LengthFt: 5906},
			{AirportICAO: "LFPG", Ident: "09L", Couple: "09L/27R", Begin: geo(49.024, 2.512), LengthFt: 13829},
		},
		Frequencies: []Frequency{
			{AirportICAO: "LFBO", Type: "ATIS", Description: "ATIS", MHz: 123.125},
			{AirportICAO: "LFBO", Type: "TWR", Description: "TOWER", MHz: 118.1},
			{AirportICAO: "LFBO", Type: "TWR", Description: "TOWER 2", MHz: 118.7},
			{AirportICAO: "LFBO", Type: "A/D", Description: "APPROACH", MHz: 121.1},
		},
		Navaids: []Navaid{
			{Ident: "TOU", Name: "Toulouse", Type: "VOR-DME", FrequencyKHz: 117700, Position: geo(43.680, 1.310)},
			{Ident: "CGC", Name: "Charles de Gaulle", Type: "VOR-DME", FrequencyKHz: 115350, Position: geo(49.0, 2.5)},
		},
		Waypoints: []Waypoint{
			{Ident: "FISTO", Country: "FR", Position: geo(43.9, 1.2)},
			{Ident: "NARAK", Country: "FR", Position: geo(44.3, 1.1)},
			{Ident: "fisto", Country: "XX", Position: geo(0, 0)},
		},
		Checklists: []Checklist{
			{Type: "before_takeoff", Model: "A320", File: "a320_before_takeoff.csv"},
		},
	}
}

func TestSnapshotBoxQueries(t *testing.T) {
	s := NewSnapshot(testTables())
	box := coordinates.BoundingBoxAround(geo(43.6, 1.45), 30)

	if got := len(s.AirportsInBox(box)); got != 2 {
		t.Errorf("AirportsInBox() = %d airports, want 2", got)
	}
	if got := len(s.RunwaysInBox(box)); got != 3 {
		t.Errorf("RunwaysInBox() = %d runways, want 3", got)
	}
	navaids := s.NavaidsInBox(box)
	if len(navaids) != 1 || navaids[0].Ident != "TOU" {
		t.Errorf("NavaidsInBox() = %+v", navaids)
	}
	waypoints := s.WaypointsInBox(box)
	if len(waypoints) != 1 || waypoints[0].Ident != "FISTO" {
		t.Errorf("WaypointsInBox() = %+v", waypoints)
	}
}

func TestSnapshotKeyLookups(t *testing.T) {
	s := NewSnapshot(testTables())

	t.Run("Airport is case-insensitive", func(t *testing.T) {
		a, ok := s.Airport(" lfbo ")
		if !ok || a.Name != "Toulouse-Blagnac" {
			t.Errorf("Airport(lfbo) = %+v, %v", a, ok)
		}
		if _, ok := s.Airport("LFB"); ok {
			t.Error("partial ICAO should not match")
		}
	})

	t.Run("Duplicate waypoint keeps first", func(t *testing.T) {
		w, ok := s.Waypoint("Fisto")
		if !ok || w.Country != "FR" {
			t.Errorf("Waypoint(Fisto) = %+v, %v", w, ok)
		}
	})

	t.Run("One-to-many in table order", func(t *testing.T) {
		runways := s.RunwaysOf("LFBO")
		if len(runways) != 2 || runways[0].Ident != "14R" || runways[1].Ident != "14L" {
			t.Errorf("RunwaysOf(LFBO) = %+v", runways)
		}
		if got := len(s.FrequenciesAt("lfbo")); got != 4 {
			t.Errorf("FrequenciesAt(lfbo) = %d rows, want 4", got)
		}
		if got := s.RunwaysOf("ZZZZ"); len(got) != 0 {
			t.Errorf("RunwaysOf(unknown) = %+v", got)
		}
	})

	t.Run("Checklist catalogue", func(t *testing.T) {
		c, ok := s.Checklist("BEFORE_TAKEOFF", "a320")
		if !ok || c.File != "a320_before_takeoff.csv" {
			t.Errorf("Checklist() = %+v, %v", c, ok)
		}
	})
}

func TestNilSnapshotIsEmpty(t *testing.T) {
	var s *Snapshot
	box := coordinates.BoundingBoxAround(geo(0, 0), 1000)

	if len(s.AirportsInBox(box)) != 0 || len(s.RunwaysInBox(box)) != 0 ||
		len(s.NavaidsInBox(box)) != 0 || len(s.WaypointsInBox(box)) != 0 {
		t.Error("nil snapshot should return empty box results")
	}
	if _, ok := s.Airport("LFBO"); ok {
		t.Error("nil snapshot should not find airports")
	}
	if _, ok := s.RunwaysAt("LFBO"); ok {
		t.Error("nil snapshot should not find runways")
	}
	if _, ok := s.FrequencyLookup("LFBO", "TWR"); ok {
		t.Error("nil snapshot should not find frequencies")
	}
}

func TestIndexReadiness(t *testing.T) {
	var published int
	ix := NewIndex(func(*Snapshot) { published++ })

	if ix.Ready() {
		t.Error("new index should not be ready")
	}
	if _, err := ix.Snapshot(); !errors.Is(err, ErrNotReady) {
		t.Errorf("Snapshot() error = %v, want ErrNotReady", err)
	}
	if ix.Current() != nil {
		t.Error("Current() should be nil before Replace")
	}

	ix.Replace(nil)
	if ix.Ready() || published != 0 {
		t.Error("Replace(nil) should be ignored")
	}

	s := NewSnapshot(testTables())
	ix.Replace(s)
	got, err := ix.Snapshot()
	if err != nil || got != s {
		t.Errorf("Snapshot() = %p, %v", got, err)
	}
	if published != 1 {
		t.Errorf("onReplace called %d times, want 1", published)
	}
}

// TestIndexReplaceIsAtomic checks that a reader holding a snapshot sees one
// generation for every lookup, while writers keep publishing new ones.
func TestIndexReplaceIsAtomic(t *testing.T) {
	generation := func(n int) *Snapshot {
		name := fmt.Sprintf("gen-%d", n)
		return NewSnapshot(Tables{
			Airports: []Airport{{ICAO: "LFBO", Name: name, Position: geo(43.6, 1.36)}},
			Runways: []Runway{
				{AirportICAO: "LFBO", Ident: name + "-a", LengthFt: float64(n)},
				{AirportICAO: "LFBO", Ident: name + "-b", LengthFt: float64(n)},
			},
			Frequencies: []Frequency{{AirportICAO: "LFBO", Type: "TWR", Description: name, MHz: float64(n)}},
		})
	}

	ix := NewIndex(nil)
	ix.Replace(generation(0))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for n := 1; ; n++ {
			select {
			case <-stop:
				return
			default:
				ix.Replace(generation(n))
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		s := ix.Current()
		rw, ok := s.RunwaysAt("LFBO")
		if !ok {
			t.Fatal("runways missing")
		}
		freq, ok := s.FrequencyLookup("LFBO", "twr")
		if !ok {
			t.Fatal("frequency missing")
		}
		if rw.AirportName != freq.Description || rw.Runways[0].Ident != rw.AirportName+"-a" ||
			rw.Runways[1].LengthFt != freq.MHz {
			t.Fatalf("mixed generations: %+v / %+v", rw, freq)
		}
	}
	close(stop)
	wg.Wait()
}

func TestLongestRunways(t *testing.T) {
	tests := []struct {
		name    string
		runways []RunwayLength
		want    Longest
		wantOK  bool
	}{
		{
			name:    "Ties in source order",
			runways: []RunwayLength{{"09", 3000}, {"27", 3000}, {"04", 2500}},
			want:    Longest{MaxLengthFt: 3000, Idents: []string{"09", "27"}},
			wantOK:  true,
		},
		{
			name:    "Single maximum",
			runways: []RunwayLength{{"04", 2500}, {"22", 2600}},
			want:    Longest{MaxLengthFt: 2600, Idents: []string{"22"}},
			wantOK:  true,
		},
		{
			name:    "Maximum after shorter",
			runways: []RunwayLength{{"01", 100}, {"19", 100}, {"07", 900}, {"25", 900}},
			want:    Longest{MaxLengthFt: 900, Idents: []string{"07", "25"}},
			wantOK:  true,
		},
		{
			name:   "Empty",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LongestRunways(tt.runways)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("LongestRunways() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRunwaysAt(t *testing.T) {
	s := NewSnapshot(testTables())

	got, ok := s.RunwaysAt("lfbo")
	if !ok {
		t.Fatal("RunwaysAt(lfbo) not found")
	}
	want := AirportRunways{
		ICAO:        "LFBO",
		AirportName: "Toulouse-Blagnac",
		Runways:     []RunwayLength{{"14R", 11483}, {"14L", 11483}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("RunwaysAt() = %+v, want %+v", got, want)
	}

	if _, ok := s.RunwaysAt("ZZZZ"); ok {
		t.Error("unknown ICAO should not be found")
	}

	noRunways := NewSnapshot(Tables{Airports: []Airport{{ICAO: "LFXX", Name: "Heliport"}}})
	if _, ok := noRunways.RunwaysAt("LFXX"); ok {
		t.Error("airport without runways should not be found")
	}
}

func TestFrequencyLookup(t *testing.T) {
	s := NewSnapshot(testTables())

	tests := []struct {
		name     string
		icao     string
		typeCode string
		wantMHz  float64
		wantOK   bool
	}{
		{"Exact type", "LFBO", "ATIS", 123.125, true},
		{"Duplicate type keeps first row", "LFBO", "TWR", 118.1, true},
		{"Case-insensitive", "lfbo", "twr", 118.1, true},
		{"Substring of type code", "LFBO", "/D", 121.1, true},
		{"No matching type", "LFBO", "GND", 0, false},
		{"Unknown airport", "ZZZZ", "TWR", 0, false},
		{"Empty type", "LFBO", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.FrequencyLookup(tt.icao, tt.typeCode)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && (got.MHz != tt.wantMHz || got.AirportName != "Toulouse-Blagnac") {
				t.Errorf("FrequencyLookup() = %+v", got)
			}
		})
	}
}

func TestSnapshotFileRoundTrip(t *testing.T) {
	tables := testTables()
	tables.LoadedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "nested", "reference.snap")

	if err := SaveFile(path, NewSnapshot(tables)); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}
	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if !loaded.LoadedAt().Equal(tables.LoadedAt) {
		t.Errorf("LoadedAt = %v, want %v", loaded.LoadedAt(), tables.LoadedAt)
	}
	if !reflect.DeepEqual(loaded.Counts(), NewSnapshot(tables).Counts()) {
		t.Errorf("Counts() = %v", loaded.Counts())
	}
	// Indexes are rebuilt on load
	if _, ok := loaded.RunwaysAt("LFBO"); !ok {
		t.Error("loaded snapshot lost its runway index")
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.snap")); err == nil {
		t.Error("LoadFile() should fail for a missing file")
	}
}
