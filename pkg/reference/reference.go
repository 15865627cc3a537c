// Package reference holds the static aeronautical reference data (airports,
// runways, radio frequencies, navaids, waypoints and checklist catalogue)
// and answers bounding-box and key lookups against it.
//
// Data is organised as immutable Snapshots. A Snapshot is built once from a
// set of Tables and never modified; the Index publishes a new Snapshot with
// a single atomic pointer swap so concurrent readers always see one
// consistent generation.
package reference

import (
	"strings"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// Kind names a reference table.
type Kind string

const (
	KindAirport   Kind = "airport"
	KindRunway    Kind = "runway"
	KindFrequency Kind = "frequency"
	KindNavaid    Kind = "navaid"
	KindWaypoint  Kind = "waypoint"
	KindChecklist Kind = "checklist"
)

// Kinds lists every table in load order.
var Kinds = []Kind{KindAirport, KindRunway, KindFrequency, KindNavaid, KindWaypoint, KindChecklist}

// Airport is an aerodrome keyed by its ICAO code.
type Airport struct {
	ICAO       string                 `json:"icao" msgpack:"icao"`
	IATA       string                 `json:"iata,omitempty" msgpack:"iata"`
	Name       string                 `json:"name" msgpack:"name"`
	Country    string                 `json:"country,omitempty" msgpack:"country"`
	Position   coordinates.Geographic `json:"position" msgpack:"pos"`
	AltitudeFt float64                `json:"altitude" msgpack:"alt"`
}

// Runway is one runway end at an airport.
// Ident is the designator of this end (e.g. "14R"); Couple is the
// designator pair of the physical strip (e.g. "14R/32L").
type Runway struct {
	AirportICAO string                 `json:"airport" msgpack:"airport"`
	Ident       string                 `json:"ident" msgpack:"ident"`
	Couple      string                 `json:"couple" msgpack:"couple"`
	Begin       coordinates.Geographic `json:"begin" msgpack:"begin"`
	End         coordinates.Geographic `json:"end" msgpack:"end"`
	LengthFt    float64                `json:"length" msgpack:"length"`
	WidthFt     float64                `json:"width" msgpack:"width"`
	Surface     string                 `json:"surface,omitempty" msgpack:"surface"`
	Lighted     bool                   `json:"lights" msgpack:"lights"`
	Orientation float64                `json:"orientation" msgpack:"orientation"`
	ThresholdFt float64                `json:"threshold" msgpack:"threshold"`
	AltitudeFt  float64                `json:"altitude" msgpack:"alt"`
}

// Frequency is a radio frequency published for an airport.
// Type codes (TWR, ATIS, GND...) are not unique per airport.
type Frequency struct {
	AirportICAO string  `json:"airport" msgpack:"airport"`
	Type        string  `json:"type" msgpack:"type"`
	Description string  `json:"description" msgpack:"desc"`
	MHz         float64 `json:"mhz" msgpack:"mhz"`
}

// Navaid is a ground radio navigation aid.
type Navaid struct {
	Ident        string                 `json:"ident" msgpack:"ident"`
	Name         string                 `json:"name" msgpack:"name"`
	Type         string                 `json:"type" msgpack:"type"`
	FrequencyKHz float64                `json:"frequency_khz" msgpack:"khz"`
	Position     coordinates.Geographic `json:"position" msgpack:"pos"`
	AltitudeFt   float64                `json:"altitude" msgpack:"alt"`
}

// Waypoint is a named navigation fix.
type Waypoint struct {
	Ident    string                 `json:"ident" msgpack:"ident"`
	Country  string                 `json:"country,omitempty" msgpack:"country"`
	Position coordinates.Geographic `json:"position" msgpack:"pos"`
}

// Checklist maps a checklist type and aircraft model to the file holding
// its (item, response) rows.
type Checklist struct {
	Type  string `json:"type" msgpack:"type"`
	Model string `json:"model" msgpack:"model"`
	File  string `json:"file" msgpack:"file"`
}

// Tables is the raw content of a Snapshot, in load order.
type Tables struct {
	Airports    []Airport   `msgpack:"airports"`
	Runways     []Runway    `msgpack:"runways"`
	Frequencies []Frequency `msgpack:"frequencies"`
	Navaids     []Navaid    `msgpack:"navaids"`
	Waypoints   []Waypoint  `msgpack:"waypoints"`
	Checklists  []Checklist `msgpack:"checklists"`
	LoadedAt    time.Time   `msgpack:"loaded_at"`
}

// Snapshot is an immutable generation of reference data with key indexes.
// A nil *Snapshot is valid and behaves as empty.
type Snapshot struct {
	tables Tables

	airportByICAO   map[string]int
	runwaysByICAO   map[string][]int
	freqsByICAO     map[string][]int
	waypointByIdent map[string]int
}

// NewSnapshot indexes t. The slices are owned by the snapshot afterwards and
// must not be modified by the caller.
//
// When two rows share a key, the first one in table order wins.
func NewSnapshot(t Tables) *Snapshot {
	if t.LoadedAt.IsZero() {
		t.LoadedAt = time.Now().UTC()
	}
	s := &Snapshot{
		tables:          t,
		airportByICAO:   make(map[string]int, len(t.Airports)),
		runwaysByICAO:   make(map[string][]int),
		freqsByICAO:     make(map[string][]int),
		waypointByIdent: make(map[string]int, len(t.Waypoints)),
	}

	for i, a := range t.Airports {
		key := normalizeKey(a.ICAO)
		if _, dup := s.airportByICAO[key]; !dup && key != "" {
			s.airportByICAO[key] = i
		}
	}
	for i, r := range t.Runways {
		key := normalizeKey(r.AirportICAO)
		s.runwaysByICAO[key] = append(s.runwaysByICAO[key], i)
	}
	for i, f := range t.Frequencies {
		key := normalizeKey(f.AirportICAO)
		s.freqsByICAO[key] = append(s.freqsByICAO[key], i)
	}
	for i, w := range t.Waypoints {
		key := normalizeKey(w.Ident)
		if _, dup := s.waypointByIdent[key]; !dup && key != "" {
			s.waypointByIdent[key] = i
		}
	}
	return s
}

// Tables returns the snapshot content. Callers must treat it as read-only.
func (s *Snapshot) Tables() Tables {
	if s == nil {
		return Tables{}
	}
	return s.tables
}

// LoadedAt is when the snapshot content was read from its source.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.tables.LoadedAt
}

// Counts returns the number of rows per table.
func (s *Snapshot) Counts() map[Kind]int {
	t := s.Tables()
	return map[Kind]int{
		KindAirport:   len(t.Airports),
		KindRunway:    len(t.Runways),
		KindFrequency: len(t.Frequencies),
		KindNavaid:    len(t.Navaids),
		KindWaypoint:  len(t.Waypoints),
		KindChecklist: len(t.Checklists),
	}
}

// Airports returns every airport. Used for nearest-airport searches.
func (s *Snapshot) Airports() []Airport {
	return s.Tables().Airports
}

// AirportsInBox returns the airports positioned inside box.
func (s *Snapshot) AirportsInBox(box coordinates.Box) []Airport {
	var out []Airport
	for _, a := range s.Tables().Airports {
		if box.Contains(a.Position) {
			out = append(out, a)
		}
	}
	return out
}

// RunwaysInBox returns the runways whose begin endpoint is inside box.
func (s *Snapshot) RunwaysInBox(box coordinates.Box) []Runway {
	var out []Runway
	for _, r := range s.Tables().Runways {
		if box.Contains(r.Begin) {
			out = append(out, r)
		}
	}
	return out
}

// NavaidsInBox returns the navaids positioned inside box.
func (s *Snapshot) NavaidsInBox(box coordinates.Box) []Navaid {
	var out []Navaid
	for _, n := range s.Tables().Navaids {
		if box.Contains(n.Position) {
			out = append(out, n)
		}
	}
	return out
}

// WaypointsInBox returns the waypoints positioned inside box.
func (s *Snapshot) WaypointsInBox(box coordinates.Box) []Waypoint {
	var out []Waypoint
	for _, w := range s.Tables().Waypoints {
		if box.Contains(w.Position) {
			out = append(out, w)
		}
	}
	return out
}

// Airport looks up an airport by ICAO code, ignoring case.
func (s *Snapshot) Airport(icao string) (Airport, bool) {
	if s == nil {
		return Airport{}, false
	}
	i, ok := s.airportByICAO[normalizeKey(icao)]
	if !ok {
		return Airport{}, false
	}
	return s.tables.Airports[i], true
}

// Waypoint looks up a waypoint by identifier, ignoring case.
func (s *Snapshot) Waypoint(ident string) (Waypoint, bool) {
	if s == nil {
		return Waypoint{}, false
	}
	i, ok := s.waypointByIdent[normalizeKey(ident)]
	if !ok {
		return Waypoint{}, false
	}
	return s.tables.Waypoints[i], true
}

// RunwaysOf returns the runways of an airport in table order.
func (s *Snapshot) RunwaysOf(icao string) []Runway {
	if s == nil {
		return nil
	}
	idx := s.runwaysByICAO[normalizeKey(icao)]
	out := make([]Runway, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.tables.Runways[i])
	}
	return out
}

// FrequenciesAt returns the frequencies of an airport in table order.
func (s *Snapshot) FrequenciesAt(icao string) []Frequency {
	if s == nil {
		return nil
	}
	idx := s.freqsByICAO[normalizeKey(icao)]
	out := make([]Frequency, 0, len(idx))
	for _, i := range idx {
		out = append(out, s.tables.Frequencies[i])
	}
	return out
}

// Checklist finds the catalogue entry for a checklist type and aircraft
// model. Both are compared case-insensitively.
func (s *Snapshot) Checklist(kind, model string) (Checklist, bool) {
	for _, c := range s.Tables().Checklists {
		if strings.EqualFold(c.Type, kind) && strings.EqualFold(c.Model, model) {
			return c, true
		}
	}
	return Checklist{}, false
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
