package airspace

import (
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// AirportInfo is an airport of the surroundings with its frequencies.
type AirportInfo struct {
	reference.Airport
	Frequencies []reference.Frequency `json:"frequencies"`
}

// Static is the reference part of the surroundings. It only changes with the
// center or the snapshot.
type Static struct {
	Center    coordinates.Geographic `json:"center"`
	RadiusNM  float64                `json:"radius_nm"`
	Box       coordinates.Box        `json:"box"`
	Airports  []AirportInfo          `json:"airports"`
	Runways   []reference.Runway     `json:"runways"`
	Navaids   []reference.Navaid     `json:"navaids"`
	Waypoints []reference.Waypoint   `json:"waypoints"`

	snapshot *reference.Snapshot
}

// Surroundings is the map data around the airspace center.
type Surroundings struct {
	Static
	Traffic       []adsb.Aircraft `json:"traffic"`
	NumberFlights int             `json:"number_flights"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BuildStatic box-filters the reference tables around center.
func BuildStatic(snap *reference.Snapshot, center coordinates.Geographic, radiusNM float64) Static {
	box := coordinates.BoundingBoxAround(center, radiusNM)

	airports := snap.AirportsInBox(box)
	infos := make([]AirportInfo, 0, len(airports))
	for _, a := range airports {
		infos = append(infos, AirportInfo{Airport: a, Frequencies: snap.FrequenciesAt(a.ICAO)})
	}

	return Static{
		Center:    center,
		RadiusNM:  radiusNM,
		Box:       box,
		Airports:  infos,
		Runways:   snap.RunwaysInBox(box),
		Navaids:   snap.NavaidsInBox(box),
		Waypoints: snap.WaypointsInBox(box),
		snapshot:  snap,
	}
}

// stale reports whether s must be rebuilt for center and snap.
func (s Static) stale(snap *reference.Snapshot, center coordinates.Geographic) bool {
	return s.snapshot != snap || s.Center != center
}

// WithTraffic combines s with the traffic inside its box.
func (s Static) WithTraffic(traffic []adsb.Aircraft, at time.Time) Surroundings {
	inBox := make([]adsb.Aircraft, 0, len(traffic))
	for _, ac := range traffic {
		if s.Box.Contains(ac.Position()) {
			inBox = append(inBox, ac)
		}
	}
	return Surroundings{
		Static:        s,
		Traffic:       inBox,
		NumberFlights: len(inBox),
		UpdatedAt:     at,
	}
}
