package adsb

import (
	"context"
	"strings"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// Aircraft is one traffic report. Positions are WGS84; the JSON names are
// the ones the answer templates and the web client read.
type Aircraft struct {
	ICAO         string `json:"icao24"` // 24-bit transponder address, upper-case hex
	Callsign     string `json:"callsign"`
	Registration string `json:"registration,omitempty"`
	Model        string `json:"model,omitempty"` // ICAO type designator, e.g. A320

	// Origin and Destination are ICAO airport codes, when known.
	Origin      string `json:"origin_icao,omitempty"`
	Destination string `json:"destination_icao,omitempty"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	// Altitude is in feet: GPS height when the feed has it, else pressure
	// altitude. Zero on the ground.
	Altitude float64 `json:"altitude"`

	GroundSpeed  float64 `json:"speed"`          // knots
	Track        float64 `json:"heading"`        // degrees true
	VerticalRate float64 `json:"vertical_speed"` // ft/min, negative descending

	LastSeen time.Time `json:"last_contact"`
}

// Position returns the aircraft's horizontal position.
func (a Aircraft) Position() coordinates.Geographic {
	return coordinates.Geographic{Latitude: a.Latitude, Longitude: a.Longitude}
}

// Label is the human-readable name used in answers and autocomplete:
// the trimmed callsign, or the ICAO address when no callsign is set.
func (a Aircraft) Label() string {
	if cs := strings.TrimSpace(a.Callsign); cs != "" {
		return cs
	}
	return a.ICAO
}

// Matches reports whether id identifies this aircraft by ICAO address or callsign.
func (a Aircraft) Matches(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return strings.EqualFold(a.ICAO, id) || strings.EqualFold(strings.TrimSpace(a.Callsign), id)
}

// DataSource is a live traffic feed. AirplanesLiveClient is the only
// implementation; tests substitute fakes.
type DataSource interface {
	// GetAircraft lists traffic within radiusNM of center.
	GetAircraft(ctx context.Context, center coordinates.Geographic, radiusNM float64) ([]Aircraft, error)

	// GetAircraftByICAO returns nil, nil when the address is not tracked.
	GetAircraftByICAO(ctx context.Context, icao string) (*Aircraft, error)

	Close() error
}
