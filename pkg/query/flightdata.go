package query

import (
	"strings"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// FlightData is the subject of a query: the followed aircraft's static and
// dynamic attributes. Nil dynamic fields are unknown.
type FlightData struct {
	ID              string `json:"id,omitempty"`
	Registration    string `json:"registration,omitempty"`
	Callsign        string `json:"callsign,omitempty"`
	Model           string `json:"model,omitempty"`
	ModelText       string `json:"model_text,omitempty"`
	Origin          string `json:"origin,omitempty"`
	OriginICAO      string `json:"origin_icao,omitempty"`
	Destination     string `json:"destination,omitempty"`
	DestinationICAO string `json:"destination_icao,omitempty"`

	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Heading       *float64 `json:"heading,omitempty"`
	Speed         *float64 `json:"speed,omitempty"`
	VerticalSpeed *float64 `json:"vertical_speed,omitempty"`
	Altitude      *float64 `json:"altitude,omitempty"`

	LastContact *time.Time `json:"last_contact,omitempty"`
	ETA         *time.Time `json:"eta,omitempty"`

	// IsFollowing is set when the data comes from a followed flight
	IsFollowing bool `json:"is_following"`
}

// Float returns a pointer to v, for building FlightData literals.
func Float(v float64) *float64 {
	return &v
}

// Position returns the subject position when both coordinates are known.
func (f FlightData) Position() (coordinates.Geographic, bool) {
	if f.Latitude == nil || f.Longitude == nil {
		return coordinates.Geographic{}, false
	}
	return coordinates.Geographic{Latitude: *f.Latitude, Longitude: *f.Longitude}, true
}

// SelfIDs are the identifiers that exclude the subject from traffic: its
// ICAO address and its callsign, whichever are known.
func (f FlightData) SelfIDs() []string {
	var ids []string
	for _, id := range []string{f.ID, f.Callsign} {
		if known(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// FromAircraft fills the dynamic fields and the identity of f from ac,
// keeping static fields already set.
func FromAircraft(f FlightData, ac adsb.Aircraft) FlightData {
	f.ID = ac.ICAO
	if ac.Callsign != "" {
		f.Callsign = ac.Callsign
	}
	if ac.Registration != "" {
		f.Registration = ac.Registration
	}
	if ac.Model != "" && f.Model == "" {
		f.Model = ac.Model
	}
	if ac.Origin != "" && !known(f.OriginICAO) {
		f.OriginICAO = ac.Origin
	}
	if ac.Destination != "" && !known(f.DestinationICAO) {
		f.DestinationICAO = ac.Destination
	}
	f.Latitude = Float(ac.Latitude)
	f.Longitude = Float(ac.Longitude)
	f.Heading = Float(ac.Track)
	f.Speed = Float(ac.GroundSpeed)
	f.VerticalSpeed = Float(ac.VerticalRate)
	f.Altitude = Float(ac.Altitude)
	if !ac.LastSeen.IsZero() {
		seen := ac.LastSeen
		f.LastContact = &seen
	}
	return f
}

// known reports whether a context string carries a value. Upstream feeds
// use "N/A" for unknown fields.
func known(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.EqualFold(s, "N/A")
}
