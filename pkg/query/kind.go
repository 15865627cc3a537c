// Package query answers the assistant's fixed vocabulary of situational
// questions.
//
// A question arrives already classified: a Kind plus up to two loose
// arguments. ParseRequest turns that into one of the typed Request
// variants, and Dispatcher.Dispatch computes the answer against the
// current reference snapshot, the live traffic set and the external
// weather and checklist providers. Every recognised request yields an
// Envelope; lookups that come up empty produce a fixed sentence for that
// kind instead of an error.
package query

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned for a kind outside the closed set.
	ErrUnknownKind = errors.New("unknown query kind")

	// ErrInvalidRequest is returned for requests that cannot be dispatched
	// at all (nil or foreign request values).
	ErrInvalidRequest = errors.New("invalid query request")
)

// Kind identifies a query.
type Kind string

const (
	KindDepartureAirport        Kind = "departureAirport"
	KindArrivalAirport          Kind = "arrivalAirport"
	KindRunwaysAtAirport        Kind = "runwaysAtAirport"
	KindFrequencyAtAirport      Kind = "frequencyAtAirport"
	KindFrequencyAtArrival      Kind = "frequencyAtArrival"
	KindNearestAirport          Kind = "nearestAirport"
	KindCurrentParam            Kind = "currentParam"
	KindRunwaysAtNearestAirport Kind = "runwaysAtNearestAirport"
	KindNearestTraffic          Kind = "nearestTrafic"
	KindLengthNearestRunway     Kind = "lengthNearestRunway"
	KindETA                     Kind = "eta"
	KindWeatherAtAirport        Kind = "weatherAtAirport"
	KindWeatherAtLocation       Kind = "weatherAtLocation"
	KindWeatherAtWaypoint       Kind = "weatherAtWaypoint"
	KindMETARAtAirport          Kind = "metarAtAirport"
	KindChecklist               Kind = "checklist"
	KindClear                   Kind = "clear"
)

// Kinds is the closed set of supported kinds.
var Kinds = []Kind{
	KindDepartureAirport,
	KindArrivalAirport,
	KindRunwaysAtAirport,
	KindFrequencyAtAirport,
	KindFrequencyAtArrival,
	KindNearestAirport,
	KindCurrentParam,
	KindRunwaysAtNearestAirport,
	KindNearestTraffic,
	KindLengthNearestRunway,
	KindETA,
	KindWeatherAtAirport,
	KindWeatherAtLocation,
	KindWeatherAtWaypoint,
	KindMETARAtAirport,
	KindChecklist,
	KindClear,
}

// ParseKind validates s against the closed set.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Outcome classifies how a query was answered.
type Outcome int

const (
	// Found means the answer carries the requested data.
	Found Outcome = iota
	// NotFound means the entity, key or candidate set was missing.
	NotFound
	// Unavailable means an external provider failed or timed out.
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// MarshalText encodes the outcome by name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(b []byte) error {
	for _, c := range []Outcome{Found, NotFound, Unavailable} {
		if c.String() == string(b) {
			*o = c
			return nil
		}
	}
	return fmt.Errorf("query: unknown outcome %q", b)
}
