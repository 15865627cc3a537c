package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
)

// Request is one of the typed query variants below. The set is closed:
// only types in this package implement it.
type Request interface {
	Kind() Kind
	isRequest()
}

// AirportRole says how an AirportRef is resolved.
type AirportRole int

const (
	// AirportLiteral uses Code as given.
	AirportLiteral AirportRole = iota
	// AirportArrival resolves to the subject's destination.
	AirportArrival
	// AirportDeparture resolves to the subject's origin.
	AirportDeparture
)

// Sentinel arguments standing for the subject's own airports.
const (
	ArgArrival   = "arrival"
	ArgDeparture = "departure"
)

// AirportRef designates an airport either literally or through the
// subject's flight plan.
type AirportRef struct {
	Role AirportRole
	Code string
}

// ParseAirportRef maps the "arrival"/"departure" sentinels to roles and
// upper-cases anything else as a literal ICAO code.
func ParseAirportRef(arg string) AirportRef {
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(arg) {
	case ArgArrival:
		return AirportRef{Role: AirportArrival}
	case ArgDeparture:
		return AirportRef{Role: AirportDeparture}
	default:
		return AirportRef{Role: AirportLiteral, Code: strings.ToUpper(arg)}
	}
}

// Resolve returns the ICAO code the reference designates for flight.
func (r AirportRef) Resolve(flight FlightData) (string, bool) {
	var code string
	switch r.Role {
	case AirportArrival:
		code = flight.DestinationICAO
	case AirportDeparture:
		code = flight.OriginICAO
	default:
		code = r.Code
	}
	if !known(code) {
		return "", false
	}
	return strings.ToUpper(strings.TrimSpace(code)), true
}

func isSentinel(arg string) bool {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case ArgArrival, ArgDeparture:
		return true
	}
	return false
}

type (
	// DepartureAirport asks for the subject's origin.
	DepartureAirport struct{}

	// ArrivalAirport asks for the subject's destination.
	ArrivalAirport struct{}

	// RunwaysAtAirport lists the runways of an airport.
	RunwaysAtAirport struct {
		Airport AirportRef
	}

	// FrequencyAtAirport looks up a frequency type at an airport.
	FrequencyAtAirport struct {
		TypeCode string
		Airport  AirportRef
	}

	// FrequencyAtArrival looks up a frequency type at the destination.
	FrequencyAtArrival struct {
		TypeCode string
	}

	// NearestAirport finds the airport closest to the subject.
	NearestAirport struct{}

	// CurrentParam reads one of the subject's own parameters.
	CurrentParam struct {
		Param string
	}

	// RunwaysAtNearestAirport lists the runways of the closest airport.
	RunwaysAtNearestAirport struct{}

	// NearestTraffic finds the closest other aircraft. A nil Traffic uses
	// the live traffic set.
	NearestTraffic struct {
		Traffic []adsb.Aircraft
	}

	// LengthNearestRunway reports the longest runways of the closest airport.
	LengthNearestRunway struct{}

	// ETA reports the estimated arrival time. Without an argument the
	// subject's own ETA is used; an argument that is not an integer epoch
	// leaves Arrival nil and the answer is N/A.
	ETA struct {
		Given   bool
		Arrival *time.Time
	}

	// WeatherAtAirport reports a weather parameter at an airport.
	// Location is used when the airport cannot be resolved.
	WeatherAtAirport struct {
		Param    string
		Airport  AirportRef
		Location string
	}

	// WeatherAtLocation reports a weather parameter at a free-text place.
	WeatherAtLocation struct {
		Param    string
		Location string
	}

	// WeatherAtWaypoint reports a weather parameter at a waypoint.
	WeatherAtWaypoint struct {
		Param string
		Ident string
	}

	// METARAtAirport returns the latest METAR of an airport.
	METARAtAirport struct {
		Airport AirportRef
	}

	// Checklist returns a checklist for the subject's aircraft model.
	Checklist struct {
		Type string
	}

	// Clear blanks the answer display.
	Clear struct{}
)

func (DepartureAirport) Kind() Kind        { return KindDepartureAirport }
func (ArrivalAirport) Kind() Kind          { return KindArrivalAirport }
func (RunwaysAtAirport) Kind() Kind        { return KindRunwaysAtAirport }
func (FrequencyAtAirport) Kind() Kind      { return KindFrequencyAtAirport }
func (FrequencyAtArrival) Kind() Kind      { return KindFrequencyAtArrival }
func (NearestAirport) Kind() Kind          { return KindNearestAirport }
func (CurrentParam) Kind() Kind            { return KindCurrentParam }
func (RunwaysAtNearestAirport) Kind() Kind { return KindRunwaysAtNearestAirport }
func (NearestTraffic) Kind() Kind          { return KindNearestTraffic }
func (LengthNearestRunway) Kind() Kind     { return KindLengthNearestRunway }
func (ETA) Kind() Kind                     { return KindETA }
func (WeatherAtAirport) Kind() Kind        { return KindWeatherAtAirport }
func (WeatherAtLocation) Kind() Kind       { return KindWeatherAtLocation }
func (WeatherAtWaypoint) Kind() Kind       { return KindWeatherAtWaypoint }
func (METARAtAirport) Kind() Kind          { return KindMETARAtAirport }
func (Checklist) Kind() Kind               { return KindChecklist }
func (Clear) Kind() Kind                   { return KindClear }

func (DepartureAirport) isRequest()        {}
func (ArrivalAirport) isRequest()          {}
func (RunwaysAtAirport) isRequest()        {}
func (FrequencyAtAirport) isRequest()      {}
func (FrequencyAtArrival) isRequest()      {}
func (NearestAirport) isRequest()          {}
func (CurrentParam) isRequest()            {}
func (RunwaysAtNearestAirport) isRequest() {}
func (NearestTraffic) isRequest()          {}
func (LengthNearestRunway) isRequest()     {}
func (ETA) isRequest()                     {}
func (WeatherAtAirport) isRequest()        {}
func (WeatherAtLocation) isRequest()       {}
func (WeatherAtWaypoint) isRequest()       {}
func (METARAtAirport) isRequest()          {}
func (Checklist) isRequest()               {}
func (Clear) isRequest()                   {}

// ParseRequest builds the typed request for a (kind, arg1, arg2) tuple as
// sent by clients. Arguments are usually strings; nearestTrafic accepts a
// list of aircraft and eta an object with an integer "arrival" epoch.
//
// Only an unknown kind is an error. Arguments of the wrong shape produce a
// request with an empty payload, which answers with the kind's fallback.
func ParseRequest(kind string, arg1, arg2 any) (Request, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}

	a1, a2 := argString(arg1), argString(arg2)
	switch k {
	case KindDepartureAirport:
		return DepartureAirport{}, nil
	case KindArrivalAirport:
		return ArrivalAirport{}, nil
	case KindRunwaysAtAirport:
		return RunwaysAtAirport{Airport: ParseAirportRef(a1)}, nil
	case KindFrequencyAtAirport:
		// The airport may be given in either position when it is a sentinel.
		switch {
		case isSentinel(a1):
			return FrequencyAtAirport{TypeCode: strings.ToUpper(a2), Airport: ParseAirportRef(a1)}, nil
		case isSentinel(a2):
			return FrequencyAtAirport{TypeCode: strings.ToUpper(a1), Airport: ParseAirportRef(a2)}, nil
		default:
			return FrequencyAtAirport{TypeCode: strings.ToUpper(a1), Airport: ParseAirportRef(a2)}, nil
		}
	case KindFrequencyAtArrival:
		return FrequencyAtArrival{TypeCode: strings.ToUpper(a1)}, nil
	case KindNearestAirport:
		return NearestAirport{}, nil
	case KindCurrentParam:
		return CurrentParam{Param: a1}, nil
	case KindRunwaysAtNearestAirport:
		return RunwaysAtNearestAirport{}, nil
	case KindNearestTraffic:
		return NearestTraffic{Traffic: argTraffic(arg1)}, nil
	case KindLengthNearestRunway:
		return LengthNearestRunway{}, nil
	case KindETA:
		return ETA{Given: arg1 != nil, Arrival: argArrival(arg1)}, nil
	case KindWeatherAtAirport:
		location := a2
		if isSentinel(a2) {
			location = ""
		}
		return WeatherAtAirport{Param: a1, Airport: ParseAirportRef(a2), Location: location}, nil
	case KindWeatherAtLocation:
		return WeatherAtLocation{Param: a1, Location: a2}, nil
	case KindWeatherAtWaypoint:
		return WeatherAtWaypoint{Param: a1, Ident: strings.ToUpper(a2)}, nil
	case KindMETARAtAirport:
		return METARAtAirport{Airport: ParseAirportRef(a1)}, nil
	case KindChecklist:
		return Checklist{Type: a1}, nil
	case KindClear:
		return Clear{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func argString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case fmt.Stringer:
		return strings.TrimSpace(x.String())
	default:
		return ""
	}
}

// argTraffic accepts a typed slice or decoded JSON (a list of objects in
// the Aircraft wire format). Anything else yields nil.
func argTraffic(v any) []adsb.Aircraft {
	switch x := v.(type) {
	case nil:
		return nil
	case []adsb.Aircraft:
		return x
	case []any:
		raw, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		var out []adsb.Aircraft
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		if out == nil {
			out = []adsb.Aircraft{}
		}
		return out
	default:
		return nil
	}
}

// argArrival reads {"arrival": <integer epoch seconds>}. Non-integer values
// mean the arrival time is unknown.
func argArrival(v any) *time.Time {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	var secs int64
	switch x := obj["arrival"].(type) {
	case int:
		secs = int64(x)
	case int64:
		secs = x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return nil
		}
		secs = int64(x)
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return nil
		}
		secs = n
	default:
		return nil
	}

	t := time.Unix(secs, 0).UTC()
	return &t
}
