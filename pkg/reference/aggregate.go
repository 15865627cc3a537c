package reference

import "strings"

// RunwayLength is a runway designator with its length in feet.
type RunwayLength struct {
	Ident    string  `json:"ident"`
	LengthFt float64 `json:"length"`
}

// AirportRunways is the runway list of one airport.
type AirportRunways struct {
	ICAO        string         `json:"icao"`
	AirportName string         `json:"name"`
	Runways     []RunwayLength `json:"runways"`
}

// Longest is the result of LongestRunways.
type Longest struct {
	MaxLengthFt float64  `json:"max_length"`
	Idents      []string `json:"idents"`
}

// FrequencyMatch is the result of FrequencyLookup.
type FrequencyMatch struct {
	ICAO        string  `json:"icao"`
	AirportName string  `json:"airport_name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	MHz         float64 `json:"mhz"`
}

// LongestRunways returns the maximum length among runways and every
// designator reaching it, in input order. Reciprocal ends usually share a
// length, so ties are the common case. ok is false for an empty input.
func LongestRunways(runways []RunwayLength) (result Longest, ok bool) {
	if len(runways) == 0 {
		return Longest{}, false
	}

	result.MaxLengthFt = runways[0].LengthFt
	for _, r := range runways[1:] {
		if r.LengthFt > result.MaxLengthFt {
			result.MaxLengthFt = r.LengthFt
		}
	}
	for _, r := range runways {
		if r.LengthFt == result.MaxLengthFt {
			result.Idents = append(result.Idents, r.Ident)
		}
	}
	return result, true
}

// RunwaysAt returns the named runway list of an airport. ok is false when
// the ICAO code is unknown or the airport has no runways.
func (s *Snapshot) RunwaysAt(icao string) (AirportRunways, bool) {
	airport, found := s.Airport(icao)
	if !found {
		return AirportRunways{}, false
	}
	runways := s.RunwaysOf(icao)
	if len(runways) == 0 {
		return AirportRunways{}, false
	}

	out := AirportRunways{
		ICAO:        airport.ICAO,
		AirportName: airport.Name,
		Runways:     make([]RunwayLength, 0, len(runways)),
	}
	for _, r := range runways {
		out.Runways = append(out.Runways, RunwayLength{Ident: r.Ident, LengthFt: r.LengthFt})
	}
	return out, true
}

// FrequencyLookup finds a frequency of the airport whose type code contains
// typeCode, ignoring case ("TWR" also matches "ATWR"). The first match in
// snapshot order wins. An empty typeCode matches nothing.
func (s *Snapshot) FrequencyLookup(icao, typeCode string) (FrequencyMatch, bool) {
	needle := strings.ToUpper(strings.TrimSpace(typeCode))
	if needle == "" {
		return FrequencyMatch{}, false
	}
	airport, found := s.Airport(icao)
	if !found {
		return FrequencyMatch{}, false
	}

	for _, f := range s.FrequenciesAt(icao) {
		if strings.Contains(strings.ToUpper(f.Type), needle) {
			return FrequencyMatch{
				ICAO:        airport.ICAO,
				AirportName: airport.Name,
				Type:        f.Type,
				Description: f.Description,
				MHz:         f.MHz,
			}, true
		}
	}
	return FrequencyMatch{}, false
}
