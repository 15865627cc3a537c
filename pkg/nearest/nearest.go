// Package nearest selects the closest entity to a point among static
// reference rows or live traffic.
package nearest

import (
	"errors"
	"slices"
	"strings"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
)

// ErrNoCandidates is returned when nothing is left to choose from.
var ErrNoCandidates = errors.New("no candidates")

// Result is the selected entity with its distance and heading from the
// query point.
type Result[T any] struct {
	Entity     T
	DistanceNM float64
	HeadingDeg float64
}

// Options tunes Find.
type Options[T any] struct {
	// Exclude drops candidates for which it returns true (self-exclusion).
	Exclude func(T) bool
}

// Find returns the candidate closest to from. position extracts each
// candidate's location.
//
// Ties keep the first candidate in slice order, so the result is
// deterministic for a given input order.
func Find[T any](from coordinates.Geographic, candidates []T, position func(T) coordinates.Geographic, opts Options[T]) (Result[T], error) {
	var (
		best  Result[T]
		found bool
	)
	for _, c := range candidates {
		if opts.Exclude != nil && opts.Exclude(c) {
			continue
		}
		d := coordinates.DistanceNauticalMiles(from, position(c))
		if !found || d < best.DistanceNM {
			best = Result[T]{Entity: c, DistanceNM: d}
			found = true
		}
	}
	if !found {
		return Result[T]{}, ErrNoCandidates
	}

	best.HeadingDeg = coordinates.Bearing(from, position(best.Entity))
	return best, nil
}

// Airport finds the airport closest to from.
func Airport(from coordinates.Geographic, airports []reference.Airport) (Result[reference.Airport], error) {
	return Find(from, airports, func(a reference.Airport) coordinates.Geographic {
		return a.Position
	}, Options[reference.Airport]{})
}

// Aircraft finds the aircraft closest to from, skipping every aircraft
// matched by one of the self identifiers (ICAO address or callsign).
// Blank identifiers are ignored.
func Aircraft(from coordinates.Geographic, traffic []adsb.Aircraft, self ...string) (Result[adsb.Aircraft], error) {
	ids := make([]string, 0, len(self))
	for _, id := range self {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return Find(from, traffic, adsb.Aircraft.Position, Options[adsb.Aircraft]{
		Exclude: func(a adsb.Aircraft) bool {
			return slices.ContainsFunc(ids, a.Matches)
		},
	})
}
