// Package airspace runs the polling loops that keep the live picture around
// the user current: ambient traffic and surroundings around a center, and a
// single followed flight.
package airspace

import (
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
)

// trafficSet is one immutable generation of live traffic.
type trafficSet struct {
	aircraft  []adsb.Aircraft
	updatedAt time.Time
}

// TrafficStore holds the latest traffic set. Replace swaps the whole set, so
// readers always see a complete generation.
type TrafficStore struct {
	current atomic.Pointer[trafficSet]
}

// NewTrafficStore creates an empty store.
func NewTrafficStore() *TrafficStore {
	return &TrafficStore{}
}

// Replace publishes a new traffic set. The slice is owned by the store
// afterwards.
func (s *TrafficStore) Replace(aircraft []adsb.Aircraft, at time.Time) {
	s.current.Store(&trafficSet{aircraft: aircraft, updatedAt: at})
}

// Aircraft returns the current traffic. Callers must not modify the slice.
func (s *TrafficStore) Aircraft() []adsb.Aircraft {
	if set := s.current.Load(); set != nil {
		return set.aircraft
	}
	return nil
}

// UpdatedAt returns when the current set was published.
func (s *TrafficStore) UpdatedAt() time.Time {
	if set := s.current.Load(); set != nil {
		return set.updatedAt
	}
	return time.Time{}
}

// Find returns the aircraft identified by ICAO address or callsign.
func (s *TrafficStore) Find(id string) (adsb.Aircraft, bool) {
	for _, ac := range s.Aircraft() {
		if ac.Matches(id) {
			return ac, true
		}
	}
	return adsb.Aircraft{}, false
}

// Suggestion is one autocomplete entry.
type Suggestion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Search returns aircraft whose callsign, ICAO address or registration
// contains partial, ignoring case, sorted by label. limit <= 0 means no limit.
func (s *TrafficStore) Search(partial string, limit int) []Suggestion {
	partial = strings.ToUpper(strings.TrimSpace(partial))
	if partial == "" {
		return nil
	}

	var out []Suggestion
	for _, ac := range s.Aircraft() {
		if !containsFold(partial, ac.Callsign, ac.ICAO, ac.Registration) {
			continue
		}
		label := ac.Label()
		if reg := strings.TrimSpace(ac.Registration); reg != "" && reg != label {
			label += " (" + reg + ")"
		}
		out = append(out, Suggestion{ID: ac.ICAO, Label: label})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func containsFold(upper string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToUpper(f), upper) {
			return true
		}
	}
	return false
}
