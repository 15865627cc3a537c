// Package tracking extrapolates the position of a followed aircraft between
// feed updates.
package tracking

import (
	"math"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// MaxPredictionAge is how long a track may be extrapolated before it is
// considered lost.
const MaxPredictionAge = 60 * time.Second

// PredictedPosition represents an aircraft's predicted position.
type PredictedPosition struct {
	// Position is the predicted geographic location
	Position coordinates.Geographic

	// AltitudeFt is the predicted altitude in feet MSL
	AltitudeFt float64

	// PredictionTime is when this prediction is valid
	PredictionTime time.Time

	// Confidence is a measure of prediction reliability (0-1)
	// 1.0 at 0s, 0.5 at 30s, 0.0 at MaxPredictionAge
	Confidence float64
}

// PredictPosition predicts where an aircraft will be at predictionTime,
// assuming it keeps its ground speed, track and vertical rate since LastSeen.
func PredictPosition(aircraft adsb.Aircraft, predictionTime time.Time) PredictedPosition {
	deltaT := predictionTime.Sub(aircraft.LastSeen).Seconds()

	if deltaT <= 0 {
		return PredictedPosition{
			Position:       aircraft.Position(),
			AltitudeFt:     aircraft.Altitude,
			PredictionTime: predictionTime,
			Confidence:     1.0,
		}
	}

	confidence := math.Max(0.0, 1.0-deltaT/MaxPredictionAge.Seconds())

	// 1 knot = 1 nautical mile per hour
	distanceNM := aircraft.GroundSpeed * deltaT / 3600.0
	position := coordinates.Destination(aircraft.Position(), aircraft.Track, distanceNM)

	// VerticalRate is in feet per minute
	altitudeFt := aircraft.Altitude + aircraft.VerticalRate*(deltaT/60.0)
	if altitudeFt < 0 {
		altitudeFt = 0
		confidence *= 0.5
	}

	return PredictedPosition{
		Position:       position,
		AltitudeFt:     altitudeFt,
		PredictionTime: predictionTime,
		Confidence:     confidence,
	}
}

// Advance returns a copy of aircraft moved to its predicted state at t,
// with LastSeen left unchanged so the age of the real fix stays visible.
func Advance(aircraft adsb.Aircraft, t time.Time) adsb.Aircraft {
	p := PredictPosition(aircraft, t)
	aircraft.Latitude = p.Position.Latitude
	aircraft.Longitude = p.Position.Longitude
	aircraft.Altitude = p.AltitudeFt
	return aircraft
}
