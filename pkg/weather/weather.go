// Package weather provides current weather observations and METAR reports
// and renders single weather parameters as short phrases.
package weather

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

var (
	// ErrNotFound means the provider has no data for the requested place.
	ErrNotFound = errors.New("weather: not found")

	// ErrUnavailable means the upstream service failed or timed out.
	ErrUnavailable = errors.New("weather: provider unavailable")
)

// Observation is the current weather at one place.
type Observation struct {
	Place      string                 `json:"place,omitempty"`
	Position   coordinates.Geographic `json:"position"`
	ObservedAt time.Time              `json:"observed_at"`

	// Description is the detailed status, e.g. "light rain"
	Description string `json:"description"`

	WindDirectionDeg float64 `json:"wind_direction"`
	WindSpeedKt      float64 `json:"wind_speed"`
	// WindGustKt is zero when no gust is reported
	WindGustKt float64 `json:"wind_gust,omitempty"`

	TemperatureC float64 `json:"temperature"`
	PressureHPa  float64 `json:"pressure"`
	VisibilityM  float64 `json:"visibility"`
	CloudsPct    float64 `json:"clouds"`
	Rain1hMM     float64 `json:"rain_1h"`
}

// Provider returns current observations.
type Provider interface {
	// AtCoordinates returns the observation closest to p.
	AtCoordinates(ctx context.Context, p coordinates.Geographic) (*Observation, error)

	// AtPlace resolves a free-text place name and returns its observation.
	AtPlace(ctx context.Context, place string) (*Observation, error)
}

// Parameters lists the names accepted by FormatParameter.
var Parameters = []string{"weather", "wind", "gust", "temperature", "pressure", "visibility", "clouds", "rain"}

// FormatParameter renders one parameter of obs:
//
//	weather      light rain
//	wind         240° 12 kt with gusts at 25 kt
//	gust         25 kt
//	temperature  14.5 celsius
//	pressure     1013 HPa
//	visibility   10000 m
//	clouds       75 % coverage
//	rain         0.4 mm
//
// An unknown parameter, or a nil observation, yields "".
func FormatParameter(param string, obs *Observation) string {
	if obs == nil {
		return ""
	}

	switch strings.ToLower(strings.TrimSpace(param)) {
	case "weather":
		return obs.Description
	case "wind":
		s := fmt.Sprintf("%s° %s kt", FormatNumber(obs.WindDirectionDeg), FormatNumber(obs.WindSpeedKt))
		if obs.WindGustKt > 0 {
			s += fmt.Sprintf(" with gusts at %s kt", FormatNumber(obs.WindGustKt))
		}
		return s
	case "gust":
		return FormatNumber(obs.WindGustKt) + " kt"
	case "temperature":
		return FormatNumber(obs.TemperatureC) + " celsius"
	case "pressure":
		return FormatNumber(obs.PressureHPa) + " HPa"
	case "visibility":
		return FormatNumber(obs.VisibilityM) + " m"
	case "clouds":
		return FormatNumber(obs.CloudsPct) + " % coverage"
	case "rain":
		return FormatNumber(obs.Rain1hMM) + " mm"
	default:
		return ""
	}
}

// FormatNumber prints v with at most two decimals and no trailing zeros.
func FormatNumber(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0 // drop negative zero
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// msToKnots converts metres per second to knots.
func msToKnots(v float64) float64 {
	return math.Round(v*1.943844*10) / 10
}
