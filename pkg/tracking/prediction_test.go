package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/unklstewy/airspace-assistant/pkg/adsb"
	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// TestPredictPosition tests aircraft position prediction.
func TestPredictPosition(t *testing.T) {
	baseTime := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		aircraft       adsb.Aircraft
		deltaT         time.Duration
		wantDistanceNM float64
		wantAltitude   float64
		wantConfidence float64
	}{
		{
			name: "Stationary aircraft",
			aircraft: adsb.Aircraft{
				Latitude: 43.6, Longitude: 1.45, Altitude: 500, LastSeen: baseTime,
			},
			deltaT:         10 * time.Second,
			wantDistanceNM: 0,
			wantAltitude:   500,
			wantConfidence: 1 - 10.0/60.0,
		},
		{
			name: "Level cruise east at 360 kt for 30s",
			aircraft: adsb.Aircraft{
				Latitude: 43.6, Longitude: 1.45, Altitude: 35000,
				GroundSpeed: 360, Track: 90, LastSeen: baseTime,
			},
			deltaT:         30 * time.Second,
			wantDistanceNM: 3,
			wantAltitude:   35000,
			wantConfidence: 0.5,
		},
		{
			name: "Descending below ground is clamped",
			aircraft: adsb.Aircraft{
				Latitude: 43.6, Longitude: 1.45, Altitude: 500,
				GroundSpeed: 120, Track: 143, VerticalRate: -1200, LastSeen: baseTime,
			},
			deltaT:         30 * time.Second,
			wantDistanceNM: 1,
			wantAltitude:   0,
			wantConfidence: 0.25,
		},
		{
			name: "Prediction in the past",
			aircraft: adsb.Aircraft{
				Latitude: 43.6, Longitude: 1.45, Altitude: 500, GroundSpeed: 250, LastSeen: baseTime,
			},
			deltaT:         -5 * time.Second,
			wantDistanceNM: 0,
			wantAltitude:   500,
			wantConfidence: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PredictPosition(tt.aircraft, baseTime.Add(tt.deltaT))

			dist := coordinates.DistanceNauticalMiles(tt.aircraft.Position(), got.Position)
			if math.Abs(dist-tt.wantDistanceNM) > 0.01 {
				t.Errorf("moved %.3f nm, want %.3f", dist, tt.wantDistanceNM)
			}
			if math.Abs(got.AltitudeFt-tt.wantAltitude) > 1e-6 {
				t.Errorf("AltitudeFt = %v, want %v", got.AltitudeFt, tt.wantAltitude)
			}
			if math.Abs(got.Confidence-tt.wantConfidence) > 1e-9 {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConfidence)
			}
			if tt.wantDistanceNM > 0 {
				if brg := coordinates.Bearing(tt.aircraft.Position(), got.Position); math.Abs(brg-tt.aircraft.Track) > 0.5 {
					t.Errorf("moved along %.1f°, want %.1f°", brg, tt.aircraft.Track)
				}
			}
		})
	}
}

func TestConfidenceReachesZero(t *testing.T) {
	ac := adsb.Aircraft{GroundSpeed: 200, LastSeen: time.Now()}
	if got := PredictPosition(ac, ac.LastSeen.Add(2*MaxPredictionAge)); got.Confidence != 0 {
		t.Errorf("Confidence = %v after %v, want 0", got.Confidence, 2*MaxPredictionAge)
	}
}

func TestAdvance(t *testing.T) {
	seen := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ac := adsb.Aircraft{ICAO: "39C4A1", Latitude: 43.6, Longitude: 1.45, Altitude: 3000, GroundSpeed: 180, Track: 0, VerticalRate: 600, LastSeen: seen}

	moved := Advance(ac, seen.Add(time.Minute))
	if moved.ICAO != ac.ICAO || !moved.LastSeen.Equal(seen) {
		t.Errorf("Advance() changed identity or LastSeen: %+v", moved)
	}
	if moved.Latitude <= ac.Latitude || moved.Altitude != 3600 {
		t.Errorf("Advance() = lat %v alt %v", moved.Latitude, moved.Altitude)
	}
}
