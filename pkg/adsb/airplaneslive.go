package adsb

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// MaxRadiusNM is the largest radius the /point endpoint accepts.
const MaxRadiusNM = 250.0

// AirplanesLiveClient reads traffic from the airplanes.live v2 REST API
// (https://airplanes.live/api-guide/). The public API allows one call per
// second, which the client enforces itself.
type AirplanesLiveClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewAirplanesLiveClient returns a client for baseURL, normally
// "https://api.airplanes.live/v2". Calls are spaced at least minInterval
// apart; zero or less means one per second.
func NewAirplanesLiveClient(baseURL string, minInterval time.Duration) *AirplanesLiveClient {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &AirplanesLiveClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
		now:        time.Now,
	}
}

// GetAircraft lists positioned traffic within radiusNM of center, with the
// radius clamped to MaxRadiusNM.
func (c *AirplanesLiveClient) GetAircraft(ctx context.Context, center coordinates.Geographic, radiusNM float64) ([]Aircraft, error) {
	radiusNM = min(radiusNM, MaxRadiusNM)
	path := fmt.Sprintf("/point/%.4f/%.4f/%.0f", center.Latitude, center.Longitude, radiusNM)
	return c.get(ctx, path)
}

// GetAircraftByICAO looks up one transponder address. It returns nil, nil
// when the feed has no position for it.
func (c *AirplanesLiveClient) GetAircraftByICAO(ctx context.Context, icao string) (*Aircraft, error) {
	found, err := c.get(ctx, "/hex/"+strings.ToLower(strings.TrimSpace(icao)))
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return &found[0], nil
}

// Close is a no-op; the client holds no connections of its own.
func (c *AirplanesLiveClient) Close() error {
	return nil
}

// get calls path and returns the reports that carry a position.
func (c *AirplanesLiveClient) get(ctx context.Context, path string) ([]Aircraft, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("adsb: waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("adsb: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adsb: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	now := c.now().UTC()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, throttled(resp.Header, now)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("adsb: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var page feedPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("adsb: decoding %s: %w", path, err)
	}

	out := make([]Aircraft, 0, len(page.Aircraft))
	for _, report := range page.Aircraft {
		if report.positioned() {
			out = append(out, report.toAircraft(now))
		}
	}
	return out, nil
}

// feedPage is the envelope of every airplanes.live answer.
type feedPage struct {
	Aircraft []feedAircraft `json:"ac"`
	Total    int            `json:"total"`
	Now      float64        `json:"now"` // epoch milliseconds
}

// feedAircraft is one report. Field meanings are listed at
// https://airplanes.live/adsb-field-explanations/.
type feedAircraft struct {
	Hex          string   `json:"hex"`
	Flight       string   `json:"flight"` // space padded
	Registration string   `json:"r"`
	Type         string   `json:"t"`
	Lat          *float64 `json:"lat"`
	Lon          *float64 `json:"lon"`
	AltBaro      altitude `json:"alt_baro"`
	AltGeom      altitude `json:"alt_geom"`
	GS           float64  `json:"gs"`
	Track        float64  `json:"track"`
	BaroRate     float64  `json:"baro_rate"`
	Seen         *float64 `json:"seen"` // seconds since the last message
}

func (f feedAircraft) positioned() bool {
	return f.Lat != nil && f.Lon != nil
}

func (f feedAircraft) toAircraft(now time.Time) Aircraft {
	ac := Aircraft{
		ICAO:         strings.ToUpper(f.Hex),
		Callsign:     strings.TrimSpace(f.Flight),
		Registration: strings.TrimSpace(f.Registration),
		Model:        strings.TrimSpace(f.Type),
		GroundSpeed:  f.GS,
		Track:        f.Track,
		VerticalRate: f.BaroRate,
		LastSeen:     now,
	}
	if f.positioned() {
		ac.Latitude, ac.Longitude = *f.Lat, *f.Lon
	}

	// GPS height beats pressure altitude when both are present.
	switch {
	case f.AltGeom.known:
		ac.Altitude = f.AltGeom.feet
	case f.AltBaro.known:
		ac.Altitude = f.AltBaro.feet
	}

	if f.Seen != nil {
		ac.LastSeen = now.Add(-time.Duration(*f.Seen * float64(time.Second)))
	}
	return ac
}

// altitude decodes alt_baro/alt_geom, which hold either feet or the
// string "ground".
type altitude struct {
	feet  float64
	known bool
}

func (a *altitude) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case float64:
		*a = altitude{feet: v, known: true}
	case string:
		*a = altitude{known: v == "ground"}
	default:
		*a = altitude{}
	}
	return nil
}
