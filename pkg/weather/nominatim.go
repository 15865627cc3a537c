package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// DefaultNominatimBaseURL is the public OpenStreetMap geocoder.
const DefaultNominatimBaseURL = "https://nominatim.openstreetmap.org"

// Nominatim geocodes place names with OpenStreetMap.
// The public instance allows one request per second and requires a
// descriptive User-Agent.
type Nominatim struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewNominatim creates a geocoder. Empty arguments select the defaults.
func NewNominatim(baseURL, userAgent string, timeout time.Duration) *Nominatim {
	if baseURL == "" {
		baseURL = DefaultNominatimBaseURL
	}
	if userAgent == "" {
		userAgent = "airspace-assistant"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Nominatim{
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Geocode returns the position of the best match for place.
func (n *Nominatim) Geocode(ctx context.Context, place string) (coordinates.Geographic, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return coordinates.Geographic{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	q := url.Values{}
	q.Set("q", place)
	q.Set("format", "json")
	q.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return coordinates.Geographic{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return coordinates.Geographic{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return coordinates.Geographic{}, fmt.Errorf("%w: geocoder status %d", ErrUnavailable, resp.StatusCode)
	}

	// Nominatim encodes coordinates as strings
	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return coordinates.Geographic{}, fmt.Errorf("%w: decode geocoder response: %v", ErrUnavailable, err)
	}
	if len(results) == 0 {
		return coordinates.Geographic{}, ErrNotFound
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lon, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return coordinates.Geographic{}, fmt.Errorf("%w: invalid coordinates %q,%q", ErrUnavailable, results[0].Lat, results[0].Lon)
	}
	return coordinates.Geographic{Latitude: lat, Longitude: lon}, nil
}
