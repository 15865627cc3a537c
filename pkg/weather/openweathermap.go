package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/unklstewy/airspace-assistant/pkg/coordinates"
)

// DefaultOWMBaseURL is the OpenWeatherMap current weather API.
const DefaultOWMBaseURL = "https://api.openweathermap.org/data/2.5"

// Geocoder turns a place name into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, place string) (coordinates.Geographic, error)
}

// OpenWeatherMapConfig configures an OpenWeatherMap client.
type OpenWeatherMapConfig struct {
	// BaseURL defaults to DefaultOWMBaseURL
	BaseURL string

	// APIKey is required by the service
	APIKey string

	// Timeout bounds each HTTP call (default: 5 seconds)
	Timeout time.Duration

	// RequestsPerMinute caps call rate; the free plan allows 60 (default: 60)
	RequestsPerMinute int

	// Geocoder resolves place names the service does not know. May be nil.
	Geocoder Geocoder
}

// OpenWeatherMap implements Provider against the OpenWeatherMap API.
type OpenWeatherMap struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	geocoder   Geocoder
}

// NewOpenWeatherMap creates a client.
func NewOpenWeatherMap(cfg OpenWeatherMapConfig) *OpenWeatherMap {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOWMBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	return &OpenWeatherMap{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1),
		geocoder:   cfg.Geocoder,
	}
}

// AtCoordinates returns the current weather at p.
func (c *OpenWeatherMap) AtCoordinates(ctx context.Context, p coordinates.Geographic) (*Observation, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.4f", p.Latitude))
	q.Set("lon", fmt.Sprintf("%.4f", p.Longitude))
	return c.current(ctx, q)
}

// AtPlace returns the current weather for a place name. Names the service
// does not recognise are geocoded and retried by coordinates.
func (c *OpenWeatherMap) AtPlace(ctx context.Context, place string) (*Observation, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, ErrNotFound
	}

	q := url.Values{}
	q.Set("q", place)
	obs, err := c.current(ctx, q)
	if err == nil || !errors.Is(err, ErrNotFound) || c.geocoder == nil {
		return obs, err
	}

	pos, gerr := c.geocoder.Geocode(ctx, place)
	if gerr != nil {
		return nil, fmt.Errorf("geocode %q: %w", place, gerr)
	}
	obs, err = c.AtCoordinates(ctx, pos)
	if err != nil {
		return nil, err
	}
	obs.Place = place
	return obs, nil
}

func (c *OpenWeatherMap) current(ctx context.Context, q url.Values) (*Observation, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw owmResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	return raw.observation(), nil
}

// owmResponse is the subset of the /weather payload we use.
type owmResponse struct {
	Name  string `json:"name"`
	Dt    int64  `json:"dt"`
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Visibility float64 `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
		Gust  float64 `json:"gust"`
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Rain struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
}

func (r owmResponse) observation() *Observation {
	obs := &Observation{
		Place:            r.Name,
		Position:         coordinates.Geographic{Latitude: r.Coord.Lat, Longitude: r.Coord.Lon},
		ObservedAt:       time.Unix(r.Dt, 0).UTC(),
		WindDirectionDeg: r.Wind.Deg,
		WindSpeedKt:      msToKnots(r.Wind.Speed),
		WindGustKt:       msToKnots(r.Wind.Gust),
		TemperatureC:     r.Main.Temp,
		PressureHPa:      r.Main.Pressure,
		VisibilityM:      r.Visibility,
		CloudsPct:        r.Clouds.All,
		Rain1hMM:         r.Rain.OneHour,
	}
	if len(r.Weather) > 0 {
		obs.Description = r.Weather[0].Description
	}
	return obs
}
