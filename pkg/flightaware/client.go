// Package flightaware looks up flight plans in FlightAware AeroAPI v4
// (https://www.flightaware.com/aeroapi/portal/documentation).
//
// The assistant uses it to complete the static data of a followed flight
// (origin, destination, aircraft type and estimated arrival) that ADS-B
// does not broadcast. The free tier allows 500 calls a month, so calls go
// through a per-hour limiter.
package flightaware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public AeroAPI endpoint.
const DefaultBaseURL = "https://aeroapi.flightaware.com/aeroapi"

// Config configures a Client. Zero values pick the defaults: ten second
// timeout, one request per hour, DefaultBaseURL.
type Config struct {
	APIKey          string
	RequestsPerHour int
	Timeout         time.Duration
	BaseURL         string
}

// Client is an AeroAPI client.
type Client struct {
	key     string
	base    string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient returns a client that makes at most cfg.RequestsPerHour calls
// per hour.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerHour <= 0 {
		cfg.RequestsPerHour = 1
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Client{
		key:     cfg.APIKey,
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Hour/time.Duration(cfg.RequestsPerHour)), 1),
	}
}

// Airport is an endpoint of a flight.
type Airport struct {
	ICAO string `json:"code_icao"`
	IATA string `json:"code_iata"`
	Name string `json:"name"`
	City string `json:"city"`
}

// Flight is the part of an AeroAPI flight record the assistant reads.
type Flight struct {
	Ident           string     `json:"ident"`
	FAFlightID      string     `json:"fa_flight_id"`
	Registration    string     `json:"registration"`
	AircraftType    string     `json:"aircraft_type"`
	Origin          Airport    `json:"origin"`
	Destination     Airport    `json:"destination"`
	Status          string     `json:"status"`
	EstimatedOn     *time.Time `json:"estimated_on"`
	ScheduledOn     *time.Time `json:"scheduled_on"`
	ProgressPercent int        `json:"progress_percent"`
}

// Arrival is the estimated landing time, or the scheduled one when no
// estimate exists.
func (f *Flight) Arrival() (time.Time, bool) {
	for _, t := range []*time.Time{f.EstimatedOn, f.ScheduledOn} {
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

func (f *Flight) airborne() bool {
	return f.ProgressPercent > 0 && f.ProgressPercent < 100
}

// GetFlightByCallsign returns the flight operating under callsign: the
// first airborne one AeroAPI lists, else the first listed. A callsign
// AeroAPI does not know yields nil, nil.
func (c *Client) GetFlightByCallsign(ctx context.Context, callsign string) (*Flight, error) {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return nil, nil
	}

	var page struct {
		Flights []Flight `json:"flights"`
	}
	found, err := c.get(ctx, "/flights/"+url.PathEscape(callsign), &page)
	if err != nil || !found || len(page.Flights) == 0 {
		return nil, err
	}

	pick := &page.Flights[0]
	for i := range page.Flights {
		if page.Flights[i].airborne() {
			pick = &page.Flights[i]
			break
		}
	}
	return pick, nil
}

// get decodes path into out. A 404 reports found=false without error.
func (c *Client) get(ctx context.Context, path string, out any) (found bool, err error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("flightaware: waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return false, fmt.Errorf("flightaware: building request: %w", err)
	}
	req.Header.Set("x-apikey", c.key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("flightaware: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("flightaware: GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("flightaware: decoding %s: %w", path, err)
	}
	return true, nil
}
