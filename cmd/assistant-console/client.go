package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/unklstewy/airspace-assistant/internal/airspace"
	"github.com/unklstewy/airspace-assistant/pkg/query"
)

// apiClient talks to assistant-server.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// status is the part of the airspace picture shown in the header.
type status struct {
	NumberFlights int       `json:"number_flights"`
	UpdatedAt     time.Time `json:"updated_at"`
	RadiusNM      float64   `json:"radius_nm"`
}

func (c *apiClient) kinds(ctx context.Context) ([]query.Kind, error) {
	var out []query.Kind
	err := c.do(ctx, http.MethodGet, "/api/kinds", nil, &out)
	return out, err
}

func (c *apiClient) query(ctx context.Context, kind string, arg1, arg2 any) (query.Envelope, error) {
	body := map[string]any{"kind": kind, "arg1": arg1, "arg2": arg2}
	var env query.Envelope
	err := c.do(ctx, http.MethodPost, "/api/query", body, &env)
	return env, err
}

func (c *apiClient) status(ctx context.Context) (status, error) {
	var s status
	err := c.do(ctx, http.MethodGet, "/api/airspace", nil, &s)
	return s, err
}

func (c *apiClient) following(ctx context.Context) (query.FlightData, error) {
	var f query.FlightData
	err := c.do(ctx, http.MethodGet, "/api/follow", nil, &f)
	return f, err
}

func (c *apiClient) follow(ctx context.Context, id string) (query.FlightData, error) {
	var f query.FlightData
	err := c.do(ctx, http.MethodPost, "/api/follow", map[string]string{"id": id}, &f)
	return f, err
}

func (c *apiClient) unfollow(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/follow", nil, nil)
}

func (c *apiClient) search(ctx context.Context, partial string, limit int) ([]airspace.Suggestion, error) {
	q := url.Values{"q": {partial}, "limit": {strconv.Itoa(limit)}}
	var out []airspace.Suggestion
	err := c.do(ctx, http.MethodGet, "/api/autocomplete?"+q.Encode(), nil, &out)
	return out, err
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
