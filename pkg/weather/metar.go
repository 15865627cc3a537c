package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultMETARBaseURL is the aviationapi.com v1 API.
const DefaultMETARBaseURL = "https://api.aviationapi.com/v1"

// visibilityFactor converts the reported visibility to kilometres.
const visibilityFactor = 1.625

// SkyCondition is one cloud layer.
type SkyCondition struct {
	Coverage  string `json:"coverage"`
	BaseAGLFt string `json:"base_agl"`
}

// METAR holds the decoded fields of a report. Empty strings mean the field
// was absent or blank in the report.
type METAR struct {
	Station       string         `json:"station"`
	ObservedAt    time.Time      `json:"observed_at"`
	Temperature   string         `json:"temperature,omitempty"`
	Dewpoint      string         `json:"dewpoint,omitempty"`
	WindDirection string         `json:"wind_direction,omitempty"`
	WindSpeed     string         `json:"wind_speed,omitempty"`
	Visibility    string         `json:"visibility,omitempty"`
	Sky           []SkyCondition `json:"sky_conditions,omitempty"`
	Raw           string         `json:"raw,omitempty"`
}

// METARProvider returns the latest report for an airport.
type METARProvider interface {
	METAR(ctx context.Context, icao string) (*METAR, error)
}

// UpstreamError carries an error message returned by the METAR service.
// The message is meant to be shown to the user as is.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "metar: " + e.Message
}

// FormatMETAR renders m as a single line of "; "-separated fields, e.g.
//
//	METAR at LFBO at 10:30; Temperature 12; Dewpoint 8; Wind 290° 10 kt; Visibility 10 km; Clouds FEW at 2000 ft;
//
// Fields that are missing or malformed are left out.
func FormatMETAR(icao string, m *METAR) string {
	if m == nil {
		return ""
	}

	parts := []string{}
	header := "METAR at " + icao
	if !m.ObservedAt.IsZero() {
		header += " at " + m.ObservedAt.UTC().Format("15:04")
	}
	parts = append(parts, header)

	if v, ok := parseNumber(m.Temperature); ok {
		parts = append(parts, fmt.Sprintf("Temperature %d", int(v)))
	}
	if v, ok := parseNumber(m.Dewpoint); ok {
		parts = append(parts, fmt.Sprintf("Dewpoint %d", int(v)))
	}
	if m.WindDirection != "" {
		parts = append(parts, fmt.Sprintf("Wind %s° %s kt", m.WindDirection, m.WindSpeed))
	}
	if v, ok := parseNumber(m.Visibility); ok {
		parts = append(parts, fmt.Sprintf("Visibility %d km", int(math.RoundToEven(v*visibilityFactor))))
	}
	for _, sky := range m.Sky {
		if sky.Coverage == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("Clouds %s at %s ft", sky.Coverage, sky.BaseAGLFt))
	}

	return strings.Join(parts, "; ") + ";"
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// AviationAPI fetches METARs from aviationapi.com.
type AviationAPI struct {
	baseURL    string
	httpClient *http.Client
}

// NewAviationAPI creates a METAR client. Empty baseURL selects the default.
func NewAviationAPI(baseURL string, timeout time.Duration) *AviationAPI {
	if baseURL == "" {
		baseURL = DefaultMETARBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AviationAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// METAR returns the latest report for icao.
func (c *AviationAPI) METAR(ctx context.Context, icao string) (*METAR, error) {
	icao = strings.ToUpper(strings.TrimSpace(icao))
	if icao == "" {
		return nil, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/weather/metar?apt="+url.QueryEscape(icao), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode METAR response (status %d): %v", ErrUnavailable, resp.StatusCode, err)
	}

	// Errors come back as {"status": "error", "message": "..."}
	if status, ok := body["status"]; ok && bytes.Contains(status, []byte(`"error"`)) {
		var msg string
		_ = json.Unmarshal(body["message"], &msg)
		return nil, &UpstreamError{Message: msg}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	raw, ok := body[icao]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, ErrNotFound
	}
	var report aviationAPIMETAR
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("%w: decode METAR: %v", ErrUnavailable, err)
	}
	return report.metar(icao), nil
}

type aviationAPIMETAR struct {
	StationID     flexString      `json:"station_id"`
	Raw           flexString      `json:"raw"`
	TimeOfObs     flexString      `json:"time_of_obs"`
	Temp          flexString      `json:"temp"`
	Dewpoint      flexString      `json:"dewpoint"`
	Wind          flexString      `json:"wind"`
	WindVel       flexString      `json:"wind_vel"`
	Visibility    flexString      `json:"visibility"`
	SkyConditions json.RawMessage `json:"sky_conditions"`
}

func (r aviationAPIMETAR) metar(icao string) *METAR {
	m := &METAR{
		Station:       icao,
		Raw:           string(r.Raw),
		Temperature:   string(r.Temp),
		Dewpoint:      string(r.Dewpoint),
		WindDirection: string(r.Wind),
		WindSpeed:     string(r.WindVel),
		Visibility:    string(r.Visibility),
	}
	if t, err := time.Parse("2006-01-02T15:04:05Z", string(r.TimeOfObs)); err == nil {
		m.ObservedAt = t
	}

	// sky_conditions is either a list of layers or an empty string
	var layers []struct {
		Coverage flexString `json:"coverage"`
		BaseAGL  flexString `json:"base_agl"`
	}
	if json.Unmarshal(r.SkyConditions, &layers) == nil {
		for _, l := range layers {
			m.Sky = append(m.Sky, SkyCondition{Coverage: string(l.Coverage), BaseAGLFt: string(l.BaseAGL)})
		}
	}
	return m
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
	default:
		*f = flexString(data)
	}
	return nil
}
