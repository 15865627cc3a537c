package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    DatabaseConfig    `json:"database"`
	Reference   ReferenceConfig   `json:"reference"`
	ADSB        ADSBConfig        `json:"adsb"`
	Airspace    AirspaceConfig    `json:"airspace"`
	Query       QueryConfig       `json:"query"`
	Weather     WeatherConfig     `json:"weather"`
	METAR       METARConfig       `json:"metar"`
	Checklist   ChecklistConfig   `json:"checklist"`
	FlightAware FlightAwareConfig `json:"flightaware"`
	Messaging   MessagingConfig   `json:"messaging"`
	Logging     LoggingConfig     `json:"logging"`
}

// ServerConfig is the HTTP listener of assistant-server.
type ServerConfig struct {
	Host string `json:"host"` // default 0.0.0.0
	Port string `json:"port"` // default 8080

	// AllowedOrigins lists the CORS origins accepted by the API.
	// An empty list allows every origin.
	AllowedOrigins []string `json:"allowed_origins"`

	// With TLSEnabled the listener serves HTTPS from the two PEM files.
	TLSEnabled  bool   `json:"tls_enabled"`
	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig selects and tunes the reference database.
//
// The postgres driver uses Host, Port, Database, Username, Password and
// SSLMode (disable, require, verify-ca, verify-full). The sqlite driver only
// reads Path, which may be ":memory:". Keep Password out of the file and
// set AIRSPACE_ASSISTANT_DB_PASSWORD instead.
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
	Path     string `json:"path,omitempty"`

	MaxOpenConns int `json:"max_open_conns"`
	MaxIdleConns int `json:"max_idle_conns"`
}

// Reference data sources.
const (
	SourceDatabase = "database"
	SourceFile     = "file"
)

// ReferenceConfig controls where the reference snapshot comes from.
type ReferenceConfig struct {
	// Source is "database" or "file"
	Source string `json:"source"`

	// SnapshotFile is the msgpack+zstd snapshot written by import-reference -export.
	// With source "database" it is also the fallback when the database is down.
	SnapshotFile string `json:"snapshot_file"`

	// RefreshIntervalMinutes is how often the snapshot is reloaded (0 = never)
	RefreshIntervalMinutes int `json:"refresh_interval_minutes"`
}

// RefreshInterval returns the reload period.
func (r ReferenceConfig) RefreshInterval() time.Duration {
	return time.Duration(r.RefreshIntervalMinutes) * time.Minute
}

// ADSBConfig contains ADS-B data source configuration.
type ADSBConfig struct {
	// Sources is a list of configured ADS-B data sources.
	// The first enabled source is used.
	Sources []ADSBSource `json:"sources"`

	// MaxRetries is the retry budget of a single feed request
	MaxRetries int `json:"max_retries"`
}

// ADSBSource represents a single ADS-B data source configuration.
type ADSBSource struct {
	// Name is a friendly name for this source
	Name string `json:"name"`

	// Type is the source type: "airplanes.live"
	Type string `json:"type"`

	// Enabled determines if this source should be used
	Enabled bool `json:"enabled"`

	// BaseURL is the API base URL
	BaseURL string `json:"base_url"`

	// APIKey is the API key for services that require authentication
	APIKey string `json:"api_key,omitempty"`

	// RateLimitSeconds is the minimum time between API calls in seconds
	// airplanes.live: recommend 1 second to avoid 429 errors
	RateLimitSeconds float64 `json:"rate_limit_seconds"`
}

// PrimarySource returns the first enabled source.
func (a ADSBConfig) PrimarySource() (ADSBSource, bool) {
	for _, s := range a.Sources {
		if s.Enabled {
			return s, true
		}
	}
	return ADSBSource{}, false
}

// AirspaceConfig describes the watched area and the polling cadence.
type AirspaceConfig struct {
	// CenterName is a friendly name for the default center
	CenterName string `json:"center_name"`

	// Latitude of the default center in decimal degrees
	Latitude float64 `json:"latitude"`

	// Longitude of the default center in decimal degrees
	Longitude float64 `json:"longitude"`

	// RadiusNM is the radius of the surroundings in nautical miles (default: 100)
	RadiusNM float64 `json:"radius_nm"`

	// UpdateIntervalSeconds is the traffic polling period
	UpdateIntervalSeconds float64 `json:"update_interval_seconds"`

	// FollowIntervalSeconds is the polling period of a followed flight
	FollowIntervalSeconds float64 `json:"follow_interval_seconds"`
}

// UpdateInterval returns the traffic polling period.
func (a AirspaceConfig) UpdateInterval() time.Duration {
	return seconds(a.UpdateIntervalSeconds)
}

// FollowInterval returns the followed-flight polling period.
func (a AirspaceConfig) FollowInterval() time.Duration {
	return seconds(a.FollowIntervalSeconds)
}

// QueryConfig tunes the query dispatcher.
type QueryConfig struct {
	// TimeoutSeconds bounds each external provider call
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// Timeout returns the provider call timeout.
func (q QueryConfig) Timeout() time.Duration {
	return seconds(q.TimeoutSeconds)
}

// WeatherConfig contains OpenWeatherMap and geocoder settings.
type WeatherConfig struct {
	// BaseURL is the OpenWeatherMap API root
	BaseURL string `json:"base_url"`

	// APIKey is the OpenWeatherMap key (OWM_APIKEY overrides it)
	APIKey string `json:"api_key"`

	// TimeoutSeconds is the HTTP client timeout
	TimeoutSeconds float64 `json:"timeout_seconds"`

	// RequestsPerMinute limits calls to OpenWeatherMap
	RequestsPerMinute int `json:"requests_per_minute"`

	// CacheSize is the number of cached observations
	CacheSize int `json:"cache_size"`

	// CacheTTLSeconds is how long an observation is reused
	CacheTTLSeconds int `json:"cache_ttl_seconds"`

	// GeocoderBaseURL is the Nominatim API root used when a place is unknown
	// to OpenWeatherMap. Empty disables the fallback.
	GeocoderBaseURL string `json:"geocoder_base_url"`

	// UserAgent identifies the application to Nominatim
	UserAgent string `json:"user_agent"`
}

// Timeout returns the HTTP client timeout.
func (w WeatherConfig) Timeout() time.Duration {
	return seconds(w.TimeoutSeconds)
}

// CacheTTL returns the observation cache lifetime.
func (w WeatherConfig) CacheTTL() time.Duration {
	return time.Duration(w.CacheTTLSeconds) * time.Second
}

// METARConfig contains aviationapi.com settings.
type METARConfig struct {
	BaseURL         string  `json:"base_url"`
	TimeoutSeconds  float64 `json:"timeout_seconds"`
	CacheTTLSeconds int     `json:"cache_ttl_seconds"`
}

// Timeout returns the HTTP client timeout.
func (m METARConfig) Timeout() time.Duration {
	return seconds(m.TimeoutSeconds)
}

// CacheTTL returns the report cache lifetime.
func (m METARConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSeconds) * time.Second
}

// ChecklistConfig locates checklist CSV files.
type ChecklistConfig struct {
	// Directory holds the checklist files
	Directory string `json:"directory"`

	// DefaultModel is used when the followed aircraft has no checklist of its own
	DefaultModel string `json:"default_model"`
}

// FlightAwareConfig contains FlightAware AeroAPI settings.
type FlightAwareConfig struct {
	// APIKey is the FlightAware API key for AeroAPI v4
	APIKey string `json:"api_key"`

	// Enabled determines if followed flights are enriched with flight plans
	Enabled bool `json:"enabled"`

	// BaseURL overrides the AeroAPI root
	BaseURL string `json:"base_url,omitempty"`

	// RequestsPerHour limits the API call rate
	// Free tier: ~0.7 requests/hour (500/month)
	RequestsPerHour int `json:"requests_per_hour"`
}

// MessagingConfig controls publication of surroundings on NATS.
type MessagingConfig struct {
	Enabled bool   `json:"enabled"`
	NATSURL string `json:"nats_url"`

	// Subject receives one message per airspace refresh
	Subject string `json:"subject"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `json:"level"`

	// Format is "text" or "json"
	Format string `json:"format"`

	// File enables a rotated log file in addition to stderr
	File string `json:"file,omitempty"`

	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// Load returns DefaultConfig overlaid with the JSON file at path and then
// with the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyEnvironmentOverrides()
	return cfg, nil
}

// Save writes c as indented JSON, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: encoding: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Host: "0.0.0.0",
		},
		Database: DatabaseConfig{
			Driver:       DriverPostgres,
			Host:         "localhost",
			Port:         5432,
			Database:     "airspace",
			Username:     "airspace",
			SSLMode:      "disable",
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		},
		Reference: ReferenceConfig{
			Source:                 SourceDatabase,
			SnapshotFile:           "data/reference.snapshot",
			RefreshIntervalMinutes: 60,
		},
		ADSB: ADSBConfig{
			Sources: []ADSBSource{
				{
					Name:             "airplanes.live",
					Type:             "airplanes.live",
					Enabled:          true,
					BaseURL:          "https://api.airplanes.live/v2",
					RateLimitSeconds: 1.0,
				},
			},
			MaxRetries: 3,
		},
		Airspace: AirspaceConfig{
			CenterName:            "Toulouse",
			Latitude:              43.6293,
			Longitude:             1.3638,
			RadiusNM:              100,
			UpdateIntervalSeconds: 2,
			FollowIntervalSeconds: 2,
		},
		Query: QueryConfig{
			TimeoutSeconds: 5,
		},
		Weather: WeatherConfig{
			BaseURL:           "https://api.openweathermap.org/data/2.5",
			TimeoutSeconds:    5,
			RequestsPerMinute: 60,
			CacheSize:         256,
			CacheTTLSeconds:   600,
			GeocoderBaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent:         "airspace-assistant",
		},
		METAR: METARConfig{
			BaseURL:         "https://api.aviationapi.com/v1",
			TimeoutSeconds:  5,
			CacheTTLSeconds: 300,
		},
		Checklist: ChecklistConfig{
			Directory:    "data/checklists",
			DefaultModel: "A320",
		},
		FlightAware: FlightAwareConfig{
			Enabled:         false,
			RequestsPerHour: 1, // Conservative default for free tier
		},
		Messaging: MessagingConfig{
			Enabled: false,
			NATSURL: "nats://127.0.0.1:4222",
			Subject: "airspace.surroundings",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Validate checks the values the services cannot run without.
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.port %q is not a number", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" || c.Database.Database == "" {
			errs = append(errs, errors.New("database: postgres needs host and database"))
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database: sqlite needs path"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", c.Database.Driver))
	}

	if c.Server.TLSEnabled && (c.Server.TLSCertFile == "" || c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server: tls_enabled needs tls_cert_file and tls_key_file"))
	}

	switch c.Reference.Source {
	case SourceDatabase:
	case SourceFile:
		if c.Reference.SnapshotFile == "" {
			errs = append(errs, errors.New("reference: file source needs snapshot_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("reference.source %q is not supported", c.Reference.Source))
	}

	if c.Airspace.Latitude < -90 || c.Airspace.Latitude > 90 {
		errs = append(errs, fmt.Errorf("airspace.latitude %v out of range", c.Airspace.Latitude))
	}
	if c.Airspace.Longitude < -180 || c.Airspace.Longitude > 180 {
		errs = append(errs, fmt.Errorf("airspace.longitude %v out of range", c.Airspace.Longitude))
	}
	if c.Airspace.RadiusNM <= 0 {
		errs = append(errs, errors.New("airspace.radius_nm must be positive"))
	}
	if c.Airspace.UpdateIntervalSeconds <= 0 || c.Airspace.FollowIntervalSeconds <= 0 {
		errs = append(errs, errors.New("airspace: polling intervals must be positive"))
	}

	if c.FlightAware.Enabled && c.FlightAware.APIKey == "" {
		errs = append(errs, errors.New("flightaware: enabled without api_key"))
	}
	if c.Messaging.Enabled && (c.Messaging.NATSURL == "" || c.Messaging.Subject == "") {
		errs = append(errs, errors.New("messaging: enabled without nats_url or subject"))
	}

	return errors.Join(errs...)
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
// This allows sensitive data like passwords to be kept out of config files.
func (c *Config) applyEnvironmentOverrides() {
	if port := os.Getenv("AIRSPACE_ASSISTANT_PORT"); port != "" {
		c.Server.Port = port
	}
	if dbHost := os.Getenv("AIRSPACE_ASSISTANT_DB_HOST"); dbHost != "" {
		c.Database.Host = dbHost
	}
	if dbPassword := os.Getenv("AIRSPACE_ASSISTANT_DB_PASSWORD"); dbPassword != "" {
		c.Database.Password = dbPassword
	}
	if apiKey := os.Getenv("AIRSPACE_ASSISTANT_ADSB_API_KEY"); apiKey != "" {
		for i := range c.ADSB.Sources {
			c.ADSB.Sources[i].APIKey = apiKey
		}
	}
	if owmKey := os.Getenv("OWM_APIKEY"); owmKey != "" {
		c.Weather.APIKey = owmKey
	}
	if faKey := os.Getenv("AIRSPACE_ASSISTANT_FLIGHTAWARE_API_KEY"); faKey != "" {
		c.FlightAware.APIKey = faKey
	}
	if natsURL := os.Getenv("AIRSPACE_ASSISTANT_NATS_URL"); natsURL != "" {
		c.Messaging.NATSURL = natsURL
	}
	if level := os.Getenv("AIRSPACE_ASSISTANT_LOG_LEVEL"); level != "" {
		c.Logging.Level = strings.ToLower(level)
	}
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
