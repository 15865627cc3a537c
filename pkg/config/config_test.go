package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.Reference.Source != SourceDatabase {
		t.Errorf("Expected database reference source, got %s", cfg.Reference.Source)
	}
	if cfg.Airspace.RadiusNM != 100 {
		t.Errorf("Expected 100 nm surroundings, got %f", cfg.Airspace.RadiusNM)
	}
	if cfg.Airspace.UpdateInterval() != 2*time.Second {
		t.Errorf("Expected 2s update interval, got %v", cfg.Airspace.UpdateInterval())
	}
	if src, ok := cfg.ADSB.PrimarySource(); !ok || src.Type != "airplanes.live" {
		t.Errorf("Expected airplanes.live primary source, got %+v", src)
	}
	if cfg.FlightAware.Enabled {
		t.Error("Expected FlightAware disabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Expected info log level, got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got: %v", err)
	}
}

// TestLoadNonExistentFile tests that Load returns default config when file doesn't exist.
func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Error("Did not get default config for non-existent file")
	}
}

// TestLoadPartialConfig checks that fields absent from the file keep their defaults.
func TestLoadPartialConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "partial.json")
	content := `{
		"server": {"port": "9090"},
		"airspace": {"center_name": "Paris", "latitude": 49.0097, "longitude": 2.5479, "radius_nm": 60,
		             "update_interval_seconds": 0.5, "follow_interval_seconds": 1},
		"database": {"driver": "sqlite", "path": "/var/lib/airspace/reference.db"}
	}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host kept, got %s", cfg.Server.Host)
	}
	if cfg.Airspace.UpdateInterval() != 500*time.Millisecond {
		t.Errorf("Expected 500ms update interval, got %v", cfg.Airspace.UpdateInterval())
	}
	if cfg.Database.Driver != DriverSQLite || cfg.Database.Path == "" {
		t.Errorf("Expected sqlite database, got %+v", cfg.Database)
	}
	if cfg.METAR.BaseURL == "" {
		t.Error("Expected default METAR base URL kept")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

// TestLoadInvalidJSON tests error handling for malformed JSON.
func TestLoadInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.json")
	if err := os.WriteFile(configPath, []byte("{ invalid json }"), 0644); err != nil {
		t.Fatalf("Failed to write invalid config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid JSON, got nil")
	}
	if !strings.Contains(err.Error(), "config: parsing") {
		t.Errorf("Expected parse error, got: %v", err)
	}
}

// TestSaveConfigCreatesDirectory tests that Save creates missing directories
// and that the saved file loads back.
func TestSaveConfigCreatesDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "dir", "config.json")

	original := DefaultConfig()
	original.Server.Port = "3000"
	original.Server.AllowedOrigins = []string{"http://localhost:5173"}
	original.Airspace.Latitude = 48.1234
	original.Checklist.DefaultModel = "C172"

	if err := original.Save(configPath); err != nil {
		t.Fatalf("Failed to save config with nested directory: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Server.Port != "3000" || len(loaded.Server.AllowedOrigins) != 1 {
		t.Errorf("Server settings not preserved: %+v", loaded.Server)
	}
	if loaded.Airspace.Latitude != 48.1234 {
		t.Errorf("Latitude not preserved: %f", loaded.Airspace.Latitude)
	}
	if loaded.Checklist.DefaultModel != "C172" {
		t.Errorf("Checklist model not preserved: %s", loaded.Checklist.DefaultModel)
	}
}

// TestEnvironmentOverrides tests environment variable overrides.
func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AIRSPACE_ASSISTANT_PORT", "7777")
	t.Setenv("AIRSPACE_ASSISTANT_DB_HOST", "env-db-host")
	t.Setenv("AIRSPACE_ASSISTANT_DB_PASSWORD", "env-password")
	t.Setenv("AIRSPACE_ASSISTANT_ADSB_API_KEY", "env-adsb-key")
	t.Setenv("OWM_APIKEY", "env-owm-key")
	t.Setenv("AIRSPACE_ASSISTANT_FLIGHTAWARE_API_KEY", "env-fa-key")
	t.Setenv("AIRSPACE_ASSISTANT_NATS_URL", "nats://bus:4222")
	t.Setenv("AIRSPACE_ASSISTANT_LOG_LEVEL", "DEBUG")

	configPath := filepath.Join(t.TempDir(), "config.json")
	fileCfg := DefaultConfig()
	fileCfg.Database.Password = "original-password"
	if err := fileCfg.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"port", cfg.Server.Port, "7777"},
		{"db host", cfg.Database.Host, "env-db-host"},
		{"db password", cfg.Database.Password, "env-password"},
		{"adsb key", cfg.ADSB.Sources[0].APIKey, "env-adsb-key"},
		{"owm key", cfg.Weather.APIKey, "env-owm-key"},
		{"flightaware key", cfg.FlightAware.APIKey, "env-fa-key"},
		{"nats url", cfg.Messaging.NATSURL, "nats://bus:4222"},
		{"log level", cfg.Logging.Level, "debug"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// TestValidate checks each rejected setting.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = "http" }, "server.port"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"sqlite without path", func(c *Config) { c.Database.Driver = DriverSQLite }, "sqlite needs path"},
		{"file source without file", func(c *Config) {
			c.Reference.Source = SourceFile
			c.Reference.SnapshotFile = ""
		}, "snapshot_file"},
		{"latitude", func(c *Config) { c.Airspace.Latitude = 91 }, "airspace.latitude"},
		{"radius", func(c *Config) { c.Airspace.RadiusNM = 0 }, "radius_nm"},
		{"interval", func(c *Config) { c.Airspace.FollowIntervalSeconds = 0 }, "polling intervals"},
		{"tls without files", func(c *Config) { c.Server.TLSEnabled = true }, "tls_cert_file"},
		{"flightaware key", func(c *Config) { c.FlightAware.Enabled = true }, "flightaware"},
		{"messaging subject", func(c *Config) {
			c.Messaging.Enabled = true
			c.Messaging.Subject = ""
		}, "messaging"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestPrimarySourceSkipsDisabled(t *testing.T) {
	cfg := ADSBConfig{Sources: []ADSBSource{
		{Name: "off", Enabled: false},
		{Name: "on", Enabled: true},
	}}
	if src, ok := cfg.PrimarySource(); !ok || src.Name != "on" {
		t.Errorf("PrimarySource() = %+v, %v", src, ok)
	}
	if _, ok := (ADSBConfig{}).PrimarySource(); ok {
		t.Error("PrimarySource() on empty config should fail")
	}
}
