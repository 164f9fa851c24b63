package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"schedulr/internal/model"
)

// CalendarConfig describes a single ICS subscription mirrored into a user's
// synced events.
type CalendarConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// UserID owns the synced events produced by this source.
	UserID string `yaml:"user_id" json:"user_id"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c CalendarConfig) SourceID() string {
	if c.ID != "" {
		return c.ID
	}
	if c.Name != "" {
		return c.Name
	}
	return c.URL
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// SchedulingConfig holds the knobs of conflict detection and slot scoring.
type SchedulingConfig struct {
	// FirstPartyMinutes is the implicit duration of first-party events.
	FirstPartyMinutes int `yaml:"first_party_minutes" json:"first_party_minutes"`

	// Defaults are the preferences that per-request overrides merge over.
	Defaults model.Preferences `yaml:"defaults" json:"defaults"`
}

// BookingConfig configures public booking links.
type BookingConfig struct {
	// RatePerSec and Burst bound requests per client IP on /api/book.
	RatePerSec float64 `yaml:"rate_per_sec" json:"rate_per_sec"`
	Burst      int     `yaml:"burst" json:"burst"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone that defines a user's calendar day
	// (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Database is the SQLite file path.
	Database string `yaml:"database" json:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic calendar sync.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is the number of future days mirrored from calendars.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Scheduling SchedulingConfig `yaml:"scheduling" json:"scheduling"`
	Booking    BookingConfig    `yaml:"booking" json:"booking"`

	// Calendars is the list of subscribed ICS sources.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health and the public booking routes.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "UTC",
		Database:    "./var/schedulr.db",
		LogLevel:    "info",
		RefreshCron: "*/15 * * * *",
		HorizonDays: 30,
		CacheDir:    "./var/ics-cache",
		Scheduling: SchedulingConfig{
			FirstPartyMinutes: 60,
			Defaults:          model.DefaultPreferences(),
		},
		Booking: BookingConfig{
			RatePerSec: 2,
			Burst:      5,
		},
		Calendars: []CalendarConfig{},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = def.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.Scheduling.FirstPartyMinutes <= 0 {
		c.Scheduling.FirstPartyMinutes = def.Scheduling.FirstPartyMinutes
	}

	// Load starts from DefaultConfig, so zero hours here come from a config
	// built in code without a working window.
	d := &c.Scheduling.Defaults
	if d.StartHour == 0 && d.EndHour == 0 {
		d.StartHour = def.Scheduling.Defaults.StartHour
		d.EndHour = def.Scheduling.Defaults.EndHour
	}
	if d.StartHour < 0 || d.StartHour > 23 {
		d.StartHour = def.Scheduling.Defaults.StartHour
	}
	if d.EndHour <= d.StartHour || d.EndHour > 24 {
		d.EndHour = def.Scheduling.Defaults.EndHour
		if d.EndHour <= d.StartHour {
			d.EndHour = 24
		}
	}
	// Zero is a valid gap; only negative values are reset.
	if d.MinGapMinutes < 0 {
		d.MinGapMinutes = def.Scheduling.Defaults.MinGapMinutes
	}

	if c.Booking.RatePerSec <= 0 {
		c.Booking.RatePerSec = def.Booking.RatePerSec
	}
	if c.Booking.Burst <= 0 {
		c.Booking.Burst = def.Booking.Burst
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
}

// Load reads the YAML config at path. Keys absent from the file keep their
// DefaultConfig values. A missing file is created with the defaults at 0600;
// if that write fails the defaults are still returned alongside the error.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return cfg, nil
}

// Save normalizes cfg and writes it to path through a temp file in the same
// directory, renamed into place with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedulr-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save writes c to path. See Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
