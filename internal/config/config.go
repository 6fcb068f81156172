package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/teemow/calmerge/internal/calendar"
)

// ErrEmptyPath is returned by Load and Save when no path is given.
var ErrEmptyPath = errors.New("config path is empty")

const (
	defaultTimezone    = "UTC"
	defaultRefreshCron = "*/15 * * * *"
	defaultHorizonDays = 7
	defaultMetricsAddr = ":9090"
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
)

// FileSource points at a YAML or JSON snapshot of users and events.
type FileSource struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// ICSFeed is a subscribed ICS calendar. Every event in the feed belongs to
// Owner unless the feed names an ORGANIZER.
type ICSFeed struct {
	// ID is an internal identifier used for cache file names and logging.
	ID    string        `yaml:"id" json:"id"`
	Name  string        `yaml:"name" json:"name"`
	URL   string        `yaml:"url" json:"url"`
	Owner calendar.User `yaml:"owner" json:"owner"`
}

// GoogleSource reads one Google Calendar through a stored OAuth token.
type GoogleSource struct {
	Name string `yaml:"name" json:"name"`
	// Account selects the token file written by `calmerge auth`.
	Account string `yaml:"account" json:"account"`
	// CalendarID defaults to "primary".
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	// User is the person whose calendar this is.
	User calendar.User `yaml:"user" json:"user"`
}

// Sources lists every configured event source.
type Sources struct {
	Files  []FileSource   `yaml:"files,omitempty" json:"files,omitempty"`
	ICS    []ICSFeed      `yaml:"ics,omitempty" json:"ics,omitempty"`
	Google []GoogleSource `yaml:"google,omitempty" json:"google,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA zone used to interpret days and booking hours.
	Timezone string `yaml:"timezone" json:"timezone"`

	// TickMinutes is the spacing of the booking grid.
	TickMinutes int `yaml:"tick_minutes" json:"tick_minutes"`

	// PaddingMinutes blocks time before every busy range.
	PaddingMinutes int `yaml:"padding_minutes" json:"padding_minutes"`

	BookingHours calendar.BookingHours `yaml:"booking_hours" json:"booking_hours"`

	// RefreshCron is a standard 5-field cron schedule for `calmerge serve`.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how far ahead the refresher builds agendas.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// CacheDir holds downloaded ICS feeds. Empty disables the cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
	LogFormat   string `yaml:"log_format" json:"log_format"`

	// Users are the agendas kept warm by the refresher.
	Users []calendar.User `yaml:"users" json:"users"`

	Sources Sources `yaml:"sources" json:"sources"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{
		PaddingMinutes: int(calendar.DefaultPadding / time.Minute),
	}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing or zero values so partially-filled files
// still behave.
func (c *Config) Normalize() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.TickMinutes <= 0 {
		c.TickMinutes = int(calendar.DefaultTick / time.Minute)
	}
	if c.PaddingMinutes < 0 {
		c.PaddingMinutes = 0
	}
	if c.BookingHours == (calendar.BookingHours{}) {
		c.BookingHours = calendar.DefaultBookingHours()
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = defaultMetricsAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}
	if c.Users == nil {
		c.Users = []calendar.User{}
	}
	for i := range c.Sources.Google {
		if c.Sources.Google[i].CalendarID == "" {
			c.Sources.Google[i].CalendarID = "primary"
		}
	}
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	h := c.BookingHours
	if h.StartHour < 0 || h.EndHour > 24 || h.StartHour >= h.EndHour {
		return fmt.Errorf("invalid booking hours %d-%d", h.StartHour, h.EndHour)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", c.RefreshCron, err)
	}
	for _, f := range c.Sources.Files {
		if f.Path == "" {
			return fmt.Errorf("file source %q has no path", f.Name)
		}
	}
	for _, feed := range c.Sources.ICS {
		if feed.URL == "" {
			return fmt.Errorf("ics feed %q has no url", feed.ID)
		}
		if feed.Owner.ID == "" {
			return fmt.Errorf("ics feed %q has no owner", feed.ID)
		}
	}
	for _, g := range c.Sources.Google {
		if g.User.ID == "" {
			return fmt.Errorf("google source %q has no user", g.Name)
		}
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Tick returns the booking grid step.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMinutes) * time.Minute
}

// Padding returns the time blocked before each busy range.
func (c *Config) Padding() time.Duration {
	return time.Duration(c.PaddingMinutes) * time.Minute
}

// FindUser looks a user up by ID among the configured users and source
// owners.
func (c *Config) FindUser(id string) (calendar.User, bool) {
	for _, u := range c.Users {
		if u.ID == id {
			return u, true
		}
	}
	for _, feed := range c.Sources.ICS {
		if feed.Owner.ID == id {
			return feed.Owner, true
		}
	}
	for _, g := range c.Sources.Google {
		if g.User.ID == id {
			return g.User, true
		}
	}
	return calendar.User{}, false
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist, a default config is written there with 0600
// permissions and returned. Otherwise the file is parsed and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Keys missing from the file keep their defaults.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file plus rename) with 0600
// permissions, creating the parent directory with 0700.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".calmerge-config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}

	return nil
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
