package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"

	"calview/internal/dateutil"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment overrides (optionally from a .env file) are
// applied separately by ApplyEnv.

const (
	defaultListen      = "127.0.0.1:8080"
	defaultTimezone    = "Asia/Seoul"
	defaultWeekStart   = "monday"
	defaultRefreshCron = "*/15 * * * *"
	defaultHorizon     = "14d"
	defaultBackfill    = "1d"
	defaultLogLevel    = "info"
	defaultEnvironment = "production"
	defaultCacheDir    = "./var/ics-cache"
)

// ICSConfig describes a single ICS subscription source. Either URL or Path
// must be set.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Path is a local .ics file used instead of URL.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as canonical display zone (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls which weekday is treated as the first day of the week
	// in month views. Supported values:
	//   - "monday" (default)
	//   - "sunday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used for periodic refresh of the ICS sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Horizon and Backfill bound the default day range around today, as
	// durations with day/week units (e.g. "14d", "2w", "36h").
	Horizon  string `yaml:"horizon" json:"horizon"`
	Backfill string `yaml:"backfill" json:"backfill"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// Environment selects the log format: production (JSON) or development.
	Environment string `yaml:"environment" json:"environment"`

	// CacheDir holds the HTTP cache of fetched ICS bodies.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   defaultWeekStart,
		RefreshCron: defaultRefreshCron,
		Horizon:     defaultHorizon,
		Backfill:    defaultBackfill,
		LogLevel:    defaultLogLevel,
		Environment: defaultEnvironment,
		CacheDir:    defaultCacheDir,
		ICS:         []ICSConfig{},
		BasicAuth:   nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	// WeekStart default & validation.
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	switch c.WeekStart {
	case "monday", "sunday":
		// ok
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = defaultWeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.Horizon == "" {
		c.Horizon = defaultHorizon
	}
	if c.Backfill == "" {
		c.Backfill = defaultBackfill
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.Environment == "" {
		c.Environment = defaultEnvironment
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	if _, err := c.HorizonDays(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.BackfillDays(); err != nil {
		errs = append(errs, err)
	}
	seen := make(map[string]bool, len(c.ICS))
	for i, src := range c.ICS {
		if src.URL == "" && src.Path == "" {
			errs = append(errs, fmt.Errorf("config: ics[%d]: url or path is required", i))
		}
		if src.URL != "" && src.Path != "" {
			errs = append(errs, fmt.Errorf("config: ics[%d]: url and path are mutually exclusive", i))
		}
		if src.ID != "" {
			if seen[src.ID] {
				errs = append(errs, fmt.Errorf("config: ics[%d]: duplicate id %q", i, src.ID))
			}
			seen[src.ID] = true
		}
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.Local
}

// FirstWeekday returns the configured first day of the week.
func (c *Config) FirstWeekday() dateutil.Weekday {
	if c.WeekStart == "sunday" {
		return dateutil.Sunday
	}
	return dateutil.Monday
}

// HorizonDays returns Horizon rounded up to whole days.
func (c *Config) HorizonDays() (int, error) {
	return durationDays("horizon", c.Horizon)
}

// BackfillDays returns Backfill rounded up to whole days.
func (c *Config) BackfillDays() (int, error) {
	return durationDays("backfill", c.Backfill)
}

func durationDays(name, v string) (int, error) {
	d, err := str2duration.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s %q: %w", name, v, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s %q: must not be negative", name, v)
	}
	const day = 24 * time.Hour
	return int((d + day - 1) / day), nil
}

// ApplyEnv loads a .env file from the working directory if present and
// applies CALVIEW_* environment overrides on top of c.
func (c *Config) ApplyEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if v := strings.TrimSpace(os.Getenv("CALVIEW_LISTEN")); v != "" {
		c.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("CALVIEW_TIMEZONE")); v != "" {
		c.Timezone = v
	}
	if v := strings.TrimSpace(os.Getenv("CALVIEW_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CALVIEW_ENV")); v != "" {
		c.Environment = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("CALVIEW_CACHE_DIR")); v != "" {
		c.CacheDir = v
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calview-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function:
//
//	cfg, _ := config.Load(path)
//	// ... mutate cfg ...
//	if err := cfg.Save(path); err != nil { ... }
func (c *Config) Save(path string) error {
	return Save(path, c)
}
