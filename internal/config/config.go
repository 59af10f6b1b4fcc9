package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. They are read after the
// optional .env file is loaded.
const (
	EnvListen      = "STUDIOCAL_LISTEN"
	EnvDatabaseURL = "STUDIOCAL_DATABASE_URL"
	EnvRedisURL    = "STUDIOCAL_REDIS_URL"
	EnvLogLevel    = "STUDIOCAL_LOG_LEVEL"
)

// FeedConfig describes an external ICS calendar imported into a studio's
// calendar (room booking systems, shared team calendars).
type FeedConfig struct {
	// StudioID is the tenant the feed's events are shown for.
	StudioID string `yaml:"studio_id" json:"studio_id"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the UI/API. When
// PasswordHash (bcrypt) is set it takes precedence over Password.
type BasicAuthConfig struct {
	Username     string `yaml:"username" json:"username"`
	Password     string `yaml:"password,omitempty" json:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty" json:"password_hash,omitempty"`
}

// DatabaseConfig points at the studio Postgres database.
type DatabaseConfig struct {
	URL string `yaml:"url" json:"url"`
	// Migrate applies the bundled schema on startup (development setups).
	Migrate bool `yaml:"migrate" json:"migrate"`
}

// RedisConfig enables the shared session window cache. Empty URL means an
// in-process cache.
type RedisConfig struct {
	URL        string `yaml:"url" json:"url"`
	TTLSeconds int    `yaml:"ttl_seconds" json:"ttl_seconds"`
}

// CalendarConfig controls the calendar views.
type CalendarConfig struct {
	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`
	// DayKeyPolicy is "local" (studio timezone, default) or "utc".
	DayKeyPolicy string `yaml:"day_key_policy" json:"day_key_policy"`
	// RowHeightPx is the week view hour row height used until a
	// measurement replaces it.
	RowHeightPx float64 `yaml:"row_height_px" json:"row_height_px"`
	// MaxVisible is how many sessions a month cell lists before "+N more".
	MaxVisible int `yaml:"max_visible" json:"max_visible"`
	// MonthsBack / MonthsForward bound the loaded session window around today.
	MonthsBack    int `yaml:"months_back" json:"months_back"`
	MonthsForward int `yaml:"months_forward" json:"months_forward"`
	// MemoSize bounds the render memo; 0 disables it.
	MemoSize int `yaml:"memo_size" json:"memo_size"`
}

// CaptureConfig drives the headless browser used to measure the rendered
// week grid and to write a preview PNG.
type CaptureConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// StudioID is the studio whose week page is measured and captured.
	StudioID    string `yaml:"studio_id" json:"studio_id"`
	PreviewPath string `yaml:"preview_path" json:"preview_path"`
	Width       int    `yaml:"width" json:"width"`
	Height      int    `yaml:"height" json:"height"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the UI and API.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// DefaultTimezone is used for studios without a timezone.
	DefaultTimezone string `yaml:"default_timezone" json:"default_timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-importing feeds.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// CacheDir holds the ICS HTTP cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Capture  CaptureConfig  `yaml:"capture" json:"capture"`

	// Feeds is the list of external calendars imported per studio.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{Feeds: []FeedConfig{}}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = "*/15 * * * *"
	}
	if c.CacheDir == "" {
		c.CacheDir = "./cache"
	}
	if c.Redis.TTLSeconds <= 0 {
		c.Redis.TTLSeconds = 30
	}

	cal := &c.Calendar
	switch strings.ToLower(cal.WeekStart) {
	case "monday":
		cal.WeekStart = "monday"
	default:
		// Unknown value; fall back to sunday to match the month grid.
		cal.WeekStart = "sunday"
	}
	switch strings.ToLower(cal.DayKeyPolicy) {
	case "utc":
		cal.DayKeyPolicy = "utc"
	default:
		cal.DayKeyPolicy = "local"
	}
	if cal.RowHeightPx <= 0 {
		cal.RowHeightPx = 48
	}
	if cal.MaxVisible <= 0 {
		cal.MaxVisible = 3
	}
	if cal.MonthsBack <= 0 {
		cal.MonthsBack = 3
	}
	if cal.MonthsForward <= 0 {
		cal.MonthsForward = 6
	}
	if cal.MemoSize < 0 {
		cal.MemoSize = 0
	}

	if c.Capture.PreviewPath == "" {
		c.Capture.PreviewPath = filepath.Join(c.CacheDir, "preview.png")
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = 1280
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = 1400
	}

	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.ID == "" {
			if f.Name != "" {
				f.ID = f.Name
			} else {
				f.ID = f.URL
			}
		}
	}
}

// FirstWeekday maps Calendar.WeekStart to a time.Weekday.
func (c *Config) FirstWeekday() time.Weekday {
	if c.Calendar.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// ApplyEnv overrides file values with STUDIOCAL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
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
//
// Environment overrides are applied in both cases.
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
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

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

	tmp, err := os.CreateTemp(dir, ".studiocal-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
