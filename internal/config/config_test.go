package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "sunday", cfg.Calendar.WeekStart)
	assert.Equal(t, "local", cfg.Calendar.DayKeyPolicy)
	assert.Equal(t, 3, cfg.Calendar.MonthsBack)
	assert.Equal(t, 6, cfg.Calendar.MonthsForward)
	assert.Equal(t, 3, cfg.Calendar.MaxVisible)
	assert.Equal(t, time.Sunday, cfg.FirstWeekday())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
listen: ":9000"
calendar:
  week_start: Monday
  day_key_policy: bogus
  row_height_px: 60
feeds:
  - studio_id: s1
    name: rooms
    url: https://example.com/rooms.ics
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, time.Monday, cfg.FirstWeekday())
	assert.Equal(t, "local", cfg.Calendar.DayKeyPolicy)
	assert.Equal(t, 60.0, cfg.Calendar.RowHeightPx)
	require.Len(t, cfg.Feeds, 1)
	assert.Equal(t, "rooms", cfg.Feeds[0].ID)
	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("STUDIOCAL_DATABASE_URL=postgres://from-dotenv/db\n"), 0o600))

	t.Setenv(EnvRedisURL, "redis://from-env:6379/0")
	t.Setenv(EnvDatabaseURL, "")
	require.NoError(t, os.Unsetenv(EnvDatabaseURL))
	require.NoError(t, LoadEnvFile(envPath))

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-dotenv/db", cfg.Database.URL)
	assert.Equal(t, "redis://from-env:6379/0", cfg.Redis.URL)

	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "missing.env")))
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", PasswordHash: "$2a$10$abc"}
	cfg.Feeds = append(cfg.Feeds, FeedConfig{StudioID: "s1", URL: "https://example.com/a.ics"})
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.BasicAuth)
	assert.Equal(t, "admin", loaded.BasicAuth.Username)
	assert.Equal(t, "https://example.com/a.ics", loaded.Feeds[0].ID)
}
