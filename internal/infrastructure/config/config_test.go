package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Display timings
	assert.Equal(t, 3*time.Second, cfg.Display.BootDuration())
	assert.Equal(t, 300*time.Millisecond, cfg.Display.Throttle())
	assert.Equal(t, 10*time.Second, cfg.Display.LockTimeout())
	assert.Equal(t, 2*time.Second, cfg.Display.LockInactive())

	// Photo config
	assert.Equal(t, 30*time.Second, cfg.Photo.RequestTimeout())

	// Apps config
	assert.Equal(t, "cloud.lumena.dashboard", cfg.Apps.DashboardPackage)
	assert.Equal(t, "cloud.lumena.captions", cfg.Apps.CorePackage)

	// Webhook config
	assert.True(t, cfg.Webhook.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout())
	assert.Equal(t, 2, cfg.Webhook.MaxRetries)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                     "9000",
		"HOST":                     "127.0.0.1",
		"DISPLAY_BOOT_MS":          "1500",
		"DISPLAY_THROTTLE_MS":      "100",
		"DISPLAY_LOCK_TIMEOUT_MS":  "5000",
		"DISPLAY_LOCK_INACTIVE_MS": "1000",
		"PHOTO_TIMEOUT_MS":         "10000",
		"DASHBOARD_PACKAGE":        "cloud.example.dash",
		"CORE_PACKAGE":             "cloud.example.core",
		"WEBHOOK_ENABLED":          "false",
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
		"RATE_LIMIT_RPS":           "500",
		"RATE_LIMIT_BURST":         "1000",
		"RATE_LIMIT_ENABLED":       "false",
	}

	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, 1500*time.Millisecond, cfg.Display.BootDuration())
	assert.Equal(t, 100*time.Millisecond, cfg.Display.Throttle())
	assert.Equal(t, 5*time.Second, cfg.Display.LockTimeout())
	assert.Equal(t, time.Second, cfg.Display.LockInactive())

	assert.Equal(t, 10*time.Second, cfg.Photo.RequestTimeout())

	assert.Equal(t, "cloud.example.dash", cfg.Apps.DashboardPackage)
	assert.Equal(t, "cloud.example.core", cfg.Apps.CorePackage)

	assert.False(t, cfg.Webhook.Enabled)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Verify overridden values
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)

	// Verify default values still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3*time.Second, cfg.Display.BootDuration())
	assert.Equal(t, "cloud.lumena.captions", cfg.Apps.CorePackage)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glasscloud.toml")
	content := `
[server]
port = "9100"

[display]
boot_duration_ms = 2000
throttle_ms = 150

[apps]
core_package = "cloud.example.livecaptions"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	// File values
	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Display.BootDuration())
	assert.Equal(t, 150*time.Millisecond, cfg.Display.Throttle())
	assert.Equal(t, "cloud.example.livecaptions", cfg.Apps.CorePackage)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Defaults for everything the file omits
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10*time.Second, cfg.Display.LockTimeout())
	assert.Equal(t, "cloud.lumena.dashboard", cfg.Apps.DashboardPackage)
}

func TestEnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glasscloud.toml")
	content := `
[server]
port = "9100"

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("PORT", "9200")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	// Env wins over file; file wins over defaults.
	assert.Equal(t, "9200", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport="), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadHonorsConfigFileEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "glasscloud.toml")
	content := `
[photo]
request_timeout_ms = 12000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv(EnvConfigFile, path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 12*time.Second, cfg.Photo.RequestTimeout())
}
