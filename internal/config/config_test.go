package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// No config.yaml in a fresh temp dir.
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "geolookup.db", cfg.Store.Path)
	assert.Equal(t, 5000, cfg.Store.BatchSize)
	assert.Equal(t, "za", cfg.Extract.Jurisdiction)
	assert.Equal(t, 1000, cfg.Extract.GridSize)
	assert.Equal(t, 2, cfg.Extract.Concurrency)
	assert.InDelta(t, 0.005, cfg.Geocode.StreetRadius, 1e-9)
	assert.InDelta(t, 0.05, cfg.Geocode.SuburbRadius, 1e-9)
	assert.InDelta(t, 0.3, cfg.Geocode.CityRadius, 1e-9)
	assert.InDelta(t, 50, cfg.Geocode.MatchRadiusM, 1e-9)
	assert.InDelta(t, 0.01, cfg.Lookup.FallbackRadius, 1e-9)
	assert.Equal(t, "https://download.geofabrik.de", cfg.Download.BaseURL)
	assert.Equal(t, 1800, cfg.Download.TimeoutSecs)
	assert.Equal(t, 3, cfg.Download.MaxRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10000, cfg.Server.CacheSize)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  path: /data/za.db
extract:
  jurisdiction: de
  grid_size: 500
geocode:
  suburb_radius: 0.02
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins:
    - https://maps.example.com
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/data/za.db", cfg.Store.Path)
	assert.Equal(t, "de", cfg.Extract.Jurisdiction)
	assert.Equal(t, 500, cfg.Extract.GridSize)
	assert.InDelta(t, 0.02, cfg.Geocode.SuburbRadius, 1e-9)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://maps.example.com"}, cfg.Server.CORSOrigins)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.3, cfg.Geocode.CityRadius, 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  path: file.db
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("GEOLOOKUP_STORE_PATH", "env.db")
	t.Setenv("GEOLOOKUP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env.db", cfg.Store.Path)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GEOLOOKUP_SERVER_PORT", "3000")
	t.Setenv("GEOLOOKUP_EXTRACT_GRID_SIZE", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Extract.GridSize)
}

func TestLoadMalformedYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the loaded defaults for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Path = "geolookup.db"
	cfg.Extract.Jurisdiction = "za"
	cfg.Extract.GridSize = 1000
	cfg.Extract.Concurrency = 2
	cfg.Geocode.StreetRadius = 0.005
	cfg.Lookup.FallbackRadius = 0.01
	cfg.Download.BaseURL = "https://download.geofabrik.de"
	cfg.Download.Dir = "extracts"
	cfg.Download.Concurrency = 2
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"build", "query", "serve", "download"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateBuild(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Path = ""
	cfg.Extract.GridSize = 0
	cfg.Extract.Concurrency = 17
	cfg.Extract.Jurisdiction = ""

	err := cfg.Validate("build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.path is required")
	assert.Contains(t, err.Error(), "extract.grid_size must be > 0")
	assert.Contains(t, err.Error(), "extract.concurrency must be between 1 and 16")
	assert.Contains(t, err.Error(), "extract.jurisdiction or extract.speed_table is required")

	cfg = validDefaults()
	cfg.Extract.Jurisdiction = ""
	cfg.Extract.SpeedTable = "speeds.yaml"
	assert.NoError(t, cfg.Validate("build"))
}

func TestValidatePublish(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("publish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/geo"
	assert.NoError(t, cfg.Validate("publish"))
}

func TestValidateQuery_NegativeRadius(t *testing.T) {
	cfg := validDefaults()
	cfg.Geocode.CityRadius = -1
	cfg.Lookup.FallbackRadius = -0.1

	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "geocode radii must be >= 0")
	assert.Contains(t, err.Error(), "lookup.fallback_radius must be >= 0")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateDownload_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Download.Concurrency = 0
	err := cfg.Validate("download")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "download.concurrency must be between 1 and 8")

	cfg.Download.Concurrency = 9
	assert.Error(t, cfg.Validate("download"))

	cfg.Download.Concurrency = 8
	assert.NoError(t, cfg.Validate("download"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
