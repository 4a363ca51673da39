package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Lookup   LookupConfig   `yaml:"lookup" mapstructure:"lookup"`
	Download DownloadConfig `yaml:"download" mapstructure:"download"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the dataset file and the optional PostGIS publish
// target.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ExtractConfig configures dataset builds.
type ExtractConfig struct {
	Jurisdiction string `yaml:"jurisdiction" mapstructure:"jurisdiction"`
	GridSize     int    `yaml:"grid_size" mapstructure:"grid_size"`
	Procs        int    `yaml:"procs" mapstructure:"procs"`
	SpeedTable   string `yaml:"speed_table" mapstructure:"speed_table"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// GeocodeConfig holds the search radii in degrees.
type GeocodeConfig struct {
	StreetRadius float64 `yaml:"street_radius" mapstructure:"street_radius"`
	SuburbRadius float64 `yaml:"suburb_radius" mapstructure:"suburb_radius"`
	CityRadius   float64 `yaml:"city_radius" mapstructure:"city_radius"`
	MatchRadiusM float64 `yaml:"match_radius_m" mapstructure:"match_radius_m"`
}

// LookupConfig configures speed lookups.
type LookupConfig struct {
	FallbackRadius float64 `yaml:"fallback_radius" mapstructure:"fallback_radius"`
}

// DownloadConfig configures extract downloads.
type DownloadConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port         int      `yaml:"port" mapstructure:"port"`
	CacheSize    int      `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int      `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CORSOrigins  []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GEOLOOKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "geolookup.db")
	v.SetDefault("store.batch_size", 5000)
	v.SetDefault("extract.jurisdiction", "za")
	v.SetDefault("extract.grid_size", 1000)
	v.SetDefault("extract.procs", 0)
	v.SetDefault("extract.concurrency", 2)
	v.SetDefault("geocode.street_radius", 0.005)
	v.SetDefault("geocode.suburb_radius", 0.05)
	v.SetDefault("geocode.city_radius", 0.3)
	v.SetDefault("geocode.match_radius_m", 50.0)
	v.SetDefault("lookup.fallback_radius", 0.01)
	v.SetDefault("download.base_url", "https://download.geofabrik.de")
	v.SetDefault("download.dir", "extracts")
	v.SetDefault("download.timeout_secs", 1800)
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.concurrency", 2)
	v.SetDefault("download.user_agent", "geolookup/1.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_size", 10000)
	v.SetDefault("server.cache_ttl_secs", 3600)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are build,
// publish, query, serve and download.
func (c *Config) Validate(mode string) error {
	var errs []string
	need := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, msg)
		}
	}

	switch mode {
	case "build":
		need(c.Store.Path != "", "store.path is required")
		need(c.Extract.GridSize > 0, "extract.grid_size must be > 0")
		need(c.Extract.Concurrency >= 1 && c.Extract.Concurrency <= 16, "extract.concurrency must be between 1 and 16")
		need(c.Extract.Jurisdiction != "" || c.Extract.SpeedTable != "", "extract.jurisdiction or extract.speed_table is required")
	case "publish":
		need(c.Store.DatabaseURL != "", "store.database_url is required")
	case "query":
		need(c.Store.Path != "", "store.path is required")
		need(c.Geocode.StreetRadius >= 0 && c.Geocode.SuburbRadius >= 0 && c.Geocode.CityRadius >= 0, "geocode radii must be >= 0")
		need(c.Lookup.FallbackRadius >= 0, "lookup.fallback_radius must be >= 0")
	case "serve":
		need(c.Store.Path != "", "store.path is required")
		need(c.Server.Port > 0, "server.port must be > 0")
		need(c.Server.CacheSize >= 0, "server.cache_size must be >= 0")
	case "download":
		need(c.Download.BaseURL != "", "download.base_url is required")
		need(c.Download.Dir != "", "download.dir is required")
		need(c.Download.Concurrency >= 1 && c.Download.Concurrency <= 8, "download.concurrency must be between 1 and 8")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
