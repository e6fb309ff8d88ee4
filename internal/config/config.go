package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv       = "MATOMO_ADAPTER_CONFIG"
	matomoTokenEnv      = "MATOMO_TOKEN"
	opencastPasswordEnv = "OPENCAST_PASSWORD"
	influxPasswordEnv   = "INFLUXDB_PASSWORD"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "30s" or "24h".
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

// Std returns the value as a plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config holds high-level settings required across the application.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Adapter  AdapterConfig  `yaml:"adapter"`
	Matomo   MatomoConfig   `yaml:"matomo"`
	Opencast OpencastConfig `yaml:"opencast"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// AdapterConfig drives the scheduling loop and the pipeline's resource
// bounds.
type AdapterConfig struct {
	CheckpointFile string   `yaml:"checkpointFile"`
	Interval       Duration `yaml:"interval"`
	Workers        int      `yaml:"workers"`
	QueueSize      int      `yaml:"queueSize"`
}

// MatomoConfig describes the analytics provider endpoint.
type MatomoConfig struct {
	URL       string   `yaml:"url"`
	SiteID    string   `yaml:"siteId"`
	Token     string   `yaml:"token"`
	RateLimit int      `yaml:"rateLimit"`
	Timeout   Duration `yaml:"timeout"`
}

// OpencastConfig describes the catalog service endpoint and the episode
// cache bounds.
type OpencastConfig struct {
	URL          string   `yaml:"url"`
	User         string   `yaml:"user"`
	Password     string   `yaml:"password"`
	Organization string   `yaml:"organization"`
	CacheSize    int      `yaml:"cacheSize"`
	CacheTTL     Duration `yaml:"cacheTtl"`
	RateLimit    int      `yaml:"rateLimit"`
	Timeout      Duration `yaml:"timeout"`
}

// InfluxDBConfig describes the metrics store connection.
type InfluxDBConfig struct {
	URL             string   `yaml:"url"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Database        string   `yaml:"database"`
	RetentionPolicy string   `yaml:"retentionPolicy"`
	Timeout         Duration `yaml:"timeout"`
}

// NotFoundError reports that the configured file does not exist; main maps
// it to its own exit status.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", e.Path)
}

// Load reads YAML configuration from the path in MATOMO_ADAPTER_CONFIG (if
// set), merges it over the defaults and applies environment overrides for
// secrets.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Config{}, &NotFoundError{Path: path}
			}
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(matomoTokenEnv); v != "" {
		c.Matomo.Token = v
	}
	if v := os.Getenv(opencastPasswordEnv); v != "" {
		c.Opencast.Password = v
	}
	if v := os.Getenv(influxPasswordEnv); v != "" {
		c.InfluxDB.Password = v
	}
}

func (c *Config) validate() error {
	if c.Adapter.Interval <= 0 {
		return fmt.Errorf("adapter.interval must be positive, got %s", c.Adapter.Interval)
	}
	if c.Adapter.Workers <= 0 {
		return fmt.Errorf("adapter.workers must be positive, got %d", c.Adapter.Workers)
	}
	if c.Matomo.RateLimit < 0 || c.Opencast.RateLimit < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.Opencast.CacheSize < 0 || c.Opencast.CacheTTL < 0 {
		return fmt.Errorf("cache size and TTL must not be negative")
	}
	if c.InfluxDB.Database == "" {
		return fmt.Errorf("influxdb.database cannot be empty")
	}
	return nil
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging = override.Logging
	}

	if override.Adapter.CheckpointFile != "" {
		base.Adapter.CheckpointFile = override.Adapter.CheckpointFile
	}
	if override.Adapter.Interval != 0 {
		base.Adapter.Interval = override.Adapter.Interval
	}
	if override.Adapter.Workers != 0 {
		base.Adapter.Workers = override.Adapter.Workers
	}
	if override.Adapter.QueueSize != 0 {
		base.Adapter.QueueSize = override.Adapter.QueueSize
	}

	if override.Matomo.URL != "" {
		base.Matomo.URL = override.Matomo.URL
	}
	if override.Matomo.SiteID != "" {
		base.Matomo.SiteID = override.Matomo.SiteID
	}
	if override.Matomo.Token != "" {
		base.Matomo.Token = override.Matomo.Token
	}
	if override.Matomo.RateLimit != 0 {
		base.Matomo.RateLimit = override.Matomo.RateLimit
	}
	if override.Matomo.Timeout != 0 {
		base.Matomo.Timeout = override.Matomo.Timeout
	}

	if override.Opencast.URL != "" {
		base.Opencast.URL = override.Opencast.URL
	}
	if override.Opencast.User != "" {
		base.Opencast.User = override.Opencast.User
	}
	if override.Opencast.Password != "" {
		base.Opencast.Password = override.Opencast.Password
	}
	if override.Opencast.Organization != "" {
		base.Opencast.Organization = override.Opencast.Organization
	}
	if override.Opencast.CacheSize != 0 {
		base.Opencast.CacheSize = override.Opencast.CacheSize
	}
	if override.Opencast.CacheTTL != 0 {
		base.Opencast.CacheTTL = override.Opencast.CacheTTL
	}
	if override.Opencast.RateLimit != 0 {
		base.Opencast.RateLimit = override.Opencast.RateLimit
	}
	if override.Opencast.Timeout != 0 {
		base.Opencast.Timeout = override.Opencast.Timeout
	}

	if override.InfluxDB.URL != "" {
		base.InfluxDB.URL = override.InfluxDB.URL
	}
	if override.InfluxDB.User != "" {
		base.InfluxDB.User = override.InfluxDB.User
	}
	if override.InfluxDB.Password != "" {
		base.InfluxDB.Password = override.InfluxDB.Password
	}
	if override.InfluxDB.Database != "" {
		base.InfluxDB.Database = override.InfluxDB.Database
	}
	if override.InfluxDB.RetentionPolicy != "" {
		base.InfluxDB.RetentionPolicy = override.InfluxDB.RetentionPolicy
	}
	if override.InfluxDB.Timeout != 0 {
		base.InfluxDB.Timeout = override.InfluxDB.Timeout
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info"},
		Adapter: AdapterConfig{
			CheckpointFile: "last-date",
			Interval:       Duration(24 * time.Hour),
			Workers:        8,
			QueueSize:      64,
		},
		Matomo: MatomoConfig{
			URL:     "http://localhost:8080",
			SiteID:  "1",
			Timeout: Duration(10 * time.Second),
		},
		Opencast: OpencastConfig{
			URL:          "http://localhost:8081",
			Organization: "mh_default_org",
			CacheSize:    10000,
			CacheTTL:     Duration(5 * time.Minute),
			Timeout:      Duration(10 * time.Second),
		},
		InfluxDB: InfluxDBConfig{
			URL:             "http://localhost:8086",
			Database:        "opencast",
			RetentionPolicy: "autogen",
			Timeout:         Duration(10 * time.Second),
		},
	}
}
