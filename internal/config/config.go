package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CurrentSchemaVersion is the current config schema version.
const CurrentSchemaVersion = 1

// Environment variable names for config overrides.
// Priority: Environment > Config File > Default
const (
	EnvHost           = "EVENTHUB_HOST"
	EnvPort           = "EVENTHUB_PORT"
	EnvDocumentDriver = "EVENTHUB_DOCUMENT_DRIVER"
	EnvMongoDatabase  = "EVENTHUB_MONGO_DATABASE"
	EnvLogLevel       = "EVENTHUB_LOG_LEVEL"
	EnvSyncInterval   = "EVENTHUB_SYNC_INTERVAL"
	EnvSyncOnStart    = "EVENTHUB_SYNC_ON_START"
	EnvStoreTimeout   = "EVENTHUB_STORE_TIMEOUT"
)

// Document store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Connector types.
const (
	ConnectorHTML     = "html"
	ConnectorJSONFeed = "jsonfeed"
	ConnectorICal     = "ical"
)

const (
	minStoreTimeout = 100 * time.Millisecond
	maxStoreTimeout = time.Minute
	minSyncInterval = 5 * time.Minute
)

// Config holds non-sensitive application configuration.
type Config struct {
	SchemaVersion  int               `yaml:"schema_version"`
	Host           string            `yaml:"host"`
	Port           int               `yaml:"port"`
	CORSOrigins    []string          `yaml:"cors_origins,omitempty"`
	TrustProxy     bool              `yaml:"trust_proxy"` // key rate limits by X-Forwarded-For
	LogLevel       string            `yaml:"log_level"`
	DocumentDriver string            `yaml:"document_driver"`
	MongoDatabase  string            `yaml:"mongo_database,omitempty"`
	StoreTimeout   time.Duration     `yaml:"store_timeout"`
	SyncInterval   time.Duration     `yaml:"sync_interval"` // 0 disables periodic sync
	SyncOnStart    bool              `yaml:"sync_on_start"`
	Statistics     StatisticsConfig  `yaml:"statistics"`
	Alerts         AlertsConfig      `yaml:"alerts"`
	Connectors     []ConnectorConfig `yaml:"connectors"`
}

// AlertsConfig selects which sync runs are posted to the alert webhook.
// The webhook URL itself lives in secrets.json.
type AlertsConfig struct {
	OnSuccess  bool          `yaml:"on_success"` // runs without failed records
	BatchDelay time.Duration `yaml:"batch_delay"`
}

// ConnectorConfig configures one source connector.
type ConnectorConfig struct {
	Name      string        `yaml:"name"`
	Type      string        `yaml:"type"`
	URL       string        `yaml:"url,omitempty"`
	Preset    string        `yaml:"preset,omitempty"` // html only
	Disabled  bool          `yaml:"disabled,omitempty"`
	RateLimit float64       `yaml:"rate_limit,omitempty"` // requests per second
	Burst     int           `yaml:"burst,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	Retries   int           `yaml:"retries,omitempty"` // list page only
	MaxItems  int           `yaml:"max_items,omitempty"`
}

// StatisticsConfig configures the yearly arts statistics loader.
type StatisticsConfig struct {
	Enabled                bool   `yaml:"enabled"`
	BaseURL                string `yaml:"base_url"`
	GovernmentContribution string `yaml:"government_contribution"`
	EmploymentItem         string `yaml:"employment_item"`
	Activities             string `yaml:"activities"`
}

// Connector defaults applied by normalizeConfig.
const (
	DefaultConnectorRateLimit = 2.0
	DefaultConnectorBurst     = 1
	DefaultConnectorTimeout   = 10 * time.Second
	DefaultConnectorRetries   = 3
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SchemaVersion:  CurrentSchemaVersion,
		Host:           "127.0.0.1",
		Port:           8080,
		LogLevel:       "info",
		DocumentDriver: DriverSQLite,
		StoreTimeout:   5 * time.Second,
		SyncInterval:   6 * time.Hour,
		SyncOnStart:    false,
		Alerts: AlertsConfig{
			BatchDelay: 30 * time.Second,
		},
		Statistics: StatisticsConfig{
			Enabled:                true,
			BaseURL:                "https://data.gov.sg/api/action/datastore_search",
			GovernmentContribution: "d_50c329c8a3d698b1b5607896163fa38f",
			EmploymentItem:         "d_1b3bb94dab437ad56d0a6cc26282a289",
			Activities:             "d_fe963befd0a503e6de3883d50e3f4597",
		},
		Connectors: []ConnectorConfig{
			{Name: "artsrepublic", Type: ConnectorHTML, Preset: "artsrepublic"},
			{Name: "eventfinda", Type: ConnectorHTML, Preset: "eventfinda"},
		},
	}
}

// Load reads config.yaml from p and applies environment overrides.
func Load(p Paths) (Config, error) {
	cfg, err := LoadConfigFrom(p.Config())
	if err != nil {
		return cfg, err
	}
	return ApplyEnvOverrides(cfg), nil
}

// LoadConfigFrom reads config from the specified path. If the file doesn't
// exist or is corrupt, it returns DefaultConfig with a warning logged (non-fatal).
func LoadConfigFrom(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		slog.Warn("failed to read config file, using defaults", "path", path, "error", err)
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&cfg); err != nil {
		slog.Warn("config file is corrupt, using defaults", "path", path, "error", err)
		return DefaultConfig(), nil
	}

	if cfg.SchemaVersion != CurrentSchemaVersion {
		slog.Warn("config schema version mismatch, using defaults",
			"got", cfg.SchemaVersion, "expected", CurrentSchemaVersion)
		return DefaultConfig(), nil
	}

	return normalizeConfig(cfg), nil
}

// normalizeConfig validates and normalizes config values.
func normalizeConfig(cfg Config) Config {
	defaults := DefaultConfig()

	cfg.SchemaVersion = CurrentSchemaVersion

	if cfg.Host == "" {
		cfg.Host = defaults.Host
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		cfg.Port = defaults.Port
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := parseLevel(cfg.LogLevel); !ok {
		cfg.LogLevel = defaults.LogLevel
	}

	cfg.DocumentDriver = strings.ToLower(strings.TrimSpace(cfg.DocumentDriver))
	if cfg.DocumentDriver != DriverSQLite && cfg.DocumentDriver != DriverMongo {
		cfg.DocumentDriver = defaults.DocumentDriver
	}

	if cfg.StoreTimeout < minStoreTimeout || cfg.StoreTimeout > maxStoreTimeout {
		cfg.StoreTimeout = defaults.StoreTimeout
	}
	if cfg.SyncInterval < 0 {
		cfg.SyncInterval = 0
	} else if cfg.SyncInterval > 0 && cfg.SyncInterval < minSyncInterval {
		cfg.SyncInterval = minSyncInterval
	}

	if cfg.Alerts.BatchDelay <= 0 {
		cfg.Alerts.BatchDelay = defaults.Alerts.BatchDelay
	}

	if cfg.Statistics.BaseURL == "" {
		cfg.Statistics.BaseURL = defaults.Statistics.BaseURL
	}

	for i := range cfg.Connectors {
		cfg.Connectors[i] = normalizeConnector(cfg.Connectors[i])
	}

	return cfg
}

func normalizeConnector(c ConnectorConfig) ConnectorConfig {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Name == "" {
		c.Name = c.Preset
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultConnectorRateLimit
	}
	if c.Burst <= 0 {
		c.Burst = DefaultConnectorBurst
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConnectorTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = DefaultConnectorRetries
	}
	if c.MaxItems < 0 {
		c.MaxItems = 0
	}
	return c
}

// EnabledConnectors returns the connectors not marked disabled, normalized.
func (c Config) EnabledConnectors() []ConnectorConfig {
	out := make([]ConnectorConfig, 0, len(c.Connectors))
	for _, cc := range c.Connectors {
		if !cc.Disabled {
			out = append(out, normalizeConnector(cc))
		}
	}
	return out
}

// Connector returns the connector named name.
func (c Config) Connector(name string) (ConnectorConfig, bool) {
	for _, cc := range c.Connectors {
		if cc.Name == name {
			return normalizeConnector(cc), true
		}
	}
	return ConnectorConfig{}, false
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SlogLevel returns the configured log level.
func (c Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, bool) {
	switch s {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// SaveConfigTo writes config to the specified path atomically.
func SaveConfigTo(cfg Config, path string) error {
	cfg.SchemaVersion = CurrentSchemaVersion

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, data)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take highest priority over config file values.
// Values that fail to parse are ignored.
func ApplyEnvOverrides(cfg Config) Config {
	if v := os.Getenv(EnvHost); v != "" {
		cfg.Host = v
	}

	if v := os.Getenv(EnvPort); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.Port = port
		}
	}

	if v := os.Getenv(EnvDocumentDriver); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == DriverSQLite || v == DriverMongo {
			cfg.DocumentDriver = v
		}
	}

	if v := os.Getenv(EnvMongoDatabase); v != "" {
		cfg.MongoDatabase = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if _, ok := parseLevel(v); ok {
			cfg.LogLevel = v
		}
	}

	if v := os.Getenv(EnvSyncInterval); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			cfg.SyncInterval = d
		}
	}

	if v := os.Getenv(EnvSyncOnStart); v != "" {
		cfg.SyncOnStart = parseBool(v)
	}

	if v := os.Getenv(EnvStoreTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= minStoreTimeout && d <= maxStoreTimeout {
			cfg.StoreTimeout = d
		}
	}

	return cfg
}

// parseBool parses a boolean from various string representations.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
// All other values are treated as false.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
