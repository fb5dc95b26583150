package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // site timezones must resolve on hosts without zoneinfo

	"gopkg.in/yaml.v3"
)

// Discovery backends.
const (
	DiscoveryBackendREST  = "rest"
	DiscoveryBackendOTCtl = "otctl"
)

// Config is the root configuration structure for the vent hub.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	Mesh      MeshConfig      `yaml:"mesh"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Polling   PollingConfig   `yaml:"polling"`
	Groups    GroupsConfig    `yaml:"groups"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MeshConfig contains settings for talking to vents over the mesh.
type MeshConfig struct {
	// CoAPPort is appended to bare IPv6 device addresses.
	CoAPPort int `yaml:"coap_port"`

	// RequestTimeout bounds a single request/response exchange (seconds).
	RequestTimeout int `yaml:"request_timeout"`
}

// DiscoveryConfig selects and configures the mesh topology source.
type DiscoveryConfig struct {
	Backend         string   `yaml:"backend"`
	OTBRURL         string   `yaml:"otbr_url"`
	OTCtlCommand    []string `yaml:"otctl_command"`
	MeshLocalPrefix string   `yaml:"mesh_local_prefix"`
	Interval        int      `yaml:"interval"`
	Timeout         int      `yaml:"timeout"`
}

// PollingConfig controls the background poll loop.
type PollingConfig struct {
	Interval int `yaml:"interval"`
}

// GroupsConfig controls group command fan-out.
type GroupsConfig struct {
	// MaxConcurrency limits in-flight device commands per group call. 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`
}

// SchedulerConfig contains the time-rule scheduler settings and its initial rule set.
type SchedulerConfig struct {
	Enabled      bool         `yaml:"enabled"`
	TickInterval int          `yaml:"tick_interval"`
	Rules        []RuleConfig `yaml:"rules"`
}

// RuleConfig is a schedule rule as written in the config file.
type RuleConfig struct {
	Name       string `yaml:"name"`
	Time       string `yaml:"time"` // "HH:MM"
	TargetType string `yaml:"target_type"`
	Target     string `yaml:"target"`
	Angle      int    `yaml:"angle"`
	Enabled    *bool  `yaml:"enabled"`
}

// IsEnabled reports whether the rule is enabled. Omitted means enabled.
func (r RuleConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VENTHUB_SECTION_KEY
// For example: VENTHUB_DATABASE_PATH, VENTHUB_DISCOVERY_BACKEND
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home",
			Name:     "Vent Hub",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/venthub.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Mesh: MeshConfig{
			CoAPPort:       5683,
			RequestTimeout: 10,
		},
		Discovery: DiscoveryConfig{
			Backend:         DiscoveryBackendREST,
			OTBRURL:         "http://localhost:8081",
			OTCtlCommand:    []string{"ot-ctl"},
			MeshLocalPrefix: "fdde:ad00:beef:0:0:ff:fe00:",
			Interval:        300,
			Timeout:         5,
		},
		Polling: PollingConfig{
			Interval: 30,
		},
		Scheduler: SchedulerConfig{
			Enabled:      true,
			TickInterval: 60,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "venthub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VENTHUB_SITE_ID"); v != "" {
		cfg.Site.ID = v
	}
	if v := os.Getenv("VENTHUB_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("VENTHUB_MESH_COAP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Mesh.CoAPPort = n
		}
	}

	if v := os.Getenv("VENTHUB_DISCOVERY_BACKEND"); v != "" {
		cfg.Discovery.Backend = v
	}
	if v := os.Getenv("VENTHUB_DISCOVERY_OTBR_URL"); v != "" {
		cfg.Discovery.OTBRURL = v
	}
	// Space separated, e.g. "docker exec otbr ot-ctl".
	if v := os.Getenv("VENTHUB_DISCOVERY_OTCTL_COMMAND"); v != "" {
		cfg.Discovery.OTCtlCommand = strings.Fields(v)
	}

	if v := os.Getenv("VENTHUB_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VENTHUB_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VENTHUB_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("VENTHUB_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	if v := os.Getenv("VENTHUB_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Timezone != "" {
		if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("site.timezone %q is not a known zone", c.Site.Timezone))
		}
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Mesh.CoAPPort < 1 || c.Mesh.CoAPPort > 65535 {
		errs = append(errs, "mesh.coap_port must be between 1 and 65535")
	}
	if c.Mesh.RequestTimeout < 1 {
		errs = append(errs, "mesh.request_timeout must be at least 1 second")
	}

	switch c.Discovery.Backend {
	case DiscoveryBackendREST:
		if c.Discovery.OTBRURL == "" {
			errs = append(errs, "discovery.otbr_url is required for the rest backend")
		}
	case DiscoveryBackendOTCtl:
		if len(c.Discovery.OTCtlCommand) == 0 {
			errs = append(errs, "discovery.otctl_command is required for the otctl backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("discovery.backend must be %q or %q", DiscoveryBackendREST, DiscoveryBackendOTCtl))
	}
	if c.Discovery.Interval < 0 {
		errs = append(errs, "discovery.interval must not be negative")
	}

	if c.Polling.Interval < 0 {
		errs = append(errs, "polling.interval must not be negative")
	}
	if c.Groups.MaxConcurrency < 0 {
		errs = append(errs, "groups.max_concurrency must not be negative")
	}

	if c.Scheduler.TickInterval < 1 {
		errs = append(errs, "scheduler.tick_interval must be at least 1 second")
	}
	seen := make(map[string]bool, len(c.Scheduler.Rules))
	for i, r := range c.Scheduler.Rules {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("scheduler.rules[%d].name is required", i))
		} else if seen[r.Name] {
			errs = append(errs, fmt.Sprintf("scheduler.rules[%d].name %q is duplicated", i, r.Name))
		}
		seen[r.Name] = true
		switch r.TargetType {
		case "all", "room", "floor":
		default:
			errs = append(errs, fmt.Sprintf("scheduler.rules[%d].target_type must be all, room or floor", i))
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location returns the site time zone used for schedule evaluation.
func (c *Config) Location() *time.Location {
	if c.Site.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// RequestTimeout returns the per-exchange device request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Mesh.RequestTimeout) * time.Second
}

// DiscoveryTimeout returns the topology query timeout.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// DiscoveryInterval returns the period between background discovery runs.
// Zero disables the background loop.
func (c *Config) DiscoveryInterval() time.Duration {
	return time.Duration(c.Discovery.Interval) * time.Second
}

// PollInterval returns the period between background polls. Zero disables polling.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Polling.Interval) * time.Second
}

// TickInterval returns the scheduler tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Scheduler.TickInterval) * time.Second
}
