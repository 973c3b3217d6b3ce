package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the edge agent.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Database DatabaseConfig `yaml:"database"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
	Plugins  PluginsConfig  `yaml:"plugins"`
}

// AgentConfig describes the device and the steady-state loop.
type AgentConfig struct {
	// Name is combined with the serial to form the device name ("<name>-<serial>").
	Name string `yaml:"name"`

	// Type is the device type announced to the cloud endpoint.
	Type string `yaml:"type"`

	// Serial overrides the detected hardware serial. Empty means detect.
	Serial string `yaml:"serial"`

	// Simulated selects the "docker" model tag instead of "raspberry".
	Simulated bool `yaml:"simulated"`

	// MainLoopInterval is the steady-state cycle length in seconds.
	// Re-read on every cycle.
	MainLoopInterval int `yaml:"main_loop_interval"`

	// RequiredInterval is the availability interval (minutes) announced with message 117.
	RequiredInterval int `yaml:"required_interval"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker MQTTBrokerConfig `yaml:"broker"`
	Auth   MQTTAuthConfig   `yaml:"auth"`

	// TokenRefreshInterval is the credential refresh period in seconds (mutual TLS only).
	TokenRefreshInterval int `yaml:"token_refresh_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	KeepAlive int    `yaml:"keepalive"`
	TLS       bool   `yaml:"tls"`
	CACert    string `yaml:"cacert"`

	// CertAuth enables mutual TLS with the client certificate below.
	// Username/password are not sent in this mode.
	CertAuth   bool   `yaml:"cert_auth"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`

	// InsecureSkipVerify disables broker certificate verification in
	// mutual TLS mode. Off by default.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// MQTTAuthConfig contains the tenant credentials used when mutual TLS is off.
type MQTTAuthConfig struct {
	Tenant   string `yaml:"tenant"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DispatchConfig bounds concurrent handler execution.
type DispatchConfig struct {
	Workers int `yaml:"workers"`
}

// DatabaseConfig contains SQLite settings for the credentials store.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for the measurement sink.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PluginsConfig toggles the built-in capability handlers.
type PluginsConfig struct {
	System        PluginToggle        `yaml:"system"`
	Configuration PluginToggle        `yaml:"configuration"`
	Command       CommandPluginConfig `yaml:"command"`
}

// PluginToggle enables or disables a built-in handler.
type PluginToggle struct {
	Enabled bool `yaml:"enabled"`
}

// CommandPluginConfig configures the shell command handler.
type CommandPluginConfig struct {
	Enabled bool   `yaml:"enabled"`
	Shell   string `yaml:"shell"`
	Timeout int    `yaml:"timeout"`
}

// ConnectionConfig is the immutable per-attempt view of the broker settings.
type ConnectionConfig struct {
	Host                 string
	Port                 int
	KeepAlive            time.Duration
	TLS                  bool
	CACert               string
	CertAuth             bool
	ClientCert           string
	ClientKey            string
	InsecureSkipVerify   bool
	TokenRefreshInterval time.Duration
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EDGEAGENT_SECTION_KEY
// For example: EDGEAGENT_MQTT_HOST, EDGEAGENT_MQTT_PASSWORD
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
		Agent: AgentConfig{
			Name:             "dm-example-device",
			Type:             "c8y_dm_example_device",
			MainLoopInterval: 10,
			RequiredInterval: 10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:      "localhost",
				Port:      1883,
				KeepAlive: 60,
			},
			TokenRefreshInterval: 60,
		},
		Dispatch: DispatchConfig{
			Workers: 16,
		},
		Database: DatabaseConfig{
			Path:        "./data/edgeagent.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9464",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Plugins: PluginsConfig{
			System:        PluginToggle{Enabled: true},
			Configuration: PluginToggle{Enabled: true},
			Command: CommandPluginConfig{
				Shell:   "/bin/sh",
				Timeout: 60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EDGEAGENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Agent
	if v := os.Getenv("EDGEAGENT_AGENT_SERIAL"); v != "" {
		cfg.Agent.Serial = v
	}

	// MQTT
	if v := os.Getenv("EDGEAGENT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EDGEAGENT_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("EDGEAGENT_MQTT_TENANT"); v != "" {
		cfg.MQTT.Auth.Tenant = v
	}
	if v := os.Getenv("EDGEAGENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EDGEAGENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Database
	if v := os.Getenv("EDGEAGENT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// InfluxDB
	if v := os.Getenv("EDGEAGENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Agent validation
	if c.Agent.Name == "" {
		errs = append(errs, "agent.name is required")
	}
	if c.Agent.Type == "" {
		errs = append(errs, "agent.type is required")
	}
	if c.Agent.MainLoopInterval < 1 {
		errs = append(errs, "agent.main_loop_interval must be at least 1 second")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.KeepAlive < 0 {
		errs = append(errs, "mqtt.broker.keepalive must not be negative")
	}
	if c.MQTT.Broker.CertAuth {
		if !c.MQTT.Broker.TLS {
			errs = append(errs, "mqtt.broker.cert_auth requires mqtt.broker.tls")
		}
		if c.MQTT.Broker.ClientCert == "" || c.MQTT.Broker.ClientKey == "" {
			errs = append(errs, "mqtt.broker.client_cert and client_key are required with cert_auth")
		}
	} else if c.MQTT.Auth.Username == "" {
		errs = append(errs, "mqtt.auth.username is required unless cert_auth is enabled")
	}
	if c.MQTT.TokenRefreshInterval < 1 {
		errs = append(errs, "mqtt.token_refresh_interval must be at least 1 second")
	}

	// Dispatch validation
	if c.Dispatch.Workers < 1 {
		errs = append(errs, "dispatch.workers must be at least 1")
	}

	// Optional sinks
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Connection returns the broker settings for one connect attempt.
func (c *Config) Connection() ConnectionConfig {
	b := c.MQTT.Broker
	return ConnectionConfig{
		Host:                 b.Host,
		Port:                 b.Port,
		KeepAlive:            time.Duration(b.KeepAlive) * time.Second,
		TLS:                  b.TLS,
		CACert:               b.CACert,
		CertAuth:             b.CertAuth,
		ClientCert:           b.ClientCert,
		ClientKey:            b.ClientKey,
		InsecureSkipVerify:   b.InsecureSkipVerify,
		TokenRefreshInterval: time.Duration(c.MQTT.TokenRefreshInterval) * time.Second,
	}
}

// GetMainLoopInterval returns the steady-state cycle length as a Duration.
func (c *Config) GetMainLoopInterval() time.Duration {
	return time.Duration(c.Agent.MainLoopInterval) * time.Second
}

// GetCommandTimeout returns the command plugin timeout as a Duration.
func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Plugins.Command.Timeout) * time.Second
}
