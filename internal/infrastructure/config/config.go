package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for mqtt2graphite.
// All configuration can come from YAML and be overridden by environment variables.
type Config struct {
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Carbon   CarbonConfig   `yaml:"carbon"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Journal  JournalConfig  `yaml:"journal"`
	Status   StatusConfig   `yaml:"status"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker         MQTTBrokerConfig   `yaml:"broker"`
	Auth           MQTTAuthConfig     `yaml:"auth"`
	KeepAlive      int                `yaml:"keep_alive"`
	ConnectTimeout int                `yaml:"connect_timeout"`
	ReconnectDelay int                `yaml:"reconnect_delay"`
	Presence       MQTTPresenceConfig `yaml:"presence"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTPresenceConfig contains the presence and last-will topics.
// Topics are templates where %s is replaced with the client id.
type MQTTPresenceConfig struct {
	Topic       string `yaml:"topic"`
	WillTopic   string `yaml:"will_topic"`
	WillPayload string `yaml:"will_payload"`
}

// CarbonConfig contains the collector endpoint.
type CarbonConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	Timeout int    `yaml:"timeout"`
}

// BridgeConfig contains the device allow-list and metric prefix.
type BridgeConfig struct {
	Prefix  string   `yaml:"prefix"`
	Devices []string `yaml:"devices"`
}

// InfluxDBConfig contains the optional InfluxDB mirror settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
	Timeout int    `yaml:"timeout"`
}

// JournalConfig contains the optional session journal settings.
type JournalConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	BusyTimeout   int    `yaml:"busy_timeout"`
	RetentionDays int    `yaml:"retention_days"`
}

// StatusConfig contains the optional HTTP status server settings.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string       `yaml:"level"`
	Format string       `yaml:"format"`
	Output string       `yaml:"output"`
	Syslog SyslogConfig `yaml:"syslog"`
}

// SyslogConfig contains the optional remote syslog target.
// Remote logging is disabled when Host is empty.
type SyslogConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load builds the configuration.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values, when path is not empty
//  3. .env file in the working directory, when present
//  4. Environment variables
//
// Variables already set in the environment take precedence over .env.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "127.0.0.1",
				Port: 1883,
			},
			KeepAlive:      60,
			ConnectTimeout: 10,
			ReconnectDelay: 5,
			Presence: MQTTPresenceConfig{
				Topic:       "/clients/%s",
				WillTopic:   "clients/%s",
				WillPayload: "Adios!",
			},
		},
		Carbon: CarbonConfig{
			Host:    "127.0.0.1",
			Port:    2003,
			Timeout: 5,
		},
		Bridge: BridgeConfig{
			Prefix:  "tasmota",
			Devices: []string{"pompa"},
		},
		InfluxDB: InfluxDBConfig{
			Timeout: 5,
		},
		Journal: JournalConfig{
			Path:          "./data/mqtt2graphite.db",
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		Status: StatusConfig{
			Host: "127.0.0.1",
			Port: 9108,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			Syslog: SyslogConfig{
				Port: 1514,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		v := os.Getenv(name)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s must be an integer, got %q", name, v))
			return
		}
		*dst = n
	}

	// Broker
	setString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// Collector
	setString("CARBON_SERVER", &cfg.Carbon.Host)
	setInt("CARBON_PORT", &cfg.Carbon.Port)

	// Remote logging
	setString("SYSLOG_HOST", &cfg.Logging.Syslog.Host)
	setInt("SYSLOG_PORT", &cfg.Logging.Syslog.Port)
	if isTruthy(os.Getenv("DEBUG")) {
		cfg.Logging.Level = "debug"
	}

	// Bridge
	setString("MQTT2GRAPHITE_PREFIX", &cfg.Bridge.Prefix)
	if v := os.Getenv("MQTT2GRAPHITE_DEVICES"); v != "" {
		cfg.Bridge.Devices = splitList(v)
	}

	// Optional sinks
	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)
	setString("MQTT2GRAPHITE_JOURNAL_PATH", &cfg.Journal.Path)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// isTruthy treats any non-empty value as true except explicit negatives.
func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no", "off":
		return false
	default:
		return true
	}
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if !validPort(c.MQTT.Broker.Port) {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.KeepAlive <= 0 {
		errs = append(errs, "mqtt.keep_alive must be positive")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}
	if c.MQTT.ReconnectDelay <= 0 {
		errs = append(errs, "mqtt.reconnect_delay must be positive")
	}
	if c.MQTT.Presence.Topic == "" {
		errs = append(errs, "mqtt.presence.topic is required")
	}
	if c.MQTT.Presence.WillTopic == "" {
		errs = append(errs, "mqtt.presence.will_topic is required")
	}

	// Carbon validation
	if c.Carbon.Host == "" {
		errs = append(errs, "carbon.host is required")
	}
	if !validPort(c.Carbon.Port) {
		errs = append(errs, "carbon.port must be between 1 and 65535")
	}
	if c.Carbon.Timeout <= 0 {
		errs = append(errs, "carbon.timeout must be positive")
	}

	// Bridge validation
	if !validPathSegment(c.Bridge.Prefix) {
		errs = append(errs, "bridge.prefix must be non-empty without dots, slashes or whitespace")
	}
	if len(c.Bridge.Devices) == 0 {
		errs = append(errs, "bridge.devices must list at least one device")
	}
	for _, d := range c.Bridge.Devices {
		if !validPathSegment(d) || strings.ContainsAny(d, "+#") {
			errs = append(errs, fmt.Sprintf("bridge.devices: invalid device %q", d))
		}
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Journal validation
	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	// Status server validation (port 0 picks a free port)
	if c.Status.Enabled && (c.Status.Port < 0 || c.Status.Port > 65535) {
		errs = append(errs, "status.port must be between 0 and 65535")
	}

	// Logging validation
	if c.Logging.Syslog.Host != "" && !validPort(c.Logging.Syslog.Port) {
		errs = append(errs, "logging.syslog.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

// validPathSegment reports whether s can be used as one segment of both a
// dotted metric path and a slash-delimited topic.
func validPathSegment(s string) bool {
	return s != "" && !strings.ContainsAny(s, "./ \t\r\n")
}

// Address returns the broker host:port.
func (m MQTTBrokerConfig) Address() string {
	return net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
}

// Address returns the collector host:port.
func (c CarbonConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Address returns the status server listen address.
func (s StatusConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Address returns the syslog host:port.
func (s SyslogConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// GetKeepAlive returns the MQTT keepalive as a Duration.
func (m MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (m MQTTConfig) GetConnectTimeout() time.Duration {
	return time.Duration(m.ConnectTimeout) * time.Second
}

// GetReconnectDelay returns the fixed reconnect delay as a Duration.
func (c *Config) GetReconnectDelay() time.Duration {
	return time.Duration(c.MQTT.ReconnectDelay) * time.Second
}

// GetTimeout returns the collector dial/write timeout as a Duration.
func (c CarbonConfig) GetTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetTimeout returns the InfluxDB write timeout as a Duration.
func (i InfluxDBConfig) GetTimeout() time.Duration {
	return time.Duration(i.Timeout) * time.Second
}

// GetJournalRetention returns how long journal events are kept.
// Zero means events are never pruned.
func (c *Config) GetJournalRetention() time.Duration {
	return time.Duration(c.Journal.RetentionDays) * 24 * time.Hour
}
