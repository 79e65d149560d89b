package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Device   DeviceConfig   `yaml:"device"`
	Retry    RetryConfig    `yaml:"retry"`
	Transfer TransferConfig `yaml:"transfer"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	JWT      JWTConfig      `yaml:"jwt"`
	Operator OperatorConfig `yaml:"operator"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name string `yaml:"name"`
	// Version is written into saved configuration files and gates loading
	// files produced by newer releases.
	Version string `yaml:"version"`
}

// APIConfig represents API configuration
type APIConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Addr returns host:port
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DeviceConfig represents the USB HID device configuration
type DeviceConfig struct {
	VendorID         uint16        `yaml:"vendor_id"`
	ProductID        uint16        `yaml:"product_id"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	AllowUnsupported bool          `yaml:"allow_unsupported"`
	Simulate         bool          `yaml:"simulate"`
}

// RetryConfig represents the bounded retry policy for HID calls
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// TransferConfig represents packet scheduling configuration
type TransferConfig struct {
	USBLag       time.Duration `yaml:"usb_lag"`
	MinimumDelay time.Duration `yaml:"minimum_delay"`
	// PollOffset is the point within each second at which the poller runs.
	PollOffset time.Duration `yaml:"poll_offset"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"` // sqlite | postgres
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
}

// MQTTConfig represents MQTT broker configuration
type MQTTConfig struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret          string        `yaml:"secret"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// OperatorConfig holds the single API login
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes a YAML document, applies environment overrides and defaults,
// and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	cfg.applyEnvOverrides()

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if driver := os.Getenv("DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		c.MQTT.Broker = broker
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	if simulate := os.Getenv("AUDIOMOTH_SIMULATE"); simulate != "" {
		if v, err := strconv.ParseBool(simulate); err == nil {
			c.Device.Simulate = v
		} else {
			log.Warn().Str("value", simulate).Msg("Ignoring invalid AUDIOMOTH_SIMULATE")
		}
	}
}

// setDefaults fills unset values
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "audiomoth-configurator"
	}
	if c.Server.Version == "" {
		c.Server.Version = "1.0.1"
	}

	if c.API.Host == "" {
		c.API.Host = "127.0.0.1"
	}
	if c.API.Port == 0 {
		c.API.Port = 8765
	}
	if len(c.API.AllowedOrigins) == 0 {
		c.API.AllowedOrigins = []string{"*"}
	}

	if c.Device.VendorID == 0 {
		c.Device.VendorID = 0x10c4
	}
	if c.Device.ProductID == 0 {
		c.Device.ProductID = 0x0002
	}
	if c.Device.ReadTimeout == 0 {
		c.Device.ReadTimeout = 1 * time.Second
	}

	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 10
	}
	if c.Retry.Interval == 0 {
		c.Retry.Interval = 100 * time.Millisecond
	}

	if c.Transfer.USBLag == 0 {
		c.Transfer.USBLag = 20 * time.Millisecond
	}
	if c.Transfer.MinimumDelay == 0 {
		c.Transfer.MinimumDelay = 100 * time.Millisecond
	}
	if c.Transfer.PollOffset == 0 {
		c.Transfer.PollOffset = 500 * time.Millisecond
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "file:audiomoth.db?_pragma=busy_timeout(5000)"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 4
	}

	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = 60
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "audiomoth"
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "audiomoth-configurator"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "audiomoth"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 15 * time.Minute
	}
	if c.JWT.RefreshTokenTTL == 0 {
		c.JWT.RefreshTokenTTL = 24 * time.Hour
	}

	if c.Operator.Username == "" {
		c.Operator.Username = "operator"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// validate checks values that defaults cannot repair
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("postgres driver requires database.dsn")
	}

	if c.Transfer.PollOffset < 0 || c.Transfer.PollOffset >= time.Second {
		return fmt.Errorf("transfer.poll_offset must be within one second, got %s", c.Transfer.PollOffset)
	}

	if c.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1, got %d", c.Retry.Attempts)
	}

	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}

	if c.Transfer.MinimumDelay >= time.Second {
		return fmt.Errorf("transfer.minimum_delay must be below one second, got %s", c.Transfer.MinimumDelay)
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// PrintConfigSummary prints a configuration summary
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== AudioMoth Configurator ===\n")
	fmt.Printf("Server: %s v%s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("API: %s\n", c.API.Addr())

	if c.Device.Simulate {
		fmt.Printf("Device: simulated\n")
	} else {
		fmt.Printf("Device: USB HID %04x:%04x (timeout %s)\n", c.Device.VendorID, c.Device.ProductID, c.Device.ReadTimeout)
	}
	fmt.Printf("  Allow unsupported firmware: %v\n", c.Device.AllowUnsupported)
	fmt.Printf("Retry: %d attempts, %s base interval\n", c.Retry.Attempts, c.Retry.Interval)
	fmt.Printf("Transfer: usb lag %s, minimum delay %s, poll at +%s each second\n",
		c.Transfer.USBLag, c.Transfer.MinimumDelay, c.Transfer.PollOffset)
	fmt.Printf("Database: %s\n", c.Database.Driver)

	if c.NATS.URL != "" {
		fmt.Printf("NATS: %s (subjects %s.>)\n", c.NATS.URL, c.NATS.SubjectPrefix)
	} else {
		fmt.Printf("NATS: disabled\n")
	}

	if c.MQTT.Broker != "" {
		fmt.Printf("MQTT: %s (topics %s/#, qos %d)\n", c.MQTT.Broker, c.MQTT.TopicPrefix, c.MQTT.QoS)
	} else {
		fmt.Printf("MQTT: disabled\n")
	}

	fmt.Printf("Log: %s (%s)\n", c.Log.Level, c.Log.Format)
	fmt.Printf("==============================\n")
}
