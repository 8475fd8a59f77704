// Package config loads and validates configuration for servers and
// clients built on this library.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or from plain numbers interpreted as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. Numeric scalars would also
// decode as strings, so the node tag decides which form this is.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Tag {
	case "!!int", "!!float":
		var seconds float64
		if err := value.Decode(&seconds); err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil

	case "!!str":
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		*d = Duration(parsed)
		return nil

	default:
		return fmt.Errorf("duration must be a string or number, got %q", value.Value)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds every recognized option. Zero values mean "use the
// library default".
type Config struct {
	// Reconnection policy.
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	ReconnectDeadline    Duration `yaml:"reconnect_deadline"`
	BaseDelay            Duration `yaml:"base_delay"`
	MaxDelay             Duration `yaml:"max_delay"`

	// Handshake.
	AuthExpiryWindow  Duration `yaml:"auth_expiry_window"`
	AuthSkewTolerance Duration `yaml:"auth_skew_tolerance"`

	// Requests and queues.
	RequestDefaultTimeout Duration `yaml:"request_default_timeout"`
	OutboundQueueCapacity int      `yaml:"outbound_queue_capacity"`
	MaxMessageSize        uint32   `yaml:"max_message_size"`

	// Server listener.
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`

	// TLS. GenerateCert creates a self-signed pair when the files are
	// absent or no longer cover Hostname.
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	GenerateCert bool   `yaml:"generate_cert"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BaseDelay:             Duration(connection.InitialBackoff),
		MaxDelay:              Duration(connection.MaxBackoff),
		RequestDefaultTimeout: Duration(connection.DefaultRequestTimeout),
		OutboundQueueCapacity: connection.DefaultQueueCapacity,
		Hostname:              "localhost",
		Port:                  8380,
	}
}

// Load reads and validates a YAML config file. Values absent from the
// file keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config bytes.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field consistency.
func (c Config) Validate() error {
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must not be negative, got %d", c.MaxReconnectAttempts)
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	if c.MaxDelay > 0 && c.BaseDelay > c.MaxDelay {
		return fmt.Errorf("base_delay %s exceeds max_delay %s", c.BaseDelay.Std(), c.MaxDelay.Std())
	}
	if c.OutboundQueueCapacity < 0 {
		return fmt.Errorf("outbound_queue_capacity must not be negative, got %d", c.OutboundQueueCapacity)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("cert_file and key_file must be set together")
	}
	return nil
}

// Backoff converts the reconnection options for pkg/connection.
func (c Config) Backoff() connection.BackoffConfig {
	return connection.BackoffConfig{
		Initial:     c.BaseDelay.Std(),
		Max:         c.MaxDelay.Std(),
		MaxAttempts: c.MaxReconnectAttempts,
		Deadline:    c.ReconnectDeadline.Std(),
	}
}

// ListenAddr returns the host:port the server binds.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.Port)
}

// TLSEnabled reports whether the server should terminate TLS.
func (c Config) TLSEnabled() bool {
	return c.CertFile != "" || c.GenerateCert
}
