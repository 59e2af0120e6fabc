package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/hrbridge/internal/ble"
)

// Forwarding modes.
const (
	ModeContinuous = "continuous"
	ModeChatbox    = "chatbox"
)

// Config holds all application configuration.
type Config struct {
	Peripheral string        `yaml:"peripheral"` // address; empty selects interactively
	Adapter    string        `yaml:"adapter"`    // adapter id, e.g. "hci1"; empty selects automatically
	Timeout    time.Duration `yaml:"timeout"`    // 0 disables reconnect on silence
	OSC        OSCConfig     `yaml:"osc"`
	Forward    ForwardConfig `yaml:"forward"`
	CSV        CSVConfig     `yaml:"csv"`
	Retry      RetryConfig   `yaml:"retry"`
	Metrics    MetricsConfig `yaml:"metrics"`
	MQTT       MQTTConfig    `yaml:"mqtt"`
	LogLevel   string        `yaml:"log_level"`
}

// OSCConfig holds the UDP endpoints.
type OSCConfig struct {
	Receiver string `yaml:"receiver"`
	Sender   string `yaml:"sender"`
}

// ForwardConfig selects how samples become OSC messages.
type ForwardConfig struct {
	Mode          string        `yaml:"mode"` // "continuous" or "chatbox"
	MinInterval   time.Duration `yaml:"min_interval"`
	ChatboxFormat string        `yaml:"chatbox_format"`
}

// CSVConfig holds the sample log settings.
type CSVConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// RetryConfig controls connection retries. MaxAttempts 0 retries forever.
type RetryConfig struct {
	Delay       time.Duration `yaml:"delay"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// MetricsConfig holds the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// MQTTConfig holds the optional sample publisher. An empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "hrbridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Timeout: 10 * time.Second,
		OSC: OSCConfig{
			Receiver: "127.0.0.1:9000",
			Sender:   "127.0.0.1:9001",
		},
		Forward: ForwardConfig{
			Mode:          ModeContinuous,
			MinInterval:   2 * time.Second,
			ChatboxFormat: "❤ %d bpm",
		},
		CSV: CSVConfig{
			Enabled: true,
			Dir:     ".",
		},
		MQTT: MQTTConfig{
			Topic: "hrbridge/heartrate",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in csv.dir is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.CSV.Dir = expandTilde(cfg.CSV.Dir)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Peripheral != "" {
		if _, err := ble.NormalizeAddress(c.Peripheral); err != nil {
			return fmt.Errorf("peripheral: %w", err)
		}
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %s", c.Timeout)
	}

	if err := validateHostPort("osc.receiver", c.OSC.Receiver); err != nil {
		return err
	}
	if err := validateHostPort("osc.sender", c.OSC.Sender); err != nil {
		return err
	}

	switch c.Forward.Mode {
	case ModeContinuous, ModeChatbox:
	default:
		return fmt.Errorf("forward.mode must be %q or %q, got %q", ModeContinuous, ModeChatbox, c.Forward.Mode)
	}
	if c.Forward.MinInterval < 0 {
		return fmt.Errorf("forward.min_interval must be >= 0, got %s", c.Forward.MinInterval)
	}
	if c.Forward.Mode == ModeChatbox && strings.Count(c.Forward.ChatboxFormat, "%d") != 1 {
		return fmt.Errorf("forward.chatbox_format must contain exactly one %%d, got %q", c.Forward.ChatboxFormat)
	}

	if c.CSV.Enabled && c.CSV.Dir == "" {
		return fmt.Errorf("csv.dir must not be empty when csv is enabled")
	}

	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must be >= 0, got %s", c.Retry.Delay)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must be >= 0, got %d", c.Retry.MaxAttempts)
	}

	if c.Metrics.Addr != "" {
		if err := validateHostPort("metrics.addr", c.Metrics.Addr); err != nil {
			return err
		}
	}

	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty when mqtt.broker is set")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

func validateHostPort(field, addr string) error {
	if addr == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	return nil
}

// WriteDefault writes the default config to DefaultConfigPath. It returns
// the path written, or "" if a config file already exists there.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	header := "# hrbridge configuration\n# Command-line flags override these values.\n\n"
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a slog.Level. Unknown values
// map to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
