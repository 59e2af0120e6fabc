package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Peripheral != "" {
		t.Errorf("Peripheral = %q, want empty", cfg.Peripheral)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("Timeout = %s, want 10s", cfg.Timeout)
	}
	if cfg.OSC.Receiver != "127.0.0.1:9000" {
		t.Errorf("OSC.Receiver = %q, want %q", cfg.OSC.Receiver, "127.0.0.1:9000")
	}
	if cfg.OSC.Sender != "127.0.0.1:9001" {
		t.Errorf("OSC.Sender = %q, want %q", cfg.OSC.Sender, "127.0.0.1:9001")
	}
	if cfg.Forward.Mode != ModeContinuous {
		t.Errorf("Forward.Mode = %q, want %q", cfg.Forward.Mode, ModeContinuous)
	}
	if cfg.Forward.MinInterval != 2*time.Second {
		t.Errorf("Forward.MinInterval = %s, want 2s", cfg.Forward.MinInterval)
	}
	if !cfg.CSV.Enabled {
		t.Error("CSV.Enabled should default to true")
	}
	if cfg.Retry.MaxAttempts != 0 {
		t.Errorf("Retry.MaxAttempts = %d, want 0", cfg.Retry.MaxAttempts)
	}
	if cfg.MQTT.Topic != "hrbridge/heartrate" {
		t.Errorf("MQTT.Topic = %q, want %q", cfg.MQTT.Topic, "hrbridge/heartrate")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
peripheral: "aa:bb:cc:dd:ee:ff"
adapter: hci1
timeout: 30s
osc:
  receiver: 192.168.1.20:9000
forward:
  mode: chatbox
  min_interval: 5s
  chatbox_format: "HR %d"
csv:
  enabled: false
retry:
  delay: 500ms
  max_attempts: 3
metrics:
  addr: ":9464"
mqtt:
  broker: tcp://localhost:1883
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Peripheral != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("Peripheral = %q", cfg.Peripheral)
	}
	if cfg.Adapter != "hci1" {
		t.Errorf("Adapter = %q, want %q", cfg.Adapter, "hci1")
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %s, want 30s", cfg.Timeout)
	}
	if cfg.OSC.Receiver != "192.168.1.20:9000" {
		t.Errorf("OSC.Receiver = %q", cfg.OSC.Receiver)
	}
	// Unset fields keep their defaults.
	if cfg.OSC.Sender != "127.0.0.1:9001" {
		t.Errorf("OSC.Sender = %q, want default", cfg.OSC.Sender)
	}
	if cfg.Forward.Mode != ModeChatbox {
		t.Errorf("Forward.Mode = %q, want %q", cfg.Forward.Mode, ModeChatbox)
	}
	if cfg.Forward.MinInterval != 5*time.Second {
		t.Errorf("Forward.MinInterval = %s, want 5s", cfg.Forward.MinInterval)
	}
	if cfg.Forward.ChatboxFormat != "HR %d" {
		t.Errorf("Forward.ChatboxFormat = %q", cfg.Forward.ChatboxFormat)
	}
	if cfg.CSV.Enabled {
		t.Error("CSV.Enabled = true, want false")
	}
	if cfg.Retry.Delay != 500*time.Millisecond || cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if cfg.Metrics.Addr != ":9464" {
		t.Errorf("Metrics.Addr = %q", cfg.Metrics.Addr)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" || cfg.MQTT.Topic != "hrbridge/heartrate" {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("csv:\n  dir: ~/hr-logs\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := filepath.Join(tmpHome, "hr-logs")
	if cfg.CSV.Dir != want {
		t.Errorf("CSV.Dir = %q, want %q", cfg.CSV.Dir, want)
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("timeout: soon\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should fail for an unparseable duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "undelimited peripheral address",
			modify:  func(c *Config) { c.Peripheral = "AABBCCDDEEFF" },
			wantErr: false,
		},
		{
			name:    "invalid peripheral address",
			modify:  func(c *Config) { c.Peripheral = "not-a-mac" },
			wantErr: true,
		},
		{
			name:    "zero timeout disables reconnect",
			modify:  func(c *Config) { c.Timeout = 0 },
			wantErr: false,
		},
		{
			name:    "negative timeout",
			modify:  func(c *Config) { c.Timeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "empty receiver",
			modify:  func(c *Config) { c.OSC.Receiver = "" },
			wantErr: true,
		},
		{
			name:    "sender without port",
			modify:  func(c *Config) { c.OSC.Sender = "127.0.0.1" },
			wantErr: true,
		},
		{
			name:    "invalid forward mode",
			modify:  func(c *Config) { c.Forward.Mode = "invalid" },
			wantErr: true,
		},
		{
			name:    "negative min interval",
			modify:  func(c *Config) { c.Forward.MinInterval = -time.Second },
			wantErr: true,
		},
		{
			name: "chatbox format without verb",
			modify: func(c *Config) {
				c.Forward.Mode = ModeChatbox
				c.Forward.ChatboxFormat = "heart rate"
			},
			wantErr: true,
		},
		{
			name:    "csv enabled without dir",
			modify:  func(c *Config) { c.CSV.Dir = "" },
			wantErr: true,
		},
		{
			name: "csv disabled without dir",
			modify: func(c *Config) {
				c.CSV.Enabled = false
				c.CSV.Dir = ""
			},
			wantErr: false,
		},
		{
			name:    "negative max attempts",
			modify:  func(c *Config) { c.Retry.MaxAttempts = -1 },
			wantErr: true,
		},
		{
			name:    "invalid metrics addr",
			modify:  func(c *Config) { c.Metrics.Addr = "9464" },
			wantErr: true,
		},
		{
			name: "mqtt broker without topic",
			modify: func(c *Config) {
				c.MQTT.Broker = "tcp://localhost:1883"
				c.MQTT.Topic = ""
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.LogLevel = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "hrbridge", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# hrbridge") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("written config Timeout = %s, want 10s", cfg.Timeout)
	}
	if cfg.Forward.Mode != ModeContinuous {
		t.Errorf("written config Forward.Mode = %q, want %q", cfg.Forward.Mode, ModeContinuous)
	}
	if cfg.OSC.Receiver != "127.0.0.1:9000" {
		t.Errorf("written config OSC.Receiver = %q", cfg.OSC.Receiver)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "hrbridge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("peripheral: AA:BB:CC:DD:EE:FF\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
