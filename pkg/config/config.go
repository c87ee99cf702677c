package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Gateway  GatewayConfig `yaml:"gateway"`
	Scan     ScanConfig    `yaml:"scan"`
	Connect  ConnectConfig `yaml:"connect"`
	Drain    DrainConfig   `yaml:"drain"`
	Notify   NotifyConfig  `yaml:"notify"`
	LogLevel string        `yaml:"log_level" default:"info"`
	LockFile string        `yaml:"lock_file"`
}

// GatewayConfig locates the gateway.
type GatewayConfig struct {
	Host           string        `yaml:"host" default:"http://192.168.0.38"`
	RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
}

// ScanConfig holds the gateway-side scan filters.
type ScanConfig struct {
	FilterRSSI int    `yaml:"filter_rssi" default:"-75"`
	FilterName string `yaml:"filter_name" default:"Cassia*"`
	Active     bool   `yaml:"active" default:"true"`
}

// ConnectConfig describes how devices are connected and subscribed.
type ConnectConfig struct {
	Timeout      time.Duration `yaml:"timeout" default:"5s"`
	NotifyHandle int           `yaml:"notify_handle" default:"17"`
	NotifyValue  string        `yaml:"notify_value" default:"0200"`
}

// DrainConfig controls the connect loop cadence.
type DrainConfig struct {
	Interval time.Duration `yaml:"interval" default:"5s"`
}

// NotifyConfig sizes the notification buffer.
type NotifyConfig struct {
	BufferSize uint32 `yaml:"buffer_size" default:"256"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	if cfg.LockFile == "" {
		cfg.LockFile = filepath.Join(os.TempDir(), "blegw.lock")
	}
	return cfg
}

// Load reads the YAML configuration file at path on top of the defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can drive the gateway.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gateway.Host) == "" {
		return fmt.Errorf("gateway.host is required")
	}
	if c.Gateway.RequestTimeout < 0 {
		return fmt.Errorf("gateway.request_timeout must not be negative")
	}
	if c.Connect.Timeout <= 0 {
		return fmt.Errorf("connect.timeout must be positive")
	}
	if c.Connect.NotifyHandle <= 0 {
		return fmt.Errorf("connect.notify_handle must be positive, got %d", c.Connect.NotifyHandle)
	}
	if _, err := hex.DecodeString(c.Connect.NotifyValue); err != nil || c.Connect.NotifyValue == "" {
		return fmt.Errorf("connect.notify_value must be a non-empty hex string, got %q", c.Connect.NotifyValue)
	}
	if c.Drain.Interval <= 0 {
		return fmt.Errorf("drain.interval must be positive")
	}
	if c.Notify.BufferSize == 0 {
		return fmt.Errorf("notify.buffer_size must be positive")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a configured level name to a logrus level.
func ParseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
	}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
