package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"connstate/internal/logging"
	"connstate/internal/netpath"
)

// Config represents configuration data for the connectivity daemon.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	Source                string `yaml:"source"`
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	ProbeTimeoutMs        int    `yaml:"probe_timeout_ms"`
	SysfsRoot             string `yaml:"sysfs_root"`
	EmitChangedSignal     bool   `yaml:"emit_changed_signal"`
	SignalBuffer          int    `yaml:"signal_buffer"`
	LogLevel              string `yaml:"log_level"`
	LogFormat             string `yaml:"log_format"`
	WebsocketWriteTimeout int    `yaml:"websocket_write_timeout_seconds"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8686",
		Source:                string(netpath.SourceAuto),
		PollIntervalSeconds:   5,
		ProbeTimeoutMs:        2000,
		SysfsRoot:             netpath.DefaultSysRoot,
		EmitChangedSignal:     true,
		SignalBuffer:          16,
		LogLevel:              "info",
		LogFormat:             "text",
		WebsocketWriteTimeout: 5,
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	defaults := DefaultConfig()
	if c.ListenAddr == "" {
		c.ListenAddr = defaults.ListenAddr
	}
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = defaults.PollIntervalSeconds
	}
	if c.ProbeTimeoutMs <= 0 {
		c.ProbeTimeoutMs = defaults.ProbeTimeoutMs
	}
	if c.SysfsRoot == "" {
		c.SysfsRoot = defaults.SysfsRoot
	}
	if c.SignalBuffer <= 0 {
		c.SignalBuffer = defaults.SignalBuffer
	}
	if c.WebsocketWriteTimeout <= 0 {
		c.WebsocketWriteTimeout = defaults.WebsocketWriteTimeout
	}

	kind, err := netpath.ParseSourceKind(c.Source)
	if err != nil {
		return fmt.Errorf("invalid source: %w", err)
	}
	c.Source = string(kind)

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.LogFormat {
	case "":
		c.LogFormat = defaults.LogFormat
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q: want text or json", c.LogFormat)
	}
	return nil
}

// SourceKind returns the configured path source.
func (c Config) SourceKind() netpath.SourceKind {
	return netpath.SourceKind(c.Source)
}

// PollInterval returns the polling source interval.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ProbeTimeout returns the bound on the synchronous state probe.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the websocket write deadline.
func (c Config) WriteTimeout() time.Duration {
	return time.Duration(c.WebsocketWriteTimeout) * time.Second
}
