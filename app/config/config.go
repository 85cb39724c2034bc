// Package config loads the web gateway's TOML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML can parse "10s"-style strings.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the top-level configuration for the meshcore-web gateway.
type Config struct {
	// ListenAddr is where the HTTP/WebSocket server binds.
	ListenAddr string `toml:"listen_addr"`
	// LogLevel is a zerolog level name (trace, debug, info, warn, error).
	LogLevel string `toml:"log_level"`

	Device DeviceConfig `toml:"device"`
}

// DeviceConfig selects and tunes the radio transport.
type DeviceConfig struct {
	// Transport is "tcp" or "serial".
	Transport string `toml:"transport"`

	// TCP settings.
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// Serial settings.
	SerialPort string `toml:"serial_port"`
	BaudRate   int    `toml:"baud_rate"`

	// CommandTimeout bounds each command/response exchange.
	CommandTimeout Duration `toml:"command_timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Device: DeviceConfig{
			Transport: "tcp",
			Host:      "127.0.0.1",
			Port:      5000,
		},
	}
}

// Load reads a TOML config file, filling unset fields with defaults. An
// empty path yields the defaults without touching the filesystem.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for contradictions before anything connects.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("config missing listen_addr")
	}
	switch cfg.Device.Transport {
	case "tcp":
		if cfg.Device.Port < 0 || cfg.Device.Port > 65535 {
			return fmt.Errorf("config device.port out of range: %d", cfg.Device.Port)
		}
	case "serial":
		if strings.TrimSpace(cfg.Device.SerialPort) == "" {
			return fmt.Errorf("config device.serial_port required for serial transport")
		}
	default:
		return fmt.Errorf("config device.transport must be tcp or serial, got %q", cfg.Device.Transport)
	}
	return nil
}
