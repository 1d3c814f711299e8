package config

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/presencewatch/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding file values,
// e.g. PRESENCEWATCH_DEVICE_ADDRESS for device.address.
const EnvPrefix = "PRESENCEWATCH"

// Defaults
const (
	DefaultInterval         = 5 * time.Second
	DefaultTimeout          = 3 * time.Second
	DefaultFailureThreshold = 5
	DefaultBasePath         = "/api"
)

var (
	ErrMissingAddress = errors.New("device.address is required")
	ErrInvalidAddress = errors.New("device.address must be an IPv4 address")
	ErrMissingAppPath = errors.New("app.path is required")
	ErrInvalidWatch   = errors.New("invalid watch settings")
	ErrInvalidListen  = errors.New("invalid listen address")
)

// Config is the whole daemon configuration. It is loaded once and never
// mutated afterwards.
type Config struct {
	Device  DeviceConfig  `mapstructure:"device"`
	App     AppConfig     `mapstructure:"app"`
	Watch   WatchConfig   `mapstructure:"watch"`
	Log     logger.Config `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
	History HistoryConfig `mapstructure:"history"`
}

// DeviceConfig identifies the device whose presence is tracked.
type DeviceConfig struct {
	Address   string `mapstructure:"address"`
	Interface string `mapstructure:"interface"` // optional; picked from the address when empty
}

// AppConfig describes the managed application.
type AppConfig struct {
	Path        string   `mapstructure:"path"`
	ProcessName string   `mapstructure:"process_name"` // defaults to base name of Path
	Args        []string `mapstructure:"args"`
	WorkDir     string   `mapstructure:"workdir"`
	Env         []string `mapstructure:"env"`
}

// WatchConfig holds the polling loop parameters.
type WatchConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	// CountProbeErrors treats "could not probe" like "not present".
	CountProbeErrors bool `mapstructure:"count_probe_errors"`
	ProbeOnStart     bool `mapstructure:"probe_on_start"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"` // standalone metrics listener, optional
}

type ServerConfig struct {
	Listen   string `mapstructure:"listen"` // empty disables the status server
	BasePath string `mapstructure:"base_path"`
}

type HistoryConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Sinks   []string `mapstructure:"sinks"` // DSNs, see history/factory
}

// Addr returns the parsed device address. Call after Validate.
func (c Config) Addr() netip.Addr {
	a, _ := netip.ParseAddr(strings.TrimSpace(c.Device.Address))
	return a.Unmap()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.address", "")
	v.SetDefault("device.interface", "")
	v.SetDefault("app.path", "")
	v.SetDefault("app.process_name", "")
	v.SetDefault("app.args", []string{})
	v.SetDefault("app.workdir", "")
	v.SetDefault("app.env", []string{})
	v.SetDefault("watch.interval", DefaultInterval)
	v.SetDefault("watch.timeout", DefaultTimeout)
	v.SetDefault("watch.failure_threshold", DefaultFailureThreshold)
	v.SetDefault("watch.count_probe_errors", true)
	v.SetDefault("watch.probe_on_start", true)

	d := logger.DefaultConfig()
	v.SetDefault("log.slog.level", d.Slog.Level)
	v.SetDefault("log.slog.format", d.Slog.Format)
	v.SetDefault("log.slog.color", d.Slog.Color)
	v.SetDefault("log.slog.timestamps", d.Slog.TimeStamps)
	v.SetDefault("log.slog.source", d.Slog.Source)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.file.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("log.file.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")
	v.SetDefault("server.listen", "")
	v.SetDefault("server.base_path", DefaultBasePath)
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.sinks", []string{})
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file at path (TOML unless the extension says
// otherwise), applies environment overrides and validates the result.
// An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() {
	c.Device.Address = strings.TrimSpace(c.Device.Address)
	c.App.Path = strings.TrimSpace(c.App.Path)
	if c.App.ProcessName == "" && c.App.Path != "" {
		c.App.ProcessName = baseName(c.App.Path)
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
}

// baseName handles both separators so Windows paths in a config read on
// another OS still yield the executable name.
func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Device.Address == "" {
		return ErrMissingAddress
	}
	a, err := netip.ParseAddr(c.Device.Address)
	if err != nil || !a.Unmap().Is4() {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, c.Device.Address)
	}
	if c.App.Path == "" {
		return ErrMissingAppPath
	}
	if c.Watch.Interval <= 0 {
		return fmt.Errorf("%w: interval must be > 0, got %s", ErrInvalidWatch, c.Watch.Interval)
	}
	if c.Watch.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be > 0, got %s", ErrInvalidWatch, c.Watch.Timeout)
	}
	if c.Watch.FailureThreshold < 1 {
		return fmt.Errorf("%w: failure_threshold must be >= 1, got %d", ErrInvalidWatch, c.Watch.FailureThreshold)
	}
	for _, l := range []string{c.Server.Listen, c.Metrics.Listen} {
		if l == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(l); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidListen, l, err)
		}
	}
	return nil
}
