package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v3"
)

// Default values applied when neither the file nor the environment sets a field.
const (
	DefaultDevicePort   = 82
	DefaultPort         = 9003
	DefaultPrefix       = "openweathermap"
	DefaultPollInterval = 60 * time.Second
	DefaultLogLevel     = slog.LevelWarn
	DefaultLogFormat    = "json"

	// DevicePath is the read endpoint served by the watermeter gateway.
	DevicePath = "/watermeter/api/read"
)

// Environment variable names.
const (
	EnvLogLevel     = "LOG_LEVEL"
	EnvLogFormat    = "LOG_FORMAT"
	EnvPrefix       = "PROMETHEUS_PREFIX"
	EnvPort         = "PROMETHEUS_PORT"
	EnvAddress      = "IP"
	EnvDevicePort   = "DEVICE_PORT"
	EnvPollInterval = "POLLING_INTERVAL_SECONDS"
	EnvConfigFile   = "CONFIG_FILE"
)

// ErrMissingAddress is returned by Load when no device address is configured.
var ErrMissingAddress = errors.New("device address (IP) is required")

// ErrInvalidPrefix is returned by Load when the metric prefix would not
// produce valid Prometheus metric names.
var ErrInvalidPrefix = errors.New("invalid metric prefix")

// Config is the exporter configuration. It is built once by Load and not
// modified afterwards.
type Config struct {
	// DeviceAddress is the host or IP of the watermeter gateway.
	DeviceAddress string

	// DevicePort is the gateway's HTTP port.
	DevicePort int

	// Port is the port the metrics endpoint listens on.
	Port int

	// Prefix is prepended to every metric name, joined with "_".
	// An empty prefix leaves names unchanged.
	Prefix string

	// PollInterval is the sleep between two device polls.
	PollInterval time.Duration

	LogLevel  slog.Level
	LogFormat string

	// Warnings lists values that could not be parsed and were replaced by
	// their default. Load does not log them; the caller does once the
	// logger exists.
	Warnings []string
}

// DeviceURL returns the full URL of the gateway read endpoint.
func (c *Config) DeviceURL() string {
	return "http://" + net.JoinHostPort(c.DeviceAddress, strconv.Itoa(c.DevicePort)) + DevicePath
}

// ListenAddr returns the address the metrics endpoint binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Port))
}

// fileConfig mirrors the optional YAML file. Pointer fields distinguish
// "absent" from an explicit zero value.
type fileConfig struct {
	IP                     *string `yaml:"ip"`
	DevicePort             *int    `yaml:"device_port"`
	PrometheusPort         *int    `yaml:"prometheus_port"`
	PrometheusPrefix       *string `yaml:"prometheus_prefix"`
	PollingIntervalSeconds *int    `yaml:"polling_interval_seconds"`
	LogLevel               *string `yaml:"log_level"`
	LogFormat              *string `yaml:"log_format"`
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, in that order.
//
// When the only problem is a missing device address, Load returns the
// populated Config together with an error wrapping ErrMissingAddress.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	applyEnv(cfg)

	if cfg.Prefix != "" && !model.IsValidMetricName(model.LabelValue(cfg.Prefix)) {
		return nil, fmt.Errorf("config: %w %q", ErrInvalidPrefix, cfg.Prefix)
	}
	if cfg.DeviceAddress == "" {
		return cfg, fmt.Errorf("config: %w", ErrMissingAddress)
	}
	return cfg, nil
}

func isMissingAddress(err error) bool { return errors.Is(err, ErrMissingAddress) }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		DevicePort:   DefaultDevicePort,
		Port:         DefaultPort,
		Prefix:       DefaultPrefix,
		PollInterval: DefaultPollInterval,
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
	}
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}

	if fc.IP != nil {
		cfg.DeviceAddress = *fc.IP
	}
	if fc.DevicePort != nil {
		cfg.DevicePort = *fc.DevicePort
	}
	if fc.PrometheusPort != nil {
		cfg.Port = *fc.PrometheusPort
	}
	if fc.PrometheusPrefix != nil {
		cfg.Prefix = *fc.PrometheusPrefix
	}
	if fc.PollingIntervalSeconds != nil {
		cfg.setInterval("polling_interval_seconds", *fc.PollingIntervalSeconds)
	}
	if fc.LogLevel != nil {
		cfg.setLevel("log_level", *fc.LogLevel)
	}
	if fc.LogFormat != nil {
		cfg.setFormat("log_format", *fc.LogFormat)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := lookupEnv(EnvAddress); ok {
		cfg.DeviceAddress = v
	}
	if v, ok := lookupEnv(EnvPrefix); ok {
		cfg.Prefix = v
	}
	if v, ok := lookupEnv(EnvDevicePort); ok {
		cfg.DevicePort = cfg.parseInt(EnvDevicePort, v, DefaultDevicePort)
	}
	if v, ok := lookupEnv(EnvPort); ok {
		cfg.Port = cfg.parseInt(EnvPort, v, DefaultPort)
	}
	if v, ok := lookupEnv(EnvPollInterval); ok {
		secs := cfg.parseInt(EnvPollInterval, v, int(DefaultPollInterval/time.Second))
		cfg.setInterval(EnvPollInterval, secs)
	}
	if v, ok := lookupEnv(EnvLogLevel); ok {
		cfg.setLevel(EnvLogLevel, v)
	}
	if v, ok := lookupEnv(EnvLogFormat); ok {
		cfg.setFormat(EnvLogFormat, v)
	}
}

// lookupEnv treats an empty variable the same as an unset one.
func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (c *Config) parseInt(key, raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.warn("%s: %q is not an integer, using %d", key, raw, def)
		return def
	}
	return n
}

func (c *Config) setInterval(key string, secs int) {
	if secs <= 0 {
		c.warn("%s: %d must be positive, using %s", key, secs, DefaultPollInterval)
		c.PollInterval = DefaultPollInterval
		return
	}
	c.PollInterval = time.Duration(secs) * time.Second
}

func (c *Config) setLevel(key, raw string) {
	lvl, err := ParseLevel(raw)
	if err != nil {
		c.warn("%s: %v, using %s", key, err, DefaultLogLevel)
		c.LogLevel = DefaultLogLevel
		return
	}
	c.LogLevel = lvl
}

func (c *Config) setFormat(key, raw string) {
	switch f := strings.ToLower(raw); f {
	case "json", "text":
		c.LogFormat = f
	default:
		c.warn("%s: unknown format %q, using %s", key, raw, DefaultLogFormat)
		c.LogFormat = DefaultLogFormat
	}
}

func (c *Config) warn(format string, args ...any) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

// ParseLevel maps a log level name to a slog.Level. WARNING, CRITICAL and
// FATAL are accepted as aliases.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL", "FATAL":
		return slog.LevelError + 4, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
