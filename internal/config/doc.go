// Package config loads the exporter configuration.
//
// The environment is the primary source:
//
//	IP                        device address (required)
//	DEVICE_PORT               device HTTP port, default 82
//	PROMETHEUS_PORT           scrape port, default 9003
//	PROMETHEUS_PREFIX         metric name prefix, default "openweathermap"
//	POLLING_INTERVAL_SECONDS  poll interval in seconds, default 60
//	LOG_LEVEL                 DEBUG|INFO|WARN|WARNING|ERROR|CRITICAL, default WARN
//	LOG_FORMAT                json|text, default json
//
// Load(path) applies defaults, then an optional YAML file, then the
// environment. Unset or empty variables keep the lower layer. The only
// hard failure is an empty device address (ErrMissingAddress); malformed
// numbers fall back to their default and are reported in Config.Warnings.
//
// Watch(ctx, path, onChange) uses fsnotify to re-run Load when the YAML
// file changes, handling the rename/create pattern of atomic-save editors.
package config
