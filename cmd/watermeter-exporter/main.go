package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/watermetergateway/exporter/internal/api"
	"github.com/watermetergateway/exporter/internal/config"
	"github.com/watermetergateway/exporter/internal/exporter"
	"github.com/watermetergateway/exporter/internal/gateway"
	"github.com/watermetergateway/exporter/internal/instrument"
	"github.com/watermetergateway/exporter/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run wires the exporter and blocks until a signal arrives. It returns the
// process exit status.
func run(args []string) int {
	fs := flag.NewFlagSet("watermeter-exporter", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv(config.EnvConfigFile), "optional YAML config file; environment variables override it")
	once := fs.Bool("once", false, "poll the gateway once, print the metrics and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// Logging comes up with defaults so config errors are visible, then
	// switches to the configured level and format.
	level := new(slog.LevelVar)
	level.Set(config.DefaultLogLevel)
	slog.SetDefault(newLogger(config.DefaultLogFormat, level))

	cfg, err := config.Load(*configPath)
	if cfg != nil {
		level.Set(cfg.LogLevel)
		slog.SetDefault(newLogger(cfg.LogFormat, level))
		for _, w := range cfg.Warnings {
			slog.Warn("config: using default", "detail", w)
		}
	}
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return 1
	}

	slog.Info("config loaded",
		"device_url", cfg.DeviceURL(),
		"listen", cfg.ListenAddr(),
		"prefix", cfg.Prefix,
		"poll_interval", cfg.PollInterval,
	)

	reg := instrument.New(cfg.Prefix)
	reg.Registerer().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	st := store.New(store.DefaultWindow)
	exp := exporter.New(gateway.New(cfg.DeviceURL()), reg, st, exporter.WithInterval(cfg.PollInterval))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		if err := exp.Once(ctx, os.Stdout); err != nil {
			return 1
		}
		return 0
	}

	// Bind before polling starts so a taken port is a startup failure.
	lis, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		slog.Error("failed to listen", "addr", cfg.ListenAddr(), "err", err)
		return 1
	}

	if *configPath != "" {
		go func() {
			if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
				level.Set(updated.LogLevel)
				slog.Info("config hot-reloaded", "log_level", updated.LogLevel)
			}); err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	httpSrv := &http.Server{
		Handler:           api.New(reg, st),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", lis.Addr().String())
		if err := httpSrv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			serveErr <- err
			cancel()
		}
	}()

	if err := exp.Run(ctx); err != nil {
		slog.Error("poll loop stopped", "err", err)
	}

	slog.Info("watermeter-exporter shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck

	select {
	case <-serveErr:
		return 1
	default:
		return 0
	}
}

func newLogger(format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
