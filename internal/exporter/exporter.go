package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/watermetergateway/exporter/internal/gateway"
	"github.com/watermetergateway/exporter/internal/instrument"
	"github.com/watermetergateway/exporter/internal/store"
	"github.com/watermetergateway/exporter/pkg/types"
)

// DefaultInterval is used when no interval option is given.
const DefaultInterval = 60 * time.Second

// Fetcher returns one decoded gateway reading.
type Fetcher interface {
	Fetch(ctx context.Context) (types.Reading, error)
}

// Exporter polls a Fetcher and publishes the result on a Registry.
type Exporter struct {
	fetcher  Fetcher
	reg      *instrument.Registry
	store    *store.Store
	self     *selfMetrics
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithInterval sets the sleep between two polls.
func WithInterval(d time.Duration) Option {
	return func(e *Exporter) { e.interval = d }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// New declares Fields and the self-metrics on reg. It panics if any of
// those names is already declared.
func New(f Fetcher, reg *instrument.Registry, st *store.Store, opts ...Option) *Exporter {
	e := &Exporter{
		fetcher:  f,
		reg:      reg,
		store:    st,
		interval: DefaultInterval,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	for _, fld := range Fields {
		reg.MustDeclare(fld.Name, fld.Kind, fld.Help)
	}
	e.self = newSelfMetrics(reg)
	return e
}

// Run polls until ctx is cancelled. The next poll starts one interval after
// the previous one finished; polls never overlap.
func (e *Exporter) Run(ctx context.Context) error {
	e.logger.Info("exporter: poll loop started", "interval", e.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("exporter: poll loop stopped")
			return nil
		case <-timer.C:
		}

		_ = e.Tick(ctx)
		timer.Reset(e.interval)
	}
}

// Tick performs a single poll and applies the result. The returned error is
// informational; it has already been logged. A fetch cut short by ctx being
// cancelled is not counted as a failed poll.
func (e *Exporter) Tick(ctx context.Context) error {
	start := e.now()
	reading, err := e.fetcher.Fetch(ctx)
	e.self.pollDuration.Set(e.now().Sub(start).Seconds())

	if err != nil && ctx.Err() != nil {
		// Shutting down; an interrupted fetch says nothing about the gateway.
		e.logger.Debug("exporter: poll interrupted", "err", err)
		return ctx.Err()
	}
	if err != nil {
		reason := gateway.KindTransport.String()
		if k, ok := gateway.KindOf(err); ok {
			reason = k.String()
		}
		e.self.up.Set(0)
		e.self.pollErrors.WithLabelValues(reason).Inc()
		if e.store != nil {
			e.store.RecordFailure(err)
		}
		e.logger.Error("exporter: poll failed", "reason", reason, "err", err)
		return err
	}

	updated := e.apply(reading)

	e.self.up.Set(1)
	e.self.lastSuccess.Set(float64(e.now().UnixNano()) / 1e9)
	if e.store != nil {
		e.store.RecordSuccess(reading)
	}
	e.logger.Info("exporter: poll ok", "fields", len(reading), "updated", updated)
	return nil
}

// apply writes every known field of r into its instrument and returns the
// number of instruments updated. Unknown fields are ignored.
func (e *Exporter) apply(r types.Reading) int {
	var updated int
	for _, fld := range Fields {
		v, ok := r[fld.Name]
		if !ok {
			continue
		}
		var err error
		switch fld.Kind {
		case instrument.KindGauge:
			f, ok := v.Float()
			if !ok {
				e.logger.Debug("exporter: skipping non-numeric gauge field",
					"field", fld.Name, "type", v.Kind, "value", v.Text())
				continue
			}
			err = e.reg.SetGauge(fld.Name, f)
		case instrument.KindInfo:
			err = e.reg.SetInfo(fld.Name, v.Text())
		}
		if err != nil {
			// Only possible if Fields and the registry disagree.
			e.logger.Warn("exporter: instrument update failed", "field", fld.Name, "err", err)
			continue
		}
		updated++
	}

	if e.logger.Enabled(context.Background(), slog.LevelDebug) {
		for name := range r {
			if _, known := e.reg.Kind(name); !known {
				e.logger.Debug("exporter: ignoring unknown field", "field", name)
			}
		}
	}
	return updated
}

// Once performs a single poll and writes the whole registry to w in the
// Prometheus text format. The poll error, if any, is returned after the
// exposition has been written.
func (e *Exporter) Once(ctx context.Context, w io.Writer) error {
	tickErr := e.Tick(ctx)

	mfs, err := e.reg.Gatherer().Gather()
	if err != nil {
		return errors.Join(tickErr, fmt.Errorf("exporter: gather: %w", err))
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range mfs {
		if err := enc.Encode(mf); err != nil {
			return errors.Join(tickErr, fmt.Errorf("exporter: encode: %w", err))
		}
	}
	return tickErr
}
