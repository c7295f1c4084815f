package exporter

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watermetergateway/exporter/internal/gateway"
	"github.com/watermetergateway/exporter/internal/instrument"
	"github.com/watermetergateway/exporter/internal/store"
	"github.com/watermetergateway/exporter/pkg/types"
)

// --- test helpers -----------------------------------------------------------

// recordingHandler is a slog.Handler that keeps every record it sees.
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func (h *recordingHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var n int
	for _, r := range h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

// fakeFetcher returns queued results in order, repeating the last one.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fetchResult
	calls   int
}

type fetchResult struct {
	reading types.Reading
	err     error
}

func (f *fakeFetcher) Fetch(context.Context) (types.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	return f.results[i].reading, f.results[i].err
}

func newExporter(t *testing.T, f Fetcher, opts ...Option) (*Exporter, *instrument.Registry, *store.Store, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	reg := instrument.New("wm")
	st := store.New(0)
	opts = append([]Option{WithLogger(slog.New(h))}, opts...)
	return New(f, reg, st, opts...), reg, st, h
}

func gatewayServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// refusedURL returns a URL on a port nothing listens on.
func refusedURL(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return "http://" + addr + "/watermeter/api/read"
}

// --- declaration ------------------------------------------------------------

func TestNew_DeclaresFieldTable(t *testing.T) {
	_, reg, _, _ := newExporter(t, &fakeFetcher{})

	assert.Equal(t, len(Fields), reg.Len())
	for _, f := range Fields {
		k, ok := reg.Kind(f.Name)
		require.True(t, ok, "field %s not declared", f.Name)
		assert.Equal(t, f.Kind, k, "field %s", f.Name)
	}
}

func TestNew_TwiceOnSameRegistryPanics(t *testing.T) {
	reg := instrument.New("wm")
	New(&fakeFetcher{}, reg, nil)
	assert.Panics(t, func() { New(&fakeFetcher{}, reg, nil) })
}

// --- Tick -------------------------------------------------------------------

func TestTick_EndToEnd(t *testing.T) {
	srv := gatewayServer(t, `{"watermeter_value": 1234.5, "mac_address": "AA:BB:CC:DD:EE:FF"}`)
	client := gateway.New(srv.URL+"/watermeter/api/read", gateway.WithHTTPClient(srv.Client()))
	e, reg, st, logs := newExporter(t, client, WithInterval(5*time.Second))

	require.NoError(t, e.Tick(context.Background()))

	v, ok := reg.Gauge("watermeter_value")
	require.True(t, ok)
	assert.Equal(t, 1234.5, v)

	mac, ok := reg.Info("mac_address")
	require.True(t, ok)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", mac)

	_, ok = reg.Info("leak_detect")
	assert.False(t, ok, "leak_detect was not in the payload and must stay unset")

	assert.Equal(t, 1.0, testutil.ToFloat64(e.self.up))
	assert.Equal(t, 0, logs.count(slog.LevelError))

	last, ok := st.Last()
	require.True(t, ok)
	assert.Equal(t, 1234.5, last.Reading["watermeter_value"].Number)
}

func TestTick_AllFields(t *testing.T) {
	f := &fakeFetcher{results: []fetchResult{{reading: types.Reading{
		"mac_address":                 types.String("AA:BB:CC:DD:EE:FF"),
		"gateway_model":               types.String("WMG-1"),
		"startup_time":                types.String("2024-03-01T06:12:44"),
		"firmware_running":            types.String("1.4.2"),
		"firmware_update_available":   types.String(""),
		"watermeter_value":            types.Number(1234.5),
		"watermeter_pulse_factor":     types.Number(1000),
		"watermeter_used_last_minute": types.Number(0.75),
		"watermeter_pulsecount":       types.String("1234500"),
		"leak_detect":                 types.Bool(true),
	}}}}
	e, reg, _, _ := newExporter(t, f)

	require.NoError(t, e.Tick(context.Background()))

	for name, want := range map[string]float64{
		"watermeter_value":            1234.5,
		"watermeter_pulse_factor":     1000,
		"watermeter_used_last_minute": 0.75,
		"watermeter_pulsecount":       1234500,
	} {
		got, ok := reg.Gauge(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	for name, want := range map[string]string{
		"mac_address":               "AA:BB:CC:DD:EE:FF",
		"gateway_model":             "WMG-1",
		"startup_time":              "2024-03-01T06:12:44",
		"firmware_running":          "1.4.2",
		"firmware_update_available": "",
		"leak_detect":               "true",
	} {
		got, ok := reg.Info(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestTick_UnknownFieldsIgnored(t *testing.T) {
	f := &fakeFetcher{results: []fetchResult{{reading: types.Reading{
		"watermeter_value": types.Number(7),
		"wifi_rssi":        types.Number(-61),
		"hostname":         types.String("wmg"),
	}}}}
	e, reg, _, logs := newExporter(t, f)

	require.NoError(t, e.Tick(context.Background()))

	assert.Equal(t, len(Fields), reg.Len())
	_, ok := reg.Gauge("wifi_rssi")
	assert.False(t, ok)
	assert.Equal(t, 0, logs.count(slog.LevelError))
}

func TestTick_NonNumericGaugeSkipped(t *testing.T) {
	f := &fakeFetcher{results: []fetchResult{
		{reading: types.Reading{"watermeter_value": types.Number(10)}},
		{reading: types.Reading{"watermeter_value": types.String("n/a")}},
	}}
	e, reg, _, _ := newExporter(t, f)

	require.NoError(t, e.Tick(context.Background()))
	require.NoError(t, e.Tick(context.Background()))

	v, _ := reg.Gauge("watermeter_value")
	assert.Equal(t, 10.0, v)
}

func TestTick_FailuresLeaveInstrumentsUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		reason  string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			reason: "status",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"watermeter_value": 99`))
			},
			reason: "decode",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var fail atomic.Bool
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if fail.Load() {
					tc.handler(w, r)
					return
				}
				_, _ = w.Write([]byte(`{"watermeter_value": 1, "mac_address": "AA"}`))
			}))
			defer srv.Close()

			client := gateway.New(srv.URL, gateway.WithHTTPClient(srv.Client()))
			e, reg, _, logs := newExporter(t, client)

			require.NoError(t, e.Tick(context.Background()))
			fail.Store(true)
			require.Error(t, e.Tick(context.Background()))

			v, _ := reg.Gauge("watermeter_value")
			assert.Equal(t, 1.0, v)
			mac, _ := reg.Info("mac_address")
			assert.Equal(t, "AA", mac)

			assert.Equal(t, 1, logs.count(slog.LevelError))
			assert.Equal(t, 1.0, testutil.ToFloat64(e.self.pollErrors.WithLabelValues(tc.reason)))
			assert.Equal(t, 0.0, testutil.ToFloat64(e.self.up))
		})
	}
}

func TestTick_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	hc := srv.Client()
	hc.Timeout = 50 * time.Millisecond
	e, reg, _, logs := newExporter(t, gateway.New(srv.URL, gateway.WithHTTPClient(hc)))
	require.NoError(t, reg.SetGauge("watermeter_value", 5))

	require.Error(t, e.Tick(context.Background()))

	v, _ := reg.Gauge("watermeter_value")
	assert.Equal(t, 5.0, v)
	assert.Equal(t, 1, logs.count(slog.LevelError))
}

func TestTick_CancelledContextNotCountedAsFailure(t *testing.T) {
	f := fetcherFunc(func(ctx context.Context) (types.Reading, error) {
		<-ctx.Done()
		return nil, &gateway.FetchError{Kind: gateway.KindTransport, Err: ctx.Err()}
	})
	e, reg, st, logs := newExporter(t, f)
	require.NoError(t, reg.SetGauge("watermeter_value", 8))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := e.Tick(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, logs.count(slog.LevelError))
	assert.Equal(t, 0, st.Status().Polls)
	assert.Equal(t, 0.0, testutil.ToFloat64(e.self.pollErrors.WithLabelValues("transport")))
	v, _ := reg.Gauge("watermeter_value")
	assert.Equal(t, 8.0, v)
}

// --- Run --------------------------------------------------------------------

func TestRun_UnreachableThreeTicks(t *testing.T) {
	e, reg, st, logs := newExporter(t, gateway.New(refusedURL(t)), WithInterval(20*time.Millisecond))
	require.NoError(t, reg.SetGauge("watermeter_value", 321))
	require.NoError(t, reg.SetInfo("mac_address", "AA"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return st.Status().Polls >= 3 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	polls := st.Status().Polls
	assert.Equal(t, polls, logs.count(slog.LevelError), "one error line per failed tick")
	assert.Equal(t, polls, st.Status().ConsecutiveFailures)

	v, _ := reg.Gauge("watermeter_value")
	assert.Equal(t, 321.0, v)
	mac, _ := reg.Info("mac_address")
	assert.Equal(t, "AA", mac)
	assert.Equal(t, float64(polls), testutil.ToFloat64(e.self.pollErrors.WithLabelValues("transport")))
}

func TestRun_FixedIntervalNoOverlap(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	f := fetcherFunc(func(context.Context) (types.Reading, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		if n > maxInFlight.Load() {
			maxInFlight.Store(n)
		}
		time.Sleep(15 * time.Millisecond)
		return types.Reading{"watermeter_value": types.Number(1)}, nil
	})
	e, _, st, _ := newExporter(t, f, WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return st.Status().Polls >= 5 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e, _, st, _ := newExporter(t, &fakeFetcher{results: []fetchResult{{reading: types.Reading{}}}})

	// The first timer fires immediately, so either zero or one poll may run.
	require.NoError(t, e.Run(ctx))
	assert.LessOrEqual(t, st.Status().Polls, 1)
}

type fetcherFunc func(context.Context) (types.Reading, error)

func (f fetcherFunc) Fetch(ctx context.Context) (types.Reading, error) { return f(ctx) }

// --- Once -------------------------------------------------------------------

func TestOnce_WritesExposition(t *testing.T) {
	f := &fakeFetcher{results: []fetchResult{{reading: types.Reading{
		"watermeter_value": types.Number(1234.5),
		"leak_detect":      types.Bool(false),
	}}}}
	e, _, _, _ := newExporter(t, f)

	var buf bytes.Buffer
	require.NoError(t, e.Once(context.Background(), &buf))

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(strings.NewReader(buf.String()))
	require.NoError(t, err)

	mf, ok := mfs["wm_watermeter_value"]
	require.True(t, ok, "exposition:\n%s", buf.String())
	assert.Equal(t, 1234.5, mf.GetMetric()[0].GetGauge().GetValue())

	leak, ok := mfs["wm_leak_detect_info"]
	require.True(t, ok)
	require.Len(t, leak.GetMetric(), 1)
	lbl := leak.GetMetric()[0].GetLabel()[0]
	assert.Equal(t, "leak_detect", lbl.GetName())
	assert.Equal(t, "false", lbl.GetValue())

	_, ok = mfs["wm_exporter_up"]
	assert.True(t, ok)
}
