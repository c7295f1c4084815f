package instrument

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/model"
)

var (
	// ErrDuplicate is returned when a logical name is declared twice.
	ErrDuplicate = errors.New("instrument already declared")

	// ErrUnknown is returned when setting or reading an undeclared name.
	ErrUnknown = errors.New("instrument not declared")

	// ErrKindMismatch is returned when a gauge is set as info or vice versa.
	ErrKindMismatch = errors.New("instrument kind mismatch")
)

// Kind selects the instrument type backing a logical name.
type Kind int

const (
	KindGauge Kind = iota
	KindInfo
)

func (k Kind) String() string {
	switch k {
	case KindGauge:
		return "gauge"
	case KindInfo:
		return "info"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type entry struct {
	kind  Kind
	gauge prometheus.Gauge
	info  *infoCollector
}

// Registry maps logical metric names to instruments.
//
// All exported methods are safe for concurrent use.
type Registry struct {
	prefix string
	reg    *prometheus.Registry

	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty Registry. A non-empty prefix is joined to every
// metric name with "_".
func New(prefix string) *Registry {
	return &Registry{
		prefix:  prefix,
		reg:     prometheus.NewRegistry(),
		entries: make(map[string]*entry),
	}
}

// FQName returns the exposed metric name for a logical name.
func (r *Registry) FQName(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + "_" + name
}

// Declare creates and registers the instrument for name. An empty help
// string defaults to name.
func (r *Registry) Declare(name string, kind Kind, help string) error {
	if !model.LabelName(name).IsValid() {
		return fmt.Errorf("instrument: invalid name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("instrument %q: %w", name, ErrDuplicate)
	}
	if help == "" {
		help = name
	}

	e := &entry{kind: kind}
	var c prometheus.Collector
	switch kind {
	case KindGauge:
		e.gauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: r.FQName(name),
			Help: help,
		})
		c = e.gauge
	case KindInfo:
		e.info = newInfoCollector(r.FQName(name)+"_info", help, name)
		c = e.info
	default:
		return fmt.Errorf("instrument %q: unsupported kind %v", name, kind)
	}

	if err := r.reg.Register(c); err != nil {
		return fmt.Errorf("instrument %q: register: %w", name, err)
	}
	r.entries[name] = e
	return nil
}

// MustDeclare is Declare that panics on error.
func (r *Registry) MustDeclare(name string, kind Kind, help string) {
	if err := r.Declare(name, kind, help); err != nil {
		panic(err)
	}
}

func (r *Registry) lookup(name string, kind Kind) (*entry, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("instrument %q: %w", name, ErrUnknown)
	}
	if e.kind != kind {
		return nil, fmt.Errorf("instrument %q is %v, not %v: %w", name, e.kind, kind, ErrKindMismatch)
	}
	return e, nil
}

// SetGauge stores v in the gauge declared as name.
func (r *Registry) SetGauge(name string, v float64) error {
	e, err := r.lookup(name, KindGauge)
	if err != nil {
		return err
	}
	e.gauge.Set(v)
	return nil
}

// SetInfo stores s in the info instrument declared as name.
func (r *Registry) SetInfo(name, s string) error {
	e, err := r.lookup(name, KindInfo)
	if err != nil {
		return err
	}
	e.info.set(s)
	return nil
}

// Gauge returns the current value of a gauge. ok is false when name is
// not a declared gauge.
func (r *Registry) Gauge(name string) (float64, bool) {
	e, err := r.lookup(name, KindGauge)
	if err != nil {
		return 0, false
	}
	var m dto.Metric
	if err := e.gauge.Write(&m); err != nil {
		return 0, false
	}
	return m.GetGauge().GetValue(), true
}

// Info returns the current value of an info instrument. ok is false when
// name is not a declared info instrument or has never been set.
func (r *Registry) Info(name string) (string, bool) {
	e, err := r.lookup(name, KindInfo)
	if err != nil {
		return "", false
	}
	return e.info.get()
}

// Kind reports the kind name was declared with.
func (r *Registry) Kind(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return 0, false
	}
	return e.kind, true
}

// Names returns the declared logical names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for n := range r.entries {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of declared instruments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Registerer exposes the underlying Prometheus registry for collectors that
// are not logical instruments (exporter self-metrics, runtime collectors).
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying Prometheus registry to the scrape handler.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
