package instrument

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// infoCollector exposes a single string as a constant-1 gauge labelled with
// the value. Nothing is exposed until the first set.
type infoCollector struct {
	desc  *prometheus.Desc
	value atomic.Pointer[string]
}

func newInfoCollector(fqName, help, label string) *infoCollector {
	return &infoCollector{
		desc: prometheus.NewDesc(fqName, help, []string{label}, nil),
	}
}

func (c *infoCollector) set(s string) { c.value.Store(&s) }

func (c *infoCollector) get() (string, bool) {
	v := c.value.Load()
	if v == nil {
		return "", false
	}
	return *v, true
}

func (c *infoCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *infoCollector) Collect(ch chan<- prometheus.Metric) {
	v, ok := c.get()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, 1, v)
}
