package exporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/watermetergateway/exporter/internal/gateway"
	"github.com/watermetergateway/exporter/internal/instrument"
)

// selfMetrics describe the exporter's own polling, not the device.
type selfMetrics struct {
	up           prometheus.Gauge
	lastSuccess  prometheus.Gauge
	pollDuration prometheus.Gauge
	pollErrors   *prometheus.CounterVec
}

func newSelfMetrics(reg *instrument.Registry) *selfMetrics {
	m := &selfMetrics{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: reg.FQName("exporter_up"),
			Help: "Whether the last gateway poll succeeded (1) or failed (0).",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: reg.FQName("exporter_last_success_timestamp_seconds"),
			Help: "Unix time of the last successful gateway poll.",
		}),
		pollDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: reg.FQName("exporter_last_poll_duration_seconds"),
			Help: "Duration of the last gateway poll.",
		}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: reg.FQName("exporter_poll_errors_total"),
			Help: "Failed gateway polls by reason.",
		}, []string{"reason"}),
	}
	reg.Registerer().MustRegister(m.up, m.lastSuccess, m.pollDuration, m.pollErrors)

	// Expose every reason at 0 from the start.
	for _, k := range []gateway.ErrorKind{gateway.KindTransport, gateway.KindStatus, gateway.KindDecode} {
		m.pollErrors.WithLabelValues(k.String())
	}
	return m
}
