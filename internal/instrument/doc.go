// Package instrument holds the exporter's named metric instruments.
//
// A Registry maps a logical name such as "watermeter_value" to one
// instrument and owns the private Prometheus registry those instruments are
// exposed through. Two kinds exist:
//
//   - KindGauge: a prometheus.Gauge holding the last numeric value.
//   - KindInfo: a string exposed as <name>_info{<name>="value"} 1.
//
// Every name is declared once at startup; declaring it again is an error.
// Updates from the poll loop and reads from concurrent scrapes never see a
// partially written value: gauges store their float bits atomically and
// info values are swapped through an atomic pointer.
package instrument
