package exporter

import "github.com/watermetergateway/exporter/internal/instrument"

// Field maps one gateway JSON field to the instrument that publishes it.
type Field struct {
	Name string
	Kind instrument.Kind
	Help string
}

// Fields is the fixed set of gateway fields the exporter publishes.
var Fields = []Field{
	{"mac_address", instrument.KindInfo, "Gateway MAC address."},
	{"gateway_model", instrument.KindInfo, "Gateway model identifier."},
	{"startup_time", instrument.KindInfo, "Gateway-reported startup time."},
	{"firmware_running", instrument.KindInfo, "Currently running firmware version."},
	{"firmware_update_available", instrument.KindInfo, "Pending firmware version, empty if none."},
	{"watermeter_value", instrument.KindGauge, "Cumulative meter reading."},
	{"watermeter_pulse_factor", instrument.KindGauge, "Pulses per unit of volume."},
	{"watermeter_used_last_minute", instrument.KindGauge, "Consumption in the most recent minute."},
	{"watermeter_pulsecount", instrument.KindGauge, "Raw pulse counter."},
	{"leak_detect", instrument.KindInfo, "Leak detection flag, \"true\" or \"false\"."},
}
