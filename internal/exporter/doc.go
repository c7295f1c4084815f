// Package exporter runs the poll-and-publish loop.
//
// New declares the gateway field table (Fields) on an instrument.Registry,
// together with a few self-metrics:
//
//	<prefix>_exporter_up                                 1 if the last poll succeeded
//	<prefix>_exporter_last_success_timestamp_seconds     unix time of the last good poll
//	<prefix>_exporter_last_poll_duration_seconds         wall time of the last poll
//	<prefix>_exporter_poll_errors_total{reason}          transport | status | decode
//
// Tick performs one fetch. A failed fetch logs one error line and leaves
// every device instrument untouched, so scrapes keep returning the last
// good values. Run repeats Tick with a fixed sleep between polls, without
// backoff, until its context is cancelled.
package exporter
