// Package store keeps the exporter's view of recent polls: the last
// successful reading and the outcomes of the most recent polls. The HTTP
// API reads it to report staleness; the poll loop is its only writer.
package store
