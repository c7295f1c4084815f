// Package types defines the value types shared between the device client,
// the poll loop and the HTTP API. A Reading is the decoded body of one
// /watermeter/api/read response; it is independent of the Prometheus
// exposition the exporter derives from it.
package types
