// Package gateway talks to the watermeter gateway's read endpoint.
//
// Client.Fetch issues one unauthenticated GET against
// http://<ip>:82/watermeter/api/read and decodes the JSON body into a
// types.Reading. It never retries; the caller decides what a failure means.
//
// Failures are reported as *FetchError with a Kind:
//
//	KindTransport  connection refused, DNS failure, timeout, request build error
//	KindStatus     a non-2xx HTTP status
//	KindDecode     a body that is not JSON, or JSON of an unsupported shape
//
// Decode accepts a JSON object, an array of objects merged in order, or an
// array of {"name": ..., "value": ...} entries. Non-scalar values are
// dropped.
package gateway
