package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/watermetergateway/exporter/pkg/types"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindStatus
	KindDecode
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned by Fetch for every failure.
type FetchError struct {
	Kind ErrorKind
	// StatusCode is set for KindStatus.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("gateway %s error: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the ErrorKind of err, or false when err is not a FetchError.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// Client polls one gateway.
type Client struct {
	url  string
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client for the read endpoint at url. The default
// http.Client has no timeout of its own; bound a single fetch through ctx.
func New(url string, opts ...Option) *Client {
	c := &Client{url: url, http: &http.Client{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

// URL returns the endpoint the client polls.
func (c *Client) URL() string { return c.url }

// Fetch performs one GET and returns the decoded reading.
func (c *Client) Fetch(ctx context.Context) (types.Reading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: KindTransport, Err: fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, &FetchError{
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	reading, err := Decode(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{Kind: KindTransport, Err: fmt.Errorf("read body: %w", err)}
	}
	return reading, nil
}
