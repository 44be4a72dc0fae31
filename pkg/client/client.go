// Package client provides the default transport for the request package.
//
// Client is a default implementation of the request.Sender interface.
// Client is based on the standard net/http package and contains tracing/telemetry support,
// see the trace and trace/otel packages.
// It is easy to implement your custom transport, by implementing the request.Sender interface.
//
// Client does not retry requests and does not cache responses.
// Compressed responses (gzip, br) are transparently decoded.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/keboola/go-reru/pkg/client/counter"
	"github.com/keboola/go-reru/pkg/client/decode"
	"github.com/keboola/go-reru/pkg/client/trace"
	"github.com/keboola/go-reru/pkg/request"
)

// DefaultUserAgent is sent, if no other User-Agent header is set.
const DefaultUserAgent = "keboola-go-reru"

// Client is a default and configurable implementation of the request.Sender interface by Go native http.Client.
// It supports tracing/telemetry.
type Client struct {
	transport      http.RoundTripper
	header         http.Header
	timeout        time.Duration
	noRedirects    bool
	traceFactories []trace.Factory
}

// New creates new HTTP Client.
func New() Client {
	c := Client{transport: DefaultTransport(), header: make(http.Header)}
	c.header.Set("User-Agent", DefaultUserAgent)
	c.header.Set("Accept-Encoding", "gzip, br")
	return c
}

// WithUserAgent returns a clone of the Client with user agent set.
func (c Client) WithUserAgent(v string) Client {
	return c.WithHeader("User-Agent", v)
}

// WithHeader returns a clone of the Client with common header set.
func (c Client) WithHeader(key, value string) Client {
	c.header = c.header.Clone()
	c.header.Set(key, value)
	return c
}

// WithHeaders returns a clone of the Client with common headers set.
func (c Client) WithHeaders(headers map[string]string) Client {
	c.header = c.header.Clone()
	for k, v := range headers {
		c.header.Set(k, v)
	}
	return c
}

// WithTransport returns a clone of the Client with a HTTP transport set.
func (c Client) WithTransport(transport http.RoundTripper) Client {
	if transport == nil || transport == http.RoundTripper(nil) {
		panic(fmt.Errorf("transport cannot be nil"))
	}
	c.transport = transport
	return c
}

// WithTimeout returns a clone of the Client with the http.Client.Timeout set.
// The timeout includes reading of the response body. Zero means no timeout.
func (c Client) WithTimeout(timeout time.Duration) Client {
	c.timeout = timeout
	return c
}

// WithRedirects returns a clone of the Client with following of redirects enabled/disabled.
// If disabled, the redirect response is returned as is.
func (c Client) WithRedirects(follow bool) Client {
	c.noRedirects = !follow
	return c
}

// AndTrace returns a clone of the Client with a trace factory added.
// Hooks of all registered factories are called, in the registration order.
func (c Client) AndTrace(fn trace.Factory) Client {
	c.traceFactories = append(slices.Clip(c.traceFactories), fn)
	return c
}

// Send method sends the HTTP request and returns the HTTP response, it implements the request.Sender interface.
// The response body is decoded according to the Content-Encoding header, the caller must close it.
// HTTP error status codes are not converted to errors.
func (c Client) Send(ctx context.Context, reqDef request.Definition) (res *http.Response, err error) {
	// Method cannot be called on an empty value
	if c.transport == nil {
		panic(fmt.Errorf("client value is not initialized"))
	}

	// Init trace
	var tc *trace.ClientTrace
	for _, fn := range c.traceFactories {
		var t *trace.ClientTrace
		if ctx, t = fn(ctx, reqDef); t != nil {
			t.Compose(tc)
			tc = t
		}
	}
	if tc != nil {
		ctx = httptrace.WithClientTrace(ctx, &tc.ClientTrace)
	}

	// Trace request processed
	if tc != nil && tc.RequestProcessed != nil {
		defer func() {
			tc.RequestProcessed(res, err)
		}()
	}

	// Create request
	req, err := reqDef.NewHTTPRequest(ctx)
	if err != nil {
		return nil, err
	}

	// Global headers
	header := c.header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	// Request headers, clear global values
	for k, values := range req.Header {
		header[k] = values
	}
	req.Header = header

	// Setup native client
	nativeClient := http.Client{
		Timeout:   c.timeout,
		Transport: roundTripper{trace: tc, wrapped: c.transport}, // wrapped transport for trace
	}
	if c.noRedirects {
		nativeClient.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	// Send request
	startedAt := time.Now()
	res, err = nativeClient.Do(req)

	// Handle send error
	if err != nil {
		return nil, handleSendError(startedAt, c.timeout, req, err)
	}

	// Process content encoding, a response without body has nothing to decode
	body := res.Body
	if hasResponseBody(req, res) {
		body, err = decode.Decode(res.Body, res.Header.Get("Content-Encoding"))
		if err != nil {
			_ = res.Body.Close()
			return nil, fmt.Errorf(`cannot process response body: %w`, err)
		}
	}
	if body != res.Body {
		// Body is decoded, original length and encoding are no more valid
		res.Header.Del("Content-Encoding")
		res.Header.Del("Content-Length")
		res.ContentLength = -1
		res.Uncompressed = true
	}

	// Count read bytes
	res.Body = counter.NewReadCloser(body, func(bytes int64, err error) {
		if tc != nil && tc.ResponseBodyClosed != nil {
			tc.ResponseBodyClosed(bytes, err)
		}
	})

	return res, nil
}

// hasResponseBody returns false if the response cannot carry a body, even if Content-Encoding is set.
func hasResponseBody(req *http.Request, res *http.Response) bool {
	switch {
	case res.Body == nil || res.Body == http.NoBody:
		return false
	case req.Method == http.MethodHead:
		return false
	case res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotModified:
		return false
	case res.StatusCode >= 100 && res.StatusCode < 200:
		return false
	default:
		return true
	}
}

func handleSendError(startedAt time.Time, clientTimeout time.Duration, req *http.Request, err error) error {
	// Timeout
	var netErr net.Error
	if deadline, ok := req.Context().Deadline(); ok && errors.Is(err, context.DeadlineExceeded) {
		err = urlError(req, timeoutError{err: fmt.Errorf("timeout after %s", deadline.Sub(startedAt)), cause: err})
	} else if errors.Is(err, context.Canceled) {
		err = urlError(req, timeoutError{err: fmt.Errorf("canceled after %s", time.Since(startedAt)), cause: err})
	} else if errors.As(err, &netErr) && netErr.Timeout() {
		if strings.Contains(err.Error(), "Client.Timeout exceeded") {
			err = urlError(req, timeoutError{err: fmt.Errorf("timeout after %s", clientTimeout), cause: err})
		} else {
			err = urlError(req, timeoutError{err: fmt.Errorf("timeout after %s", time.Since(startedAt)), cause: err})
		}
	}

	// Url error, method and URL are part of the request.NetworkError message
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	return err
}

// timeoutError has a readable message but keeps the original cause for errors.Is/As.
type timeoutError struct {
	err   error
	cause error
}

func (e timeoutError) Error() string {
	return e.err.Error()
}

func (e timeoutError) Unwrap() error {
	return e.cause
}

// roundTripper wraps a http.RoundTripper and adds trace functionality.
type roundTripper struct {
	trace   *trace.ClientTrace
	wrapped http.RoundTripper
}

func (rt roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// Trace request start
	if rt.trace != nil && rt.trace.HTTPRequestStart != nil {
		rt.trace.HTTPRequestStart(req)
	}

	// Send
	res, err := rt.wrapped.RoundTrip(req)

	// Trace request done
	if rt.trace != nil && rt.trace.HTTPRequestDone != nil {
		rt.trace.HTTPRequestDone(res, err)
	}

	return res, err
}

func urlError(req *http.Request, err error) *url.Error {
	return &url.Error{Op: req.Method, URL: req.URL.String(), Err: err}
}
