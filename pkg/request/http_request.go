package request

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"golang.org/x/net/http/httpguts"
)

// HTTPRequest is an immutable HTTP request builder.
//
// Each method returns a modified copy, so a value can be shared and extended safely.
// Once finalized by Request or Send, the resulting Definition is not affected by further chaining.
//
// Request body policy: the last body setter wins.
// WithJSONBody, WithBody and WithFormBody replace any previous body.
// AndFormParam extends the form body, or replaces a non-form body with a new form body.
type HTTPRequest interface {
	// Method returns HTTP method.
	Method() string
	// RequestHeader method returns a copy of HTTP request headers.
	RequestHeader() http.Header
	// QueryParams method returns a copy of the ordered query parameters added by AndQueryParam/WithQueryParams.
	QueryParams() []QueryParam
	// AndQueryParam method appends a query parameter, duplicate keys are preserved in order.
	AndQueryParam(key, value string) HTTPRequest
	// WithQueryParams method appends multiple query parameters sorted by key.
	WithQueryParams(params map[string]string) HTTPRequest
	// AndHeader method sets a single header field and its value, a previous value is overwritten.
	AndHeader(header string, value string) HTTPRequest
	// WithContentType method sets custom content type.
	WithContentType(contentType string) HTTPRequest
	// WithJSONBody method serializes the value to JSON and sets it as the body, Content-Type header is set to "application/json".
	// If the value cannot be serialized, for example it references itself, the SerializationError is returned together with the unmodified request.
	WithJSONBody(value any) (HTTPRequest, error)
	// WithBody method sets raw request body, Content-Type is set if it is not empty.
	WithBody(body []byte, contentType string) HTTPRequest
	// AndFormParam method appends a form field, Content-Type header is set to "application/x-www-form-urlencoded".
	AndFormParam(name, value string) HTTPRequest
	// WithFormBody method sets the form body from a JSON like map, see ToFormBody.
	// It panics if a value cannot be cast to a string, for example a struct.
	WithFormBody(form map[string]any) HTTPRequest
	// Request method finalizes the request to an immutable Definition.
	Request() (Definition, error)
	// Send method finalizes the request and sends it by the sender.
	// The returned Response must be closed by the caller.
	Send(ctx context.Context, sender Sender) (*Response, error)
}

// QueryParam is one key-value pair of the URL query.
type QueryParam struct {
	Key   string
	Value string
}

type bodyKind int

const (
	bodyNone bodyKind = iota
	bodyBytes
	bodyForm
)

// httpRequest implements HTTPRequest interface.
type httpRequest struct {
	method      string
	url         *url.URL
	header      http.Header
	queryParams []QueryParam
	bodyKind    bodyKind
	body        []byte
	formParams  []QueryParam
}

// New creates an immutable HTTP request.
// The rawURL must be an absolute URL with a scheme and a host, otherwise InvalidURLError is returned.
func New(method, rawURL string) (HTTPRequest, error) {
	if method == "" || !httpguts.ValidHeaderFieldName(method) {
		return nil, &InvalidMethodError{Method: method}
	}

	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}

	return httpRequest{method: method, url: u, header: make(http.Header)}, nil
}

func (r httpRequest) Method() string {
	return r.method
}

func (r httpRequest) RequestHeader() http.Header {
	return r.header.Clone()
}

func (r httpRequest) QueryParams() []QueryParam {
	return slices.Clone(r.queryParams)
}

func (r httpRequest) AndQueryParam(key, value string) HTTPRequest {
	// Clip forces a new backing array, so copies of the request never share appended items
	r.queryParams = append(slices.Clip(r.queryParams), QueryParam{Key: key, Value: value})
	return r
}

func (r httpRequest) WithQueryParams(params map[string]string) HTTPRequest {
	r.queryParams = append(slices.Clip(r.queryParams), sortedParams(params)...)
	return r
}

func (r httpRequest) AndHeader(header string, value string) HTTPRequest {
	r.header = r.header.Clone()
	r.header.Set(header, value)
	return r
}

func (r httpRequest) WithContentType(contentType string) HTTPRequest {
	return r.AndHeader("Content-Type", contentType)
}

func (r httpRequest) WithJSONBody(value any) (HTTPRequest, error) {
	data, err := marshalJSON(value)
	if err != nil {
		return r, &SerializationError{Err: err}
	}
	r.bodyKind = bodyBytes
	r.body = data
	r.formParams = nil
	return r.WithContentType(ContentTypeApplicationJSON), nil
}

func (r httpRequest) WithBody(body []byte, contentType string) HTTPRequest {
	r.bodyKind = bodyBytes
	r.body = slices.Clone(body)
	r.formParams = nil
	if contentType != "" {
		return r.WithContentType(contentType)
	}
	return r
}

func (r httpRequest) AndFormParam(name, value string) HTTPRequest {
	if r.bodyKind != bodyForm {
		r.bodyKind = bodyForm
		r.body = nil
		r.formParams = nil
	}
	r.formParams = append(slices.Clip(r.formParams), QueryParam{Key: name, Value: value})
	return r.WithContentType(ContentTypeFormURLEncoded)
}

func (r httpRequest) WithFormBody(form map[string]any) HTTPRequest {
	r.bodyKind = bodyForm
	r.body = nil
	r.formParams = sortedParams(ToFormBody(form))
	return r.WithContentType(ContentTypeFormURLEncoded)
}

func (r httpRequest) Request() (Definition, error) {
	// Append query parameters to the query from the original URL
	clone := *r.url
	if len(r.queryParams) > 0 {
		encoded := encodeParams(r.queryParams)
		if clone.RawQuery == "" {
			clone.RawQuery = encoded
		} else {
			clone.RawQuery += "&" + encoded
		}
	}

	// Validate the final URL
	finalURL, err := parseURL(clone.String())
	if err != nil {
		return Definition{}, err
	}

	def := Definition{method: r.method, url: finalURL, header: r.header.Clone()}
	switch r.bodyKind {
	case bodyBytes:
		def.hasBody = true
		def.body = slices.Clone(r.body)
	case bodyForm:
		def.hasBody = true
		def.body = []byte(encodeParams(r.formParams))
	case bodyNone:
	}
	return def, nil
}

func (r httpRequest) Send(ctx context.Context, sender Sender) (*Response, error) {
	if sender == nil {
		panic(fmt.Errorf("sender cannot be nil"))
	}

	def, err := r.Request()
	if err != nil {
		return nil, err
	}

	// Stop if context has been cancelled
	if err := ctx.Err(); err != nil {
		return nil, &NetworkError{Method: def.method, URL: def.url.String(), Err: err}
	}

	rawResponse, err := sender.Send(ctx, def)
	if err != nil {
		return nil, &NetworkError{Method: def.method, URL: def.url.String(), Err: err}
	}
	return newResponse(def, rawResponse), nil
}

// SendJSON sends the request and decodes the JSON response body to the R type.
// The response body is always closed.
func SendJSON[R any](ctx context.Context, sender Sender, r HTTPRequest) (result R, err error) {
	response, err := r.Send(ctx, sender)
	if err != nil {
		return result, err
	}
	err = response.ParseJSON(&result)
	return result, err
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	switch {
	case err != nil:
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, &InvalidURLError{URL: rawURL, Err: err}
	case u.Scheme == "":
		return nil, &InvalidURLError{URL: rawURL, Err: errors.New("missing scheme")}
	case u.Host == "":
		return nil, &InvalidURLError{URL: rawURL, Err: errors.New("missing host")}
	default:
		return u, nil
	}
}
