package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
)

// Definition is a finalized, immutable HTTP request, see HTTPRequest.Request.
// All getters return copies.
type Definition struct {
	method  string
	url     *url.URL
	header  http.Header
	body    []byte
	hasBody bool
}

// Method returns HTTP method.
func (d Definition) Method() string {
	return d.method
}

// URL returns the final URL, including query parameters.
func (d Definition) URL() *url.URL {
	if d.url == nil {
		panic(fmt.Errorf("request definition is not initialized"))
	}
	clone := *d.url
	return &clone
}

// Header returns HTTP request headers.
func (d Definition) Header() http.Header {
	if d.header == nil {
		return make(http.Header)
	}
	return d.header.Clone()
}

// Body returns serialized request body, nil if the body is not set.
func (d Definition) Body() []byte {
	return slices.Clone(d.body)
}

// HasBody returns true if a request body has been set, it may be empty.
func (d Definition) HasBody() bool {
	return d.hasBody
}

func (d Definition) String() string {
	return fmt.Sprintf(`%s "%s"`, d.method, d.URL())
}

// NewHTTPRequest converts the definition to the standard HTTP request.
// The GetBody factory is set, so the body can be read more than once, for example on redirect.
func (d Definition) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if d.hasBody {
		body = bytes.NewReader(d.body)
	}

	req, err := http.NewRequestWithContext(ctx, d.method, d.URL().String(), body)
	if err != nil {
		return nil, err
	}

	for k, values := range d.header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}
