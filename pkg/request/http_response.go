package request

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Response is a readable stream over the HTTP response body, plus the response metadata.
// It must be closed by the caller. The read helpers (Bytes, Text, ParseJSON, JSONPath) close it.
type Response struct {
	definition  Definition
	rawResponse *http.Response
}

func newResponse(def Definition, rawResponse *http.Response) *Response {
	if rawResponse == nil {
		panic(fmt.Errorf("sender returned nil response without an error"))
	}
	if rawResponse.Body == nil {
		rawResponse.Body = http.NoBody
	}
	return &Response{definition: def, rawResponse: rawResponse}
}

// Definition returns the sent request.
func (r *Response) Definition() Definition {
	return r.definition
}

// RawResponse method returns the standard HTTP response.
func (r *Response) RawResponse() *http.Response {
	return r.rawResponse
}

// StatusCode method returns HTTP status code.
func (r *Response) StatusCode() int {
	return r.rawResponse.StatusCode
}

// Status method returns HTTP status line, e.g. "200 OK".
func (r *Response) Status() string {
	return r.rawResponse.Status
}

// Proto returns protocol version, e.g. "HTTP/1.1".
func (r *Response) Proto() string {
	return r.rawResponse.Proto
}

// Header method returns HTTP response headers.
func (r *Response) Header() http.Header {
	return r.rawResponse.Header
}

// URL returns URL of the last request, it differs from the definition URL, if a redirect occurred.
func (r *Response) URL() *url.URL {
	if r.rawResponse.Request != nil && r.rawResponse.Request.URL != nil {
		return r.rawResponse.Request.URL
	}
	return r.definition.URL()
}

// IsSuccess method returns true if HTTP status `code >= 200 and <= 299` otherwise false.
func (r *Response) IsSuccess() bool {
	return r.StatusCode() > 199 && r.StatusCode() < 300
}

// IsError method returns true if HTTP status `code >= 400` otherwise false.
func (r *Response) IsError() bool {
	return r.StatusCode() > 399
}

// IsJSON returns true if the response Content-Type is a JSON media type.
func (r *Response) IsJSON() bool {
	return isJSONContentType(r.Header().Get("Content-Type"))
}

// Read reads the response body, it implements io.Reader.
func (r *Response) Read(p []byte) (int, error) {
	return r.rawResponse.Body.Read(p)
}

// Close closes the response body, it implements io.Closer.
func (r *Response) Close() error {
	return r.rawResponse.Body.Close()
}

// Bytes reads the whole response body and closes it.
func (r *Response) Bytes() (out []byte, err error) {
	defer func() {
		if closeErr := r.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf(`cannot close response body: %w`, closeErr)
		}
	}()
	out, err = io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf(`cannot read response body: %w`, err)
	}
	return out, nil
}

// Text reads the whole response body as a string and closes it.
func (r *Response) Text() (string, error) {
	out, err := r.Bytes()
	return string(out), err
}

// ParseJSON decodes the response body to the target value and closes the body.
// The Content-Type header is not checked.
func (r *Response) ParseJSON(target any) (err error) {
	defer func() {
		if closeErr := r.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf(`cannot close response body: %w`, closeErr)
		}
	}()
	if err := json.NewDecoder(r).Decode(target); err != nil {
		return &SerializationError{Err: err}
	}
	return nil
}

// JSONPath reads the whole JSON response body and returns a value on the path, see gjson syntax.
// The result Exists method returns false if the path has not been found.
func (r *Response) JSONPath(path string) (gjson.Result, error) {
	body, err := r.Bytes()
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, &SerializationError{Err: errors.New("response body is not a valid JSON")}
	}
	return gjson.GetBytes(body, path), nil
}
