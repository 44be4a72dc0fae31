// Package request provides a fluent builder of immutable HTTP requests, see the New function
// and the Get, Post, Put, ... shortcuts.
//
// Each builder method returns a new HTTPRequest value, the receiver is never modified.
// The Request method finalizes the builder to an immutable Definition.
// The Send method finalizes the builder and sends it by a Sender.
//
// The client.Client is a default implementation of the request.Sender
// interface based on the standard net/http package.
//
// Errors are typed: InvalidURLError, InvalidMethodError, SerializationError and NetworkError.
package request

import (
	"net/http"
)

// Get creates a GET request.
func Get(url string) (HTTPRequest, error) {
	return New(http.MethodGet, url)
}

// Post creates a POST request.
func Post(url string) (HTTPRequest, error) {
	return New(http.MethodPost, url)
}

// Put creates a PUT request.
func Put(url string) (HTTPRequest, error) {
	return New(http.MethodPut, url)
}

// Patch creates a PATCH request.
func Patch(url string) (HTTPRequest, error) {
	return New(http.MethodPatch, url)
}

// Delete creates a DELETE request.
func Delete(url string) (HTTPRequest, error) {
	return New(http.MethodDelete, url)
}

// Head creates a HEAD request.
func Head(url string) (HTTPRequest, error) {
	return New(http.MethodHead, url)
}

// Options creates an OPTIONS request.
func Options(url string) (HTTPRequest, error) {
	return New(http.MethodOptions, url)
}

// Trace creates a TRACE request.
func Trace(url string) (HTTPRequest, error) {
	return New(http.MethodTrace, url)
}

// Connect creates a CONNECT request.
func Connect(url string) (HTTPRequest, error) {
	return New(http.MethodConnect, url)
}
