package request

import (
	"fmt"
)

// InvalidURLError is returned if a URL cannot be used as an absolute request URL.
type InvalidURLError struct {
	URL string
	Err error
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf(`url "%s" is not valid: %s`, e.URL, e.Err)
}

func (e *InvalidURLError) Unwrap() error {
	return e.Err
}

// InvalidMethodError is returned if the HTTP method is empty or it is not a valid token.
type InvalidMethodError struct {
	Method string
}

func (e *InvalidMethodError) Error() string {
	return fmt.Sprintf(`method "%s" is not valid`, e.Method)
}

// SerializationError is returned if a value cannot be encoded to JSON or a response cannot be decoded from JSON.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf(`cannot serialize JSON: %s`, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// NetworkError wraps any error returned by the Sender.
// Connection, DNS, TLS, timeout and cancellation failures are not distinguished, see Unwrap.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf(`request %s "%s" failed: %s`, e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}
