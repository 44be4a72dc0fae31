package request

import (
	"context"
	"net/http"
)

// Sender represents an HTTP transport, the client.Client is a default implementation using the standard net/http package.
type Sender interface {
	// Send method sends the finalized request and returns the raw response.
	// The response body must be readable as a stream, the caller closes it.
	// Any returned error is wrapped by the NetworkError.
	Send(ctx context.Context, request Definition) (rawResponse *http.Response, err error)
}

// SenderFunc is an adapter to use an ordinary function as the Sender.
type SenderFunc func(ctx context.Context, request Definition) (*http.Response, error)

func (f SenderFunc) Send(ctx context.Context, request Definition) (*http.Response, error) {
	return f(ctx, request)
}
