package client

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// DialTimeout specifies default maximum connection initialization time.
const DialTimeout = 3 * time.Second

// KeepAlive specifies default interval between keep-alive probes.
const KeepAlive = 10 * time.Second

// TLSHandshakeTimeout specifies default timeout of TLS handshake.
const TLSHandshakeTimeout = 5 * time.Second

// ResponseHeaderTimeout specifies default amount of time to wait for a server's response headers.
const ResponseHeaderTimeout = 20 * time.Second

// MaxConnectionsPerHost specifies default maximum number of open connections to a host.
const MaxConnectionsPerHost = 32

// HTTP2PingTimeout specifies timeout of the HTTP2 health check ping, if the connection is idle.
const HTTP2PingTimeout = 3 * time.Second

// DefaultTransport default transport with reasonable limits.
// HTTP2 is preferred, the protocol is negotiated by TLS, with fallback to HTTP1.1.
func DefaultTransport() http.RoundTripper {
	dialer := Dialer()
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   TLSHandshakeTimeout,
		ResponseHeaderTimeout: ResponseHeaderTimeout,
		MaxConnsPerHost:       MaxConnectionsPerHost,
		MaxIdleConnsPerHost:   MaxConnectionsPerHost,
	}

	// Enable HTTP2 health checks of idle connections
	if h2, err := http2.ConfigureTransports(transport); err == nil {
		h2.ReadIdleTimeout = HTTP2PingTimeout
		h2.PingTimeout = HTTP2PingTimeout
	} else {
		transport.ForceAttemptHTTP2 = true
	}

	return transport
}

// HTTP2Transport forces HTTP2 protocol, TLS is required.
func HTTP2Transport() http.RoundTripper {
	dialer := Dialer()
	return &http2.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			tlsDialer := &tls.Dialer{NetDialer: dialer, Config: cfg}
			return tlsDialer.DialContext(ctx, network, addr)
		},
		ReadIdleTimeout:  HTTP2PingTimeout,
		PingTimeout:      HTTP2PingTimeout,
		WriteByteTimeout: HTTP2PingTimeout,
	}
}

// Dialer - default dialer.
func Dialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   DialTimeout,
		KeepAlive: KeepAlive,
	}
}
