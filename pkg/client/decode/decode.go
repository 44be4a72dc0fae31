// Package decode provides transparent decoding of compressed response bodies.
package decode

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/hashicorp/go-multierror"
)

// Decode wraps the body by a decoder according to the Content-Encoding header value.
// Unknown and "identity" encodings are returned unchanged.
// Closing of the decoded body closes the decoder and the original body.
func Decode(body io.ReadCloser, contentEncoding string) (io.ReadCloser, error) {
	contentEncoding = strings.ToLower(strings.TrimSpace(contentEncoding))
	switch contentEncoding {
	case "gzip", "x-gzip":
		if v, err := gzip.NewReader(body); err == nil {
			return &decodedBody{Reader: v, closers: []io.Closer{v, body}}, nil
		} else {
			return nil, fmt.Errorf("cannot decode gzip: %w", err)
		}
	case "br":
		return &decodedBody{Reader: brotli.NewReader(body), closers: []io.Closer{body}}, nil
	default:
		return body, nil
	}
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (b *decodedBody) Close() error {
	var errs error
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs
}
