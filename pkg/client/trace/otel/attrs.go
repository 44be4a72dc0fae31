package otel

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/keboola/go-reru/pkg/request"
)

const (
	maskedAttrValue = "****"
	maskedURLValue  = "...."
)

const (
	attrErrorType          = attribute.Key("http.error_type")
	attrIsRedirection      = attribute.Key("http.is_redirection")
	attrURLDetailsScheme   = attribute.Key("http.url_details.scheme")
	attrURLDetailsPath     = attribute.Key("http.url_details.path")
	attrURLDetailsHost     = attribute.Key("http.url_details.host")
	attrURLDetailsHostPref = attribute.Key("http.url_details.host_prefix")
	attrURLDetailsHostSuff = attribute.Key("http.url_details.host_suffix")
)

type attributes struct {
	config config
	// definition attributes for span and metrics
	definition []attribute.KeyValue
	// definitionExtra attributes for span only
	definitionExtra []attribute.KeyValue
	// httpRequest attributes for span and metrics
	httpRequest []attribute.KeyValue
	// httpRequestExtra attributes for span only
	httpRequestExtra []attribute.KeyValue
	// httpResponse attributes for span and metrics
	httpResponse []attribute.KeyValue
	// httpResponseExtra attributes for span only
	httpResponseExtra []attribute.KeyValue
}

func newAttributes(cfg config, reqDef request.Definition) *attributes {
	out := &attributes{config: cfg}
	reqURL := reqDef.URL()

	// Definition base
	out.definition = append(
		[]attribute.KeyValue{
			semconv.HTTPMethodKey.String(reqDef.Method()),
			semconv.HTTPURLKey.String(redactURL(reqURL, cfg)),
		},
		urlDetails(reqURL)...,
	)

	// Definition headers
	out.definitionExtra = append(out.definitionExtra, headerAttrs("http.header.", reqDef.Header(), cfg, false)...)

	// Definition query parameters, multiple values are joined
	query := reqURL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := strings.Join(query[k], ";")
		if cfg.isRedactedQueryParam(k) {
			value = maskedAttrValue
		}
		out.definitionExtra = append(out.definitionExtra, attribute.String("http.query."+k, value))
	}

	return out
}

func (v *attributes) SetFromRequest(req *http.Request) {
	if req == nil {
		v.httpRequest = nil
		v.httpRequestExtra = nil
		return
	}

	// Base
	v.httpRequest = append(
		[]attribute.KeyValue{
			semconv.HTTPMethodKey.String(req.Method),
			semconv.HTTPURLKey.String(redactURL(req.URL, v.config)),
			semconv.NetPeerNameKey.String(req.URL.Hostname()),
		},
		urlDetails(req.URL)...,
	)

	// Extra
	v.httpRequestExtra = headerAttrs("http.header.", req.Header, v.config, true)
}

func (v *attributes) SetFromResponse(res *http.Response, err error) {
	v.httpResponse = nil
	v.httpResponseExtra = nil

	if res != nil {
		// Base
		v.httpResponse = append(v.httpResponse, semconv.HTTPStatusCodeKey.Int(res.StatusCode))
		if isRedirection(res) {
			v.httpResponse = append(v.httpResponse, attrIsRedirection.Bool(true))
		}

		// Extra
		v.httpResponseExtra = headerAttrs("http.response.header.", res.Header, v.config, true)
	}

	// Error
	if errType := errorType(res, err); errType != "" {
		v.httpResponse = append(v.httpResponse, attrErrorType.String(errType))
	}
}

func errorType(res *http.Response, err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case err != nil:
		return "net"
	case res != nil && res.StatusCode >= http.StatusInternalServerError:
		return "http_5xx_code"
	case res != nil && res.StatusCode >= http.StatusBadRequest:
		return "http_4xx_code"
	default:
		return ""
	}
}

func urlDetails(u *url.URL) []attribute.KeyValue {
	out := []attribute.KeyValue{
		attrURLDetailsScheme.String(u.Scheme),
		attrURLDetailsPath.String(mustURLPathUnescape(u.Path)),
		attrURLDetailsHost.String(u.Host),
	}
	if dotPos := strings.IndexByte(u.Host, '.'); dotPos > 0 {
		// Host parts: to trace service name (host prefix) and domain (host suffix).
		out = append(out,
			attrURLDetailsHostPref.String(u.Host[:dotPos]),
			attrURLDetailsHostSuff.String(strings.TrimLeft(u.Host[dotPos:], ".")),
		)
	}
	return out
}

func headerAttrs(prefix string, header http.Header, cfg config, lowerKeys bool) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for key, values := range header {
		value := strings.Join(values, ";")
		if cfg.isRedactedHeader(key) {
			value = maskedAttrValue
		}
		if lowerKeys {
			key = strings.ToLower(key)
		}
		attrs = append(attrs, attribute.String(prefix+key, value))
	}
	sort.SliceStable(attrs, func(i, j int) bool {
		return attrs[i].Key < attrs[j].Key
	})
	return attrs
}

func mustURLPathUnescape(in string) string {
	out, err := url.PathUnescape(in)
	if err != nil {
		return in
	}
	return out
}
