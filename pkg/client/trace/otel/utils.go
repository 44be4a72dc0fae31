package otel

import (
	"net/http"
	"net/url"
	"strings"
)

func isSuccess(r *http.Response, err error) bool {
	if err != nil {
		return false
	}
	return r != nil && r.StatusCode < http.StatusBadRequest
}

func isRedirection(r *http.Response) bool {
	return r != nil && r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest
}

// redactURL masks the userinfo password and values of redacted query parameters, order of the parameters is kept.
func redactURL(u *url.URL, cfg config) string {
	if u.RawQuery == "" || len(cfg.redactedQueryParams) == 0 {
		return u.Redacted()
	}

	clone := *u
	pairs := strings.Split(clone.RawQuery, "&")
	for i, pair := range pairs {
		rawKey, _, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		if cfg.isRedactedQueryParam(key) {
			pairs[i] = rawKey + "=" + maskedURLValue
		}
	}
	clone.RawQuery = strings.Join(pairs, "&")
	return clone.Redacted()
}
