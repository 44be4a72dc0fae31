package trace

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"time"

	"github.com/keboola/go-reru/pkg/client/decode"
	"github.com/keboola/go-reru/pkg/request"
)

const dumpTraceMaxLength = 2000

type dumpTrace struct {
	ClientTrace
	wr io.Writer
}

// DumpTracer dumps HTTP request and response to a writer.
// Output may contain unmasked tokens, do not use it in production!
func DumpTracer(wr io.Writer) Factory {
	return func(ctx context.Context, reqDef request.Definition) (context.Context, *ClientTrace) {
		var responseStatusCode int
		var requestDump []byte
		var startTime, headersTime time.Time

		t := &dumpTrace{wr: wr}
		t.HTTPRequestStart = func(r *http.Request) {
			startTime = time.Now()
			requestDump, _ = httputil.DumpRequestOut(r, true)
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			// Response can be nil, for example, if some network error occurred
			if r != nil {
				responseStatusCode = r.StatusCode
				headersTime = time.Now()
			}

			// Dump request
			t.log()
			t.log(">>>>>> HTTP DUMP")
			t.dump(string(requestDump))

			// Dump response
			t.log("------")
			if err != nil {
				t.log("ERROR: ", err)
			} else {
				// Dump response headers
				if v, err := httputil.DumpResponse(r, false); err == nil {
					t.log(strings.TrimSpace(string(v)))
				} else {
					t.log("cannot dump response headers: ", err)
				}
				// Dump response body
				if r.Body != nil && r.Body != http.NoBody {
					// Read raw body and set it back to the response, so the caller can read it
					rawBody, err := io.ReadAll(r.Body)
					_ = r.Body.Close()
					r.Body = io.NopCloser(bytes.NewReader(rawBody))
					if err != nil {
						t.log("cannot read response body: ", err)
					}
					// Decode body
					var decodedBody strings.Builder
					if bodyReader, err := decode.Decode(io.NopCloser(bytes.NewReader(rawBody)), r.Header.Get("Content-Encoding")); err != nil {
						t.log("cannot decode response body: ", err)
					} else if _, err := io.Copy(&decodedBody, bodyReader); err != nil {
						t.log("cannot decode response body: ", err)
					}
					// Dump decoded response
					t.log("------")
					t.dump(decodedBody.String())
				}
			}
			t.log("<<<<<< HTTP DUMP END")
		}
		t.RequestProcessed = func(_ *http.Response, err error) {
			t.log()
			t.log(">>>>>> HTTP REQUEST PROCESSED", "|", reqDef, responseStatusCode, "| ERROR:", err, "| HEADERS AT:", headersTime.Sub(startTime), "| DONE AT:", time.Since(startTime))
		}
		t.ResponseBodyClosed = func(bytes int64, err error) {
			t.log()
			t.log(">>>>>> HTTP RESPONSE BODY CLOSED", "|", reqDef, "| BYTES:", bytes, "| ERROR:", err, "| DONE AT:", time.Since(startTime))
		}
		return ctx, &t.ClientTrace
	}
}

func (t *dumpTrace) dump(body string) {
	body = strings.TrimSpace(body)
	if len(body) > dumpTraceMaxLength && os.Getenv("HTTP_DUMP_TRACE_FULL") != "true" { //nolint:forbidigo
		t.log(body[:dumpTraceMaxLength])
		t.log("... (set env HTTP_DUMP_TRACE_FULL=true to see full output)")
	} else {
		t.log(body)
	}
}

func (t *dumpTrace) log(a ...any) {
	_, _ = fmt.Fprintln(t.wr, a...)
}
