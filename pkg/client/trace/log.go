package trace

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/keboola/go-reru/pkg/request"
)

type logTrace struct {
	ClientTrace
	wr        io.Writer
	requestID uint64
}

// LogTracer prints one line for each stage of the request to the writer.
// Requests are numbered, so lines of parallel requests can be matched.
func LogTracer(wr io.Writer) Factory {
	var idGenerator uint64
	return func(ctx context.Context, reqDef request.Definition) (context.Context, *ClientTrace) {
		var req *http.Request
		var connStartTime time.Time
		var startTime time.Time
		var doneTime time.Time

		t := &logTrace{wr: wr, requestID: atomic.AddUint64(&idGenerator, 1)}
		t.ConnectStart = func(network, addr string) {
			connStartTime = time.Now()
		}
		t.GotConn = func(info httptrace.GotConnInfo) {
			var infoStr string
			if info.Reused {
				if info.WasIdle {
					infoStr = fmt.Sprintf("reused conn (was idle=%s)", info.IdleTime)
				} else {
					infoStr = "reused conn"
				}
			} else {
				infoStr = fmt.Sprintf("new conn | %s", time.Since(connStartTime))
			}
			t.log(fmt.Sprintf(`CONN  %s "%s" | %s`, req.Method, req.URL.String(), infoStr))
		}
		t.HTTPRequestStart = func(r *http.Request) {
			req = r
			startTime = time.Now()
			t.log(fmt.Sprintf(`START %s "%s"`, req.Method, req.URL.String()))
		}
		t.HTTPRequestDone = func(r *http.Response, err error) {
			doneTime = time.Now()
			var statusCode int
			var errorStr string
			if r != nil {
				statusCode = r.StatusCode
			}
			if err != nil {
				errorStr = fmt.Sprintf(" | error=%s", err)
			}
			t.log(fmt.Sprintf(`DONE  %s "%s" | %d | %s%s`, req.Method, req.URL.String(), statusCode, doneTime.Sub(startTime), errorStr))
		}
		t.RequestProcessed = func(_ *http.Response, err error) {
			if err != nil {
				t.log(fmt.Sprintf(`ERROR %s | %s`, reqDef, err))
			}
		}
		t.ResponseBodyClosed = func(bytes int64, err error) {
			var errorStr string
			if err != nil {
				errorStr = fmt.Sprintf(" | error=%s", err)
			}
			t.log(fmt.Sprintf(`BODY  %s | %dB | %s%s`, reqDef, bytes, time.Since(doneTime), errorStr))
		}
		return ctx, &t.ClientTrace
	}
}

func (t *logTrace) log(a ...any) {
	a = append([]any{fmt.Sprintf("HTTP_REQUEST[%04d]", t.requestID)}, a...)
	_, _ = fmt.Fprintln(t.wr, a...)
}
