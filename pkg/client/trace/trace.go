// Package trace extends the httptrace.ClientTrace and adds additional hooks around one sent request.
// A custom ClientTrace definition can be registered in the client.Client by the AndTrace method.
package trace

import (
	"context"
	"net/http"
	"net/http/httptrace"
	"reflect"

	"github.com/keboola/go-reru/pkg/request"
)

// Factory creates ClientTrace hooks for a request.
// The returned context is used for the request, so the factory can attach values, for example a span.
type Factory func(ctx context.Context, reqDef request.Definition) (context.Context, *ClientTrace)

// ClientTrace is a set of hooks to run at various stages of an outgoing request.
type ClientTrace struct {
	httptrace.ClientTrace // native, low level trace
	// HTTPRequestStart is called when the HTTP request begins. It includes redirects.
	HTTPRequestStart func(request *http.Request)
	// HTTPRequestDone is called when the HTTP response headers are received. It includes redirects.
	HTTPRequestDone func(response *http.Response, err error)
	// RequestProcessed is called when the Client.Send method is done, before the response body is read.
	RequestProcessed func(response *http.Response, err error)
	// ResponseBodyClosed is called when the response body is closed, with the number of read bytes.
	ResponseBodyClosed func(bytes int64, err error)
}

// Compose modifies t such that it respects the previously-registered hooks in old.
// Hooks from old are called first. Hooks of the embedded httptrace.ClientTrace are composed too.
func (t *ClientTrace) Compose(old *ClientTrace) {
	if old == nil {
		return
	}
	compose(reflect.ValueOf(t).Elem(), reflect.ValueOf(old).Elem())
}

func compose(tv, ov reflect.Value) {
	for i := 0; i < tv.NumField(); i++ {
		tf := tv.Field(i)
		of := ov.Field(i)

		switch tf.Kind() {
		case reflect.Struct:
			compose(tf, of)
			continue
		case reflect.Func:
		default:
			continue
		}

		if of.IsNil() {
			continue
		}
		if tf.IsNil() {
			tf.Set(of)
			continue
		}

		// Make a copy of tf for tf to call. (Otherwise it
		// creates a recursive call cycle and stack overflows)
		tfCopy := reflect.ValueOf(tf.Interface())
		ofCopy := reflect.ValueOf(of.Interface())
		tf.Set(reflect.MakeFunc(tf.Type(), func(args []reflect.Value) []reflect.Value {
			ofCopy.Call(args)
			return tfCopy.Call(args)
		}))
	}
}
