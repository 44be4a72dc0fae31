package otel_test

import (
	"context"
	"encoding/binary"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	export "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	otelTrace "go.opentelemetry.io/otel/trace"

	"github.com/keboola/go-reru/pkg/client"
	"github.com/keboola/go-reru/pkg/client/trace/otel"
	"github.com/keboola/go-reru/pkg/request"
)

const (
	testTraceID    = 0xabcd
	testSpanIDBase = 0x1000
)

type testIDGenerator struct {
	spanID uint16
}

func (g *testIDGenerator) NewIDs(ctx context.Context) (otelTrace.TraceID, otelTrace.SpanID) {
	traceID := toTraceID(testTraceID)
	return traceID, g.NewSpanID(ctx, traceID)
}

func (g *testIDGenerator) NewSpanID(_ context.Context, _ otelTrace.TraceID) otelTrace.SpanID {
	g.spanID++
	return toSpanID(testSpanIDBase + g.spanID)
}

func toTraceID(in uint16) otelTrace.TraceID { //nolint: unparam
	tmp := make([]byte, 16)
	binary.BigEndian.PutUint16(tmp, in)
	return *(*[16]byte)(tmp)
}

func toSpanID(in uint16) otelTrace.SpanID {
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint16(tmp, in)
	return *(*[8]byte)(tmp)
}

func TestMockedRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Mocked responses (redirect, OK)
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com/redirect`, func(request *http.Request) (*http.Response, error) {
		header := make(http.Header)
		header.Set("Location", "https://example.com/index")
		return &http.Response{StatusCode: http.StatusMovedPermanently, Header: header}, nil
	})
	transport.RegisterResponder("GET", `https://example.com/index`, httpmock.NewStringResponder(http.StatusOK, "OK"))

	// Setup telemetry
	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(trace.WithSyncer(traceExporter), trace.WithIDGenerator(&testIDGenerator{}))
	metricReader := metric.NewManualReader()
	meterProvider := metric.NewMeterProvider(metric.WithReader(metricReader))

	// Create client
	c := client.New().
		WithTransport(transport).
		AndTrace(otel.NewTrace(
			tracerProvider,
			meterProvider,
			otel.WithRedactedQueryParam("secret"),
			otel.WithRedactedHeaders("X-Token"),
			otel.WithPropagators(propagation.TraceContext{}),
		))

	// Run request
	req, err := request.Get("https://example.com/redirect")
	require.NoError(t, err)
	res, err := req.
		AndQueryParam("foo", "bar").
		AndQueryParam("secret", "my-secret").
		AndHeader("X-Token", "my-secret").
		Send(ctx, c)
	require.NoError(t, err)

	// Root span is not finished until the body is closed
	for _, span := range traceExporter.GetSpans() {
		assert.NotEqual(t, "reru.client.request", span.Name)
	}
	text, err := res.Text()
	require.NoError(t, err)
	assert.Equal(t, "OK", text)

	// Assert spans
	spans := actualSpans(traceExporter)
	require.Len(t, spans, 3)
	rootSpan, redirectSpan, indexSpan := spans[0], spans[1], spans[2]
	assert.Equal(t, "reru.client.request", rootSpan.Name)
	assert.Equal(t, "http.request", redirectSpan.Name)
	assert.Equal(t, "http.request", indexSpan.Name)
	assert.Equal(t, rootSpan.SpanContext, redirectSpan.Parent)
	assert.Equal(t, rootSpan.SpanContext, indexSpan.Parent)
	assert.Equal(t, codes.Unset, rootSpan.Status.Code)

	assert.Equal(t, map[attribute.Key]any{
		"resource.name":                "/redirect",
		"span.kind":                    "client",
		"span.type":                    "http",
		"http.method":                  "GET",
		"http.url":                     "https://example.com/redirect?foo=bar&secret=....",
		"http.url_details.scheme":      "https",
		"http.url_details.path":        "/redirect",
		"http.url_details.host":        "example.com",
		"http.url_details.host_prefix": "example",
		"http.url_details.host_suffix": "com",
		"http.header.X-Token":          "****",
		"http.query.foo":               "bar",
		"http.query.secret":            "****",
		"http.status_code":             int64(200),
		"http.read_bytes":              int64(2),
	}, attrsMap(rootSpan.Attributes))

	redirectAttrs := attrsMap(redirectSpan.Attributes)
	assert.Equal(t, int64(http.StatusMovedPermanently), redirectAttrs["http.status_code"])
	assert.Equal(t, true, redirectAttrs["http.is_redirection"])
	assert.Equal(t, "https://example.com/redirect?foo=bar&secret=....", redirectAttrs["http.url"])
	assert.Equal(t, "example.com", redirectAttrs["net.peer.name"])
	assert.Equal(t, "****", redirectAttrs["http.header.x-token"])
	assert.Equal(t, "https://example.com/index", redirectAttrs["http.response.header.location"])
	assert.Equal(t, "00-abcd0000000000000000000000000000-1002000000000000-01", redirectAttrs["http.header.traceparent"])

	indexAttrs := attrsMap(indexSpan.Attributes)
	assert.Equal(t, int64(http.StatusOK), indexAttrs["http.status_code"])
	assert.Equal(t, "https://example.com/index", indexAttrs["http.url"])
	assert.Equal(t, "/index", indexAttrs["resource.name"])
	assert.Equal(t, "00-abcd0000000000000000000000000000-1003000000000000-01", indexAttrs["http.header.traceparent"])

	// Assert metrics
	metrics := actualMetrics(t, ctx, metricReader)
	assert.Equal(t, []string{
		"reru.client.request.duration",
		"reru.client.request.in_flight",
		"reru.http.request.duration",
		"reru.http.response.body.bytes",
	}, metricNames(metrics))

	inFlight := metrics["reru.client.request.in_flight"].Data.(metricdata.Sum[int64])
	require.Len(t, inFlight.DataPoints, 1)
	assert.Equal(t, int64(0), inFlight.DataPoints[0].Value)
	assert.False(t, inFlight.IsMonotonic)

	clientDuration := metrics["reru.client.request.duration"].Data.(metricdata.Histogram[float64])
	require.Len(t, clientDuration.DataPoints, 1)
	assert.Equal(t, uint64(1), clientDuration.DataPoints[0].Count)
	status, _ := clientDuration.DataPoints[0].Attributes.Value("http.status_code")
	assert.Equal(t, int64(200), status.AsInt64())

	httpDuration := metrics["reru.http.request.duration"].Data.(metricdata.Histogram[float64])
	assert.Len(t, httpDuration.DataPoints, 2)

	bodyBytes := metrics["reru.http.response.body.bytes"].Data.(metricdata.Sum[int64])
	require.Len(t, bodyBytes.DataPoints, 1)
	assert.Equal(t, int64(2), bodyBytes.DataPoints[0].Value)
	assert.Equal(t, "By", metrics["reru.http.response.body.bytes"].Unit)
}

func TestNetworkError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Mocked error
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewErrorResponder(errors.New("network down")))

	// Setup telemetry
	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(trace.WithSyncer(traceExporter), trace.WithIDGenerator(&testIDGenerator{}))
	metricReader := metric.NewManualReader()
	meterProvider := metric.NewMeterProvider(metric.WithReader(metricReader))

	// Create client
	c := client.New().WithTransport(transport).AndTrace(otel.NewTrace(tracerProvider, meterProvider))

	// Run request
	req, err := request.Get("https://example.com")
	require.NoError(t, err)
	_, err = req.Send(ctx, c)
	require.Error(t, err)

	// Assert spans
	spans := actualSpans(traceExporter)
	require.Len(t, spans, 2)
	rootSpan, httpSpan := spans[0], spans[1]
	assert.Equal(t, "reru.client.request", rootSpan.Name)
	assert.Equal(t, codes.Error, rootSpan.Status.Code)
	assert.Equal(t, "network down", rootSpan.Status.Description)
	assert.Equal(t, "net", attrsMap(rootSpan.Attributes)["http.error_type"])
	assert.Equal(t, "http.request", httpSpan.Name)
	assert.Equal(t, codes.Error, httpSpan.Status.Code)
	if assert.Len(t, httpSpan.Events, 1) {
		assert.Equal(t, "exception", httpSpan.Events[0].Name)
	}

	// In flight counter is decremented, body is not read
	metrics := actualMetrics(t, ctx, metricReader)
	inFlight := metrics["reru.client.request.in_flight"].Data.(metricdata.Sum[int64])
	require.Len(t, inFlight.DataPoints, 1)
	assert.Equal(t, int64(0), inFlight.DataPoints[0].Value)
	assert.NotContains(t, metricNames(metrics), "reru.http.response.body.bytes")
}

func TestHTTPErrorStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", `https://example.com`, httpmock.NewStringResponder(http.StatusServiceUnavailable, "unavailable"))

	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(trace.WithSyncer(traceExporter), trace.WithIDGenerator(&testIDGenerator{}))
	c := client.New().WithTransport(transport).AndTrace(otel.NewTrace(tracerProvider, nil))

	req, err := request.Get("https://example.com")
	require.NoError(t, err)
	res, err := req.Send(ctx, c)
	require.NoError(t, err)
	assert.True(t, res.IsError())
	require.NoError(t, res.Close())

	// HTTP span has error status, the root span is not an error, the request has been processed
	spans := actualSpans(traceExporter)
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, "http_5xx_code", attrsMap(spans[0].Attributes)["http.error_type"])
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "HTTP status code: 503 Service Unavailable", spans[1].Status.Description)
}

func TestRealRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Local server
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"foo":"bar"}`))
	}))
	defer server.Close()

	// Setup tracing
	res, err := resource.New(ctx)
	require.NoError(t, err)
	traceExporter := tracetest.NewInMemoryExporter()
	tracerProvider := trace.NewTracerProvider(
		trace.WithSyncer(traceExporter),
		trace.WithResource(res),
		trace.WithIDGenerator(&testIDGenerator{}),
	)

	// Setup metrics, the exporter is registered to the default Prometheus registry
	metricExporter, err := export.New()
	require.NoError(t, err)
	meterProvider := metric.NewMeterProvider(
		metric.WithReader(metricExporter),
		metric.WithResource(res),
	)

	// Run request
	c := client.New().AndTrace(otel.NewTrace(tracerProvider, meterProvider))
	req, err := request.Get(server.URL)
	require.NoError(t, err)
	result, err := request.SendJSON[map[string]string](ctx, c, req)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"foo": "bar"}, result)

	// Assert spans, all spans must be finished
	spans := actualSpans(traceExporter)
	var spanNames []string
	for _, span := range spans {
		spanNames = append(spanNames, span.Name)
		assert.NotZero(t, span.StartTime)
		assert.NotZero(t, span.EndTime)
	}
	assert.Subset(t, spanNames, []string{"reru.client.request", "http.request", "http.getconn", "http.connect"})
	assert.NotContains(t, spanNames, "http.tls")

	// Assert metrics
	assert.Equal(t, []string{
		"reru.client.request.duration",
		"reru.client.request.in_flight",
		"reru.http.request.duration",
		"reru.http.response.body.bytes",
	}, metricNames(actualMetrics(t, ctx, metricExporter)))
}

func actualSpans(exporter *tracetest.InMemoryExporter) tracetest.SpanStubs {
	spans := exporter.GetSpans()
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].SpanContext.SpanID().String() < spans[j].SpanContext.SpanID().String()
	})
	return spans
}

func actualMetrics(t *testing.T, ctx context.Context, reader metric.Reader) map[string]metricdata.Metrics {
	t.Helper()
	all := &metricdata.ResourceMetrics{}
	require.NoError(t, reader.Collect(ctx, all))
	out := make(map[string]metricdata.Metrics)
	for _, scope := range all.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func metricNames(metrics map[string]metricdata.Metrics) []string {
	var out []string
	for name := range metrics {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func attrsMap(attrs []attribute.KeyValue) map[attribute.Key]any {
	out := make(map[attribute.Key]any)
	for _, attr := range attrs {
		out[attr.Key] = attr.Value.AsInterface()
	}
	return out
}
