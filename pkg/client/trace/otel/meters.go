package otel

import otelMetric "go.opentelemetry.io/otel/metric"

type meters struct {
	clientInFlight otelMetric.Int64UpDownCounter
	clientDuration otelMetric.Float64Histogram
	httpDuration   otelMetric.Float64Histogram
	bodyBytes      otelMetric.Int64Counter
}

func newMeters(meter otelMetric.Meter) *meters {
	return &meters{
		clientInFlight: upDownCounter(meter, clientPrefix+"request.in_flight", "HTTP client: in flight requests."),
		clientDuration: histogram(meter, clientPrefix+"request.duration", "HTTP client: requests duration, including the response body reading.", "ms"),
		httpDuration:   histogram(meter, httpMeterPrefix+"request.duration", "HTTP request: response headers received duration.", "ms"),
		bodyBytes:      counter(meter, httpMeterPrefix+"response.body.bytes", "HTTP response: read body bytes.", "By"),
	}
}

func upDownCounter(meter otelMetric.Meter, name, desc string) otelMetric.Int64UpDownCounter {
	return mustInstrument(meter.Int64UpDownCounter(name, otelMetric.WithDescription(desc)))
}

func counter(meter otelMetric.Meter, name, desc, unit string) otelMetric.Int64Counter {
	return mustInstrument(meter.Int64Counter(name, otelMetric.WithDescription(desc), otelMetric.WithUnit(unit)))
}

func histogram(meter otelMetric.Meter, name, desc, unit string) otelMetric.Float64Histogram {
	return mustInstrument(meter.Float64Histogram(name, otelMetric.WithDescription(desc), otelMetric.WithUnit(unit)))
}

func mustInstrument[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
