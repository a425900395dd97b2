package telemetry

import (
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/semconv/v1.13.0/httpconv"
	"go.opentelemetry.io/otel/trace"
)

// headers worth keeping on a span, cookies and the rest are dropped.
var tracedHeaders = []string{
	"Content-Type",
	"Content-Encoding",
	"Content-Length",
	"Location",
	"Retry-After",
	"Server",
}

// InstrumentResty opens a span per request made through the client.
// html bodies are large so only their length is attached to the span.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := Tracer(tracerName)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), "http "+req.Method)
		req.SetContext(ctx)
		return nil
	})
	client.OnAfterResponse(onAfterResponse)
	client.OnError(onError)
}

// spanName is "GET race.netkeiba.com/race/shutuba.html", query strings
// vary per race so they are attached as attributes instead.
func spanName(req *http.Request) string {
	if req == nil || req.URL == nil {
		return "http"
	}
	return fmt.Sprintf("%s %s%s", req.Method, req.URL.Host, req.URL.Path)
}

func requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := httpconv.ClientRequest(req)
	if key := req.URL.Query().Get("race_id"); key != "" {
		attrs = append(attrs, attribute.String("keiba.race_key", key))
	}
	return attrs
}

func headerAttributes(prefix string, headers http.Header) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	for _, name := range tracedHeaders {
		if v := headers.Get(name); v != "" {
			attrs = append(attrs, attribute.String(fmt.Sprintf("%s/header: %s", prefix, name), v))
		}
	}
	return attrs
}

func onAfterResponse(_ *resty.Client, res *resty.Response) error {
	span := trace.SpanFromContext(res.Request.Context())
	defer span.End()

	// RawRequest is only populated once the request has been sent
	raw := res.Request.RawRequest
	span.SetName(spanName(raw))
	if raw != nil {
		span.SetAttributes(requestAttributes(raw)...)
	}
	if res.RawResponse != nil {
		span.SetAttributes(httpconv.ClientResponse(res.RawResponse)...)
		if final := res.RawResponse.Request; raw != nil && final != nil && final.URL.String() != raw.URL.String() {
			span.SetAttributes(attribute.String("http.final_url", final.URL.String()))
		}
	}
	span.SetAttributes(headerAttributes("response", res.Header())...)
	span.SetAttributes(attribute.Int("response/body_length", len(res.Body())))

	switch code := res.StatusCode(); {
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		span.SetAttributes(attribute.Bool("keiba.throttled", true))
		span.SetStatus(codes.Error, res.Status())
	case code >= 400:
		span.SetStatus(codes.Error, res.Status())
	}
	return nil
}

func onError(req *resty.Request, err error) {
	span := trace.SpanFromContext(req.Context())
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetName(spanName(req.RawRequest))
	if req.RawRequest != nil {
		span.SetAttributes(requestAttributes(req.RawRequest)...)
	}
}
