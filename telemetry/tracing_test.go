package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestInitTracingDisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := InitTracing("", "staticord", "test")
	if err != nil {
		t.Fatal(err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing enabled without an endpoint")
	}
}

func TestSpanHelpersWithNoopProvider(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-1")
	ctx, span := StartSpan(ctx, "test", "op", HTTPMethodAttr("GET"), HTTPRouteAttr("/healthz"))
	defer span.End()
	if ctx == nil {
		t.Fatal("nil context")
	}
	SetSpanHTTPStatus(span, 503)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetSpanSuccess(span)
}
