package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

func TestDisabledTracingStillHandsOutSpans(t *testing.T) {
	require.NoError(t, Initialize(Config{Enabled: false}, zaptest.NewLogger(t)))

	ctx, span := StartSpan(context.Background(), "noop")
	defer span.End()
	assert.NotNil(t, ctx)
	assert.Empty(t, W3CTraceparent(ctx))
	assert.NoError(t, Shutdown(context.Background()))
}

func TestInjectTraceparent(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	setTracer(tp.Tracer("test"))

	ctx, span := StartHTTPSpan(context.Background(), http.MethodPost, "http://qdrant:6333/collections/x/points/query")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://example", nil)
	require.NoError(t, err)
	InjectTraceparent(ctx, req)

	header := req.Header.Get("traceparent")
	assert.Regexp(t, `^00-[0-9a-f]{32}-[0-9a-f]{16}-0[01]$`, header)
}

func TestTraceparentFlagsAreOneByte(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "sampled")
	defer span.End()

	header := W3CTraceparent(ctx)
	sc := span.SpanContext()
	assert.Equal(t, "00-"+sc.TraceID().String()+"-"+sc.SpanID().String()+"-01", header)
}
