package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opencensus.io/trace"
)

func TestStartServiceSpan(t *testing.T) {
	ctx, span := StartServiceSpan(context.Background(), "Executor", "ProcessChunk")
	defer span.End()

	assert.NotNil(t, span)
	assert.NotNil(t, trace.FromContext(ctx))
}

func TestEndSpanRecordsError(t *testing.T) {
	_, span := trace.StartSpan(context.Background(), "no-error")
	EndSpan(span, nil)

	_, span = trace.StartSpan(context.Background(), "with-error")
	EndSpan(span, errors.New("boom"))
}

func TestAddAttributeNoopWithoutSpan(t *testing.T) {
	AddAttribute(context.Background(), "rows", 3)
}

func TestMarkSpanErrorNoopWithoutSpan(t *testing.T) {
	MarkSpanError(context.Background(), errors.New("boom"))
	MarkSpanError(context.Background(), nil)
}
