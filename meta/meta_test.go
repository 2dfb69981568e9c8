// Package meta_test contains tests for the meta package.
package meta_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rise-and-shine/aggregate/meta"
)

func TestInjectAndExtract(t *testing.T) {
	ctx := meta.InjectMetaToContext(context.Background(), map[meta.ContextKey]string{
		meta.TraceID:       "trace-1",
		meta.Operation:     "save",
		meta.AggregateType: "Order",
	})

	extracted := meta.ExtractMetaFromContext(ctx)

	assert.Equal(t, map[meta.ContextKey]string{
		meta.TraceID:       "trace-1",
		meta.Operation:     "save",
		meta.AggregateType: "Order",
	}, extracted)
}

func TestInject_EmptyValuesSkipped(t *testing.T) {
	ctx := meta.InjectMetaToContext(context.Background(), map[meta.ContextKey]string{
		meta.TraceID:     "trace-1",
		meta.AggregateID: "",
	})

	assert.Equal(t, "trace-1", ctx.Value(meta.TraceID))
	assert.Nil(t, ctx.Value(meta.AggregateID))
}

func TestExtract_EmptyContext(t *testing.T) {
	assert.Empty(t, meta.ExtractMetaFromContext(context.Background()))
}

func TestInject_OverridesExisting(t *testing.T) {
	ctx := meta.InjectMetaToContext(context.Background(), map[meta.ContextKey]string{
		meta.Operation: "save",
	})
	ctx = meta.InjectMetaToContext(ctx, map[meta.ContextKey]string{
		meta.Operation: "delete",
	})

	assert.Equal(t, "delete", meta.ExtractMetaFromContext(ctx)[meta.Operation])
}

func TestServiceInfo(t *testing.T) {
	meta.SetServiceInfo("aggregate-demo", "1.2.3")

	assert.Equal(t, "aggregate-demo", meta.ServiceName())
	assert.Equal(t, "1.2.3", meta.ServiceVersion())
}
