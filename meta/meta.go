// Package meta provides request and service metadata carried through context.
package meta

import (
	"context"
	"sync/atomic"
)

// ContextKey is a type for keys used in context values for metadata.
type ContextKey string

const (
	// TraceID represents a unique identifier for tracing requests across services.
	TraceID ContextKey = "trace_id"

	// Operation identifies the logical operation an aggregate change belongs to.
	Operation ContextKey = "operation"

	// AggregateType identifies the aggregate root type being persisted.
	AggregateType ContextKey = "aggregate_type"

	// AggregateID identifies the aggregate instance being persisted.
	AggregateID ContextKey = "aggregate_id"
)

// contextKeys lists the keys extracted by ExtractMetaFromContext.
var contextKeys = []ContextKey{TraceID, Operation, AggregateType, AggregateID}

// InjectMetaToContext adds metadata from the provided map to the context.
// It only adds values that are not empty strings and returns a new
// context with the added values.
func InjectMetaToContext(ctx context.Context, data map[ContextKey]string) context.Context {
	for k, v := range data {
		if v != "" {
			ctx = context.WithValue(ctx, k, v)
		}
	}
	return ctx
}

// ExtractMetaFromContext collects the known metadata values present in ctx.
func ExtractMetaFromContext(ctx context.Context) map[ContextKey]string {
	out := make(map[ContextKey]string, len(contextKeys))
	for _, k := range contextKeys {
		if v, ok := ctx.Value(k).(string); ok && v != "" {
			out[k] = v
		}
	}
	return out
}

//nolint:gochecknoglobals // service identity is process-wide by nature
var (
	serviceName    atomic.Value // string
	serviceVersion atomic.Value // string
)

// SetServiceInfo records the running service's name and version,
// attached to traces and log entries by the tracing and logger packages.
func SetServiceInfo(name, version string) {
	serviceName.Store(name)
	serviceVersion.Store(version)
}

// ServiceName returns the recorded service name, "" when unset.
func ServiceName() string {
	if v, ok := serviceName.Load().(string); ok {
		return v
	}
	return ""
}

// ServiceVersion returns the recorded service version, "" when unset.
func ServiceVersion() string {
	if v, ok := serviceVersion.Load().(string); ok {
		return v
	}
	return ""
}
