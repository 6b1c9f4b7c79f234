// Package ctxattr stores OpenTelemetry attributes in a context.Context.
// The attributes are added to each log record created with the context.
package ctxattr

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

type ctxKey string

const attributesCtxKey = ctxKey("ctxattr")

// ContextWith returns a new context with added attributes.
// An existing attribute with the same key is replaced.
func ContextWith(ctx context.Context, attrs ...attribute.KeyValue) context.Context {
	set := Attributes(ctx)
	merged := append(set.ToSlice(), attrs...)
	newSet := attribute.NewSet(merged...)
	return context.WithValue(ctx, attributesCtxKey, &newSet)
}

// Attributes returns attributes stored in the context, or an empty set.
func Attributes(ctx context.Context) *attribute.Set {
	if set, ok := ctx.Value(attributesCtxKey).(*attribute.Set); ok {
		return set
	}
	empty := attribute.NewSet()
	return &empty
}
