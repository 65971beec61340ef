// Package trace carries the per-request trace identifier through contexts.
package trace

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the trace identifier.
const Header = "X-Request-ID"

type ctxKey struct{}

// WithID returns a copy of ctx carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// ID returns the trace identifier stored in ctx, or "".
func ID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Ensure returns ctx and its trace identifier, attaching a fresh one when
// ctx has none.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// NewID generates a new trace identifier.
func NewID() string {
	return uuid.New().String()
}
