package trackbridge

import (
	"context"
	"errors"
)

type ctxKey struct{}

// ErrNoProvider is the panic value of [FromContext] when ctx carries no
// [Analytics].
var ErrNoProvider = errors.New("trackbridge: FromContext called without a provider in the context")

// NewContext returns a copy of ctx carrying a.
func NewContext(ctx context.Context, a *Analytics) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// AnalyticsFromContext returns the [Analytics] stored in ctx, if any.
func AnalyticsFromContext(ctx context.Context) (*Analytics, bool) {
	a, ok := ctx.Value(ctxKey{}).(*Analytics)
	return a, ok && a != nil
}

// FromContext returns the [Analytics] stored in ctx. It panics with
// [ErrNoProvider] if there is none, which is a wiring bug rather than a
// runtime condition.
func FromContext(ctx context.Context) *Analytics {
	a, ok := AnalyticsFromContext(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return a
}
