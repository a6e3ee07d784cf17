package domain

import (
	"context"
	"strings"
)

// DefaultActor is recorded in the status log when the caller is anonymous.
const DefaultActor = "order-service"

type actorKey struct{}

// WithActor attaches the authenticated caller's name to ctx.
func WithActor(ctx context.Context, name string) context.Context {
	name = strings.TrimSpace(name)
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, name)
}

func ActorFrom(ctx context.Context) string {
	if name, ok := ctx.Value(actorKey{}).(string); ok {
		return name
	}
	return DefaultActor
}
