// Package ctxutil provides context utilities that can be safely imported anywhere.
// This package has no internal dependencies to avoid import cycles.
package ctxutil

import "context"

// SystemActor is recorded for changes made by triggers and batch jobs.
const SystemActor = "system"

// ActorKey is the context key for actor ID.
// Exported so it can be used consistently across packages.
type ActorKey struct{}

// WithActorID returns a context with the actor ID embedded.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorKey{}, actorID)
}

// WithSystemActor marks ctx as an automatic change.
func WithSystemActor(ctx context.Context) context.Context {
	return WithActorID(ctx, SystemActor)
}

// ActorFromContext returns the actor ID from context, or SystemActor if not set.
func ActorFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ActorKey{}).(string); ok && v != "" {
		return v
	}
	return SystemActor
}
