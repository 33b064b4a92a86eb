// Package actor identifies the user performing a mutating call so that audit
// rows (deduction logs, transfer logs, stocktake counts) can record who did it.
// The surrounding application authenticates the caller; by the time a request
// reaches this service the identity arrives as a plain header.
package actor

import (
	"context"
)

// Actor represents the entity performing an action in the system.
type Actor struct {
	// Email is the actor's email address, the audit identity used across
	// log tables.
	Email string `json:"email"`

	// Name is the actor's display name (optional)
	Name string `json:"name,omitempty"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a == nil {
		return "system"
	}
	return a.Email
}

// contextKey is the type for context keys to avoid collisions
type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present (e.g., system operations).
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// Email returns the acting user's email, or "system" when no actor is present.
func Email(ctx context.Context) string {
	a := FromContext(ctx)
	if a == nil {
		return "system"
	}
	return a.Email
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs and system-initiated operations.
func SystemActor() *Actor {
	return &Actor{Email: "system@warehousetch.local", Name: "System"}
}
