// Package auth carries the caller identity resolved by the gateway.
package auth

import (
	"context"

	"github.com/dukerupert/shiftboard/internal/model"
)

type contextKey struct{}

// Actor is the (tenant, user, role) triple a request acts as.
type Actor struct {
	TenantID int64
	UserID   int64
	Role     string
}

func (a Actor) IsAdmin() bool {
	return a.Role == model.RoleAdmin
}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

func TenantID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.TenantID
}

func UserID(ctx context.Context) int64 {
	a, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return a.UserID
}

func IsAdmin(ctx context.Context) bool {
	a, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return a.IsAdmin()
}
