package common

import (
	"context"
	"slices"
)

type ctxKey string

const (
	userIDKey      ctxKey = "auth/user-id"
	rolesKey       ctxKey = "auth/roles"
	cartSessionKey ctxKey = "cart/session-key"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithRoles stores the roles granted by the access token.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, append([]string(nil), roles...))
}

// HasRole reports whether the authenticated caller holds role.
func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(rolesKey).([]string)
	return slices.Contains(roles, role)
}

// WithCartSession stores the resolved cart session key.
func WithCartSession(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, cartSessionKey, key)
}

// CartSession returns the cart session key resolved for the request.
func CartSession(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(cartSessionKey).(string)
	return key, ok && key != ""
}
