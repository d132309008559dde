package middleware

import (
	"context"

	"github.com/angelmondragon/packfinderz-rewards/pkg/enums"
)

// caller is the authenticated identity for one request.
type caller struct {
	userID string
	role   enums.ActorRole
}

type callerKey struct{}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

func withCaller(ctx context.Context, c caller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, c)
}

// UserIDFromContext returns the authenticated user id, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string { return callerFrom(ctx).userID }

func RoleFromContext(ctx context.Context) enums.ActorRole { return callerFrom(ctx).role }

// WithUserID sets the caller's user id, keeping any role already present.
func WithUserID(ctx context.Context, userID string) context.Context {
	c := callerFrom(ctx)
	c.userID = userID
	return withCaller(ctx, c)
}

// WithRole sets the caller's role, keeping any user id already present.
func WithRole(ctx context.Context, role enums.ActorRole) context.Context {
	c := callerFrom(ctx)
	c.role = role
	return withCaller(ctx, c)
}
