package auth

import (
	"context"

	"github.com/isdelr/goals-be/internal/models"
)

type contextKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user attached by the auth gate.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(contextKey{}).(models.User)
	return user, ok
}
