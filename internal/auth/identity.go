package auth

import (
	"context"

	"github.com/chordmind/apigw/internal/auth/jwt"
)

// Identity is the caller identity derived from a verified token. It is built
// once per request and never modified afterwards.
type Identity struct {
	UserID string
	Email  string
	Claims *jwt.Claims
}

type identityKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity stored in ctx.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
