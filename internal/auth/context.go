package auth

import "context"

// Principal captures the authenticated identity propagated through the
// request context. There is no ambient "current user"; handlers read the
// principal and pass the user id into every authorization call explicitly.
type Principal struct {
	// UserID references the backing users row.
	UserID int64
	// Email is the address bound into the verified token.
	Email string
}

type principalContextKey struct{}

// SetPrincipal stores the authenticated principal on the context for
// downstream consumers.
func SetPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext retrieves the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(Principal)
	return principal, ok
}
