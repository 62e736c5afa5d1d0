// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithAuth/FromContext and the per-user path scope check

package auth

import (
	"context"
	"strings"
)

// AuthContext holds the authenticated identity extracted from a request.
type AuthContext struct {
	UserID    string
	AppID     string
	Anonymous bool // set when authentication is disabled
}

// Scope returns the tree path prefix this identity may touch.
func (a *AuthContext) Scope() string {
	return "apps/" + a.AppID + "/users/" + a.UserID
}

// CanAccess reports whether path lies inside the caller's own subtree.
// Anonymous callers may access everything.
func (a *AuthContext) CanAccess(path string) bool {
	if a == nil {
		return false
	}
	if a.Anonymous {
		return true
	}
	path = strings.Trim(path, "/")
	scope := a.Scope()
	return path == scope || strings.HasPrefix(path, scope+"/")
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, ok := ctx.Value(authContextKey{}).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// MustFromContext retrieves the AuthContext from the context, panicking if not present.
func MustFromContext(ctx context.Context) *AuthContext {
	auth := FromContext(ctx)
	if auth == nil {
		panic("auth: AuthContext not found in context")
	}
	return auth
}
