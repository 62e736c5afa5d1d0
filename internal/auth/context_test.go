// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests path scoping and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestAuthContext_CanAccess(t *testing.T) {
	user := &AuthContext{UserID: "u1", AppID: "chat21"}

	tests := []struct {
		name string
		auth *AuthContext
		path string
		want bool
	}{
		{name: "own collection", auth: user, path: "apps/chat21/users/u1/conversations", want: true},
		{name: "own node", auth: user, path: "apps/chat21/users/u1/conversations/c1", want: true},
		{name: "leading slash", auth: user, path: "/apps/chat21/users/u1/conversations", want: true},
		{name: "user root", auth: user, path: "apps/chat21/users/u1", want: true},
		{name: "other user", auth: user, path: "apps/chat21/users/u2/conversations", want: false},
		{name: "user id prefix", auth: user, path: "apps/chat21/users/u10/conversations", want: false},
		{name: "other app", auth: user, path: "apps/other/users/u1/conversations", want: false},
		{name: "app root", auth: user, path: "apps/chat21", want: false},
		{name: "anonymous", auth: &AuthContext{Anonymous: true}, path: "apps/x/users/y", want: true},
		{name: "nil", auth: nil, path: "apps/chat21/users/u1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.auth.CanAccess(tt.path); got != tt.want {
				t.Errorf("CanAccess(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestWithAuth_FromContext(t *testing.T) {
	auth := &AuthContext{UserID: "u1", AppID: "chat21"}
	ctx := WithAuth(context.Background(), auth)

	got := FromContext(ctx)
	if got != auth {
		t.Errorf("FromContext() = %v, want %v", got, auth)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustFromContext() should panic when auth is missing")
		}
	}()
	MustFromContext(context.Background())
}
