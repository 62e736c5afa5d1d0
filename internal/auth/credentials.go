// ABOUTME: Client-side per-RPC credentials that attach a bearer token to every call
// ABOUTME: Counterpart of the server interceptors in this package

package auth

import (
	"context"
)

// BearerToken implements credentials.PerRPCCredentials.
type BearerToken struct {
	Token string
	// AllowInsecure permits sending the token over a plaintext connection.
	AllowInsecure bool
}

// GetRequestMetadata adds the authorization header.
func (b BearerToken) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + b.Token}, nil
}

// RequireTransportSecurity reports whether TLS is required.
func (b BearerToken) RequireTransportSecurity() bool {
	return !b.AllowInsecure
}
