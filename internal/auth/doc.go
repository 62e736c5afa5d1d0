// Package auth authenticates clients of the conversation tree service.
//
// # Tokens
//
// Clients present an HS256 JWT signed with the configured jwt_secret. The
// "sub" claim names the user and the "app" claim names the application:
//
//	verifier := auth.NewJWTVerifier(secret)
//	token, err := verifier.Generate("u1", "chat21", 24*time.Hour)
//
// # gRPC Interceptors
//
// UnaryInterceptor and StreamInterceptor read the "authorization: Bearer"
// metadata header, verify it, and attach an AuthContext to the request
// context. NoAuthUnaryInterceptor and NoAuthStreamInterceptor attach an
// anonymous context instead, for local development.
//
// On the client side, BearerToken is a credentials.PerRPCCredentials that
// sends the header on every call.
//
// # Scope
//
// A verified caller may only touch paths under apps/{app}/users/{sub}:
//
//	if !auth.MustFromContext(ctx).CanAccess(path) {
//	    return status.Error(codes.PermissionDenied, "...")
//	}
package auth
