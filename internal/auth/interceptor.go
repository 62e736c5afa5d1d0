// ABOUTME: gRPC interceptors that authenticate tree requests with bearer JWTs
// ABOUTME: Both unary and stream variants share one resolver that builds the AuthContext

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const bearerPrefix = "Bearer "

// resolver turns an incoming call context into the caller's identity.
// fullMethod is only used for logging.
type resolver func(ctx context.Context, fullMethod string) (*AuthContext, error)

// UnaryInterceptor authenticates unary calls with tokens. A nil logger
// disables failure logging.
func UnaryInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return unary(bearerResolver(tokens, logger))
}

// StreamInterceptor authenticates streaming calls with tokens.
func StreamInterceptor(tokens TokenVerifier, logger *slog.Logger) grpc.StreamServerInterceptor {
	return stream(bearerResolver(tokens, logger))
}

// NoAuthUnaryInterceptor marks every caller anonymous. Used when the server
// runs without a JWT secret.
func NoAuthUnaryInterceptor() grpc.UnaryServerInterceptor {
	return unary(anonymous)
}

// NoAuthStreamInterceptor is the stream counterpart of NoAuthUnaryInterceptor.
func NoAuthStreamInterceptor() grpc.StreamServerInterceptor {
	return stream(anonymous)
}

func anonymous(context.Context, string) (*AuthContext, error) {
	return &AuthContext{Anonymous: true}, nil
}

func unary(resolve resolver) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		authCtx, err := resolve(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(WithAuth(ctx, authCtx), req)
	}
}

func stream(resolve resolver) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authCtx, err := resolve(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: WithAuth(ss.Context(), authCtx)})
	}
}

// authedStream overrides Context so handlers see the caller's identity.
type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context {
	return s.ctx
}

// bearerResolver reads "authorization: Bearer <jwt>" from call metadata.
func bearerResolver(tokens TokenVerifier, logger *slog.Logger) resolver {
	reject := func(ctx context.Context, method, reason, msg string, attrs ...any) error {
		if logger != nil {
			attrs = append([]any{"reason", reason, "method", method}, attrs...)
			if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
				attrs = append(attrs, "peer_addr", p.Addr.String())
			}
			logger.Warn("auth failure", attrs...)
		}
		return status.Error(codes.Unauthenticated, msg)
	}

	return func(ctx context.Context, method string) (*AuthContext, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, reject(ctx, method, "missing_header", "missing authorization header")
		}

		raw, ok := strings.CutPrefix(values[0], bearerPrefix)
		if !ok || raw == "" {
			return nil, reject(ctx, method, "bad_header_format", "invalid authorization header format")
		}

		claims, err := tokens.Verify(raw)
		if err != nil {
			return nil, reject(ctx, method, "jwt_auth_failed", "invalid or expired token", "error", err.Error())
		}
		return &AuthContext{UserID: claims.UserID, AppID: claims.AppID}, nil
	}
}
