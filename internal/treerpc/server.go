// ABOUTME: gRPC server exposing a remote.ReadWriteTree as the Tree service
// ABOUTME: Enforces that each caller only touches its own apps/{app}/users/{user} subtree

package treerpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/coven-conversations/internal/auth"
	"github.com/2389/coven-conversations/internal/remote"
)

// Server implements TreeServer on top of a tree.
type Server struct {
	tree   remote.ReadWriteTree
	logger *slog.Logger
}

// NewServer creates a Tree service backed by tree. Pass nil logger for default.
func NewServer(tree remote.ReadWriteTree, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tree:   tree,
		logger: logger.With("component", "treerpc"),
	}
}

// Register adds the service to a gRPC server.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
}

// authorize returns the request path if the caller may access it.
func (s *Server) authorize(ctx context.Context, req *structpb.Struct) (string, error) {
	path := remote.Join(stringOf(req, keyPath))
	if path == "" {
		return "", status.Error(codes.InvalidArgument, "path is required")
	}

	caller := auth.FromContext(ctx)
	if caller == nil {
		return "", status.Error(codes.Unauthenticated, "no auth context")
	}
	if !caller.CanAccess(path) {
		s.logger.Warn("path outside caller scope", "user_id", caller.UserID, "app_id", caller.AppID, "path", path)
		return "", status.Errorf(codes.PermissionDenied, "path %q is outside %q", path, caller.Scope())
	}
	return path, nil
}

// ReadOnce returns the node's fields.
func (s *Server) ReadOnce(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	path, err := s.authorize(ctx, req)
	if err != nil {
		return nil, err
	}

	fields, err := s.tree.ReadOnce(ctx, path)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encoding node: %v", err)
	}
	return out, nil
}

// WriteField sets a single field on a node.
func (s *Server) WriteField(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	path, err := s.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	field := stringOf(req, keyField)
	if field == "" {
		return nil, status.Error(codes.InvalidArgument, "field is required")
	}

	var value any
	if v, ok := req.GetFields()[keyValue]; ok {
		value = v.AsInterface()
	}
	if err := s.tree.WriteField(ctx, path, field, value); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// SetNode replaces a node's fields.
func (s *Server) SetNode(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	path, err := s.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.tree.SetNode(ctx, path, fieldsOf(req, keyFields)); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// RemoveNode deletes a node.
func (s *Server) RemoveNode(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	path, err := s.authorize(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.tree.RemoveNode(ctx, path); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Subscribe streams child events of a collection until the client goes away
// or the underlying feed ends.
func (s *Server) Subscribe(req *structpb.Struct, stream grpc.ServerStream) error {
	ctx := stream.Context()
	path, err := s.authorize(ctx, req)
	if err != nil {
		return err
	}

	sub, err := s.tree.Subscribe(ctx, path)
	if err != nil {
		return toStatus(err)
	}
	defer s.tree.Unsubscribe(sub)

	if err := stream.SendHeader(metadata.Pairs(subIDHeader, sub.ID())); err != nil {
		return err
	}

	logger := s.logger.With("path", path, "sub_id", sub.ID())
	logger.Info("subscriber attached")
	defer logger.Info("subscriber detached")

	events := sub.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return status.Error(codes.Unavailable, "feed closed")
			}
			msg, err := encodeEvent(ev)
			if err != nil {
				logger.Warn("dropping unencodable event", "error", err)
				continue
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}
