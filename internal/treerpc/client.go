// ABOUTME: gRPC client implementing remote.ReadWriteTree against a Tree service
// ABOUTME: Each subscription is a server stream pumped into a remote.Feed

package treerpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/coven-conversations/internal/auth"
	"github.com/2389/coven-conversations/internal/remote"
)

// Dial opens a connection to a Tree server. A non-empty token is sent as a
// bearer credential on every call.
func Dial(addr, token string, plaintext bool) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                30 * time.Second,
			Timeout:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	if plaintext {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}
	if token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(auth.BearerToken{Token: token, AllowInsecure: plaintext}))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return conn, nil
}

// Client is a remote.ReadWriteTree backed by a Tree gRPC service.
type Client struct {
	conn   grpc.ClientConnInterface
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*clientSub
}

type clientSub struct {
	feed   *remote.Feed
	cancel context.CancelFunc
}

var _ remote.ReadWriteTree = (*Client)(nil)

// NewClient wraps a connection. Pass nil logger for default.
func NewClient(conn grpc.ClientConnInterface, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:   conn,
		logger: logger.With("component", "treerpc_client"),
		subs:   make(map[string]*clientSub),
	}
}

// ReadOnce fetches the node's fields. Missing nodes return remote.ErrNotFound.
func (c *Client) ReadOnce(ctx context.Context, path string) (map[string]any, error) {
	req, err := newRequest(map[string]any{keyPath: path})
	if err != nil {
		return nil, err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, MethodReadOnce, req, resp); err != nil {
		return nil, fromStatus(err)
	}
	return resp.AsMap(), nil
}

// WriteField sets a single field on the node at path.
func (c *Client) WriteField(ctx context.Context, path, field string, value any) error {
	req, err := newRequest(map[string]any{keyPath: path, keyField: field, keyValue: value})
	if err != nil {
		return err
	}
	return fromStatus(c.conn.Invoke(ctx, MethodWriteField, req, new(emptypb.Empty)))
}

// SetNode replaces the node's fields.
func (c *Client) SetNode(ctx context.Context, path string, fields map[string]any) error {
	var encoded any
	if fields != nil {
		encoded = fields
	}
	req, err := newRequest(map[string]any{keyPath: path, keyFields: encoded})
	if err != nil {
		return err
	}
	return fromStatus(c.conn.Invoke(ctx, MethodSetNode, req, new(emptypb.Empty)))
}

// RemoveNode deletes the node.
func (c *Client) RemoveNode(ctx context.Context, path string) error {
	req, err := newRequest(map[string]any{keyPath: path})
	if err != nil {
		return err
	}
	return fromStatus(c.conn.Invoke(ctx, MethodRemoveNode, req, new(emptypb.Empty)))
}

// Subscribe opens a server stream for the collection at path. It returns once
// the server has accepted the subscription, so auth and path errors surface
// here rather than on the feed.
//
// If the server ends the stream, a Cancelled event is delivered and the feed
// stays open until Unsubscribe. Cancelling ctx closes the feed directly.
func (c *Client) Subscribe(ctx context.Context, path string) (remote.Subscription, error) {
	req, err := newRequest(map[string]any{keyPath: path})
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := c.conn.NewStream(streamCtx, &ServiceDesc.Streams[0], MethodSubscribe)
	if err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.SendMsg(req); err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	if err := stream.CloseSend(); err != nil {
		cancel()
		return nil, fromStatus(err)
	}

	header, err := stream.Header()
	if err != nil {
		cancel()
		return nil, fromStatus(err)
	}
	ids := header.Get(subIDHeader)
	if len(ids) == 0 {
		// Trailers-only response: the call failed before the feed opened.
		err := stream.RecvMsg(new(structpb.Struct))
		cancel()
		if err == nil || errors.Is(err, io.EOF) {
			err = remote.ErrClosed
		}
		return nil, fromStatus(err)
	}

	sub := &clientSub{feed: remote.NewFeed(ids[0], remote.Join(path)), cancel: cancel}
	c.mu.Lock()
	c.subs[ids[0]] = sub
	c.mu.Unlock()

	go c.receive(streamCtx, stream, sub)

	c.logger.Debug("subscribed", "path", path, "sub_id", ids[0])
	return sub.feed, nil
}

// receive pumps stream messages into the feed until the stream ends.
func (c *Client) receive(ctx context.Context, stream grpc.ClientStream, sub *clientSub) {
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if err != nil {
			if ctx.Err() != nil {
				c.drop(sub.feed.ID())
				return
			}
			if errors.Is(err, io.EOF) {
				err = remote.ErrClosed
			}
			c.logger.Warn("subscription stream ended", "sub_id", sub.feed.ID(), "error", err)
			sub.feed.Push(remote.Event{Kind: remote.EventCancelled, Err: fromStatus(err)})
			sub.cancel()
			return
		}

		ev, err := decodeEvent(msg)
		if err != nil {
			c.logger.Warn("dropping undecodable event", "sub_id", sub.feed.ID(), "error", err)
			continue
		}
		sub.feed.Push(ev)
	}
}

// Unsubscribe cancels the stream and closes the feed. Safe to call more than once.
func (c *Client) Unsubscribe(s remote.Subscription) {
	if s == nil {
		return
	}
	c.drop(s.ID())
	if f, ok := s.(*remote.Feed); ok {
		f.Close()
	}
}

func (c *Client) drop(id string) {
	c.mu.Lock()
	sub, ok := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	if ok {
		sub.cancel()
		sub.feed.Close()
	}
}

// Close cancels every open subscription.
func (c *Client) Close() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		c.drop(id)
	}
}
