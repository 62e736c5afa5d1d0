// ABOUTME: Conversions between tree requests/events and protobuf Struct messages
// ABOUTME: Also maps remote package errors to gRPC status codes and back

package treerpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/2389/coven-conversations/internal/remote"
)

// Request and event keys.
const (
	keyPath    = "path"
	keyField   = "field"
	keyValue   = "value"
	keyFields  = "fields"
	keyKind    = "kind"
	keyKey     = "key"
	keyPrevKey = "prev_key"
	keyError   = "error"
)

func stringOf(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// fieldsOf returns the nested struct under key, or nil when it is absent or null.
func fieldsOf(s *structpb.Struct, key string) map[string]any {
	v, ok := s.GetFields()[key]
	if !ok {
		return nil
	}
	nested := v.GetStructValue()
	if nested == nil {
		return nil
	}
	return nested.AsMap()
}

func newRequest(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return s, nil
}

func encodeEvent(ev remote.Event) (*structpb.Struct, error) {
	// A nil map would encode as an empty struct; send an explicit null.
	var fields any
	if ev.Record.Fields != nil {
		fields = ev.Record.Fields
	}
	m := map[string]any{
		keyKind:    ev.Kind.String(),
		keyKey:     ev.Record.Key,
		keyPrevKey: ev.PrevKey,
		keyFields:  fields,
	}
	if ev.Err != nil {
		m[keyError] = ev.Err.Error()
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("encoding %s event for %q: %w", ev.Kind, ev.Record.Key, err)
	}
	return s, nil
}

func decodeEvent(s *structpb.Struct) (remote.Event, error) {
	kind := remote.ParseEventKind(stringOf(s, keyKind))
	if kind == 0 {
		return remote.Event{}, fmt.Errorf("unknown event kind %q", stringOf(s, keyKind))
	}
	ev := remote.Event{
		Kind:    kind,
		Record:  remote.Record{Key: stringOf(s, keyKey), Fields: fieldsOf(s, keyFields)},
		PrevKey: stringOf(s, keyPrevKey),
	}
	if msg := stringOf(s, keyError); msg != "" {
		ev.Err = errors.New(msg)
	}
	return ev, nil
}

// toStatus maps tree errors to gRPC status errors.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, remote.ErrInvalidPath):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, remote.ErrClosed):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps gRPC status errors back to tree errors where one exists.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return fmt.Errorf("%w: %s", remote.ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", remote.ErrInvalidPath, st.Message())
	case codes.Canceled:
		return fmt.Errorf("%w: %s", context.Canceled, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", context.DeadlineExceeded, st.Message())
	default:
		return err
	}
}
