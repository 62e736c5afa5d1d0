// ABOUTME: Decodes raw remote records into Conversations, tolerating missing or malformed fields
// ABOUTME: Only a missing key, an empty record, or an underivable counterpart is fatal

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/2389/coven-conversations/internal/remote"
)

// Fatal decode causes, wrapped in a DecodeError.
var (
	ErrMissingKey       = errors.New("record has no key")
	ErrNoFields         = errors.New("record has no fields")
	ErrMissingRecipient = errors.New("recipient missing, cannot derive counterpart")
)

// DecodeError reports a record that could not become a usable Conversation.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding conversation %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode turns a raw record into a Conversation for currentUserID.
//
// Each optional field is read independently; an absent or mistyped field is
// left at its zero value. Decoding fails only when the record has no key, no
// fields at all, or no string recipient to compare against currentUserID.
func Decode(rec remote.Record, currentUserID string) (*Conversation, error) {
	if rec.Key == "" {
		return nil, &DecodeError{Key: rec.Key, Err: ErrMissingKey}
	}
	if len(rec.Fields) == 0 {
		return nil, &DecodeError{Key: rec.Key, Err: ErrNoFields}
	}

	m := rec.Fields
	c := &Conversation{ConversationID: rec.Key}

	c.IsNew, _ = boolField(m, FieldIsNew)
	c.LastMessageText, _ = stringField(m, FieldLastMessageText)
	c.RecipientFullName, _ = stringField(m, FieldRecipientFullName)
	c.Sender, _ = stringField(m, FieldSender)
	c.SenderFullName, _ = stringField(m, FieldSenderFullName)
	c.ChannelType, _ = stringField(m, FieldChannelType)
	c.Timestamp, _ = intField(m, FieldTimestamp)
	if status, ok := intField(m, FieldStatus); ok && status >= math.MinInt32 && status <= math.MaxInt32 {
		c.Status = int(status)
	}

	recipient, ok := stringField(m, FieldRecipient)
	if !ok {
		return nil, &DecodeError{Key: rec.Key, Err: ErrMissingRecipient}
	}
	c.Recipient = recipient

	if c.Recipient == currentUserID {
		c.ConversWith = c.Sender
		c.ConversWithFullName = c.SenderFullName
	} else {
		c.ConversWith = c.Recipient
		c.ConversWithFullName = c.RecipientFullName
	}

	return c, nil
}

func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

func boolField(m map[string]any, key string) (bool, bool) {
	b, ok := m[key].(bool)
	return b, ok
}

// intField accepts any integral numeric encoding: Go integers, whole floats
// (JSON and protobuf Struct numbers) and json.Number.
func intField(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}
