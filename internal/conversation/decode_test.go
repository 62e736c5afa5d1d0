// ABOUTME: Tests for decoding raw remote records into Conversations
// ABOUTME: Covers counterpart derivation, lenient fields, numeric encodings, and fatal cases

package conversation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-conversations/internal/remote"
)

func TestDecode_IncomingConversation(t *testing.T) {
	rec := remote.Record{Key: "c1", Fields: map[string]any{
		"sender":             "u2",
		"recipient":          "u1",
		"sender_fullname":    "Bob",
		"recipient_fullname": "Alice",
		"timestamp":          int64(100),
		"is_new":             true,
		"last_message_text":  "hey",
		"status":             int64(150),
		"channel_type":       "direct",
	}}

	conv, err := Decode(rec, "u1")
	require.NoError(t, err)

	assert.Equal(t, &Conversation{
		ConversationID:      "c1",
		IsNew:               true,
		LastMessageText:     "hey",
		Recipient:           "u1",
		RecipientFullName:   "Alice",
		Sender:              "u2",
		SenderFullName:      "Bob",
		Status:              150,
		Timestamp:           100,
		ChannelType:         "direct",
		ConversWith:         "u2",
		ConversWithFullName: "Bob",
	}, conv)
}

func TestDecode_OutgoingConversationTalksToRecipient(t *testing.T) {
	rec := remote.Record{Key: "c2", Fields: map[string]any{
		"sender":             "u1",
		"recipient":          "u2",
		"recipient_fullname": "Bob",
		"timestamp":          int64(200),
		"is_new":             true,
	}}

	conv, err := Decode(rec, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u2", conv.ConversWith)
	assert.Equal(t, "Bob", conv.ConversWithFullName)
}

func TestDecode_MissingOptionalFieldsDefault(t *testing.T) {
	rec := remote.Record{Key: "c3", Fields: map[string]any{
		"sender":    "u2",
		"recipient": "u1",
	}}

	conv, err := Decode(rec, "u1")
	require.NoError(t, err)
	assert.Empty(t, conv.LastMessageText)
	assert.Empty(t, conv.SenderFullName)
	assert.False(t, conv.IsNew)
	assert.Zero(t, conv.Timestamp)
	assert.Equal(t, "u2", conv.ConversWith)
	assert.Empty(t, conv.ConversWithFullName)
}

func TestDecode_MistypedFieldsAreAbsorbed(t *testing.T) {
	rec := remote.Record{Key: "c4", Fields: map[string]any{
		"sender":            "u2",
		"recipient":         "u1",
		"is_new":            "yes",
		"last_message_text": 42,
		"sender_fullname":   []any{"Bob"},
		"status":            "active",
		"timestamp":         12.5,
		"channel_type":      map[string]any{"type": "group"},
	}}

	conv, err := Decode(rec, "u1")
	require.NoError(t, err)
	assert.False(t, conv.IsNew)
	assert.Empty(t, conv.LastMessageText)
	assert.Empty(t, conv.SenderFullName)
	assert.Zero(t, conv.Status)
	assert.Zero(t, conv.Timestamp)
	assert.Empty(t, conv.ChannelType)
	assert.Equal(t, "u2", conv.ConversWith)
}

func TestDecode_NumericEncodings(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int64
	}{
		{name: "int", value: 7, want: 7},
		{name: "int64", value: int64(1700000000123), want: 1700000000123},
		{name: "whole float64", value: float64(1700000000123), want: 1700000000123},
		{name: "json number", value: json.Number("1700000000123"), want: 1700000000123},
		{name: "fractional json number", value: json.Number("1.5"), want: 0},
		{name: "uint32", value: uint32(9), want: 9},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := remote.Record{Key: "c", Fields: map[string]any{
				"recipient": "u1",
				"timestamp": tc.value,
			}}
			conv, err := Decode(rec, "u1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, conv.Timestamp)
		})
	}
}

func TestDecode_FatalCases(t *testing.T) {
	tests := []struct {
		name    string
		rec     remote.Record
		wantErr error
	}{
		{
			name:    "no fields",
			rec:     remote.Record{Key: "c1"},
			wantErr: ErrNoFields,
		},
		{
			name:    "empty fields",
			rec:     remote.Record{Key: "c1", Fields: map[string]any{}},
			wantErr: ErrNoFields,
		},
		{
			name:    "no key",
			rec:     remote.Record{Fields: map[string]any{"recipient": "u1"}},
			wantErr: ErrMissingKey,
		},
		{
			name:    "recipient missing",
			rec:     remote.Record{Key: "c1", Fields: map[string]any{"sender": "u2", "is_new": true}},
			wantErr: ErrMissingRecipient,
		},
		{
			name:    "recipient mistyped",
			rec:     remote.Record{Key: "c1", Fields: map[string]any{"recipient": 17}},
			wantErr: ErrMissingRecipient,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conv, err := Decode(tc.rec, "u1")
			assert.Nil(t, conv)
			require.ErrorIs(t, err, tc.wantErr)

			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, tc.rec.Key, decodeErr.Key)
		})
	}
}

func TestConversation_FieldsRoundTripThroughDecode(t *testing.T) {
	in := &Conversation{
		ConversationID:    "c1",
		IsNew:             true,
		LastMessageText:   "hi",
		Recipient:         "u2",
		RecipientFullName: "Bob",
		Sender:            "u1",
		SenderFullName:    "Alice",
		Status:            200,
		Timestamp:         1234,
		ChannelType:       "direct",
	}

	out, err := Decode(remote.Record{Key: "c1", Fields: in.Fields()}, "u1")
	require.NoError(t, err)

	in.ConversWith = "u2"
	in.ConversWithFullName = "Bob"
	assert.Equal(t, in, out)
}

func TestPaths(t *testing.T) {
	assert.Equal(t, "apps/chat21/users/u1/conversations", CollectionPath("chat21", "u1"))
	assert.Equal(t, "apps/chat21/users/u1/conversations/c1", NodePath("chat21", "u1", "c1"))
}

func TestSameConversation(t *testing.T) {
	a := &Conversation{ConversationID: "c1", Timestamp: 1}
	b := &Conversation{ConversationID: "c1", Timestamp: 2}
	c := &Conversation{ConversationID: "c2"}

	assert.True(t, SameConversation(a, b))
	assert.False(t, SameConversation(a, c))
	assert.False(t, SameConversation(a, nil))
	assert.True(t, SameConversation(nil, nil))
}
