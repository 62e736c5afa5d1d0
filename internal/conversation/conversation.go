// ABOUTME: Conversation model as seen from the current user's side of a thread
// ABOUTME: Includes wire field names and the remote path layout for the collection

package conversation

import (
	"time"

	"github.com/2389/coven-conversations/internal/remote"
)

// Wire field names of a conversation node.
const (
	FieldIsNew             = "is_new"
	FieldLastMessageText   = "last_message_text"
	FieldRecipient         = "recipient"
	FieldRecipientFullName = "recipient_fullname"
	FieldSender            = "sender"
	FieldSenderFullName    = "sender_fullname"
	FieldStatus            = "status"
	FieldTimestamp         = "timestamp"
	FieldChannelType       = "channel_type"
)

// Conversation is one chat thread from the current user's perspective.
// ConversationID is the remote node key and the only identity used for
// lookup and upsert. ConversWith and ConversWithFullName are derived at
// decode time and name the other participant.
type Conversation struct {
	ConversationID      string
	IsNew               bool
	LastMessageText     string
	Recipient           string
	RecipientFullName   string
	Sender              string
	SenderFullName      string
	Status              int
	Timestamp           int64 // epoch milliseconds, sort key
	ChannelType         string
	ConversWith         string
	ConversWithFullName string
}

// SameConversation reports whether a and b refer to the same thread.
func SameConversation(a, b *Conversation) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ConversationID == b.ConversationID
}

// Time returns the timestamp as a UTC time.
func (c *Conversation) Time() time.Time {
	return time.UnixMilli(c.Timestamp).UTC()
}

// Fields encodes the conversation as a remote node. Derived fields are not
// stored; they are recomputed by Decode for each reader.
func (c *Conversation) Fields() map[string]any {
	fields := map[string]any{
		FieldIsNew:     c.IsNew,
		FieldRecipient: c.Recipient,
		FieldSender:    c.Sender,
		FieldStatus:    int64(c.Status),
		FieldTimestamp: c.Timestamp,
	}
	if c.LastMessageText != "" {
		fields[FieldLastMessageText] = c.LastMessageText
	}
	if c.RecipientFullName != "" {
		fields[FieldRecipientFullName] = c.RecipientFullName
	}
	if c.SenderFullName != "" {
		fields[FieldSenderFullName] = c.SenderFullName
	}
	if c.ChannelType != "" {
		fields[FieldChannelType] = c.ChannelType
	}
	return fields
}

// CollectionPath is the remote path of a user's conversation collection.
func CollectionPath(appID, userID string) string {
	return remote.Join("apps", appID, "users", userID, "conversations")
}

// NodePath is the remote path of a single conversation node.
func NodePath(appID, userID, conversationID string) string {
	return remote.Join(CollectionPath(appID, userID), conversationID)
}
