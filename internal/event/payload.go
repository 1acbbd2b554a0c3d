package event

import "github.com/eventflow/messenger/internal/model"

// Typed payloads keep subscribers off map[string]any and document exactly
// what each event carries.

// MessagePayload accompanies messageAdded, messageUpdated and messageDeleted.
type MessagePayload struct {
	ConversationID string
	Message        model.Message
}

// MessagesPayload accompanies messagesChanged (full list replace or prepend).
type MessagesPayload struct {
	ConversationID string
	Messages       []model.Message
}

// ConversationsPayload accompanies conversationsChanged.
type ConversationsPayload struct {
	Conversations []model.Conversation
}

// TypingPayload carries the full set of currently-typing users for a
// conversation, recomputed after every change.
type TypingPayload struct {
	ConversationID string
	UserIDs        []string
}

// PresencePayload accompanies presenceChanged.
type PresencePayload struct {
	Record model.PresenceRecord
}

// UnreadPayload accompanies unreadCountChanged. Total is the aggregate over
// all non-archived conversations for the viewer.
type UnreadPayload struct {
	ConversationID string
	Unread         int
	Total          int
}

// ErrorPayload accompanies socketError and authFailed.
type ErrorPayload struct {
	Err error
}
