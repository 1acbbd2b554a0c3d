// Package socket implements the WebSocket client side of the messenger feed:
// dial, application-level authenticate handshake, bounded reconnection and
// conversation room membership. Wire frames are shared with the devserver.
package socket

import "github.com/eventflow/messenger/internal/model"

type EventType string

// Client -> server events.
const (
	EventAuthenticate EventType = "authenticate"
	EventJoin         EventType = "join_conversation"
	EventLeave        EventType = "leave_conversation"
	EventTypingStart  EventType = "typing_start"
	EventTypingStop   EventType = "typing_stop"
)

// Server -> client events.
const (
	EventAuthOK          EventType = "auth_ok"
	EventAuthError       EventType = "auth_error"
	EventNewMessage      EventType = "new_message"
	EventMessageUpdated  EventType = "message_updated"
	EventMessageDeleted  EventType = "message_deleted"
	EventReaction        EventType = "reaction"
	EventMessageRead     EventType = "message_read"
	EventNewConversation EventType = "new_conversation"
	EventUserOnline      EventType = "user_online"
	EventUserOffline     EventType = "user_offline"
	EventError           EventType = "error"
)

// Frame is the single wire shape for both directions; unused fields are
// omitted from the JSON.
type Frame struct {
	Type           EventType           `json:"type"`
	ConversationID string              `json:"conversation_id,omitempty"`
	UserID         string              `json:"user_id,omitempty"`
	UserName       string              `json:"user_name,omitempty"`
	MessageID      string              `json:"message_id,omitempty"`
	Message        *model.Message      `json:"message,omitempty"`
	Conversation   *model.Conversation `json:"conversation,omitempty"`
	Patch          *model.MessagePatch `json:"patch,omitempty"`
	Emoji          string              `json:"emoji,omitempty"`
	Reason         string              `json:"reason,omitempty"`
}
