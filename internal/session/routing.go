package session

import (
	"errors"
	"time"

	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/socket"
)

// handleFrame routes inbound socket events to store mutations. Unknown or
// malformed frames are logged and dropped; routing never errors.
func (s *Session) handleFrame(f socket.Frame) {
	viewer := s.CurrentUser().ID

	switch f.Type {
	case socket.EventNewMessage:
		if f.Message == nil {
			return
		}
		msg := *f.Message
		if msg.ConversationID == "" {
			msg.ConversationID = f.ConversationID
		}
		if s.messages.AddMessage(msg.ConversationID, msg) {
			s.directory.ApplyMessage(msg, viewer)
		}

	case socket.EventMessageUpdated:
		if f.Patch == nil || f.MessageID == "" {
			return
		}
		s.messages.UpdateMessage(f.ConversationID, f.MessageID, *f.Patch)

	case socket.EventReaction:
		if f.MessageID == "" || f.Emoji == "" {
			return
		}
		s.messages.UpdateReaction(f.ConversationID, f.MessageID, model.Reaction{
			UserID:    f.UserID,
			Emoji:     f.Emoji,
			CreatedAt: time.Now().UTC(),
		})

	case socket.EventMessageDeleted:
		if f.MessageID == "" {
			return
		}
		s.messages.DeleteMessage(f.ConversationID, f.MessageID)

	case socket.EventMessageRead:
		// Only the viewer's own receipt zeroes the local unread count; a
		// receipt from another participant changes nothing here.
		if f.UserID != viewer {
			return
		}
		s.directory.MarkRead(f.ConversationID, viewer)

	case socket.EventTypingStart, socket.EventTypingStop:
		// Never show self-typing: the sender's own debounced signals echo
		// back from some backends.
		if f.UserID == viewer {
			return
		}
		s.presence.SetTyping(f.ConversationID, f.UserID, f.Type == socket.EventTypingStart)

	case socket.EventUserOnline:
		s.presence.SetPresence(f.UserID, true)

	case socket.EventUserOffline:
		s.presence.SetPresence(f.UserID, false)

	case socket.EventNewConversation:
		if f.Conversation == nil {
			return
		}
		s.directory.UpsertConversation(*f.Conversation)

	case socket.EventError:
		s.bus.Emit(event.SocketError, event.ErrorPayload{Err: errors.New(f.Reason)})

	default:
		logger.Errorf("session: unhandled socket frame %s", f.Type)
	}
}

func (s *Session) handleConnected(rejoined string) {
	if rejoined != "" {
		logger.Infof("socket reconnected, rejoined conversation %s", rejoined)
	}
	s.bus.Emit(event.SocketConnected, rejoined)
}

func (s *Session) handleDisconnected(err error) {
	s.bus.Emit(event.SocketDisconnected, event.ErrorPayload{Err: err})
}

func (s *Session) handleSocketError(err error) {
	s.bus.Emit(event.SocketError, event.ErrorPayload{Err: err})
}

func (s *Session) handleAuthFailed(err error) {
	s.bus.Emit(event.AuthFailed, event.ErrorPayload{Err: err})
}
