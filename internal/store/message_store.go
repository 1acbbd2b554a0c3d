// Package store holds the messenger session state: per-conversation message
// histories, the conversation directory and presence/typing tracking. Stores
// are owned by the session façade; views read through accessor copies and
// mutate only via façade methods.
package store

import (
	"sync"
	"time"

	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/model"
)

// MessageStore keeps an ordered (oldest-first) message slice per conversation.
// All operations are synchronous and never fail: unknown conversation or
// message IDs are silent no-ops, reported through the bool return value.
type MessageStore struct {
	mu     sync.RWMutex
	bus    *event.Bus
	byConv map[string][]model.Message
}

func NewMessageStore(bus *event.Bus) *MessageStore {
	return &MessageStore{
		bus:    bus,
		byConv: make(map[string][]model.Message),
	}
}

// SetMessages replaces the full list for a conversation. The caller supplies
// messages oldest-first; no ordering validation is performed.
func (s *MessageStore) SetMessages(conversationID string, messages []model.Message) {
	list := make([]model.Message, len(messages))
	copy(list, messages)

	s.mu.Lock()
	s.byConv[conversationID] = list
	snapshot := s.snapshotLocked(conversationID)
	s.mu.Unlock()

	s.bus.Emit(event.MessagesChanged, event.MessagesPayload{
		ConversationID: conversationID,
		Messages:       snapshot,
	})
}

// AddMessage appends one message. It is a no-op returning false when a
// message with the same non-empty ID already exists in the conversation: the
// same message routinely arrives twice, once as the HTTP send response and
// once as the socket broadcast echo, in either order.
func (s *MessageStore) AddMessage(conversationID string, msg model.Message) bool {
	s.mu.Lock()
	if msg.ID != "" && s.findLocked(conversationID, msg.ID) >= 0 {
		s.mu.Unlock()
		return false
	}
	s.byConv[conversationID] = append(s.byConv[conversationID], msg)
	s.mu.Unlock()

	s.bus.Emit(event.MessageAdded, event.MessagePayload{
		ConversationID: conversationID,
		Message:        msg,
	})
	return true
}

// PrependMessages inserts an older batch (oldest-first) before the current
// head, for infinite-scroll pagination. An empty batch leaves the list
// unchanged and returns false so callers can stop paging. Entries whose ID is
// already present are skipped.
func (s *MessageStore) PrependMessages(conversationID string, older []model.Message) bool {
	if len(older) == 0 {
		return false
	}

	s.mu.Lock()
	fresh := make([]model.Message, 0, len(older))
	for _, m := range older {
		if m.ID != "" && s.findLocked(conversationID, m.ID) >= 0 {
			continue
		}
		fresh = append(fresh, m)
	}
	s.byConv[conversationID] = append(fresh, s.byConv[conversationID]...)
	snapshot := s.snapshotLocked(conversationID)
	s.mu.Unlock()

	s.bus.Emit(event.MessagesChanged, event.MessagesPayload{
		ConversationID: conversationID,
		Messages:       snapshot,
	})
	return true
}

// UpdateMessage shallow-merges patch into the matching message. Missing
// messages are silently ignored.
func (s *MessageStore) UpdateMessage(conversationID, messageID string, patch model.MessagePatch) bool {
	s.mu.Lock()
	idx := s.findLocked(conversationID, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	patch.Apply(&s.byConv[conversationID][idx])
	updated := s.byConv[conversationID][idx]
	s.mu.Unlock()

	s.bus.Emit(event.MessageUpdated, event.MessagePayload{
		ConversationID: conversationID,
		Message:        updated,
	})
	return true
}

// DeleteMessage soft-deletes: the entry keeps its position, its content is
// replaced with the deletion placeholder and DeletedAt is stamped.
func (s *MessageStore) DeleteMessage(conversationID, messageID string) bool {
	now := time.Now().UTC()

	s.mu.Lock()
	idx := s.findLocked(conversationID, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	m := &s.byConv[conversationID][idx]
	m.Content = model.DeletedPlaceholder
	m.IsDeleted = true
	m.DeletedAt = &now
	m.Reactions = nil
	deleted := *m
	s.mu.Unlock()

	s.bus.Emit(event.MessageDeleted, event.MessagePayload{
		ConversationID: conversationID,
		Message:        deleted,
	})
	return true
}

// UpdateReaction toggles a reaction: an existing (emoji, userID) pair is
// removed, otherwise the reaction is appended. Two identical calls cancel out.
func (s *MessageStore) UpdateReaction(conversationID, messageID string, reaction model.Reaction) bool {
	s.mu.Lock()
	idx := s.findLocked(conversationID, messageID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	m := &s.byConv[conversationID][idx]
	removed := false
	for i, r := range m.Reactions {
		if r.Emoji == reaction.Emoji && r.UserID == reaction.UserID {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		m.Reactions = append(m.Reactions, reaction)
	}
	updated := *m
	s.mu.Unlock()

	s.bus.Emit(event.MessageUpdated, event.MessagePayload{
		ConversationID: conversationID,
		Message:        updated,
	})
	return true
}

// ReplaceMessage swaps the optimistic entry identified by tempID for the
// server-confirmed message and reports whether the confirmed message was
// placed. If the confirmed ID already arrived via the socket echo, the
// temporary entry is dropped instead (keeping exactly one copy in the list)
// and false is returned, since the echo path already handled the message.
func (s *MessageStore) ReplaceMessage(conversationID, tempID string, confirmed model.Message) bool {
	s.mu.Lock()
	idx := s.findLocked(conversationID, tempID)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	list := s.byConv[conversationID]
	if confirmed.ID != "" && confirmed.ID != tempID && s.findLocked(conversationID, confirmed.ID) >= 0 {
		s.byConv[conversationID] = append(list[:idx], list[idx+1:]...)
		snapshot := s.snapshotLocked(conversationID)
		s.mu.Unlock()
		s.bus.Emit(event.MessagesChanged, event.MessagesPayload{
			ConversationID: conversationID,
			Messages:       snapshot,
		})
		return false
	}
	list[idx] = confirmed
	s.mu.Unlock()

	s.bus.Emit(event.MessageUpdated, event.MessagePayload{
		ConversationID: conversationID,
		Message:        confirmed,
	})
	return true
}

// MarkFailed flips an optimistic entry to failed status in place, so the UI
// can offer retry without losing the typed content.
func (s *MessageStore) MarkFailed(conversationID, tempID string) bool {
	failed := model.StatusFailed
	return s.UpdateMessage(conversationID, tempID, model.MessagePatch{Status: &failed})
}

// Messages returns a copy of the conversation's list, empty when nothing has
// been loaded. Callers must not treat the copy as live state.
func (s *MessageStore) Messages(conversationID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(conversationID)
}

// Get returns one message by ID.
func (s *MessageStore) Get(conversationID, messageID string) (model.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.findLocked(conversationID, messageID)
	if idx < 0 {
		return model.Message{}, false
	}
	return s.byConv[conversationID][idx], true
}

func (s *MessageStore) findLocked(conversationID, messageID string) int {
	for i, m := range s.byConv[conversationID] {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

func (s *MessageStore) snapshotLocked(conversationID string) []model.Message {
	list := s.byConv[conversationID]
	out := make([]model.Message, len(list))
	copy(out, list)
	return out
}
