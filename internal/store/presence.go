package store

import (
	"sort"
	"sync"
	"time"

	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/model"
)

// DefaultTypingExpiry clears a typing entry not refreshed in time. The sender
// side debounces its stop signal, but a stop event is not guaranteed to arrive
// (tab closed mid-typing), so receivers expire entries themselves.
const DefaultTypingExpiry = 6 * time.Second

type typingEntry struct {
	deadline time.Time
	timer    *time.Timer
}

// PresenceTracker maps user IDs to online/offline state and conversation IDs
// to the set of currently-typing users.
type PresenceTracker struct {
	mu       sync.Mutex
	bus      *event.Bus
	expiry   time.Duration
	presence map[string]model.PresenceRecord
	typing   map[string]map[string]*typingEntry
	closed   bool
}

func NewPresenceTracker(bus *event.Bus, expiry time.Duration) *PresenceTracker {
	if expiry <= 0 {
		expiry = DefaultTypingExpiry
	}
	return &PresenceTracker{
		bus:      bus,
		expiry:   expiry,
		presence: make(map[string]model.PresenceRecord),
		typing:   make(map[string]map[string]*typingEntry),
	}
}

// SetPresence overwrites the user's record and stamps LastSeen with now.
func (t *PresenceTracker) SetPresence(userID string, online bool) {
	now := time.Now().UTC()
	rec := model.PresenceRecord{UserID: userID, Online: online, LastSeen: &now}

	t.mu.Lock()
	t.presence[userID] = rec
	t.mu.Unlock()

	t.bus.Emit(event.PresenceChanged, event.PresencePayload{Record: rec})
}

// Presence returns the last known record, or an offline record with nil
// LastSeen for users never seen.
func (t *PresenceTracker) Presence(userID string) model.PresenceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.presence[userID]; ok {
		return rec
	}
	return model.PresenceRecord{UserID: userID, Online: false}
}

// SetTyping adds or removes userID from the conversation's typing set and
// emits typingChanged with the full current set. A typing=true call refreshes
// the entry's expiry deadline.
func (t *PresenceTracker) SetTyping(conversationID, userID string, typing bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	if typing {
		entries, ok := t.typing[conversationID]
		if !ok {
			entries = make(map[string]*typingEntry)
			t.typing[conversationID] = entries
		}
		if e, ok := entries[userID]; ok {
			e.deadline = time.Now().Add(t.expiry)
			e.timer.Reset(t.expiry)
		} else {
			e := &typingEntry{deadline: time.Now().Add(t.expiry)}
			e.timer = time.AfterFunc(t.expiry, func() {
				t.expire(conversationID, userID)
			})
			entries[userID] = e
		}
	} else {
		t.removeLocked(conversationID, userID)
	}
	users := t.typingUsersLocked(conversationID)
	t.mu.Unlock()

	t.bus.Emit(event.TypingChanged, event.TypingPayload{
		ConversationID: conversationID,
		UserIDs:        users,
	})
}

// TypingUsers returns the live typing set for a conversation, sorted for
// stable rendering.
func (t *PresenceTracker) TypingUsers(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typingUsersLocked(conversationID)
}

// Close stops all expiry timers. Further SetTyping calls are ignored.
func (t *PresenceTracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, entries := range t.typing {
		for _, e := range entries {
			e.timer.Stop()
		}
	}
	t.typing = make(map[string]map[string]*typingEntry)
}

// expire fires from a timer when no refresh arrived within the expiry window.
func (t *PresenceTracker) expire(conversationID, userID string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	e, ok := t.typing[conversationID][userID]
	if !ok || time.Now().Before(e.deadline) {
		// Entry was refreshed after this timer was scheduled.
		t.mu.Unlock()
		return
	}
	t.removeLocked(conversationID, userID)
	users := t.typingUsersLocked(conversationID)
	t.mu.Unlock()

	t.bus.Emit(event.TypingChanged, event.TypingPayload{
		ConversationID: conversationID,
		UserIDs:        users,
	})
}

func (t *PresenceTracker) removeLocked(conversationID, userID string) {
	entries, ok := t.typing[conversationID]
	if !ok {
		return
	}
	if e, exists := entries[userID]; exists {
		e.timer.Stop()
		delete(entries, userID)
	}
	if len(entries) == 0 {
		delete(t.typing, conversationID)
	}
}

func (t *PresenceTracker) typingUsersLocked(conversationID string) []string {
	entries := t.typing[conversationID]
	now := time.Now()
	users := make([]string, 0, len(entries))
	for uid, e := range entries {
		if now.Before(e.deadline) {
			users = append(users, uid)
		}
	}
	sort.Strings(users)
	return users
}
