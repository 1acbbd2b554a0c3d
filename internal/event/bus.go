// Package event implements the named-event bus that view components subscribe
// to. Stores emit through the bus after every mutation; subscribers receive
// plain payload structs, never references into store internals they may mutate.
package event

import "sync"

type Name string

const (
	ConversationsChanged      Name = "conversationsChanged"
	ActiveConversationChanged Name = "activeConversationChanged"
	MessagesChanged           Name = "messagesChanged"
	MessageAdded              Name = "messageAdded"
	MessageUpdated            Name = "messageUpdated"
	MessageDeleted            Name = "messageDeleted"
	TypingChanged             Name = "typingChanged"
	PresenceChanged           Name = "presenceChanged"
	UnreadCountChanged        Name = "unreadCountChanged"
	UserChanged               Name = "userChanged"
	FilterChanged             Name = "filterChanged"

	SocketConnected    Name = "socketConnected"
	SocketDisconnected Name = "socketDisconnected"
	SocketError        Name = "socketError"
	AuthFailed         Name = "authFailed"
)

type Handler func(payload any)

// Subscription identifies one registered handler so it can be removed with Off.
type Subscription struct {
	name Name
	id   int
}

// Bus is a minimal synchronous event emitter. Handlers run on the emitting
// goroutine, in registration order; Emit returns once every handler has run.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Name]map[int]Handler
	order  map[Name][]int
}

func NewBus() *Bus {
	return &Bus{
		subs:  make(map[Name]map[int]Handler),
		order: make(map[Name][]int),
	}
}

// On registers a handler for the named event and returns its subscription.
func (b *Bus) On(name Name, h Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if _, ok := b.subs[name]; !ok {
		b.subs[name] = make(map[int]Handler)
	}
	b.subs[name][b.nextID] = h
	b.order[name] = append(b.order[name], b.nextID)
	return Subscription{name: name, id: b.nextID}
}

// Off removes a previously registered handler. Unknown subscriptions are a
// no-op.
func (b *Bus) Off(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.subs[sub.name]
	if !ok {
		return
	}
	if _, exists := handlers[sub.id]; !exists {
		return
	}
	delete(handlers, sub.id)
	ids := b.order[sub.name]
	for i, id := range ids {
		if id == sub.id {
			b.order[sub.name] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// Emit calls every handler registered for name with the payload. Handlers are
// snapshotted under the lock and invoked outside it, so a handler may safely
// call On/Off (or Emit) without deadlocking.
func (b *Bus) Emit(name Name, payload any) {
	b.mu.RLock()
	handlers := b.subs[name]
	targets := make([]Handler, 0, len(handlers))
	for _, id := range b.order[name] {
		if h, ok := handlers[id]; ok {
			targets = append(targets, h)
		}
	}
	b.mu.RUnlock()

	for _, h := range targets {
		h(payload)
	}
}
