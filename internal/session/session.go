// Package session implements the messenger's synchronization façade: the one
// explicitly constructed object that owns the event bus, the state stores,
// the REST client and the socket client for the lifetime of a messenger
// session. Views subscribe through Bus() and mutate only via façade methods.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eventflow/messenger/internal/api"
	"github.com/eventflow/messenger/internal/config"
	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/socket"
	"github.com/eventflow/messenger/internal/store"
)

const pageSize = 50

// SocketClient is the transport surface the session drives; satisfied by
// *socket.Client and by fakes in tests.
type SocketClient interface {
	Connect(ctx context.Context, userID, userName string) error
	Close()
	Join(conversationID string)
	Leave(conversationID string)
	Joined() string
	SendTyping(conversationID string, typing bool)
}

// Backend is the REST surface the session calls; satisfied by *api.Client.
type Backend interface {
	Conversations(ctx context.Context, status string) ([]model.Conversation, error)
	Messages(ctx context.Context, conversationID, before string, limit int) ([]model.Message, error)
	SendMessage(ctx context.Context, conversationID string, req api.SendMessageRequest) (model.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	SearchContacts(ctx context.Context, query string) ([]model.UserPublic, error)
}

// Deps lets callers and tests substitute collaborators. Zero values select
// the real implementations built from the config.
type Deps struct {
	API       Backend
	NewSocket func(events socket.Events) SocketClient
}

// Session is the synchronization façade. All session state (message lists,
// directory, presence, typing, current user, active conversation) is owned
// here; views never mutate it directly.
type Session struct {
	cfg *config.Config

	bus       *event.Bus
	messages  *store.MessageStore
	directory *store.ConversationDirectory
	presence  *store.PresenceTracker
	api       Backend
	sock      SocketClient

	mu          sync.Mutex
	currentUser model.User
	activeConv  string
	filter      store.Filter
	noMore      map[string]bool // conversation ID -> pagination exhausted

	// Sender-side typing debounce state.
	typingConv string
	typingLive bool
	typingSent time.Time
	stopTimer  *time.Timer

	closeOnce sync.Once
}

// New constructs a session from config and optional injected collaborators.
func New(cfg *config.Config, deps Deps) *Session {
	bus := event.NewBus()
	s := &Session{
		cfg:       cfg,
		bus:       bus,
		messages:  store.NewMessageStore(bus),
		directory: store.NewConversationDirectory(bus),
		presence:  store.NewPresenceTracker(bus, cfg.TypingExpiry),
		filter:    store.FilterAll,
		noMore:    make(map[string]bool),
	}

	if deps.API != nil {
		s.api = deps.API
	} else {
		s.api = api.NewClient(cfg.APIBaseURL)
	}

	events := socket.Events{
		OnFrame:        s.handleFrame,
		OnConnected:    s.handleConnected,
		OnDisconnected: s.handleDisconnected,
		OnError:        s.handleSocketError,
		OnAuthFailed:   s.handleAuthFailed,
	}
	if deps.NewSocket != nil {
		s.sock = deps.NewSocket(events)
	} else {
		s.sock = socket.New(socket.Config{
			URL:         cfg.SocketURL,
			MaxAttempts: cfg.ReconnectMaxAttempts,
			BaseDelay:   cfg.ReconnectBaseDelay,
		}, events)
	}
	return s
}

// Bus is the subscription point for view components.
func (s *Session) Bus() *event.Bus { return s.bus }

// SetCurrentUser records the signed-in user and emits userChanged.
func (s *Session) SetCurrentUser(u model.User) {
	s.mu.Lock()
	s.currentUser = u
	s.mu.Unlock()
	if withUser, ok := s.api.(interface{ SetUser(string) }); ok {
		withUser.SetUser(u.ID)
	}
	s.bus.Emit(event.UserChanged, u)
}

// CurrentUser returns the signed-in user.
func (s *Session) CurrentUser() model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentUser
}

// SetActiveConversation records which conversation the chat view shows and
// emits activeConversationChanged.
func (s *Session) SetActiveConversation(conversationID string) {
	s.mu.Lock()
	s.activeConv = conversationID
	s.mu.Unlock()
	s.bus.Emit(event.ActiveConversationChanged, conversationID)
}

// ActiveConversation returns the active conversation ID.
func (s *Session) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeConv
}

// SetFilter switches the directory tab filter and emits filterChanged.
func (s *Session) SetFilter(f store.Filter) {
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
	s.bus.Emit(event.FilterChanged, f)
}

// Filter returns the active tab filter.
func (s *Session) Filter() store.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// FilteredConversations computes the display list under the active filter and
// the given search string.
func (s *Session) FilteredConversations(search string) []model.Conversation {
	s.mu.Lock()
	filter := s.filter
	viewer := s.currentUser.ID
	s.mu.Unlock()
	return s.directory.Filtered(filter, search, viewer)
}

// Connect establishes the socket connection and performs the authenticate
// handshake. Requires SetCurrentUser first.
func (s *Session) Connect(ctx context.Context) error {
	u := s.CurrentUser()
	if u.ID == "" {
		return errors.New("session: current user not set")
	}
	if err := s.sock.Connect(ctx, u.ID, u.DisplayName); err != nil {
		return fmt.Errorf("session connect: %w", err)
	}
	return nil
}

// JoinConversation enters the conversation's socket room. At most one room is
// joined at a time; the previous one is left implicitly.
func (s *Session) JoinConversation(conversationID string) {
	s.sock.Join(conversationID)
}

// LeaveConversation exits the conversation's socket room.
func (s *Session) LeaveConversation(conversationID string) {
	s.flushTypingStop(conversationID)
	s.sock.Leave(conversationID)
}

// Messages returns the loaded history for a conversation.
func (s *Session) Messages(conversationID string) []model.Message {
	return s.messages.Messages(conversationID)
}

// Conversations returns the directory in stored order.
func (s *Session) Conversations() []model.Conversation {
	return s.directory.Conversations()
}

// TypingUsers returns who is typing in a conversation (never the local user).
func (s *Session) TypingUsers(conversationID string) []string {
	return s.presence.TypingUsers(conversationID)
}

// PresenceOf returns the last known presence for a user.
func (s *Session) PresenceOf(userID string) model.PresenceRecord {
	return s.presence.Presence(userID)
}

// TotalUnread is the viewer's aggregate unread count over non-archived
// conversations.
func (s *Session) TotalUnread() int {
	return s.directory.TotalUnread(s.CurrentUser().ID)
}

// SetPinned toggles the viewer's pin flag on a conversation.
func (s *Session) SetPinned(conversationID string, pinned bool) {
	s.directory.SetPinned(conversationID, s.CurrentUser().ID, pinned)
}

// SetArchived toggles the viewer's archive flag on a conversation.
func (s *Session) SetArchived(conversationID string, archived bool) {
	s.directory.SetArchived(conversationID, s.CurrentUser().ID, archived)
}

// Close tears the session down: socket, typing timers, expiry timers. The
// bus and stores become inert but readable.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		if s.stopTimer != nil {
			s.stopTimer.Stop()
		}
		s.mu.Unlock()
		s.sock.Close()
		s.presence.Close()
		logger.Info("session closed")
	})
}
