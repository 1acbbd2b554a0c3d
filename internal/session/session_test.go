package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflow/messenger/internal/api"
	"github.com/eventflow/messenger/internal/config"
	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/socket"
	"github.com/eventflow/messenger/internal/store"
)

const (
	viewerID = "u-bob"
	otherID  = "u-alice"
)

type typingCall struct {
	conversationID string
	typing         bool
}

// fakeSocket records the frames the session would put on the wire.
type fakeSocket struct {
	mu      sync.Mutex
	joined  string
	joins   []string
	leaves  []string
	typing  []typingCall
	connect int
}

func (f *fakeSocket) Connect(ctx context.Context, userID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connect++
	return nil
}

func (f *fakeSocket) Close() {}

func (f *fakeSocket) Join(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = conversationID
	f.joins = append(f.joins, conversationID)
}

func (f *fakeSocket) Leave(conversationID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joined == conversationID {
		f.joined = ""
	}
	f.leaves = append(f.leaves, conversationID)
}

func (f *fakeSocket) Joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joined
}

func (f *fakeSocket) SendTyping(conversationID string, typing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, typingCall{conversationID, typing})
}

func (f *fakeSocket) typingCalls() []typingCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]typingCall, len(f.typing))
	copy(out, f.typing)
	return out
}

// fakeBackend serves canned REST responses.
type fakeBackend struct {
	mu            sync.Mutex
	conversations []model.Conversation
	pages         map[string][]model.Message // keyed by before cursor
	sendErr       error
	sent          []api.SendMessageRequest
	readCalls     []string
	nextID        string
}

func (f *fakeBackend) Conversations(ctx context.Context, status string) ([]model.Conversation, error) {
	return f.conversations, nil
}

func (f *fakeBackend) Messages(ctx context.Context, conversationID, before string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pages[before], nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID string, req api.SendMessageRequest) (model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return model.Message{}, f.sendErr
	}
	f.sent = append(f.sent, req)
	id := f.nextID
	if id == "" {
		id = "m-confirmed"
	}
	return model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       viewerID,
		Content:        req.Content,
		ContentType:    req.ContentType,
		Status:         model.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (f *fakeBackend) MarkRead(ctx context.Context, conversationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls = append(f.readCalls, conversationID)
	return nil
}

func (f *fakeBackend) SearchContacts(ctx context.Context, query string) ([]model.UserPublic, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ReconnectMaxAttempts: 5,
		ReconnectBaseDelay:   10 * time.Millisecond,
		TypingDebounce:       40 * time.Millisecond,
		TypingExpiry:         time.Minute,
	}
}

func newTestSession(t *testing.T) (*Session, *fakeSocket, *fakeBackend) {
	t.Helper()
	fs := &fakeSocket{}
	fb := &fakeBackend{pages: make(map[string][]model.Message)}
	s := New(testConfig(), Deps{
		API:       fb,
		NewSocket: func(socket.Events) SocketClient { return fs },
	})
	t.Cleanup(s.Close)
	s.SetCurrentUser(model.User{ID: viewerID, DisplayName: "Bob Organizer"})
	return s, fs, fb
}

func seedConversation(s *Session, id string, viewerUnread int) {
	s.directory.SetConversations([]model.Conversation{{
		ID: id,
		Participants: []model.Participant{
			{UserID: viewerID, DisplayName: "Bob Organizer", UnreadCount: viewerUnread},
			{UserID: otherID, DisplayName: "Alice Supplier"},
		},
		UpdatedAt: time.Now().UTC(),
	}})
}

func TestSession_ReadReceiptRouting(t *testing.T) {
	s, _, _ := newTestSession(t)
	seedConversation(s, "c1", 5)

	t.Run("receipt from another user leaves unread untouched", func(t *testing.T) {
		s.handleFrame(socket.Frame{Type: socket.EventMessageRead, ConversationID: "c1", UserID: otherID})
		c, _ := s.directory.Get("c1")
		assert.Equal(t, 5, c.Participant(viewerID).UnreadCount)
	})

	t.Run("own receipt zeroes the viewer's unread count", func(t *testing.T) {
		s.handleFrame(socket.Frame{Type: socket.EventMessageRead, ConversationID: "c1", UserID: viewerID})
		c, _ := s.directory.Get("c1")
		assert.Equal(t, 0, c.Participant(viewerID).UnreadCount)
	})
}

func TestSession_SelfTypingSuppressed(t *testing.T) {
	s, _, _ := newTestSession(t)

	s.handleFrame(socket.Frame{Type: socket.EventTypingStart, ConversationID: "c1", UserID: viewerID})
	assert.Empty(t, s.TypingUsers("c1"))

	s.handleFrame(socket.Frame{Type: socket.EventTypingStart, ConversationID: "c1", UserID: otherID})
	assert.Equal(t, []string{otherID}, s.TypingUsers("c1"))

	s.handleFrame(socket.Frame{Type: socket.EventTypingStop, ConversationID: "c1", UserID: otherID})
	assert.Empty(t, s.TypingUsers("c1"))
}

func TestSession_NewMessageRouting(t *testing.T) {
	s, _, _ := newTestSession(t)
	seedConversation(s, "c1", 0)

	incoming := model.Message{
		ID:             "m1",
		ConversationID: "c1",
		SenderID:       otherID,
		Content:        "hello there",
		ContentType:    model.ContentTypeText,
		CreatedAt:      time.Now().UTC(),
	}
	s.handleFrame(socket.Frame{Type: socket.EventNewMessage, ConversationID: "c1", Message: &incoming})

	require.Len(t, s.Messages("c1"), 1)
	c, _ := s.directory.Get("c1")
	require.NotNil(t, c.LastMessage)
	assert.Equal(t, "hello there", c.LastMessage.Content)
	assert.Equal(t, 1, c.Participant(viewerID).UnreadCount)

	t.Run("duplicate delivery does not double-count", func(t *testing.T) {
		s.handleFrame(socket.Frame{Type: socket.EventNewMessage, ConversationID: "c1", Message: &incoming})
		assert.Len(t, s.Messages("c1"), 1)
		c, _ := s.directory.Get("c1")
		assert.Equal(t, 1, c.Participant(viewerID).UnreadCount)
	})
}

func TestSession_ReactionAndDeleteRouting(t *testing.T) {
	s, _, _ := newTestSession(t)
	s.messages.SetMessages("c1", []model.Message{{
		ID: "m1", ConversationID: "c1", SenderID: otherID,
		Content: "to be reacted", ContentType: model.ContentTypeText,
	}})

	s.handleFrame(socket.Frame{Type: socket.EventReaction, ConversationID: "c1", MessageID: "m1", UserID: otherID, Emoji: "🎉"})
	got, _ := s.messages.Get("c1", "m1")
	require.Len(t, got.Reactions, 1)

	s.handleFrame(socket.Frame{Type: socket.EventMessageDeleted, ConversationID: "c1", MessageID: "m1"})
	got, _ = s.messages.Get("c1", "m1")
	assert.True(t, got.IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, got.Content)
}

func TestSession_SendMessageOptimistic(t *testing.T) {
	t.Run("happy path - temp entry replaced by confirmation", func(t *testing.T) {
		s, _, fb := newTestSession(t)
		seedConversation(s, "c1", 0)

		var statuses []model.DeliveryStatus
		s.bus.On(event.MessageAdded, func(payload any) {
			statuses = append(statuses, payload.(event.MessagePayload).Message.Status)
		})

		confirmed, err := s.SendMessage(context.Background(), "c1", "Hello", SendOptions{})
		require.NoError(t, err)
		assert.Equal(t, "m-confirmed", confirmed.ID)
		assert.Equal(t, model.StatusSent, confirmed.Status)

		// The optimistic entry appeared first with sending status.
		require.NotEmpty(t, statuses)
		assert.Equal(t, model.StatusSending, statuses[0])

		list := s.Messages("c1")
		require.Len(t, list, 1)
		assert.Equal(t, "m-confirmed", list[0].ID)
		require.Len(t, fb.sent, 1)
		assert.Equal(t, "Hello", fb.sent[0].Content)

		// A later socket echo for the confirmed ID leaves exactly one entry.
		echo := list[0]
		s.handleFrame(socket.Frame{Type: socket.EventNewMessage, ConversationID: "c1", Message: &echo})
		assert.Len(t, s.Messages("c1"), 1)
	})

	t.Run("sad path - failure keeps the entry for retry", func(t *testing.T) {
		s, _, fb := newTestSession(t)
		seedConversation(s, "c1", 0)
		fb.sendErr = errors.New("backend down")

		temp, err := s.SendMessage(context.Background(), "c1", "Hello", SendOptions{})
		require.Error(t, err)

		list := s.Messages("c1")
		require.Len(t, list, 1)
		assert.Equal(t, temp.ID, list[0].ID)
		assert.Equal(t, model.StatusFailed, list[0].Status)
		assert.Equal(t, "Hello", list[0].Content)

		t.Run("user-initiated resend succeeds", func(t *testing.T) {
			fb.mu.Lock()
			fb.sendErr = nil
			fb.mu.Unlock()

			confirmed, err := s.ResendMessage(context.Background(), "c1", temp.ID)
			require.NoError(t, err)
			assert.Equal(t, model.StatusSent, confirmed.Status)
			list := s.Messages("c1")
			require.Len(t, list, 1)
			assert.Equal(t, confirmed.ID, list[0].ID)
		})
	})
}

func TestSession_TypingDebounce(t *testing.T) {
	s, fs, _ := newTestSession(t)

	// Continuous input inside one window sends a single start.
	s.NotifyTyping("c1")
	s.NotifyTyping("c1")
	s.NotifyTyping("c1")
	calls := fs.typingCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, typingCall{"c1", true}, calls[0])

	t.Run("stop goes out after the window closes", func(t *testing.T) {
		require.Eventually(t, func() bool {
			calls := fs.typingCalls()
			return len(calls) == 2 && calls[1] == typingCall{"c1", false}
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("send flushes the stop immediately", func(t *testing.T) {
		s.NotifyTyping("c1")
		_, err := s.SendMessage(context.Background(), "c1", "done typing", SendOptions{})
		require.NoError(t, err)
		calls := fs.typingCalls()
		require.Len(t, calls, 4)
		assert.Equal(t, typingCall{"c1", true}, calls[2])
		assert.Equal(t, typingCall{"c1", false}, calls[3])
	})

	t.Run("switching conversations stops the previous one", func(t *testing.T) {
		s.NotifyTyping("c1")
		s.NotifyTyping("c2")
		calls := fs.typingCalls()
		require.GreaterOrEqual(t, len(calls), 7)
		assert.Equal(t, typingCall{"c1", false}, calls[len(calls)-2])
		assert.Equal(t, typingCall{"c2", true}, calls[len(calls)-1])
	})
}

func TestSession_LoadOlderMessages(t *testing.T) {
	s, _, fb := newTestSession(t)

	full := make([]model.Message, 0, pageSize)
	for i := 0; i < pageSize; i++ {
		full = append(full, model.Message{ID: fmt.Sprintf("m-%03d", i), ConversationID: "c1"})
	}
	fb.pages[""] = full
	fb.pages[full[0].ID] = []model.Message{{ID: "m-older", ConversationID: "c1"}}

	require.NoError(t, s.LoadMessages(context.Background(), "c1"))
	require.Len(t, s.Messages("c1"), pageSize)

	// A short page prepends and then reports exhaustion.
	more, err := s.LoadOlderMessages(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, "m-older", s.Messages("c1")[0].ID)

	t.Run("exhausted conversations skip the network", func(t *testing.T) {
		more, err := s.LoadOlderMessages(context.Background(), "c1")
		require.NoError(t, err)
		assert.False(t, more)
		assert.Len(t, s.Messages("c1"), pageSize+1)
	})
}

func TestSession_JoinLeaveAndMarkRead(t *testing.T) {
	s, fs, fb := newTestSession(t)
	seedConversation(s, "c1", 3)

	s.JoinConversation("c1")
	assert.Equal(t, "c1", fs.Joined())

	require.NoError(t, s.MarkConversationRead(context.Background(), "c1"))
	assert.Equal(t, []string{"c1"}, fb.readCalls)
	c, _ := s.directory.Get("c1")
	assert.Equal(t, 0, c.Participant(viewerID).UnreadCount)

	s.LeaveConversation("c1")
	assert.Equal(t, "", fs.Joined())
}

func TestSession_SocketLifecycleEvents(t *testing.T) {
	s, _, _ := newTestSession(t)

	var names []event.Name
	for _, n := range []event.Name{event.SocketConnected, event.SocketDisconnected, event.SocketError, event.AuthFailed} {
		n := n
		s.bus.On(n, func(any) { names = append(names, n) })
	}

	s.handleConnected("")
	s.handleDisconnected(errors.New("gone"))
	s.handleSocketError(socket.ErrRetriesExhausted)
	s.handleAuthFailed(socket.ErrAuthRejected)

	assert.Equal(t, []event.Name{
		event.SocketConnected,
		event.SocketDisconnected,
		event.SocketError,
		event.AuthFailed,
	}, names)
}

func TestSession_SettersEmit(t *testing.T) {
	s, _, _ := newTestSession(t)

	var events []event.Name
	s.bus.On(event.ActiveConversationChanged, func(any) { events = append(events, event.ActiveConversationChanged) })
	s.bus.On(event.FilterChanged, func(any) { events = append(events, event.FilterChanged) })

	s.SetActiveConversation("c1")
	assert.Equal(t, "c1", s.ActiveConversation())
	s.SetFilter(store.FilterPinned)
	assert.Equal(t, store.FilterPinned, s.Filter())

	assert.Equal(t, []event.Name{event.ActiveConversationChanged, event.FilterChanged}, events)
}
