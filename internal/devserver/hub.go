package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/socket"
)

const (
	writeWait   = 10 * time.Second
	sendBufSize = 64
)

// client is one accepted socket connection after a successful authenticate
// handshake.
type client struct {
	conn   *websocket.Conn
	userID string
	send   chan socket.Frame

	mu   sync.Mutex
	room string

	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *client) setRoom(room string) {
	c.mu.Lock()
	c.room = room
	c.mu.Unlock()
}

func (c *client) getRoom() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

// hub owns the stub's in-memory state and the connected clients.
type hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	convs   []model.Conversation
	msgs    map[string][]model.Message
	users   map[string]model.UserPublic
}

func newHub() *hub {
	return &hub{
		clients: make(map[string]map[*client]struct{}),
		msgs:    make(map[string][]model.Message),
		users:   make(map[string]model.UserPublic),
	}
}

// serveWS upgrades the connection and runs the authenticate handshake: the
// first frame must be an authenticate carrying a user ID, answered with
// auth_ok or auth_error.
func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("devserver ws upgrade: %v", err)
		return
	}

	var auth socket.Frame
	if err := conn.ReadJSON(&auth); err != nil {
		conn.Close()
		return
	}
	if auth.Type != socket.EventAuthenticate || auth.UserID == "" {
		_ = conn.WriteJSON(socket.Frame{Type: socket.EventAuthError, Reason: "authenticate frame required"})
		conn.Close()
		return
	}
	if err := conn.WriteJSON(socket.Frame{Type: socket.EventAuthOK, UserID: auth.UserID}); err != nil {
		conn.Close()
		return
	}

	c := &client{
		conn:   conn,
		userID: auth.UserID,
		send:   make(chan socket.Frame, sendBufSize),
		done:   make(chan struct{}),
	}
	h.addClient(c)
	go c.writeLoop()
	h.readLoop(c)
}

func (h *hub) addClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.userID]; !ok {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()

	h.broadcastPresence(c.userID, true)
}

func (h *hub) removeClient(c *client) {
	h.mu.Lock()
	clients, ok := h.clients[c.userID]
	if ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.clients, c.userID)
		}
	}
	last := ok && len(clients) == 0
	h.mu.Unlock()

	c.close()
	if last {
		h.broadcastPresence(c.userID, false)
	}
}

func (h *hub) readLoop(c *client) {
	defer h.removeClient(c)
	for {
		var f socket.Frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case socket.EventJoin:
			c.setRoom(f.ConversationID)
		case socket.EventLeave:
			if c.getRoom() == f.ConversationID {
				c.setRoom("")
			}
		case socket.EventTypingStart, socket.EventTypingStop:
			h.broadcastTyping(c.userID, f)
		default:
			c.trySend(socket.Frame{Type: socket.EventError, Reason: "unknown event type"})
		}
	}
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		}
	}
}

func (c *client) trySend(f socket.Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		// Slow client: the stub just drops the frame.
	}
}

func (h *hub) sendToUser(userID string, f socket.Frame) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(f)
	}
}

// broadcastTyping forwards a typing frame to the conversation's other
// participants.
func (h *hub) broadcastTyping(senderID string, f socket.Frame) {
	out := socket.Frame{Type: f.Type, ConversationID: f.ConversationID, UserID: senderID}

	h.mu.RLock()
	var participants []string
	for i := range h.convs {
		if h.convs[i].ID == f.ConversationID {
			for _, p := range h.convs[i].Participants {
				if p.UserID != senderID {
					participants = append(participants, p.UserID)
				}
			}
			break
		}
	}
	h.mu.RUnlock()

	for _, uid := range participants {
		h.sendToUser(uid, out)
	}
}

// broadcastPresence tells every connected client about an online/offline
// transition.
func (h *hub) broadcastPresence(userID string, online bool) {
	t := socket.EventUserOffline
	if online {
		t = socket.EventUserOnline
	}
	out := socket.Frame{Type: t, UserID: userID}

	h.mu.RLock()
	targets := make([]*client, 0)
	for uid, clients := range h.clients {
		if uid == userID {
			continue
		}
		for c := range clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(out)
	}
}

func (h *hub) roomOf(userID string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[userID] {
		if room := c.getRoom(); room != "" {
			return room
		}
	}
	return ""
}

func (h *hub) disconnectUser(userID string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.close()
	}
}
