// Package devserver is an in-memory stand-in for the EventFlow backend: the
// REST endpoints and socket feed the messenger core talks to, with no
// persistence and pass-through authentication. It powers cmd/devserver for
// local development and the integration tests (optimistic send with socket
// echo, reconnect rejoin).
package devserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/socket"
)

const defaultPageSize = 50

type Server struct {
	hub       *hub
	csrfToken string
	router    chi.Router
}

func New(allowedOrigins []string) *Server {
	s := &Server{
		hub:       newHub(),
		csrfToken: uuid.New().String(),
	}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-CSRF-Token", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/csrf", s.getCSRF)
	r.Get("/api/conversations", s.getConversations)
	r.Get("/api/conversations/{conversationId}/messages", s.getMessages)
	r.Post("/api/conversations/{conversationId}/messages", s.requireCSRF(s.postMessage))
	r.Post("/api/conversations/{conversationId}/read", s.requireCSRF(s.postRead))
	r.Get("/api/contacts/search", s.searchContacts)
	r.Get("/ws", s.hub.serveWS)

	s.router = r
	return s
}

// Handler returns the HTTP handler for http.Server or httptest.
func (s *Server) Handler() http.Handler { return s.router }

// CSRFToken exposes the token for tests that bypass /api/csrf.
func (s *Server) CSRFToken() string { return s.csrfToken }

// --- seeding and test observation ---

// SeedUser registers a contact.
func (s *Server) SeedUser(u model.UserPublic) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.users[u.ID] = u
}

// SeedConversation installs a conversation with an optional initial history
// (oldest-first).
func (s *Server) SeedConversation(c model.Conversation, history []model.Message) {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.convs = append(s.hub.convs, c)
	if len(history) > 0 {
		msgs := make([]model.Message, len(history))
		copy(msgs, history)
		s.hub.msgs[c.ID] = msgs
	}
}

// ConversationMessages returns the stored history (oldest-first).
func (s *Server) ConversationMessages(conversationID string) []model.Message {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	list := s.hub.msgs[conversationID]
	out := make([]model.Message, len(list))
	copy(out, list)
	return out
}

// RoomOf reports which conversation room the user's connection has joined,
// "" when none. Used by the reconnect-rejoin test.
func (s *Server) RoomOf(userID string) string {
	return s.hub.roomOf(userID)
}

// DisconnectUser force-closes the user's socket connections, simulating a
// transport drop. The client is expected to reconnect on its own.
func (s *Server) DisconnectUser(userID string) {
	s.hub.disconnectUser(userID)
}

// --- REST handlers ---

func (s *Server) getCSRF(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"token": s.csrfToken})
}

func (s *Server) requireCSRF(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CSRF-Token") != s.csrfToken {
			writeError(w, http.StatusForbidden, "invalid csrf token")
			return
		}
		next(w, r)
	}
}

// getConversations returns the directory. The optional status filter applies
// relative to X-User-ID; without a user identity the full list is returned
// and the client filters locally.
func (s *Server) getConversations(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	userID := r.Header.Get("X-User-ID")

	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()

	out := make([]model.Conversation, 0, len(s.hub.convs))
	for _, c := range s.hub.convs {
		if userID != "" && status != "" && status != "all" {
			p := c.Participant(userID)
			if p == nil {
				continue
			}
			switch status {
			case "unread":
				if p.UnreadCount == 0 {
					continue
				}
			case "pinned":
				if !p.IsPinned {
					continue
				}
			case "archived":
				if !p.IsArchived {
					continue
				}
			}
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

// getMessages pages backwards through the history with an exclusive before
// cursor, returning each page oldest-first.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationId")
	before := r.URL.Query().Get("before")
	limit := queryInt(r, "limit", defaultPageSize)
	if limit > 100 {
		limit = 100
	}

	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()

	list := s.hub.msgs[convID]
	end := len(list)
	if before != "" {
		end = 0
		for i, m := range list {
			if m.ID == before {
				end = i
				break
			}
		}
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]model.Message, end-start)
	copy(page, list[start:end])
	writeJSON(w, http.StatusOK, page)
}

type sendMessageRequest struct {
	Content        string            `json:"content"`
	ContentType    model.ContentType `json:"content_type"`
	AttachmentURL  string            `json:"attachment_url"`
	AttachmentName string            `json:"attachment_name"`
	AttachmentSize int64             `json:"attachment_size"`
	ReplyToID      string            `json:"reply_to_id"`
}

// postMessage stores the message, replies with the confirmed entry and
// broadcasts the socket echo to every participant, including the sender.
// Delivering the same message over both channels is intentional: the client
// dedup contract depends on it.
func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationId")
	senderID := r.Header.Get("X-User-ID")

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Content == "" && req.AttachmentURL == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = model.ContentTypeText
	}
	var replyTo *string
	if req.ReplyToID != "" {
		replyTo = &req.ReplyToID
	}

	now := time.Now().UTC()
	msg := model.Message{
		ID:             uuid.New().String(),
		ConversationID: convID,
		SenderID:       senderID,
		Content:        req.Content,
		ContentType:    contentType,
		AttachmentURL:  req.AttachmentURL,
		AttachmentName: req.AttachmentName,
		AttachmentSize: req.AttachmentSize,
		ReplyToID:      replyTo,
		Status:         model.StatusSent,
		CreatedAt:      now,
	}

	s.hub.mu.Lock()
	if sender, ok := s.hub.users[senderID]; ok {
		msg.Sender = &sender
	}
	s.hub.msgs[convID] = append(s.hub.msgs[convID], msg)
	var participants []string
	for i := range s.hub.convs {
		c := &s.hub.convs[i]
		if c.ID != convID {
			continue
		}
		c.LastMessage = &model.LastMessage{
			Content:  msg.Content,
			SenderID: msg.SenderID,
			SentAt:   msg.CreatedAt,
			Type:     msg.ContentType,
		}
		c.UpdatedAt = msg.CreatedAt
		for j := range c.Participants {
			if c.Participants[j].UserID != senderID {
				c.Participants[j].UnreadCount++
			}
			participants = append(participants, c.Participants[j].UserID)
		}
		break
	}
	s.hub.mu.Unlock()

	echo := socket.Frame{Type: socket.EventNewMessage, ConversationID: convID, Message: &msg}
	for _, uid := range participants {
		s.hub.sendToUser(uid, echo)
	}

	writeJSON(w, http.StatusCreated, msg)
}

// postRead zeroes the reader's unread count and broadcasts the read receipt
// to every participant (the reader's own receipt is what zeroes the count on
// their other tabs).
func (s *Server) postRead(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "conversationId")
	userID := r.Header.Get("X-User-ID")

	now := time.Now().UTC()
	s.hub.mu.Lock()
	var participants []string
	for i := range s.hub.convs {
		c := &s.hub.convs[i]
		if c.ID != convID {
			continue
		}
		for j := range c.Participants {
			if c.Participants[j].UserID == userID {
				c.Participants[j].UnreadCount = 0
				c.Participants[j].LastReadAt = &now
			}
			participants = append(participants, c.Participants[j].UserID)
		}
		break
	}
	s.hub.mu.Unlock()

	receipt := socket.Frame{Type: socket.EventMessageRead, ConversationID: convID, UserID: userID}
	for _, uid := range participants {
		s.hub.sendToUser(uid, receipt)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) searchContacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	out := make([]model.UserPublic, 0, len(s.hub.users))
	for _, u := range s.hub.users {
		if q == "" || containsFold(u.DisplayName, q) {
			out = append(out, u)
		}
	}
	writeJSON(w, http.StatusOK, out)
}
