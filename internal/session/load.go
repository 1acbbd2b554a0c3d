package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eventflow/messenger/internal/api"
	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/store"
)

// LoadConversations fetches the directory from the backend and replaces the
// local list. The store is left unchanged on error.
func (s *Session) LoadConversations(ctx context.Context, filter store.Filter) error {
	defer logger.DeferLogDuration("Session.LoadConversations", time.Now())()
	convs, err := s.api.Conversations(ctx, string(filter))
	if err != nil {
		return err
	}
	s.directory.SetConversations(convs)
	return nil
}

// LoadMessages fetches the newest page of a conversation's history and
// replaces the local list, resetting the pagination cursor.
func (s *Session) LoadMessages(ctx context.Context, conversationID string) error {
	defer logger.DeferLogDuration("Session.LoadMessages", time.Now())()
	msgs, err := s.api.Messages(ctx, conversationID, "", pageSize)
	if err != nil {
		return err
	}
	s.messages.SetMessages(conversationID, msgs)

	s.mu.Lock()
	s.noMore[conversationID] = len(msgs) < pageSize
	s.mu.Unlock()
	return nil
}

// LoadOlderMessages fetches the page before the current head for
// infinite-scroll pagination. It reports whether more pages may remain; an
// empty page leaves the list untouched and stops further loads.
func (s *Session) LoadOlderMessages(ctx context.Context, conversationID string) (more bool, err error) {
	s.mu.Lock()
	exhausted := s.noMore[conversationID]
	s.mu.Unlock()
	if exhausted {
		return false, nil
	}

	before := ""
	if head := s.messages.Messages(conversationID); len(head) > 0 {
		before = head[0].ID
	}

	page, err := s.api.Messages(ctx, conversationID, before, pageSize)
	if err != nil {
		return true, err
	}

	prepended := s.messages.PrependMessages(conversationID, page)
	if !prepended || len(page) < pageSize {
		s.mu.Lock()
		s.noMore[conversationID] = true
		s.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// SendOptions carries the optional parts of a send.
type SendOptions struct {
	ContentType    model.ContentType
	AttachmentURL  string
	AttachmentName string
	AttachmentSize int64
	ReplyToID      string
}

// SendMessage performs the optimistic send flow: a temporary entry with
// sending status appears immediately, the REST call confirms it, and the
// temporary entry is replaced by the server message. On error the entry is
// marked failed and kept so the user can retry; the session never retries on
// its own. The dedup in the store keeps the list correct whichever of the
// REST response and the socket echo lands first.
func (s *Session) SendMessage(ctx context.Context, conversationID, content string, opts SendOptions) (model.Message, error) {
	defer logger.DeferLogDuration("Session.SendMessage", time.Now())()
	s.flushTypingStop(conversationID)

	user := s.CurrentUser()
	contentType := opts.ContentType
	if contentType == "" {
		contentType = model.ContentTypeText
	}
	var replyTo *string
	if opts.ReplyToID != "" {
		replyTo = &opts.ReplyToID
	}

	temp := model.Message{
		ID:             "tmp-" + uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       user.ID,
		Content:        content,
		ContentType:    contentType,
		AttachmentURL:  opts.AttachmentURL,
		AttachmentName: opts.AttachmentName,
		AttachmentSize: opts.AttachmentSize,
		ReplyToID:      replyTo,
		Status:         model.StatusSending,
		CreatedAt:      time.Now().UTC(),
	}
	s.messages.AddMessage(conversationID, temp)

	confirmed, err := s.api.SendMessage(ctx, conversationID, api.SendMessageRequest{
		Content:        content,
		ContentType:    contentType,
		AttachmentURL:  opts.AttachmentURL,
		AttachmentName: opts.AttachmentName,
		AttachmentSize: opts.AttachmentSize,
		ReplyToID:      opts.ReplyToID,
	})
	if err != nil {
		s.messages.MarkFailed(conversationID, temp.ID)
		return temp, fmt.Errorf("send message: %w", err)
	}
	if confirmed.Status == "" || confirmed.Status == model.StatusSending {
		confirmed.Status = model.StatusSent
	}

	if s.messages.ReplaceMessage(conversationID, temp.ID, confirmed) {
		s.directory.ApplyMessage(confirmed, user.ID)
	}
	return confirmed, nil
}

// ResendMessage retries a failed optimistic entry in place (user-initiated).
func (s *Session) ResendMessage(ctx context.Context, conversationID, tempID string) (model.Message, error) {
	failed, ok := s.messages.Get(conversationID, tempID)
	if !ok || failed.Status != model.StatusFailed {
		return model.Message{}, fmt.Errorf("resend: no failed message %s", tempID)
	}

	sending := model.StatusSending
	s.messages.UpdateMessage(conversationID, tempID, model.MessagePatch{Status: &sending})

	req := api.SendMessageRequest{
		Content:        failed.Content,
		ContentType:    failed.ContentType,
		AttachmentURL:  failed.AttachmentURL,
		AttachmentName: failed.AttachmentName,
		AttachmentSize: failed.AttachmentSize,
	}
	if failed.ReplyToID != nil {
		req.ReplyToID = *failed.ReplyToID
	}
	confirmed, err := s.api.SendMessage(ctx, conversationID, req)
	if err != nil {
		s.messages.MarkFailed(conversationID, tempID)
		return failed, fmt.Errorf("resend message: %w", err)
	}
	if confirmed.Status == "" || confirmed.Status == model.StatusSending {
		confirmed.Status = model.StatusSent
	}

	if s.messages.ReplaceMessage(conversationID, tempID, confirmed) {
		s.directory.ApplyMessage(confirmed, s.CurrentUser().ID)
	}
	return confirmed, nil
}

// MarkConversationRead reports the read to the backend and zeroes the local
// unread count for the viewer.
func (s *Session) MarkConversationRead(ctx context.Context, conversationID string) error {
	if err := s.api.MarkRead(ctx, conversationID); err != nil {
		return err
	}
	s.directory.MarkRead(conversationID, s.CurrentUser().ID)
	return nil
}

// SearchContacts queries the backend contact directory.
func (s *Session) SearchContacts(ctx context.Context, query string) ([]model.UserPublic, error) {
	return s.api.SearchContacts(ctx, query)
}
