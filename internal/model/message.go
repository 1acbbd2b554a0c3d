package model

import "time"

type ContentType string

const (
	ContentTypeText   ContentType = "text"
	ContentTypeImage  ContentType = "image"
	ContentTypeFile   ContentType = "file"
	ContentTypeSystem ContentType = "system"
)

type DeliveryStatus string

const (
	// StatusSending marks an optimistic message awaiting server confirmation.
	StatusSending DeliveryStatus = "sending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// DeletedPlaceholder replaces the content of soft-deleted messages. The entry
// keeps its position in the history; only the content is blanked.
const DeletedPlaceholder = "Message deleted"

type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderID       string         `json:"sender_id"`
	Content        string         `json:"content"`
	ContentType    ContentType    `json:"content_type"`
	AttachmentURL  string         `json:"attachment_url,omitempty"`
	AttachmentName string         `json:"attachment_name,omitempty"`
	AttachmentSize int64          `json:"attachment_size,omitempty"`
	Status         DeliveryStatus `json:"status"`
	ReplyToID      *string        `json:"reply_to_id,omitempty"`
	ReplyTo        *Message       `json:"reply_to,omitempty"`
	Reactions      []Reaction     `json:"reactions,omitempty"`
	EditedAt       *time.Time     `json:"edited_at,omitempty"`
	IsDeleted      bool           `json:"is_deleted"`
	DeletedAt      *time.Time     `json:"deleted_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	Sender         *UserPublic    `json:"sender,omitempty"`
}

// IsTemporary reports whether the message still carries a client-generated ID
// (optimistic send not yet confirmed by the server).
func (m *Message) IsTemporary() bool {
	return m.Status == StatusSending
}

type Reaction struct {
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// MessagePatch is a shallow merge applied by MessageStore.UpdateMessage.
// Nil fields are left untouched.
type MessagePatch struct {
	Content     *string         `json:"content,omitempty"`
	ContentType *ContentType    `json:"content_type,omitempty"`
	Status      *DeliveryStatus `json:"status,omitempty"`
	EditedAt    *time.Time      `json:"edited_at,omitempty"`
	Reactions   *[]Reaction     `json:"reactions,omitempty"`
}

// Apply merges non-nil patch fields into m.
func (p MessagePatch) Apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.ContentType != nil {
		m.ContentType = *p.ContentType
	}
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.EditedAt != nil {
		m.EditedAt = p.EditedAt
	}
	if p.Reactions != nil {
		m.Reactions = *p.Reactions
	}
}
