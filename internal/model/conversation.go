package model

import "time"

// ContextType ties a conversation to the marketplace entity it started from.
type ContextType string

const (
	ContextPackage  ContextType = "package"
	ContextSupplier ContextType = "supplier"
	ContextListing  ContextType = "listing"
)

// ConversationContext references the entity a conversation was opened about.
type ConversationContext struct {
	Type     ContextType `json:"type"`
	EntityID string      `json:"entity_id"`
	Title    string      `json:"title,omitempty"`
}

// Participant is one user's view of a conversation: unread count and
// pin/archive flags are per participant, not shared conversation state.
type Participant struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	AvatarURL   string     `json:"avatar_url,omitempty"`
	UnreadCount int        `json:"unread_count"`
	IsPinned    bool       `json:"is_pinned"`
	IsArchived  bool       `json:"is_archived"`
	LastReadAt  *time.Time `json:"last_read_at,omitempty"`
}

// LastMessage is the denormalized preview shown in the conversation list.
type LastMessage struct {
	Content  string      `json:"content"`
	SenderID string      `json:"sender_id"`
	SentAt   time.Time   `json:"sent_at"`
	Type     ContentType `json:"type"`
}

// Conversation participants are fixed after creation; there is no member
// join/leave in this layer.
type Conversation struct {
	ID           string               `json:"id"`
	Participants []Participant        `json:"participants"`
	LastMessage  *LastMessage         `json:"last_message,omitempty"`
	Context      *ConversationContext `json:"context,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Participant returns the record for userID, or nil if the user is not part
// of the conversation.
func (c *Conversation) Participant(userID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// Others returns every participant except viewerID.
func (c *Conversation) Others(viewerID string) []Participant {
	out := make([]Participant, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID != viewerID {
			out = append(out, p)
		}
	}
	return out
}
