package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/model"
)

// Filter selects which conversations Filtered returns.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterUnread   Filter = "unread"
	FilterPinned   Filter = "pinned"
	FilterArchived Filter = "archived"
)

// ConversationDirectory holds the conversation list. Upserts preserve array
// position; ordering (pinned first, then UpdatedAt descending) is computed in
// Filtered, so the stored slice is not the source of truth for display order.
type ConversationDirectory struct {
	mu    sync.RWMutex
	bus   *event.Bus
	convs []model.Conversation
}

func NewConversationDirectory(bus *event.Bus) *ConversationDirectory {
	return &ConversationDirectory{bus: bus}
}

// SetConversations replaces the list wholesale (initial load).
func (d *ConversationDirectory) SetConversations(list []model.Conversation) {
	convs := make([]model.Conversation, len(list))
	copy(convs, list)

	d.mu.Lock()
	d.convs = convs
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.bus.Emit(event.ConversationsChanged, event.ConversationsPayload{Conversations: snapshot})
}

// UpsertConversation updates in place when the ID is known, keeping the array
// position, and prepends as newest otherwise.
func (d *ConversationDirectory) UpsertConversation(conv model.Conversation) {
	d.mu.Lock()
	if idx := d.findLocked(conv.ID); idx >= 0 {
		d.convs[idx] = conv
	} else {
		d.convs = append([]model.Conversation{conv}, d.convs...)
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.bus.Emit(event.ConversationsChanged, event.ConversationsPayload{Conversations: snapshot})
}

// ApplyMessage refreshes the owning conversation's preview and bumps unread
// counts for every participant except the sender. viewerID selects whose
// unread count is reported in the emitted payload.
func (d *ConversationDirectory) ApplyMessage(msg model.Message, viewerID string) {
	d.mu.Lock()
	idx := d.findLocked(msg.ConversationID)
	if idx < 0 {
		d.mu.Unlock()
		return
	}
	c := &d.convs[idx]
	c.LastMessage = &model.LastMessage{
		Content:  msg.Content,
		SenderID: msg.SenderID,
		SentAt:   msg.CreatedAt,
		Type:     msg.ContentType,
	}
	c.UpdatedAt = msg.CreatedAt
	viewerUnread := 0
	for i := range c.Participants {
		p := &c.Participants[i]
		if p.UserID != msg.SenderID {
			p.UnreadCount++
		}
		if p.UserID == viewerID {
			viewerUnread = p.UnreadCount
		}
	}
	total := d.totalUnreadLocked(viewerID)
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.bus.Emit(event.ConversationsChanged, event.ConversationsPayload{Conversations: snapshot})
	if msg.SenderID != viewerID {
		d.bus.Emit(event.UnreadCountChanged, event.UnreadPayload{
			ConversationID: msg.ConversationID,
			Unread:         viewerUnread,
			Total:          total,
		})
	}
}

// MarkRead zeroes userID's unread count and stamps LastReadAt. Unknown
// conversations or participants are no-ops.
func (d *ConversationDirectory) MarkRead(conversationID, userID string) bool {
	now := time.Now().UTC()

	d.mu.Lock()
	idx := d.findLocked(conversationID)
	if idx < 0 {
		d.mu.Unlock()
		return false
	}
	p := d.convs[idx].Participant(userID)
	if p == nil {
		d.mu.Unlock()
		return false
	}
	p.UnreadCount = 0
	p.LastReadAt = &now
	total := d.totalUnreadLocked(userID)
	d.mu.Unlock()

	d.bus.Emit(event.UnreadCountChanged, event.UnreadPayload{
		ConversationID: conversationID,
		Unread:         0,
		Total:          total,
	})
	return true
}

// SetPinned toggles the viewer's pin flag.
func (d *ConversationDirectory) SetPinned(conversationID, userID string, pinned bool) bool {
	return d.setFlag(conversationID, userID, func(p *model.Participant) { p.IsPinned = pinned })
}

// SetArchived toggles the viewer's archive flag. Archived conversations stay
// in the directory and are only filtered out of the default view.
func (d *ConversationDirectory) SetArchived(conversationID, userID string, archived bool) bool {
	return d.setFlag(conversationID, userID, func(p *model.Participant) { p.IsArchived = archived })
}

func (d *ConversationDirectory) setFlag(conversationID, userID string, apply func(*model.Participant)) bool {
	d.mu.Lock()
	idx := d.findLocked(conversationID)
	if idx < 0 {
		d.mu.Unlock()
		return false
	}
	p := d.convs[idx].Participant(userID)
	if p == nil {
		d.mu.Unlock()
		return false
	}
	apply(p)
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.bus.Emit(event.ConversationsChanged, event.ConversationsPayload{Conversations: snapshot})
	return true
}

// Filtered computes the display view: tab filter, then case-insensitive
// search over the other participants' display names and the last message
// content, then pinned-before-unpinned with UpdatedAt descending inside each
// group. Conversations without a participant record for the viewer are
// excluded rather than causing an error.
func (d *ConversationDirectory) Filtered(filter Filter, search, viewerID string) []model.Conversation {
	d.mu.RLock()
	convs := d.snapshotLocked()
	d.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(search))
	out := make([]model.Conversation, 0, len(convs))
	for _, c := range convs {
		p := c.Participant(viewerID)
		if p == nil {
			continue
		}
		switch filter {
		case FilterUnread:
			if p.UnreadCount == 0 || p.IsArchived {
				continue
			}
		case FilterPinned:
			if !p.IsPinned {
				continue
			}
		case FilterArchived:
			if !p.IsArchived {
				continue
			}
		default: // FilterAll: archived conversations are opt-in only
			if p.IsArchived {
				continue
			}
		}
		if q != "" && !matchesSearch(c, q, viewerID) {
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Participant(viewerID), out[j].Participant(viewerID)
		if pi.IsPinned != pj.IsPinned {
			return pi.IsPinned
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func matchesSearch(c model.Conversation, q, viewerID string) bool {
	for _, p := range c.Others(viewerID) {
		if strings.Contains(strings.ToLower(p.DisplayName), q) {
			return true
		}
	}
	return c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), q)
}

// Get returns one conversation by ID.
func (d *ConversationDirectory) Get(conversationID string) (model.Conversation, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	idx := d.findLocked(conversationID)
	if idx < 0 {
		return model.Conversation{}, false
	}
	c := d.convs[idx]
	parts := make([]model.Participant, len(c.Participants))
	copy(parts, c.Participants)
	c.Participants = parts
	return c, true
}

// Conversations returns a copy of the full list in stored order.
func (d *ConversationDirectory) Conversations() []model.Conversation {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshotLocked()
}

// TotalUnread sums the viewer's unread counts over non-archived conversations.
func (d *ConversationDirectory) TotalUnread(viewerID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.totalUnreadLocked(viewerID)
}

func (d *ConversationDirectory) totalUnreadLocked(viewerID string) int {
	total := 0
	for _, c := range d.convs {
		if p := c.Participant(viewerID); p != nil && !p.IsArchived {
			total += p.UnreadCount
		}
	}
	return total
}

func (d *ConversationDirectory) findLocked(conversationID string) int {
	for i := range d.convs {
		if d.convs[i].ID == conversationID {
			return i
		}
	}
	return -1
}

// snapshotLocked clones the list including each participants slice, so
// subscribers holding an emitted payload never observe later in-place edits.
func (d *ConversationDirectory) snapshotLocked() []model.Conversation {
	out := make([]model.Conversation, len(d.convs))
	copy(out, d.convs)
	for i := range out {
		parts := make([]model.Participant, len(out[i].Participants))
		copy(parts, out[i].Participants)
		out[i].Participants = parts
	}
	return out
}
