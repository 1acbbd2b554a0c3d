// Package notify bridges the session's events to user-facing notifications:
// it aggregates unread counts for the tab title and forwards qualifying new
// messages to a Notifier, honoring per-user preferences (desktop, sound,
// quiet hours) persisted independently of the session state.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/logger"
	"github.com/eventflow/messenger/internal/model"
	"github.com/eventflow/messenger/internal/storage"
)

const bodyLimit = 120

// Preferences is the JSON blob stored per user. Quiet hours are local-time
// "HH:MM" strings; an empty pair disables quiet hours.
type Preferences struct {
	DesktopEnabled  bool   `json:"desktop_enabled"`
	SoundEnabled    bool   `json:"sound_enabled"`
	QuietHoursStart string `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   string `json:"quiet_hours_end,omitempty"`
}

// DefaultPreferences enables desktop and sound with no quiet hours.
func DefaultPreferences() Preferences {
	return Preferences{DesktopEnabled: true, SoundEnabled: true}
}

// Notifier delivers a desktop notification. Implementations: the devserver's
// log notifier, the terminal client's bell printer.
type Notifier interface {
	Notify(ctx context.Context, title, body string, data map[string]string)
}

// Bridge subscribes to unreadCountChanged and messageAdded and drives the
// notifier. It owns no session state beyond the cached aggregate.
type Bridge struct {
	store    storage.PreferenceStore
	notifier Notifier
	userID   string

	mu     sync.Mutex
	prefs  Preferences
	unread int
	now    func() time.Time

	subs []event.Subscription
	bus  *event.Bus
}

// NewBridge loads the user's stored preferences (defaults when none) and
// subscribes to the bus.
func NewBridge(ctx context.Context, bus *event.Bus, store storage.PreferenceStore, notifier Notifier, userID string) *Bridge {
	b := &Bridge{
		store:    store,
		notifier: notifier,
		userID:   userID,
		prefs:    DefaultPreferences(),
		now:      time.Now,
		bus:      bus,
	}

	raw, err := store.GetPreferences(ctx, userID)
	if err != nil {
		logger.Errorf("notify: load preferences user=%s: %v", userID, err)
	} else if len(raw) > 0 {
		if err := json.Unmarshal(raw, &b.prefs); err != nil {
			logger.Errorf("notify: parse preferences user=%s: %v", userID, err)
			b.prefs = DefaultPreferences()
		}
	}

	b.subs = append(b.subs,
		bus.On(event.UnreadCountChanged, b.onUnread),
		bus.On(event.MessageAdded, b.onMessageAdded),
	)
	return b
}

// Close unsubscribes the bridge from the bus.
func (b *Bridge) Close() {
	for _, sub := range b.subs {
		b.bus.Off(sub)
	}
}

// Preferences returns the current preference snapshot.
func (b *Bridge) Preferences() Preferences {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prefs
}

// SetPreferences persists and applies new preferences.
func (b *Bridge) SetPreferences(ctx context.Context, p Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: encode preferences: %w", err)
	}
	if err := b.store.SetPreferences(ctx, b.userID, raw); err != nil {
		return fmt.Errorf("notify: store preferences: %w", err)
	}
	b.mu.Lock()
	b.prefs = p
	b.mu.Unlock()
	return nil
}

// UnreadTotal is the last aggregate reported by the session, for tab-title
// style display.
func (b *Bridge) UnreadTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unread
}

// TitleSuffix renders the "(N)" tab-title decoration, empty at zero unread.
func (b *Bridge) TitleSuffix() string {
	n := b.UnreadTotal()
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("(%d) ", n)
}

func (b *Bridge) onUnread(payload any) {
	p, ok := payload.(event.UnreadPayload)
	if !ok {
		return
	}
	b.mu.Lock()
	b.unread = p.Total
	b.mu.Unlock()
}

func (b *Bridge) onMessageAdded(payload any) {
	p, ok := payload.(event.MessagePayload)
	if !ok {
		return
	}
	msg := p.Message
	// Own messages (including optimistic entries) never notify.
	if msg.SenderID == b.userID || msg.Status == model.StatusSending {
		return
	}

	b.mu.Lock()
	prefs := b.prefs
	now := b.now()
	b.mu.Unlock()

	if !prefs.DesktopEnabled || inQuietHours(prefs, now) {
		return
	}

	title := "New message"
	if msg.Sender != nil && msg.Sender.DisplayName != "" {
		title = msg.Sender.DisplayName
	}
	body := msg.Content
	if msg.ContentType != model.ContentTypeText || body == "" {
		body = "Attachment"
	}
	if len(body) > bodyLimit {
		body = body[:bodyLimit-3] + "..."
	}
	data := map[string]string{
		"conversation_id": p.ConversationID,
		"message_id":      msg.ID,
	}
	go b.notifier.Notify(context.Background(), title, body, data)
}

// inQuietHours reports whether now falls inside the configured window. The
// window may wrap past midnight (e.g. 22:00 to 07:00).
func inQuietHours(p Preferences, now time.Time) bool {
	start, okS := parseClock(p.QuietHoursStart)
	end, okE := parseClock(p.QuietHoursEnd)
	if !okS || !okE || start == end {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	if start < end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
