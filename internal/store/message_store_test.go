package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflow/messenger/internal/event"
	"github.com/eventflow/messenger/internal/model"
)

func msg(id, sender, content string) model.Message {
	return model.Message{
		ID:             id,
		ConversationID: "c1",
		SenderID:       sender,
		Content:        content,
		ContentType:    model.ContentTypeText,
		Status:         model.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}
}

func TestMessageStore_AddMessageDedup(t *testing.T) {
	s := NewMessageStore(event.NewBus())

	m := msg("m1", "alice", "hello")
	require.True(t, s.AddMessage("c1", m))

	t.Run("same ID arriving twice keeps one entry", func(t *testing.T) {
		// Simulates the HTTP response and the socket echo delivering the
		// same message.
		assert.False(t, s.AddMessage("c1", m))
		assert.Len(t, s.Messages("c1"), 1)
	})

	t.Run("empty IDs are never deduped", func(t *testing.T) {
		a := msg("", "alice", "draft one")
		b := msg("", "alice", "draft two")
		assert.True(t, s.AddMessage("c1", a))
		assert.True(t, s.AddMessage("c1", b))
		assert.Len(t, s.Messages("c1"), 3)
	})

	t.Run("same ID in another conversation is independent", func(t *testing.T) {
		other := m
		other.ConversationID = "c2"
		assert.True(t, s.AddMessage("c2", other))
	})
}

func TestMessageStore_PrependMessages(t *testing.T) {
	s := NewMessageStore(event.NewBus())
	s.SetMessages("c1", []model.Message{msg("m3", "alice", "newest")})

	t.Run("empty batch is a no-op and reports no more", func(t *testing.T) {
		before := s.Messages("c1")
		assert.False(t, s.PrependMessages("c1", nil))
		assert.Equal(t, before, s.Messages("c1"))
	})

	t.Run("older batch lands before the head", func(t *testing.T) {
		older := []model.Message{msg("m1", "bob", "first"), msg("m2", "alice", "second")}
		require.True(t, s.PrependMessages("c1", older))
		got := s.Messages("c1")
		require.Len(t, got, 3)
		assert.Equal(t, "m1", got[0].ID)
		assert.Equal(t, "m2", got[1].ID)
		assert.Equal(t, "m3", got[2].ID)
	})

	t.Run("already-present IDs are skipped", func(t *testing.T) {
		require.True(t, s.PrependMessages("c1", []model.Message{msg("m0", "bob", "zeroth"), msg("m2", "alice", "second")}))
		got := s.Messages("c1")
		require.Len(t, got, 4)
		assert.Equal(t, "m0", got[0].ID)
	})
}

func TestMessageStore_UpdateMessage(t *testing.T) {
	s := NewMessageStore(event.NewBus())
	s.SetMessages("c1", []model.Message{msg("m1", "alice", "typo")})

	content := "fixed"
	now := time.Now().UTC()
	require.True(t, s.UpdateMessage("c1", "m1", model.MessagePatch{Content: &content, EditedAt: &now}))

	got, ok := s.Get("c1", "m1")
	require.True(t, ok)
	assert.Equal(t, "fixed", got.Content)
	require.NotNil(t, got.EditedAt)
	// Untouched fields survive the shallow merge.
	assert.Equal(t, model.StatusSent, got.Status)

	t.Run("unknown message is a silent no-op", func(t *testing.T) {
		assert.False(t, s.UpdateMessage("c1", "missing", model.MessagePatch{Content: &content}))
		assert.False(t, s.UpdateMessage("nope", "m1", model.MessagePatch{Content: &content}))
	})
}

func TestMessageStore_DeleteMessagePreservesPosition(t *testing.T) {
	s := NewMessageStore(event.NewBus())
	s.SetMessages("c1", []model.Message{
		msg("m1", "alice", "one"),
		msg("m2", "bob", "two"),
		msg("m3", "alice", "three"),
	})

	require.True(t, s.DeleteMessage("c1", "m2"))

	got := s.Messages("c1")
	require.Len(t, got, 3)
	assert.Equal(t, "m2", got[1].ID)
	assert.True(t, got[1].IsDeleted)
	assert.Equal(t, model.DeletedPlaceholder, got[1].Content)
	assert.NotNil(t, got[1].DeletedAt)

	assert.False(t, s.DeleteMessage("c1", "missing"))
}

func TestMessageStore_UpdateReactionToggles(t *testing.T) {
	s := NewMessageStore(event.NewBus())
	s.SetMessages("c1", []model.Message{msg("m1", "alice", "hello")})

	r := model.Reaction{UserID: "bob", Emoji: "👍"}
	require.True(t, s.UpdateReaction("c1", "m1", r))
	got, _ := s.Get("c1", "m1")
	require.Len(t, got.Reactions, 1)

	t.Run("second identical call removes it", func(t *testing.T) {
		require.True(t, s.UpdateReaction("c1", "m1", r))
		got, _ := s.Get("c1", "m1")
		assert.Empty(t, got.Reactions)
	})

	t.Run("different user keeps both reactions", func(t *testing.T) {
		require.True(t, s.UpdateReaction("c1", "m1", r))
		require.True(t, s.UpdateReaction("c1", "m1", model.Reaction{UserID: "carol", Emoji: "👍"}))
		got, _ := s.Get("c1", "m1")
		assert.Len(t, got.Reactions, 2)
	})
}

func TestMessageStore_ReplaceMessage(t *testing.T) {
	t.Run("REST response arrives first", func(t *testing.T) {
		s := NewMessageStore(event.NewBus())
		temp := msg("tmp-1", "bob", "hello")
		temp.Status = model.StatusSending
		s.AddMessage("c1", temp)

		confirmed := msg("m-real", "bob", "hello")
		assert.True(t, s.ReplaceMessage("c1", "tmp-1", confirmed))

		got := s.Messages("c1")
		require.Len(t, got, 1)
		assert.Equal(t, "m-real", got[0].ID)

		// A late socket echo for the confirmed ID must not duplicate.
		assert.False(t, s.AddMessage("c1", confirmed))
		assert.Len(t, s.Messages("c1"), 1)
	})

	t.Run("socket echo arrives first", func(t *testing.T) {
		s := NewMessageStore(event.NewBus())
		temp := msg("tmp-1", "bob", "hello")
		temp.Status = model.StatusSending
		s.AddMessage("c1", temp)

		confirmed := msg("m-real", "bob", "hello")
		require.True(t, s.AddMessage("c1", confirmed))

		// Replace reports false: the echo already placed the message, the
		// temp entry is simply dropped.
		assert.False(t, s.ReplaceMessage("c1", "tmp-1", confirmed))
		got := s.Messages("c1")
		require.Len(t, got, 1)
		assert.Equal(t, "m-real", got[0].ID)
	})
}

func TestMessageStore_MarkFailed(t *testing.T) {
	s := NewMessageStore(event.NewBus())
	temp := msg("tmp-1", "bob", "hello")
	temp.Status = model.StatusSending
	s.AddMessage("c1", temp)

	require.True(t, s.MarkFailed("c1", "tmp-1"))
	got, _ := s.Get("c1", "tmp-1")
	assert.Equal(t, model.StatusFailed, got.Status)
	// Content is preserved for user-driven retry.
	assert.Equal(t, "hello", got.Content)
}

func TestMessageStore_Events(t *testing.T) {
	bus := event.NewBus()
	s := NewMessageStore(bus)

	var added []event.MessagePayload
	bus.On(event.MessageAdded, func(payload any) {
		added = append(added, payload.(event.MessagePayload))
	})

	s.AddMessage("c1", msg("m1", "alice", "hi"))
	s.AddMessage("c1", msg("m1", "alice", "hi")) // deduped, no event

	require.Len(t, added, 1)
	assert.Equal(t, "c1", added[0].ConversationID)
	assert.Equal(t, "m1", added[0].Message.ID)
}
