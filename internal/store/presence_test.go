package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventflow/messenger/internal/event"
)

func TestPresenceTracker_Presence(t *testing.T) {
	tr := NewPresenceTracker(event.NewBus(), 0)
	defer tr.Close()

	t.Run("unknown user defaults to offline with no last seen", func(t *testing.T) {
		rec := tr.Presence("u-ghost")
		assert.False(t, rec.Online)
		assert.Nil(t, rec.LastSeen)
	})

	t.Run("presence event overwrites and stamps last seen", func(t *testing.T) {
		tr.SetPresence("u-alice", true)
		rec := tr.Presence("u-alice")
		assert.True(t, rec.Online)
		require.NotNil(t, rec.LastSeen)

		tr.SetPresence("u-alice", false)
		assert.False(t, tr.Presence("u-alice").Online)
	})
}

func TestPresenceTracker_Typing(t *testing.T) {
	bus := event.NewBus()
	tr := NewPresenceTracker(bus, time.Minute)
	defer tr.Close()

	var payloads []event.TypingPayload
	bus.On(event.TypingChanged, func(payload any) {
		payloads = append(payloads, payload.(event.TypingPayload))
	})

	tr.SetTyping("c1", "u-alice", true)
	tr.SetTyping("c1", "u-carol", true)
	assert.Equal(t, []string{"u-alice", "u-carol"}, tr.TypingUsers("c1"))

	tr.SetTyping("c1", "u-alice", false)
	assert.Equal(t, []string{"u-carol"}, tr.TypingUsers("c1"))

	// Every change carries the full current set.
	require.Len(t, payloads, 3)
	assert.Equal(t, []string{"u-alice", "u-carol"}, payloads[1].UserIDs)
	assert.Equal(t, []string{"u-carol"}, payloads[2].UserIDs)

	t.Run("stop for an absent user is harmless", func(t *testing.T) {
		tr.SetTyping("c1", "u-ghost", false)
		assert.Equal(t, []string{"u-carol"}, tr.TypingUsers("c1"))
	})
}

func TestPresenceTracker_TypingExpiry(t *testing.T) {
	bus := event.NewBus()
	tr := NewPresenceTracker(bus, 30*time.Millisecond)
	defer tr.Close()

	expired := make(chan event.TypingPayload, 4)
	bus.On(event.TypingChanged, func(payload any) {
		expired <- payload.(event.TypingPayload)
	})

	// A typing entry whose stop signal never arrives clears on its own.
	tr.SetTyping("c1", "u-alice", true)
	<-expired // the start emission
	require.Eventually(t, func() bool {
		return len(tr.TypingUsers("c1")) == 0
	}, time.Second, 5*time.Millisecond)

	t.Run("refresh extends the deadline", func(t *testing.T) {
		tr.SetTyping("c1", "u-carol", true)
		time.Sleep(20 * time.Millisecond)
		tr.SetTyping("c1", "u-carol", true)
		time.Sleep(20 * time.Millisecond)
		// 40ms after the first signal but only 20ms after the refresh.
		assert.Equal(t, []string{"u-carol"}, tr.TypingUsers("c1"))
	})
}
