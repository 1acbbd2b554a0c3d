package storage

import "context"

// PreferenceStore persists per-user notification preferences outside the
// session state, so they survive page reloads and logouts.
// Implementations: redis.Client, memory.Client (for dev/tests without Redis).
type PreferenceStore interface {
	GetPreferences(ctx context.Context, userID string) ([]byte, error)
	SetPreferences(ctx context.Context, userID string, raw []byte) error
	Close() error
}
