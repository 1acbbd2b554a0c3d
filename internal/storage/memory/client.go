package memory

import (
	"context"
	"sync"
)

// Client is the in-memory PreferenceStore used when no Redis URL is
// configured and in tests.
type Client struct {
	mu    sync.RWMutex
	prefs map[string][]byte
}

func New() *Client {
	return &Client{prefs: make(map[string][]byte)}
}

func (c *Client) Close() error { return nil }

func (c *Client) GetPreferences(ctx context.Context, userID string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	raw, ok := c.prefs[userID]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (c *Client) SetPreferences(ctx context.Context, userID string, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, len(raw))
	copy(cp, raw)
	c.prefs[userID] = cp
	return nil
}
