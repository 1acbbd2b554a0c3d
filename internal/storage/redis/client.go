package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// prefsKeyPrefix is the fixed key namespace for notification preferences.
const prefsKeyPrefix = "eventflow:notify:prefs:"

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// GetPreferences returns the stored JSON blob, nil when the user has none.
func (c *Client) GetPreferences(ctx context.Context, userID string) ([]byte, error) {
	val, err := c.cli.Get(ctx, prefsKeyPrefix+userID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

// SetPreferences stores the JSON blob without expiry; preferences live until
// the user changes them.
func (c *Client) SetPreferences(ctx context.Context, userID string, raw []byte) error {
	return c.cli.Set(ctx, prefsKeyPrefix+userID, raw, 0).Err()
}
