// Package api wraps the EventFlow REST backend used by the messenger:
// conversation list, message history with cursor pagination, send, mark-read
// and contact search. Requests carry session cookies; state-mutating calls
// additionally carry the CSRF token fetched from the token endpoint.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/eventflow/messenger/internal/model"
)

// ErrUnauthorized is returned for 401 responses so callers can redirect to
// login instead of showing a generic failure.
var ErrUnauthorized = errors.New("api: unauthorized")

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	csrfToken string
	userID    string
}

// NewClient builds a client for the backend at baseURL. The cookie jar keeps
// the backend session cookie across calls.
func NewClient(baseURL string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
	}
}

// NewClientWithHTTP is used by tests to inject an httptest transport.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), httpClient: hc}
}

// SetUser sets the identity sent as X-User-ID alongside the session cookie.
// The devserver relies on the header; the production backend ignores it in
// favor of the cookie.
func (c *Client) SetUser(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// Conversations fetches the conversation list, optionally filtered by status
// (all/unread/pinned/archived, passed through to the backend).
func (c *Client) Conversations(ctx context.Context, status string) ([]model.Conversation, error) {
	u := c.baseURL + "/api/conversations"
	if status != "" {
		u += "?status=" + url.QueryEscape(status)
	}
	var out []model.Conversation
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	return out, nil
}

// Messages fetches one page of a conversation's history, oldest-first. before
// is the exclusive cursor (a message ID); empty fetches the newest page.
func (c *Client) Messages(ctx context.Context, conversationID, before string, limit int) ([]model.Message, error) {
	q := url.Values{}
	if before != "" {
		q.Set("before", before)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u := c.baseURL + "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	if enc := q.Encode(); enc != "" {
		u += "?" + enc
	}
	var out []model.Message
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return out, nil
}

// SendMessageRequest is the POST body for sending a message.
type SendMessageRequest struct {
	Content        string            `json:"content"`
	ContentType    model.ContentType `json:"content_type,omitempty"`
	AttachmentURL  string            `json:"attachment_url,omitempty"`
	AttachmentName string            `json:"attachment_name,omitempty"`
	AttachmentSize int64             `json:"attachment_size,omitempty"`
	ReplyToID      string            `json:"reply_to_id,omitempty"`
}

// SendMessage posts a new message and returns the server-confirmed entry
// (real ID, sent status).
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (model.Message, error) {
	u := c.baseURL + "/api/conversations/" + url.PathEscape(conversationID) + "/messages"
	var out model.Message
	if err := c.postJSON(ctx, u, req, &out); err != nil {
		return model.Message{}, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

// MarkRead reports the viewer has read the conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	u := c.baseURL + "/api/conversations/" + url.PathEscape(conversationID) + "/read"
	if err := c.postJSON(ctx, u, struct{}{}, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// SearchContacts queries the contact directory.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]model.UserPublic, error) {
	u := c.baseURL + "/api/contacts/search?q=" + url.QueryEscape(query)
	var out []model.UserPublic
	if err := c.getJSON(ctx, u, &out); err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, u string, body, out any) error {
	token, err := c.csrf(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	c.mu.Lock()
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}
	c.mu.Unlock()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		// Stale CSRF token: drop the cache so the next call refetches.
		c.mu.Lock()
		c.csrfToken = ""
		c.mu.Unlock()
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// csrf returns the cached token, fetching it from /api/csrf on first use.
func (c *Client) csrf(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.csrfToken != "" {
		token := c.csrfToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	var body struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/api/csrf", &body); err != nil {
		return "", fmt.Errorf("fetch csrf token: %w", err)
	}

	c.mu.Lock()
	c.csrfToken = body.Token
	c.mu.Unlock()
	return body.Token, nil
}
