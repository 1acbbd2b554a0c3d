package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/eventflow/messenger/internal/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	authWait       = 5 * time.Second
	maxMessageSize = 65536
	sendBufSize    = 64
	maxRetryDelay  = 10 * time.Second
)

// ErrAuthRejected is reported through Events.OnAuthFailed when the backend
// refuses the authenticate handshake. The client does not retry after it.
var ErrAuthRejected = errors.New("socket: authentication rejected")

// ErrRetriesExhausted is reported through Events.OnError once the reconnect
// ceiling is reached.
var ErrRetriesExhausted = errors.New("socket: reconnect attempts exhausted")

// Events carries the client's callbacks. Frame and lifecycle callbacks run on
// the client's read goroutine; nil callbacks are skipped.
type Events struct {
	// OnFrame receives every server event after a successful handshake.
	OnFrame func(Frame)
	// OnConnected fires after each successful authenticate (including
	// reconnects). rejoined is the conversation that was re-entered, if any.
	OnConnected func(rejoined string)
	// OnDisconnected fires when an established connection drops; automatic
	// reconnection follows unless the ceiling was reached.
	OnDisconnected func(err error)
	// OnError fires when reconnection gives up.
	OnError func(err error)
	// OnAuthFailed fires when the backend rejects the handshake; distinct
	// from connection errors so the UI can redirect to login.
	OnAuthFailed func(err error)
}

// Config controls dialing and the reconnect policy.
type Config struct {
	URL         string
	MaxAttempts int           // reconnect ceiling, default 5
	BaseDelay   time.Duration // first retry delay, doubled per attempt, capped
	Dialer      *websocket.Dialer
}

// Client is a reconnecting WebSocket client. Lifecycle:
// New -> Connect(ctx) -> [readPump, writePump, run] -> Close.
type Client struct {
	cfg    Config
	events Events

	userID   string
	userName string

	mu     sync.Mutex
	joined string // currently joined conversation room, "" when none
	closed bool

	send   chan Frame
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc
}

func New(cfg Config, events Events) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	return &Client{
		cfg:    cfg,
		events: events,
		send:   make(chan Frame, sendBufSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the backend and performs the authenticate handshake
// synchronously, then hands the connection to the background run loop which
// owns reconnection. The first failure is returned to the caller; later
// failures surface through Events.
func (c *Client) Connect(ctx context.Context, userID, userName string) error {
	c.userID = userID
	c.userName = userName

	conn, err := c.dialAndAuth(ctx)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx, conn)

	c.fireConnected("")
	return nil
}

// Close tears the client down. Safe to call multiple times.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
	})
}

// Join enters a conversation room. At most one room is joined per client:
// joining implicitly leaves the previous room first.
func (c *Client) Join(conversationID string) {
	c.mu.Lock()
	prev := c.joined
	c.joined = conversationID
	c.mu.Unlock()

	if prev != "" && prev != conversationID {
		c.enqueue(Frame{Type: EventLeave, ConversationID: prev})
	}
	c.enqueue(Frame{Type: EventJoin, ConversationID: conversationID})
}

// Leave exits the conversation room if it is the joined one.
func (c *Client) Leave(conversationID string) {
	c.mu.Lock()
	if c.joined != conversationID {
		c.mu.Unlock()
		return
	}
	c.joined = ""
	c.mu.Unlock()

	c.enqueue(Frame{Type: EventLeave, ConversationID: conversationID})
}

// Joined returns the currently joined conversation room.
func (c *Client) Joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// SendTyping emits a typing start or stop signal for the conversation.
func (c *Client) SendTyping(conversationID string, typing bool) {
	t := EventTypingStop
	if typing {
		t = EventTypingStart
	}
	c.enqueue(Frame{Type: t, ConversationID: conversationID})
}

// enqueue queues a frame for the write pump, dropping it when the buffer is
// full or the client is closed. Room membership is tracked separately, so a
// dropped join is replayed on the next reconnect.
func (c *Client) enqueue(f Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		logger.Errorf("socket send buffer full, dropping %s frame", f.Type)
	}
}

// dialAndAuth establishes the transport connection and completes the
// application-level authenticate handshake, which is distinct from the
// transport-level connect.
func (c *Client) dialAndAuth(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("socket dial %s: %w", c.cfg.URL, err)
	}

	auth := Frame{Type: EventAuthenticate, UserID: c.userID, UserName: c.userName}
	if err := c.writeFrame(conn, auth); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket authenticate: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(authWait)); err != nil {
		conn.Close()
		return nil, err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket auth response: %w", err)
	}
	var resp Frame
	if err := json.Unmarshal(raw, &resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socket auth response: %w", err)
	}
	switch resp.Type {
	case EventAuthOK:
		return conn, nil
	case EventAuthError:
		conn.Close()
		if resp.Reason != "" {
			return nil, fmt.Errorf("%w: %s", ErrAuthRejected, resp.Reason)
		}
		return nil, ErrAuthRejected
	default:
		conn.Close()
		return nil, fmt.Errorf("socket auth: unexpected %s frame", resp.Type)
	}
}

// run serves the current connection and reconnects after drops: bounded
// attempts with doubling, capped delay. Auth rejection and ceiling exhaustion
// both stop the loop for good.
func (c *Client) run(ctx context.Context, conn *websocket.Conn) {
	for {
		err := c.serve(ctx, conn)
		if ctx.Err() != nil || c.isClosed() {
			conn.Close()
			return
		}
		c.fireDisconnected(err)

		conn = nil
		for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
			delay := c.cfg.BaseDelay << (attempt - 1)
			if delay > maxRetryDelay {
				delay = maxRetryDelay
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			next, dialErr := c.dialAndAuth(ctx)
			if dialErr == nil {
				conn = next
				break
			}
			if errors.Is(dialErr, ErrAuthRejected) {
				if c.events.OnAuthFailed != nil {
					c.events.OnAuthFailed(dialErr)
				}
				return
			}
			logger.Errorf("socket reconnect attempt %d/%d: %v", attempt, c.cfg.MaxAttempts, dialErr)
		}
		if conn == nil {
			if c.events.OnError != nil {
				c.events.OnError(ErrRetriesExhausted)
			}
			return
		}

		// Re-authenticated: rejoin the room that was active before the drop.
		rejoined := c.Joined()
		if rejoined != "" {
			c.enqueue(Frame{Type: EventJoin, ConversationID: rejoined})
		}
		c.fireConnected(rejoined)
	}
}

// serve runs the write pump in the background and reads frames until the
// connection drops. It returns the read error that ended the connection.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(pumpCtx, conn)
	}()
	defer func() {
		cancel()
		conn.Close()
		wg.Wait()
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("socket unmarshal: %v", err)
			continue
		}
		if c.events.OnFrame != nil {
			c.events.OnFrame(f)
		}
	}
}

// writePump drains the send channel onto the connection and keeps the
// transport alive with pings. Exits on ctx cancellation or write error.
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
			return
		case f := <-c.send:
			if err := c.writeFrame(conn, f); err != nil {
				logger.Errorf("socket write %s: %v", f.Type, err)
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeFrame(conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) fireConnected(rejoined string) {
	if c.events.OnConnected != nil {
		c.events.OnConnected(rejoined)
	}
}

func (c *Client) fireDisconnected(err error) {
	if c.events.OnDisconnected != nil {
		c.events.OnDisconnected(err)
	}
}
