package ipc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// NotificationHandler receives fire-and-forget server pushes. It is
// supplied by the caller and never blocks sendRequest callers.
type NotificationHandler func(method string, params json.RawMessage)

// ReconnectConfig controls the client's auto-reconnect loop.
type ReconnectConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultReconnectConfig is a handful of attempts with exponential backoff
// bounded at a few seconds.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{MaxAttempts: 5, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}
}

// Client is a blocking-by-default IPC client over a single unix socket
// connection. A reader goroutine decodes frames and either completes a
// pending request or forwards a notification; callers of SendRequest park on
// a per-request completion channel until the response arrives or the call's
// timeout expires.
type Client struct {
	socketPath string
	reconnect  ReconnectConfig
	onNotify   NotificationHandler
	onReconnected func()
	log        *slog.Logger

	mu      sync.Mutex
	conn    net.Conn
	pending map[uint64]chan Envelope
	nextID  uint64
	closed  bool
}

// NewClient dials socketPath and starts the reader loop. onNotify may be
// nil if the caller does not expect server-pushed notifications.
func NewClient(socketPath string, onNotify NotificationHandler, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		socketPath: socketPath,
		reconnect:  DefaultReconnectConfig(),
		onNotify:   onNotify,
		log:        log,
		pending:    make(map[uint64]chan Envelope),
	}
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ipc: dial %s: %w", socketPath, err)
	}
	c.conn = conn
	go c.readLoop()
	return c, nil
}

// SetReconnectConfig overrides the default reconnect policy (test hook).
func (c *Client) SetReconnectConfig(cfg ReconnectConfig) {
	c.mu.Lock()
	c.reconnect = cfg
	c.mu.Unlock()
}

// OnReconnected registers a callback fired after a successful reconnect.
func (c *Client) OnReconnected(fn func()) {
	c.mu.Lock()
	c.onReconnected = fn
	c.mu.Unlock()
}

// SendRequest sends a request and blocks until a response arrives or
// timeoutMs elapses. Returns (nil, false) on timeout or disconnect — the
// "no value" result described in §4.2.
func (c *Client) SendRequest(method string, params any, timeoutMs int) (*Envelope, bool) {
	id := atomic.AddUint64(&c.nextID, 1)
	env, err := NewRequest(id, method, params)
	if err != nil {
		return nil, false
	}

	ch := make(chan Envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, false
	}
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	frame, err := Encode(env)
	if err != nil {
		c.dropPending(id)
		return nil, false
	}
	if _, err := conn.Write(frame); err != nil {
		c.dropPending(id)
		return nil, false
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, false
		}
		return &resp, true
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		c.dropPending(id)
		return nil, false
	}
}

// SendRequestAsync delivers the result via callback on a new goroutine
// instead of blocking the caller.
func (c *Client) SendRequestAsync(method string, params any, timeoutMs int, cb func(*Envelope, bool)) {
	go cb(c.SendRequest(method, params, timeoutMs))
}

func (c *Client) dropPending(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// readLoop decodes frames off the connection, dispatching responses to
// their waiting caller and notifications to onNotify. On disconnect it
// invokes the auto-reconnect policy; if reconnection is exhausted, every
// still-pending request is released with no value and the client stays
// closed until explicitly recreated.
func (c *Client) readLoop() {
	for {
		conn := c.currentConn()
		if conn == nil {
			return
		}
		if err := c.drain(conn); err != nil {
			c.mu.Lock()
			closedByUser := c.closed
			c.mu.Unlock()
			if closedByUser {
				return
			}
			if !c.tryReconnect() {
				c.log.Error("ipc client auto-reconnect failed",
					slog.String("socket", c.socketPath),
					slog.String("error", "Auto-reconnect failed"))
				c.failAllPending()
				return
			}
			continue
		}
	}
}

func (c *Client) currentConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.conn
}

func (c *Client) drain(conn net.Conn) error {
	var buf []byte
	readBuf := make([]byte, 64*1024)
	for {
		n, err := conn.Read(readBuf)
		if n > 0 {
			buf = append(buf, readBuf[:n]...)
			for {
				env, consumed, decodeErr := Decode(buf)
				if decodeErr != nil {
					return decodeErr
				}
				if consumed == 0 {
					break
				}
				buf = buf[consumed:]
				c.handle(env)
			}
		}
		if err != nil {
			return err
		}
	}
}

func (c *Client) handle(env Envelope) {
	switch env.Type {
	case KindResponse, KindError:
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	case KindNotification:
		if c.onNotify != nil {
			c.onNotify(env.Method, env.Params)
		}
	}
}

func (c *Client) failAllPending() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan Envelope)
	c.closed = true
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
}

// tryReconnect attempts to re-dial socketPath up to reconnect.MaxAttempts
// times with exponential backoff, returning true on success.
func (c *Client) tryReconnect() bool {
	c.mu.Lock()
	cfg := c.reconnect
	c.mu.Unlock()

	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		time.Sleep(delay)
		conn, err := net.Dial("unix", c.socketPath)
		if err == nil {
			c.mu.Lock()
			_ = c.conn.Close()
			c.conn = conn
			onReconnected := c.onReconnected
			c.mu.Unlock()
			c.log.Info("ipc client reconnected", slog.String("socket", c.socketPath), slog.Int("attempt", attempt))
			if onReconnected != nil {
				onReconnected()
			}
			return true
		}
		delay = time.Duration(float64(delay) * 2)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		jitter := time.Duration(rand.Int63n(int64(delay) / 4 + 1))
		delay += jitter
	}
	return false
}

// Close shuts the client down; pending requests are released and the
// reader loop exits.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	pending := c.pending
	c.pending = make(map[uint64]chan Envelope)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
