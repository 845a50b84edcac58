// Package ws is the live WebSocket channel to the orchestrator.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/okian/gmscan/internal/domain/model"
	"github.com/okian/gmscan/pkg/logger"
	"github.com/okian/gmscan/pkg/metrics"
)

// Default timings.
const (
	defaultReconnectDelay = 2 * time.Second
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	stateBuffer           = 16
)

// ErrNotConnected is returned by Send while the channel is down.
var ErrNotConnected = errors.New("ws: not connected")

// Handler receives every decoded inbound envelope.
type Handler func(ctx context.Context, env model.Envelope)

// Client keeps one connection open, reconnecting after failures.
type Client struct {
	url            string
	deviceID       string
	dialer         *websocket.Dialer
	handler        Handler
	reconnectDelay time.Duration
	writeWait      time.Duration
	pongWait       time.Duration
	logger         logger.Logger

	writeMu   sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	states    chan bool
}

// Option configures a Client.
type Option func(*Client)

// WithHandler sets the inbound message handler.
func WithHandler(h Handler) Option {
	return func(c *Client) { c.handler = h }
}

// WithDeviceID identifies the device during the handshake.
func WithDeviceID(id string) Option {
	return func(c *Client) { c.deviceID = id }
}

// WithReconnectDelay sets the pause between connection attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.reconnectDelay = d
		}
	}
}

// WithPongWait bounds how long the link may stay silent.
func WithPongWait(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pongWait = d
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// URL turns an http(s) orchestrator address and a path into a ws(s) URL.
func URL(base, path string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ws: parse %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("ws: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return u.String(), nil
}

// New creates a client for url. Call Run to connect.
func New(url string, opts ...Option) *Client {
	c := &Client{
		url:            url,
		dialer:         websocket.DefaultDialer,
		reconnectDelay: defaultReconnectDelay,
		writeWait:      defaultWriteWait,
		pongWait:       defaultPongWait,
		logger:         logger.Nop(),
		states:         make(chan bool, stateBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// States delivers true on every connect and false on every disconnect.
// Events are dropped when nobody keeps up.
func (c *Client) States() <-chan bool {
	return c.states
}

func (c *Client) setState(up bool) {
	c.connected.Store(up)
	metrics.SetConnectionUp(up)
	select {
	case c.states <- up:
	default:
	}
}

// Send writes env as one JSON text frame.
func (c *Client) Send(ctx context.Context, env model.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(env); err != nil {
		// The read loop sees the closed conn and reconnects.
		_ = c.conn.Close()
		return fmt.Errorf("ws: write %s: %w", env.Type, err)
	}
	return nil
}

// Run connects and serves the connection until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			c.logger.Warn(ctx, "orchestrator connection lost",
				logger.String("url", c.url), logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	target := c.url
	if c.deviceID != "" {
		header.Set("X-Device-ID", c.deviceID)
		if u, err := url.Parse(c.url); err == nil {
			q := u.Query()
			q.Set("deviceId", c.deviceID)
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}

	conn, _, err := c.dialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("ws: dial: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.setState(true)
	c.logger.Info(ctx, "connected to orchestrator", logger.String("url", c.url))

	stop := make(chan struct{})
	defer func() {
		close(stop)
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		_ = conn.Close()
		c.setState(false)
	}()

	go c.keepalive(ctx, conn, stop)

	_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		var env model.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ws: read: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(c.pongWait))
		if c.handler != nil {
			c.handler(ctx, env)
		}
	}
}

// keepalive pings the server and closes conn when ctx ends so the blocked
// read returns.
func (c *Client) keepalive(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			_ = conn.Close()
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
			c.writeMu.Unlock()
			if err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}
