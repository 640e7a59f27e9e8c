// Package wss provides a reconnecting WebSocket client for venue order-book
// streams: exponential-backoff redial, periodic pings, and a receive
// timeout that forces a reconnect on silent connections.
package wss

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/phenomenon0/sportsarb/pkg/telemetry"
)

// Config holds connection parameters. Zero durations get the defaults used
// by the venue streams: 20 s pings, 30 s receive timeout.
type Config struct {
	URL          string
	Headers      map[string]string
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Handlers are the client callbacks. OnConnect runs after every successful
// dial (including reconnects) and is the place to send subscribe messages.
type Handlers struct {
	OnConnect    func(c *Client) error
	OnMessage    func(data []byte)
	OnDisconnect func(err error)
}

// Client maintains one logical stream across reconnects.
type Client struct {
	cfg      Config
	handlers Handlers

	mu   sync.Mutex
	conn *websocket.Conn
}

// New returns an unconnected client; Run drives it.
func New(cfg Config, handlers Handlers) *Client {
	return &Client{cfg: cfg.withDefaults(), handlers: handlers}
}

// Run dials and serves the stream until ctx is cancelled, redialing with
// exponential backoff (1 s base, x1.6, capped at 30 s) after every failure.
func (c *Client) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.Multiplier = 1.6
	bo.MaxInterval = 30 * time.Second
	bo.RandomizationFactor = 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.handlers.OnDisconnect != nil {
			c.handlers.OnDisconnect(err)
		}
		// A session that survived for a while resets the backoff clock.
		if time.Since(started) > time.Minute {
			bo.Reset()
		}
		delay := bo.NextBackOff()
		telemetry.L().Warn("websocket disconnected, reconnecting",
			"url", c.cfg.URL, "delay", delay.String(), "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// session runs one dial-subscribe-read cycle and returns its terminal error.
func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	for k, v := range c.cfg.Headers {
		header.Set(k, v)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if c.handlers.OnConnect != nil {
		if err := c.handlers.OnConnect(c); err != nil {
			return fmt.Errorf("on connect: %w", err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go c.pingLoop(ctx, conn, done)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	})
	for {
		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return err
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(data)
		}
	}
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// SendJSON writes one JSON message on the live connection.
func (c *Client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
