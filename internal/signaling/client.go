package signaling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"commerce-calls/internal/calls"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Client is the agent side of the relay. It implements calls.Transport and keeps
// one websocket open, redialing with backoff after failures.
type Client struct {
	URL    string
	Token  string
	Dialer *websocket.Dialer
	Logger *slog.Logger

	mu   sync.Mutex
	send chan []byte // nil while disconnected
}

var _ calls.Transport = (*Client)(nil)

// Send queues msg for the current connection. It reports false while disconnected
// or when the queue is full.
func (c *Client) Send(msg calls.Message) bool {
	b, err := calls.Encode(msg)
	if err != nil {
		c.logger().Warn("signaling: encode outbound", "type", msg.Type, "err", err)
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// Connected reports whether a relay connection is up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send != nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Run keeps the connection up and hands every inbound message to handle until ctx is done.
func (c *Client) Run(ctx context.Context, handle func(context.Context, calls.Message)) error {
	if c.URL == "" {
		return errors.New("signaling: relay url required")
	}
	backoff := minBackoff
	for {
		start := time.Now()
		err := c.session(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(start) > maxBackoff {
			backoff = minBackoff
		}
		c.logger().Warn("signaling: relay connection lost", "err", err, "retry_in", backoff.String())

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Client) session(ctx context.Context, handle func(context.Context, calls.Message)) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}
	ws, resp, err := dialer.DialContext(ctx, c.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	c.logger().Info("signaling: connected to relay", "url", c.URL)

	sc := &conn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	c.send = sc.send
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.send = nil
		c.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sc.writePump(gctx, func() {}) })
	g.Go(func() error {
		err := sc.readPump(func(data []byte) {
			msg, err := calls.Decode(data)
			if err != nil {
				c.logger().Debug("signaling: bad inbound frame", "err", err)
				return
			}
			handle(gctx, msg)
		})
		if err == nil {
			err = errors.New("signaling: relay closed the connection")
		}
		return err
	})
	return g.Wait()
}
