package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"commerce-calls/internal/calls"
)

// Auditor records offers refused at the tenant cap. Best effort.
type Auditor interface {
	LogCallCapped(ctx context.Context, tenantID, callerID, callID string, limit int) error
}

type Options struct {
	NodeID   string
	Bus      Bus
	Presence Presence
	// Gate is optional; nil disables the per-tenant cap.
	Gate    Gate
	Auditor Auditor

	// MessagesPerSecond and Burst limit inbound frames per connection.
	MessagesPerSecond float64
	Burst             int

	Logger *slog.Logger
}

// Hub is one relay node. It holds the node's websocket connections, stamps the sender on
// every inbound message, applies relay policy, and publishes to the Bus. Messages coming
// back from the Bus are written to the recipient's local connections.
type Hub struct {
	opts Options
	log  *slog.Logger

	mu    sync.RWMutex
	conns map[string]map[string]*conn // userKey -> conn id -> conn
}

func NewHub(opts Options) (*Hub, error) {
	if opts.Bus == nil || opts.Presence == nil {
		return nil, errors.New("signaling: bus and presence are required")
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 20
	}
	if opts.Burst <= 0 {
		// ICE gathering produces a burst right after offer and answer.
		opts.Burst = 50
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NodeID == "" {
		opts.NodeID = "local"
	}
	return &Hub{
		opts:  opts,
		log:   opts.Logger.With("node_id", opts.NodeID),
		conns: make(map[string]map[string]*conn),
	}, nil
}

// Run delivers bus traffic to local connections until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	return h.opts.Bus.Subscribe(ctx, h.deliver)
}

// Serve pumps one upgraded connection until it closes or ctx is done.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, ident Identity) error {
	c := &conn{
		id:    uuid.NewString(),
		ident: ident,
		ws:    ws,
		limit: rate.NewLimiter(rate.Limit(h.opts.MessagesPerSecond), h.opts.Burst),
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
	log := h.log.With("conn_id", c.id, "user_id", ident.UserID, "tenant_id", ident.TenantID)

	h.register(c)
	if err := h.opts.Presence.Add(ctx, ident.TenantID, ident.UserID, c.id); err != nil {
		log.Warn("signaling: presence add", "err", err)
	}
	log.Info("signaling: connected")
	defer func() {
		h.unregister(c)
		// The request context may already be gone.
		if err := h.opts.Presence.Remove(context.WithoutCancel(ctx), ident.TenantID, ident.UserID, c.id); err != nil {
			log.Warn("signaling: presence remove", "err", err)
		}
		log.Info("signaling: disconnected")
	}()

	touch := func() {
		if err := h.opts.Presence.Add(ctx, ident.TenantID, ident.UserID, c.id); err != nil {
			log.Warn("signaling: presence refresh", "err", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writePump(gctx, touch) })
	g.Go(func() error {
		return c.readPump(func(data []byte) {
			if !c.limit.Allow() {
				log.Warn("signaling: rate limited")
				return
			}
			h.inbound(gctx, c, data)
		})
	})
	return g.Wait()
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := userKey(c.ident.TenantID, c.ident.UserID)
	if h.conns[k] == nil {
		h.conns[k] = make(map[string]*conn)
	}
	h.conns[k][c.id] = c
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	k := userKey(c.ident.TenantID, c.ident.UserID)
	delete(h.conns[k], c.id)
	if len(h.conns[k]) == 0 {
		delete(h.conns, k)
	}
}

// Connections reports how many local connections a user holds.
func (h *Hub) Connections(tenantID, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userKey(tenantID, userID)])
}

// inbound handles one frame from c. The sender is always the authenticated user,
// whatever fromUserId the client wrote.
func (h *Hub) inbound(ctx context.Context, c *conn, data []byte) {
	var msg calls.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.log.Debug("signaling: bad frame", "conn_id", c.id, "err", err)
		return
	}
	msg.FromUserID = c.ident.UserID
	if err := msg.Validate(); err != nil {
		h.log.Debug("signaling: invalid message", "conn_id", c.id, "err", err)
		return
	}
	if msg.ToUserID == msg.FromUserID {
		h.log.Debug("signaling: message to self", "conn_id", c.id, "type", msg.Type)
		return
	}
	h.route(ctx, c, msg)
}

func (h *Hub) route(ctx context.Context, c *conn, msg calls.Message) {
	tenantID := c.ident.TenantID
	log := h.log.With("call_id", msg.CallID, "type", msg.Type, "from", msg.FromUserID, "to", msg.ToUserID)

	switch msg.Type {
	case calls.MessageOffer:
		online, err := h.opts.Presence.Online(ctx, tenantID, msg.ToUserID)
		if err != nil {
			log.Warn("signaling: presence lookup", "err", err)
			online = true
		}
		if !online {
			log.Info("signaling: callee offline")
			h.reply(c, msg, calls.MessageEnd, calls.ReasonUnavailable)
			return
		}
		if g := h.opts.Gate; g != nil {
			ok, err := g.Acquire(ctx, tenantID, msg.CallID)
			if err != nil {
				log.Warn("signaling: call gate", "err", err)
				ok = true
			}
			if !ok {
				log.Info("signaling: tenant call limit reached", "limit", g.Limit())
				h.reply(c, msg, calls.MessageBusy, "")
				if a := h.opts.Auditor; a != nil {
					_ = a.LogCallCapped(ctx, tenantID, msg.FromUserID, msg.CallID, g.Limit())
				}
				return
			}
		}
	case calls.MessageReject, calls.MessageBusy, calls.MessageEnd:
		if g := h.opts.Gate; g != nil {
			if err := g.Release(ctx, tenantID, msg.CallID); err != nil {
				log.Warn("signaling: call gate release", "err", err)
			}
		}
	}

	if err := h.opts.Bus.Publish(ctx, tenantID, msg); err != nil {
		log.Warn("signaling: publish", "err", err)
	}
}

// reply answers the sender on behalf of the callee, so the sender's manager accepts it
// as coming from its peer.
func (h *Hub) reply(c *conn, to calls.Message, t calls.MessageType, reason calls.Reason) {
	out := calls.Message{
		Type:       t,
		CallID:     to.CallID,
		FromUserID: to.ToUserID,
		ToUserID:   to.FromUserID,
		Reason:     reason,
	}
	b, err := calls.Encode(out)
	if err != nil {
		return
	}
	if !c.enqueue(b) {
		h.log.Warn("signaling: reply dropped", "conn_id", c.id, "call_id", to.CallID)
	}
}

// deliver writes a bus message to every local connection of its recipient.
func (h *Hub) deliver(tenantID string, msg calls.Message) {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns[userKey(tenantID, msg.ToUserID)]))
	for _, c := range h.conns[userKey(tenantID, msg.ToUserID)] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	b, err := calls.Encode(msg)
	if err != nil {
		h.log.Warn("signaling: encode", "err", err)
		return
	}
	for _, c := range targets {
		if !c.enqueue(b) {
			h.log.Warn("signaling: delivery dropped", "conn_id", c.id, "call_id", msg.CallID, "type", msg.Type)
		}
	}
}
