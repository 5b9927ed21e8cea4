package signaling

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// SDP bodies run to a few tens of KB.
	maxMessageSize = 128 << 10
	sendBuffer     = 64
)

// Identity is the authenticated owner of a connection.
type Identity struct {
	TenantID string
	UserID   string
	Role     string
}

type conn struct {
	id    string
	ident Identity
	ws    *websocket.Conn
	limit *rate.Limiter

	send chan []byte
	done chan struct{}
}

// enqueue hands a frame to the writer without blocking. It fails for closed or slow
// connections; the relay never queues unboundedly on behalf of a peer.
func (c *conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

// writePump owns all writes. Returning closes the socket, which unblocks readPump.
func (c *conn) writePump(ctx context.Context, touch func()) error {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return nil
		case <-c.done:
			return nil
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
			touch()
		}
	}
}

// readPump delivers inbound frames to fn until the socket fails.
func (c *conn) readPump(fn func([]byte)) error {
	defer close(c.done)

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return err
			}
			return nil
		}
		fn(data)
	}
}
