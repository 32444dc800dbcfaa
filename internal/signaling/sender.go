package signaling

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

// Send writes one text frame. Writes are serialized; the deadline is the
// earlier of ctx's and writeWait.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if c.closed() {
		return ErrConnClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	util.LogTrace("signal sent (%d bytes)", len(data))
	return nil
}

// pinger keeps the relay from timing the connection out.
func (c *Conn) pinger(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				util.LogDebug("ping failed: %v", err)
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}
