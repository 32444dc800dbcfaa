package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

// Run reads frames and hands text frames to h until the connection ends.
//
// Cancelling ctx or calling Close ends Run quietly. Any other read failure
// is reported once through h.HandleSignalingLost and returned.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	go c.pinger(ctx)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if c.closed() {
				return nil
			}
			err = fmt.Errorf("read signal: %w", err)
			c.Close()
			h.HandleSignalingLost(err)
			return err
		}

		if mt != websocket.TextMessage {
			util.LogDebug("ignoring non-text frame (type %d)", mt)
			continue
		}
		if err := h.HandleSignal(data); err != nil {
			util.LogDebug("signal not applied: %v", err)
		}
	}
}
