package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

const (
	maxBuffered = 256 * 1024 // wait for the channel to drain above this
	minBuffered = 64 * 1024  // OnBufferedAmountLow threshold
	queueSize   = 64
)

// sender writes application payloads (the CLI greeting and anything a caller
// passes to Transport.Send) to the data channel from a single goroutine, in
// the order they were queued. Writes pause while the channel's buffered
// amount is above maxBuffered.
type sender struct {
	queue   chan []byte
	drained chan struct{}

	mu  sync.Mutex
	err error // first write error; later sends fail with it
}

// newSender starts the write loop for dc once open is closed. The loop ends
// with ctx.
func newSender(ctx context.Context, dc *webrtc.DataChannel, open <-chan struct{}) *sender {
	s := &sender{
		queue:   make(chan []byte, queueSize),
		drained: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(minBuffered)
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drained <- struct{}{}:
		default:
		}
	})

	go s.run(ctx, dc, open)
	return s
}

func (s *sender) run(ctx context.Context, dc *webrtc.DataChannel, open <-chan struct{}) {
	select {
	case <-open:
	case <-ctx.Done():
		return
	}

	for {
		var payload []byte
		select {
		case payload = <-s.queue:
		case <-ctx.Done():
			return
		}

		if dc.BufferedAmount() > maxBuffered {
			select {
			case <-s.drained:
			case <-ctx.Done():
				return
			}
		}

		if err := dc.Send(payload); err != nil {
			util.LogError("data channel %q: write %d bytes: %v", dc.Label(), len(payload), err)
			s.mu.Lock()
			s.err = fmt.Errorf("data channel %q: %w", dc.Label(), err)
			s.mu.Unlock()
			return
		}
		util.LogTrace("data channel %q: wrote %d bytes", dc.Label(), len(payload))
	}
}

// send queues payload, blocking while the queue is full. It fails once a
// previous write has failed.
func (s *sender) send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}

	select {
	case s.queue <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
