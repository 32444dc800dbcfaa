package negotiation

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/rtcnegotiator/internal/protocol"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

// Negotiator owns every session on one signaling channel. It decodes inbound
// frames and routes them by session ID; sessions never share a lock.
type Negotiator struct {
	opts  Options
	stats *util.Stats

	mu          sync.RWMutex
	sessions    map[uint64]*Controller
	onEvent     []func(Event)
	onConnected []func(sessionID uint64, connected bool)
}

// New creates a Negotiator whose sessions all use opts.
func New(opts Options) *Negotiator {
	if opts.Stats == nil {
		opts.Stats = util.NewStats()
	}
	return &Negotiator{
		opts:     opts,
		stats:    opts.Stats,
		sessions: make(map[uint64]*Controller),
	}
}

// Stats returns the counters shared by every session.
func (n *Negotiator) Stats() *util.Stats {
	return n.stats
}

// OnEvent subscribes fn to events from every session.
func (n *Negotiator) OnEvent(fn func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEvent = append(n.onEvent, fn)
}

// OnConnectedChanged subscribes fn to connected-flag edges of every session.
func (n *Negotiator) OnConnectedChanged(fn func(sessionID uint64, connected bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onConnected = append(n.onConnected, fn)
}

// Connect starts (or re-starts) the session with the given ID.
func (n *Negotiator) Connect(ctx context.Context, sessionID uint64) error {
	return n.controller(sessionID).Connect(ctx)
}

// Disconnect tears down a session. Unknown IDs are ignored.
func (n *Negotiator) Disconnect(sessionID uint64) {
	if c := n.lookup(sessionID); c != nil {
		c.Disconnect()
	}
}

// Close disconnects every session.
func (n *Negotiator) Close() {
	for _, c := range n.snapshot() {
		c.Disconnect()
	}
}

// Session returns a copy of a session's fields.
func (n *Negotiator) Session(sessionID uint64) (Session, bool) {
	c := n.lookup(sessionID)
	if c == nil {
		return Session{}, false
	}
	return c.Session(), true
}

// HandleSignal decodes one inbound frame and routes it to its session.
// Malformed and unrecognized frames are dropped and their error returned;
// they never change any session's state. Frames for unknown sessions are
// dropped silently.
func (n *Negotiator) HandleSignal(data []byte) error {
	n.stats.SignalsReceived.Add(1)

	msg, err := protocol.Decode(data)
	if err != nil {
		n.stats.SignalsDropped.Add(1)
		if errors.Is(err, protocol.ErrUnrecognizedSignal) {
			util.LogDebug("signal ignored: %v", err)
		} else {
			util.LogWarning("signal dropped: %v", err)
		}
		return err
	}

	c := n.lookup(msg.SessionID)
	if c == nil {
		n.stats.SignalsDropped.Add(1)
		util.LogDebug("%s for unknown session %d dropped", msg.Type, msg.SessionID)
		return nil
	}
	return c.HandleMessage(msg)
}

// HandleSignalingLost force-disconnects every live session.
func (n *Negotiator) HandleSignalingLost(cause error) {
	util.LogError("signaling channel lost: %v", cause)
	for _, c := range n.snapshot() {
		c.HandleSignalingLost(cause)
	}
}

func (n *Negotiator) lookup(sessionID uint64) *Controller {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessions[sessionID]
}

func (n *Negotiator) snapshot() []*Controller {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Controller, 0, len(n.sessions))
	for _, c := range n.sessions {
		out = append(out, c)
	}
	return out
}

// controller returns the session's controller, creating it on first use.
func (n *Negotiator) controller(sessionID uint64) *Controller {
	n.mu.Lock()
	defer n.mu.Unlock()

	if c, ok := n.sessions[sessionID]; ok {
		return c
	}
	c := NewController(sessionID, n.opts)
	c.OnEvent(n.forward)
	n.sessions[sessionID] = c
	return c
}

func (n *Negotiator) forward(ev Event) {
	n.mu.RLock()
	onEvent := n.onEvent
	onConnected := n.onConnected
	n.mu.RUnlock()

	for _, fn := range onEvent {
		fn(ev)
	}
	if ev.Kind == EventConnectedChanged {
		for _, fn := range onConnected {
			fn(ev.SessionID, ev.Connected)
		}
	}
}
