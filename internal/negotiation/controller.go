// Package negotiation drives the offer/answer exchange for a peer session:
// it creates offers, routes inbound answers, offers and trickled candidates
// to the transport engine, and tracks whether the transport is connected.
//
// A Controller owns one session. Inbound signals and engine callbacks are
// serialized through its lock, so applying a description, applying a
// candidate and handling a renegotiation request never interleave. Each
// connection attempt gets an epoch; anything that completes after the
// attempt was torn down is discarded.
package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/1ureka/rtcnegotiator/internal/protocol"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

const defaultSendTimeout = 10 * time.Second

// State is the negotiation state of a session.
type State int

const (
	StateIdle State = iota
	StateOfferPending
	StateNegotiating
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferPending:
		return "offer-pending"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Role selects which side creates the offer.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

// Session is a point-in-time copy of a controller's session fields.
type Session struct {
	SessionID         uint64
	Role              Role
	LocalDescription  *protocol.Description
	RemoteDescription *protocol.Description
	State             State
	Connected         bool
}

// Options configures a Controller or Negotiator.
type Options struct {
	Role      Role
	NewEngine EngineFactory
	Signals   SignalSender

	// Stats is optional; counters are discarded when nil.
	Stats *util.Stats

	// SendTimeout bounds each write to the signaling channel.
	// Defaults to 10s.
	SendTimeout time.Duration
}

// Controller is the negotiation state machine for one session.
type Controller struct {
	id          uint64
	tag         string
	role        Role
	newEngine   EngineFactory
	signals     SignalSender
	stats       *util.Stats
	sendTimeout time.Duration

	mu      sync.Mutex
	state   State
	epoch   uint64
	engine  Engine
	local   *protocol.Description
	remote  *protocol.Description
	tracker StateTracker

	// retired engines are closed by settle once the lock is released.
	retired []Engine

	notify notifier
}

// NewController creates an idle controller for sessionID.
func NewController(sessionID uint64, opts Options) *Controller {
	if opts.Stats == nil {
		opts.Stats = util.NewStats()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	return &Controller{
		id:          sessionID,
		tag:         fmt.Sprintf("[session %d]", sessionID),
		role:        opts.Role,
		newEngine:   opts.NewEngine,
		signals:     opts.Signals,
		stats:       opts.Stats,
		sendTimeout: opts.SendTimeout,
	}
}

// OnEvent subscribes fn to every event this session raises.
func (c *Controller) OnEvent(fn func(Event)) {
	c.notify.subscribe(fn)
}

// OnConnectedChanged subscribes fn to edges of the connected flag.
func (c *Controller) OnConnectedChanged(fn func(connected bool)) {
	c.notify.subscribeConnected(func(_ uint64, connected bool) { fn(connected) })
}

// SessionID returns the identifier this controller was created with.
func (c *Controller) SessionID() uint64 {
	return c.id
}

// State returns the current negotiation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the session fields.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{
		SessionID:         c.id,
		Role:              c.role,
		LocalDescription:  cloneDescription(c.local),
		RemoteDescription: cloneDescription(c.remote),
		State:             c.state,
		Connected:         c.tracker.Connected(),
	}
}

// ---------------------------------------------------------------------------
// Application API
// ---------------------------------------------------------------------------

// Connect starts a negotiation attempt. An initiator creates and sends an
// offer before returning; a responder waits for the remote offer. Connect
// is a no-op while an attempt is already under way or established.
//
// If Disconnect runs while the offer is being created, Connect returns
// ErrSessionClosed and the offer is never sent.
func (c *Controller) Connect(ctx context.Context) error {
	engine, epoch, err := c.begin()
	if err != nil || engine == nil || c.role == RoleResponder {
		return err
	}

	desc, err := engine.CreateOffer(ctx)
	return c.completeOffer(epoch, engine, desc, err)
}

// begin moves an idle (or failed) session into its first negotiating state
// and wires a fresh engine. It returns a nil engine when Connect is a no-op.
func (c *Controller) begin() (Engine, uint64, error) {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateOfferPending, StateNegotiating, StateConnected:
		util.LogDebug("%s connect ignored, session is %s", c.tag, c.state)
		return nil, 0, nil
	}

	// A failed session keeps its descriptions until the next attempt.
	c.teardownLocked()

	engine, err := c.newEngine()
	if err != nil {
		return nil, 0, c.failLocked(fmt.Errorf("%w: create engine: %w", ErrNegotiationFailed, err))
	}

	c.epoch++
	c.engine = engine
	c.watchLocked(engine, c.epoch)

	if c.role == RoleResponder {
		c.state = StateNegotiating
		util.LogInfo("%s waiting for remote offer", c.tag)
	} else {
		c.state = StateOfferPending
		util.LogInfo("%s creating offer", c.tag)
	}
	return engine, c.epoch, nil
}

// Disconnect tears the session down from any state: the engine and its data
// channel are closed and every session field is cleared. It is idempotent.
func (c *Controller) Disconnect() {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		util.LogInfo("%s disconnecting from %s", c.tag, c.state)
	}
	c.teardownLocked()
}

// ---------------------------------------------------------------------------
// Inbound signals
// ---------------------------------------------------------------------------

// HandleMessage routes a decoded signaling message to its handler. A message
// without the payload its type calls for is ErrMalformedSignal.
func (c *Controller) HandleMessage(msg protocol.Message) error {
	switch msg.Type {
	case protocol.TypeAnswer, protocol.TypeOffer:
		if msg.Description == nil {
			return fmt.Errorf("%w: %s without description", protocol.ErrMalformedSignal, msg.Type)
		}
		if msg.Type == protocol.TypeAnswer {
			return c.HandleAnswer(*msg.Description)
		}
		return c.HandleOffer(*msg.Description)
	case protocol.TypeCandidate:
		if msg.Candidate == nil {
			return fmt.Errorf("%w: %s without candidate", protocol.ErrMalformedSignal, msg.Type)
		}
		return c.HandleCandidate(*msg.Candidate)
	}
	return fmt.Errorf("%w: type %q", protocol.ErrUnrecognizedSignal, msg.Type)
}

// HandleAnswer applies a remote answer to the outstanding offer. Answers
// with no outstanding offer are dropped.
func (c *Controller) HandleAnswer(desc protocol.Description) error {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateIdle:
		c.dropLocked("answer", "no active session")
		return nil
	case c.role != RoleInitiator:
		c.dropLocked("answer", "responders do not send offers")
		return nil
	case c.state != StateNegotiating:
		c.dropLocked("answer", "no outstanding offer in state "+c.state.String())
		return nil
	}

	if err := c.engine.SetRemoteDescription(desc); err != nil {
		return c.reportLocked(EventInvalidDescription, fmt.Errorf("%w: answer: %w", ErrInvalidDescription, err))
	}

	c.remote = &desc
	c.state = StateConnected
	util.LogInfo("%s remote answer applied", c.tag)
	return nil
}

// HandleOffer answers a remote offer. Only responders accept offers; an
// established responder treats a new offer as renegotiation.
func (c *Controller) HandleOffer(desc protocol.Description) error {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateIdle:
		c.dropLocked("offer", "no active session")
		return nil
	case c.role != RoleResponder:
		c.dropLocked("offer", "initiators do not accept offers")
		return nil
	case c.engine == nil:
		c.dropLocked("offer", "session is "+c.state.String())
		return nil
	}

	if err := c.engine.SetRemoteDescription(desc); err != nil {
		return c.reportLocked(EventInvalidDescription, fmt.Errorf("%w: offer: %w", ErrInvalidDescription, err))
	}
	c.remote = &desc

	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	answer, err := c.engine.CreateAnswer(ctx)
	if err != nil {
		return c.failLocked(fmt.Errorf("%w: create answer: %w", ErrNegotiationFailed, err))
	}
	if err := c.engine.SetLocalDescription(answer); err != nil {
		return c.failLocked(fmt.Errorf("%w: set local answer: %w", ErrNegotiationFailed, err))
	}
	c.local = &answer

	if err := c.sendLocked(protocol.NewAnswer(c.id, answer.SDP)); err != nil {
		return err
	}
	c.stats.AnswersSent.Add(1)
	c.state = StateConnected
	util.LogInfo("%s answer sent", c.tag)
	return nil
}

// HandleCandidate hands a remote candidate to the engine in any state but
// idle, whether or not the answer has arrived. A rejected candidate is
// reported but never fails the session.
func (c *Controller) HandleCandidate(cand protocol.Candidate) error {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle || c.engine == nil {
		c.dropLocked("candidate", "no active session")
		return nil
	}

	if err := c.engine.AddRemoteCandidate(cand); err != nil {
		return c.reportLocked(EventInvalidCandidate, fmt.Errorf("%w: %w", ErrInvalidCandidate, err))
	}
	c.stats.CandidatesApplied.Add(1)
	util.LogDebug("%s remote candidate applied (m-line %d)", c.tag, cand.SDPMLineIndex)
	return nil
}

// HandleSignalingLost force-disconnects a live session after the signaling
// channel died. Idle sessions are left alone.
func (c *Controller) HandleSignalingLost(cause error) {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateIdle {
		return
	}

	err := ErrSignalingLost
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrSignalingLost, cause)
	}
	c.teardownLocked()
	c.reportLocked(EventSignalingLost, err)
}

// ---------------------------------------------------------------------------
// Engine callbacks
// ---------------------------------------------------------------------------

// watchLocked subscribes to engine callbacks, tagging each with epoch so a
// disposed engine cannot affect a later attempt.
func (c *Controller) watchLocked(engine Engine, epoch uint64) {
	engine.OnNegotiationNeeded(func() { c.onNegotiationNeeded(epoch) })
	engine.OnLocalCandidate(func(cand *protocol.Candidate) { c.onLocalCandidate(epoch, cand) })
	engine.OnConnectionStateChange(func(s ConnectionState) { c.onConnectionState(epoch, s) })
	engine.OnSignalingStateChange(func(s SignalingState) { c.onSignalingState(epoch, s) })
}

// onNegotiationNeeded renegotiates an established initiator session. While
// an offer is pending or outstanding the request is coalesced into it.
func (c *Controller) onNegotiationNeeded(epoch uint64) {
	c.mu.Lock()
	if c.epoch != epoch || c.role != RoleInitiator || c.state != StateConnected {
		if c.epoch == epoch {
			util.LogDebug("%s negotiation needed coalesced (%s, %s)", c.tag, c.role, c.state)
		}
		c.mu.Unlock()
		return
	}
	c.state = StateOfferPending
	engine := c.engine
	c.mu.Unlock()

	util.LogInfo("%s renegotiating", c.tag)
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()
	desc, err := engine.CreateOffer(ctx)
	_ = c.completeOffer(epoch, engine, desc, err)
}

// completeOffer applies the result of CreateOffer: set it locally, send it,
// and move on to negotiating. Results from a torn-down attempt are dropped.
func (c *Controller) completeOffer(epoch uint64, engine Engine, desc protocol.Description, createErr error) error {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		util.LogDebug("%s discarding offer from a closed attempt", c.tag)
		return ErrSessionClosed
	}
	if createErr != nil {
		return c.failLocked(fmt.Errorf("%w: create offer: %w", ErrNegotiationFailed, createErr))
	}
	if err := engine.SetLocalDescription(desc); err != nil {
		return c.failLocked(fmt.Errorf("%w: set local offer: %w", ErrNegotiationFailed, err))
	}
	c.local = &desc

	if err := c.sendLocked(protocol.NewOffer(c.id, desc.SDP)); err != nil {
		return err
	}
	c.stats.OffersSent.Add(1)
	c.state = StateNegotiating
	util.LogInfo("%s offer sent", c.tag)
	return nil
}

func (c *Controller) onLocalCandidate(epoch uint64, cand *protocol.Candidate) {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch || c.engine == nil {
		return
	}
	if cand == nil {
		util.LogDebug("%s local candidate gathering complete", c.tag)
		return
	}
	if err := c.sendLocked(protocol.NewCandidate(c.id, *cand)); err != nil {
		return
	}
	c.stats.CandidatesSent.Add(1)
}

func (c *Controller) onConnectionState(epoch uint64, s ConnectionState) {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return
	}
	util.LogInfo("%s connection state: %s", c.tag, s)
	c.observeLocked(c.tracker.ObserveConnectionState(s))

	if s == ConnectionStateFailed {
		// Keep the descriptions for inspection; the engine is unusable.
		c.epoch++
		c.closeEngineLocked()
		c.state = StateFailed
		c.reportLocked(EventConnectionFailed, fmt.Errorf("%w: engine reported %s", ErrConnectionFailed, s))
	}
}

func (c *Controller) onSignalingState(epoch uint64, s SignalingState) {
	defer c.settle()
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return
	}
	util.LogDebug("%s signaling state: %s", c.tag, s)
	c.observeLocked(c.tracker.ObserveSignalingState(s))
}

// settle closes retired engines and delivers queued events without holding
// c.mu. Callers defer it before locking.
func (c *Controller) settle() {
	c.mu.Lock()
	retired := c.retired
	c.retired = nil
	c.mu.Unlock()

	for _, e := range retired {
		if err := e.Close(); err != nil {
			util.LogWarning("%s closing engine: %v", c.tag, err)
		}
	}
	c.notify.flush()
}

// ---------------------------------------------------------------------------
// Helpers (caller holds c.mu)
// ---------------------------------------------------------------------------

func (c *Controller) observeLocked(connected, changed bool) {
	if !changed {
		return
	}
	if connected {
		util.LogSuccess("%s CONNECTED", c.tag)
	} else {
		util.LogWarning("%s NOT CONNECTED", c.tag)
	}
	c.notify.push(Event{Kind: EventConnectedChanged, SessionID: c.id, Connected: connected})
}

// sendLocked encodes and writes msg. A failure is reported as
// SignalDeliveryFailed and leaves the state untouched; nothing is retried.
func (c *Controller) sendLocked(msg protocol.Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()

	if err := c.signals.Send(ctx, protocol.Encode(msg)); err != nil {
		c.stats.DeliveryFailures.Add(1)
		return c.reportLocked(EventSignalDeliveryFailed, fmt.Errorf("%w: %s: %w", ErrSignalDeliveryFailed, msg.Type, err))
	}
	return nil
}

// failLocked abandons the attempt and returns to idle.
func (c *Controller) failLocked(err error) error {
	c.teardownLocked()
	return c.reportLocked(EventNegotiationFailed, err)
}

// reportLocked queues a failure event and logs it.
func (c *Controller) reportLocked(kind EventKind, err error) error {
	util.LogWarning("%s %v", c.tag, err)
	c.notify.push(Event{Kind: kind, SessionID: c.id, Err: err})
	return err
}

func (c *Controller) dropLocked(what, why string) {
	c.stats.SignalsDropped.Add(1)
	util.LogDebug("%s remote %s dropped: %s", c.tag, what, why)
}

// teardownLocked disposes the engine and clears every session field.
func (c *Controller) teardownLocked() {
	c.epoch++
	c.closeEngineLocked()
	c.local = nil
	c.remote = nil
	c.state = StateIdle
	if c.tracker.Reset() {
		c.observeLocked(false, true)
	}
}

func (c *Controller) closeEngineLocked() {
	if c.engine == nil {
		return
	}
	c.retired = append(c.retired, c.engine)
	c.engine = nil
}

func cloneDescription(d *protocol.Description) *protocol.Description {
	if d == nil {
		return nil
	}
	cp := *d
	return &cp
}
