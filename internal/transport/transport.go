// Package transport is the pion-backed negotiation engine: one
// PeerConnection plus the data channel it carries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/pion/ice/v4"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/rtcnegotiator/internal/negotiation"
	"github.com/1ureka/rtcnegotiator/internal/protocol"
	"github.com/1ureka/rtcnegotiator/internal/util"
)

// DefaultNegotiationDebounce collapses bursts of negotiation-needed events.
const DefaultNegotiationDebounce = 150 * time.Millisecond

var (
	ErrInvalidSDP       = errors.New("invalid sdp")
	ErrInvalidCandidate = errors.New("invalid candidate")
	ErrClosed           = errors.New("transport closed")
)

var _ negotiation.Engine = (*Transport)(nil)

// Options configures a Transport.
type Options struct {
	// Initiator opens the data channel; the responder accepts it.
	Initiator bool

	// ICEServers lists STUN/TURN URLs. Nil selects DefaultSTUNServers.
	ICEServers []string

	// ChannelLabel defaults to DefaultChannelLabel.
	ChannelLabel string

	// NegotiationDebounce defaults to DefaultNegotiationDebounce.
	NegotiationDebounce time.Duration
}

// Transport wraps a PeerConnection and its data channel and implements
// negotiation.Engine.
//
// Remote candidates that arrive before the remote description are held and
// applied right after it, since a PeerConnection rejects them earlier.
type Transport struct {
	pc   *webrtc.PeerConnection
	opts Options

	openSignal chan struct{}
	openOnce   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	sender    *sender
	pending   []webrtc.ICECandidateInit
	onMessage func([]byte)
}

// New creates a Transport. An initiator creates its data channel here.
func New(opts Options) (*Transport, error) {
	if opts.ChannelLabel == "" {
		opts.ChannelLabel = DefaultChannelLabel
	}
	if opts.NegotiationDebounce <= 0 {
		opts.NegotiationDebounce = DefaultNegotiationDebounce
	}

	pc, err := newPeerConnection(newAPI(), opts.ICEServers)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		pc:         pc,
		opts:       opts,
		openSignal: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		util.LogDebug("ICE connection state: %s", s)
	})

	if opts.Initiator {
		dc, err := newDataChannel(pc, opts.ChannelLabel)
		if err != nil {
			cancel()
			return nil, errors.Join(fmt.Errorf("create data channel: %w", err), pc.Close())
		}
		t.attach(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			util.LogInfo("remote opened data channel %q", dc.Label())
			t.attach(dc)
		})
	}

	return t, nil
}

// Factory returns an EngineFactory producing Transports with opts.
func Factory(opts Options) negotiation.EngineFactory {
	return func() (negotiation.Engine, error) {
		return New(opts)
	}
}

// attach wires the data channel once it exists on this side.
func (t *Transport) attach(dc *webrtc.DataChannel) {
	t.mu.Lock()
	if t.dc != nil {
		t.mu.Unlock()
		util.LogWarning("ignoring extra data channel %q", dc.Label())
		return
	}
	t.dc = dc
	t.sender = newSender(t.ctx, dc, t.openSignal)
	t.mu.Unlock()

	dc.OnOpen(func() {
		util.LogSuccess("data channel %q open", dc.Label())
		t.openOnce.Do(func() { close(t.openSignal) })
	})
	dc.OnClose(func() {
		util.LogInfo("data channel %q closed", dc.Label())
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		util.LogDebug("data channel %q: received %d bytes", dc.Label(), len(msg.Data))
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready is closed once the data channel is open.
func (t *Transport) Ready() <-chan struct{} {
	return t.openSignal
}

// Done is closed once the Transport is closed.
func (t *Transport) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Close closes the data channel and the PeerConnection.
func (t *Transport) Close() error {
	t.cancel()

	t.mu.Lock()
	dc := t.dc
	t.mu.Unlock()

	var dcErr error
	if dc != nil {
		dcErr = dc.Close()
	}
	return errors.Join(dcErr, t.pc.Close())
}

// ---------------------------------------------------------------------------
// Descriptions
// ---------------------------------------------------------------------------

func (t *Transport) CreateOffer(ctx context.Context) (protocol.Description, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Description{}, err
	}
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return fromWebRTC(offer), nil
}

func (t *Transport) CreateAnswer(ctx context.Context) (protocol.Description, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Description{}, err
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return fromWebRTC(answer), nil
}

func (t *Transport) SetLocalDescription(desc protocol.Description) error {
	sd, err := toWebRTC(desc)
	if err != nil {
		return err
	}
	return t.pc.SetLocalDescription(sd)
}

// SetRemoteDescription parses and applies the remote SDP, then applies any
// candidates that were held waiting for it.
func (t *Transport) SetRemoteDescription(desc protocol.Description) error {
	var parsed sdp.SessionDescription
	if err := parsed.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSDP, err)
	}
	util.LogDebug("remote %s: %d media section(s), origin %s",
		desc.Type, len(parsed.MediaDescriptions), parsed.Origin.Username)

	sd, err := toWebRTC(desc)
	if err != nil {
		return err
	}
	if err := t.pc.SetRemoteDescription(sd); err != nil {
		return err
	}

	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, c := range pending {
		if err := t.pc.AddICECandidate(c); err != nil {
			util.LogWarning("held remote candidate rejected: %v", err)
		}
	}
	if len(pending) > 0 {
		util.LogDebug("applied %d held remote candidate(s)", len(pending))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

// AddRemoteCandidate applies c, or holds it until the remote description is
// set. Candidates are parsed up front so a held one is rejected immediately.
func (t *Transport) AddRemoteCandidate(c protocol.Candidate) error {
	if err := parseCandidate(c.Candidate); err != nil {
		return err
	}
	idx := c.SDPMLineIndex
	init := webrtc.ICECandidateInit{Candidate: c.Candidate, SDPMLineIndex: &idx}

	t.mu.Lock()
	if t.pc.RemoteDescription() == nil {
		t.pending = append(t.pending, init)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return t.pc.AddICECandidate(init)
}

// parseCandidate checks a candidate attribute the way a PeerConnection will
// once it is applied. An empty value marks end of candidates.
func parseCandidate(raw string) error {
	value := strings.TrimPrefix(raw, "candidate:")
	if value == "" {
		return nil
	}
	if _, err := ice.UnmarshalCandidate(value); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCandidate, err)
	}
	return nil
}

func (t *Transport) OnLocalCandidate(fn func(*protocol.Candidate)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		var idx uint16
		if init.SDPMLineIndex != nil {
			idx = *init.SDPMLineIndex
		}
		fn(&protocol.Candidate{Candidate: init.Candidate, SDPMLineIndex: idx})
	})
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// OnNegotiationNeeded reports renegotiation requests, debounced. Requests
// raised before the first exchange completed are dropped; the first offer
// already covers them.
func (t *Transport) OnNegotiationNeeded(fn func()) {
	debounced := debounce.New(t.opts.NegotiationDebounce)
	t.pc.OnNegotiationNeeded(func() {
		if t.pc.RemoteDescription() == nil {
			util.LogTrace("negotiation needed before first exchange, skipped")
			return
		}
		debounced(func() {
			select {
			case <-t.ctx.Done():
			default:
				fn()
			}
		})
	})
}

func (t *Transport) OnConnectionStateChange(fn func(negotiation.ConnectionState)) {
	t.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		fn(connectionState(s))
	})
}

func (t *Transport) OnSignalingStateChange(fn func(negotiation.SignalingState)) {
	t.pc.OnSignalingStateChange(func(s webrtc.SignalingState) {
		fn(signalingState(s))
	})
}

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// Send queues data on the data channel, waiting for it to open first.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	select {
	case <-t.openSignal:
	case <-t.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	s := t.sender
	t.mu.Unlock()
	return s.send(ctx, data)
}

// OnMessage registers a callback for every inbound data channel message.
func (t *Transport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func toWebRTC(desc protocol.Description) (webrtc.SessionDescription, error) {
	switch desc.Type {
	case protocol.SDPTypeOffer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: desc.SDP}, nil
	case protocol.SDPTypeAnswer:
		return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: desc.SDP}, nil
	}
	return webrtc.SessionDescription{}, fmt.Errorf("%w: description type %q", ErrInvalidSDP, desc.Type)
}

func fromWebRTC(sd webrtc.SessionDescription) protocol.Description {
	return protocol.Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func connectionState(s webrtc.PeerConnectionState) negotiation.ConnectionState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return negotiation.ConnectionStateConnecting
	case webrtc.PeerConnectionStateConnected:
		return negotiation.ConnectionStateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return negotiation.ConnectionStateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return negotiation.ConnectionStateFailed
	case webrtc.PeerConnectionStateClosed:
		return negotiation.ConnectionStateClosed
	default:
		return negotiation.ConnectionStateNew
	}
}

func signalingState(s webrtc.SignalingState) negotiation.SignalingState {
	switch s {
	case webrtc.SignalingStateHaveLocalOffer:
		return negotiation.SignalingStateHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return negotiation.SignalingStateHaveRemoteOffer
	case webrtc.SignalingStateHaveLocalPranswer:
		return negotiation.SignalingStateHaveLocalPranswer
	case webrtc.SignalingStateHaveRemotePranswer:
		return negotiation.SignalingStateHaveRemotePranswer
	case webrtc.SignalingStateClosed:
		return negotiation.SignalingStateClosed
	default:
		return negotiation.SignalingStateStable
	}
}
