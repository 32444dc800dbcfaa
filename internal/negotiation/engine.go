package negotiation

import (
	"context"

	"github.com/1ureka/rtcnegotiator/internal/protocol"
)

// Engine is the transport capability a Controller drives: it produces and
// applies session descriptions, trickles candidates, and reports state.
//
// Callbacks may be invoked from any goroutine. A Controller registers them
// once, right after the engine is created, before any other call.
type Engine interface {
	CreateOffer(ctx context.Context) (protocol.Description, error)
	CreateAnswer(ctx context.Context) (protocol.Description, error)
	SetLocalDescription(desc protocol.Description) error
	SetRemoteDescription(desc protocol.Description) error

	// AddRemoteCandidate applies a remote candidate. Duplicates may be
	// passed; the engine decides whether they are harmless.
	AddRemoteCandidate(c protocol.Candidate) error

	OnNegotiationNeeded(fn func())

	// OnLocalCandidate reports each gathered local candidate. A nil
	// candidate marks the end of gathering.
	OnLocalCandidate(fn func(*protocol.Candidate))

	OnConnectionStateChange(fn func(ConnectionState))
	OnSignalingStateChange(fn func(SignalingState))

	// Close closes any open data channel and disposes the engine.
	Close() error
}

// EngineFactory creates a fresh Engine for each connection attempt.
type EngineFactory func() (Engine, error)

// SignalSender delivers encoded signaling frames to the relay.
type SignalSender interface {
	Send(ctx context.Context, data []byte) error
}

// ConnectionState mirrors the engine's aggregate connection state.
type ConnectionState int

const (
	ConnectionStateNew ConnectionState = iota
	ConnectionStateConnecting
	ConnectionStateConnected
	ConnectionStateDisconnected
	ConnectionStateFailed
	ConnectionStateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNew:
		return "new"
	case ConnectionStateConnecting:
		return "connecting"
	case ConnectionStateConnected:
		return "connected"
	case ConnectionStateDisconnected:
		return "disconnected"
	case ConnectionStateFailed:
		return "failed"
	case ConnectionStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignalingState mirrors the engine's offer/answer state.
type SignalingState int

const (
	SignalingStateStable SignalingState = iota
	SignalingStateHaveLocalOffer
	SignalingStateHaveRemoteOffer
	SignalingStateHaveLocalPranswer
	SignalingStateHaveRemotePranswer
	SignalingStateClosed
)

func (s SignalingState) String() string {
	switch s {
	case SignalingStateStable:
		return "stable"
	case SignalingStateHaveLocalOffer:
		return "have-local-offer"
	case SignalingStateHaveRemoteOffer:
		return "have-remote-offer"
	case SignalingStateHaveLocalPranswer:
		return "have-local-pranswer"
	case SignalingStateHaveRemotePranswer:
		return "have-remote-pranswer"
	case SignalingStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
