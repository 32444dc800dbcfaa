// Package protocol defines the signaling message format exchanged through the
// relay and its JSON codec.
package protocol

import "errors"

// MessageType identifies the kind of signaling message on the wire.
type MessageType string

// Message type constants. The set is closed: anything else is unrecognized.
const (
	TypeOffer     MessageType = "webrtc_offer"
	TypeAnswer    MessageType = "webrtc_answer"
	TypeCandidate MessageType = "ice_candidate"
)

// SDP types carried inside a Description.
const (
	SDPTypeOffer  = "offer"
	SDPTypeAnswer = "answer"
)

var (
	// ErrMalformedSignal reports bytes that are not a well-formed envelope
	// or lack a required key.
	ErrMalformedSignal = errors.New("malformed signal")

	// ErrUnrecognizedSignal reports a well-formed envelope whose type is not
	// one of the known message types.
	ErrUnrecognizedSignal = errors.New("unrecognized signal")
)

// Description is an SDP offer or answer.
type Description struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// Candidate is a single trickled ICE candidate. Only the candidate line and
// its m-line index are exchanged.
type Candidate struct {
	Candidate     string `json:"candidate"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// Message is a decoded signaling message. Exactly one of Description or
// Candidate is set, matching Type.
type Message struct {
	Type        MessageType
	SessionID   uint64
	Description *Description // TypeOffer, TypeAnswer
	Candidate   *Candidate   // TypeCandidate
}

// NewOffer builds an offer message.
func NewOffer(sessionID uint64, sdp string) Message {
	return Message{
		Type:        TypeOffer,
		SessionID:   sessionID,
		Description: &Description{Type: SDPTypeOffer, SDP: sdp},
	}
}

// NewAnswer builds an answer message.
func NewAnswer(sessionID uint64, sdp string) Message {
	return Message{
		Type:        TypeAnswer,
		SessionID:   sessionID,
		Description: &Description{Type: SDPTypeAnswer, SDP: sdp},
	}
}

// NewCandidate builds an ice_candidate message.
func NewCandidate(sessionID uint64, c Candidate) Message {
	return Message{
		Type:      TypeCandidate,
		SessionID: sessionID,
		Candidate: &c,
	}
}

// sdpTypeFor returns the Description.Type expected for an envelope type.
func sdpTypeFor(t MessageType) string {
	if t == TypeAnswer {
		return SDPTypeAnswer
	}
	return SDPTypeOffer
}
