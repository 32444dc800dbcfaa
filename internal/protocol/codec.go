package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope is the outer wire shape: {"type": ..., "data": ...}.
type envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// payload is the "data" object. Pointer fields distinguish a missing key
// from a zero value.
type payload struct {
	SessionID  *uint64         `json:"session_id"`
	WebRTCData json.RawMessage `json:"webrtc_data"`
}

type wireDescription struct {
	Type *string `json:"type"`
	SDP  *string `json:"sdp"`
}

type wireCandidate struct {
	Candidate     *string `json:"candidate"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

type outbound struct {
	Type MessageType  `json:"type"`
	Data outboundData `json:"data"`
}

type outboundData struct {
	SessionID  uint64 `json:"session_id"`
	WebRTCData any    `json:"webrtc_data"`
}

// Encode serializes a Message into its JSON envelope.
//
// Encode panics if msg.Type is not a known type or its payload does not
// match the type; both are programming errors, never wire conditions.
func Encode(msg Message) []byte {
	var data any
	switch msg.Type {
	case TypeOffer, TypeAnswer:
		if msg.Description == nil {
			panic(fmt.Sprintf("protocol: %s message without description", msg.Type))
		}
		data = msg.Description
	case TypeCandidate:
		if msg.Candidate == nil {
			panic("protocol: ice_candidate message without candidate")
		}
		data = msg.Candidate
	default:
		panic(fmt.Sprintf("protocol: cannot encode message type %q", msg.Type))
	}

	buf, err := json.Marshal(outbound{
		Type: msg.Type,
		Data: outboundData{SessionID: msg.SessionID, WebRTCData: data},
	})
	if err != nil {
		// Only plain strings and integers are marshalled.
		panic(fmt.Sprintf("protocol: marshal %s: %v", msg.Type, err))
	}
	return buf
}

// Decode deserializes a JSON envelope into a Message. It returns an error
// wrapping ErrMalformedSignal or ErrUnrecognizedSignal; neither should be
// treated as fatal by the caller.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if env.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedSignal)
	}

	switch env.Type {
	case TypeOffer, TypeAnswer, TypeCandidate:
	default:
		return Message{}, fmt.Errorf("%w: type %q", ErrUnrecognizedSignal, env.Type)
	}

	if isAbsent(env.Data) {
		return Message{}, fmt.Errorf("%w: %s: missing data", ErrMalformedSignal, env.Type)
	}
	var p payload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return Message{}, fmt.Errorf("%w: %s data: %v", ErrMalformedSignal, env.Type, err)
	}
	if p.SessionID == nil {
		return Message{}, fmt.Errorf("%w: %s: missing session_id", ErrMalformedSignal, env.Type)
	}
	if isAbsent(p.WebRTCData) {
		return Message{}, fmt.Errorf("%w: %s: missing webrtc_data", ErrMalformedSignal, env.Type)
	}

	msg := Message{Type: env.Type, SessionID: *p.SessionID}

	if env.Type == TypeCandidate {
		var wc wireCandidate
		if err := json.Unmarshal(p.WebRTCData, &wc); err != nil {
			return Message{}, fmt.Errorf("%w: candidate: %v", ErrMalformedSignal, err)
		}
		if wc.Candidate == nil || wc.SDPMLineIndex == nil {
			return Message{}, fmt.Errorf("%w: candidate: missing candidate or sdpMLineIndex", ErrMalformedSignal)
		}
		msg.Candidate = &Candidate{Candidate: *wc.Candidate, SDPMLineIndex: *wc.SDPMLineIndex}
		return msg, nil
	}

	var wd wireDescription
	if err := json.Unmarshal(p.WebRTCData, &wd); err != nil {
		return Message{}, fmt.Errorf("%w: description: %v", ErrMalformedSignal, err)
	}
	if wd.SDP == nil {
		return Message{}, fmt.Errorf("%w: description: missing sdp", ErrMalformedSignal)
	}
	want := sdpTypeFor(env.Type)
	if wd.Type != nil && *wd.Type != want {
		return Message{}, fmt.Errorf("%w: %s carries description of type %q", ErrMalformedSignal, env.Type, *wd.Type)
	}
	msg.Description = &Description{Type: want, SDP: *wd.SDP}
	return msg, nil
}

// isAbsent reports whether a raw field was missing or explicitly null.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
