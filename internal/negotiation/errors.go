package negotiation

import "errors"

var (
	ErrNegotiationFailed    = errors.New("negotiation failed")
	ErrSignalDeliveryFailed = errors.New("signal delivery failed")
	ErrInvalidDescription   = errors.New("invalid description")
	ErrInvalidCandidate     = errors.New("invalid candidate")
	ErrSignalingLost        = errors.New("signaling lost")
	ErrConnectionFailed     = errors.New("connection failed")

	// ErrSessionClosed is returned by Connect when the session was torn
	// down while its offer was being created.
	ErrSessionClosed = errors.New("session closed")
)
