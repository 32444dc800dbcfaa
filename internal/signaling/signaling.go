// Package signaling carries encoded signaling frames over WebSocket: a
// client connection that feeds a Handler, and a relay server that forwards
// each text frame to every other connected peer.
package signaling

import "errors"

var (
	ErrConnClosed  = errors.New("signaling connection closed")
	ErrInvalidPIN  = errors.New("invalid PIN")
	ErrRelayClosed = errors.New("relay closed")
)

// Handler consumes frames read by Conn.Run.
type Handler interface {
	// HandleSignal receives one text frame. A returned error is logged and
	// the read loop continues.
	HandleSignal(data []byte) error

	// HandleSignalingLost is called once when the connection dies for any
	// reason other than Close or context cancellation.
	HandleSignalingLost(cause error)
}
