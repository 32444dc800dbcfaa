package negotiation

// StateTracker folds the engine's connection and signaling state callbacks
// into one edge-triggered connected flag. It is not safe for concurrent use;
// a Controller only touches it under its own lock.
type StateTracker struct {
	connected  bool
	connection ConnectionState
	signaling  SignalingState
}

// ObserveConnectionState records a connection state report. changed is true
// only when the connected flag flips.
func (t *StateTracker) ObserveConnectionState(s ConnectionState) (connected, changed bool) {
	t.connection = s
	return t.evaluate()
}

// ObserveSignalingState records a signaling state report. Signaling state
// alone never establishes a connection, but it re-evaluates the flag the
// same way a connection report does.
func (t *StateTracker) ObserveSignalingState(s SignalingState) (connected, changed bool) {
	t.signaling = s
	return t.evaluate()
}

func (t *StateTracker) evaluate() (connected, changed bool) {
	now := t.connection == ConnectionStateConnected
	if now == t.connected {
		return t.connected, false
	}
	t.connected = now
	return now, true
}

// Connected returns the current flag.
func (t *StateTracker) Connected() bool {
	return t.connected
}

// ConnectionState returns the last reported connection state.
func (t *StateTracker) ConnectionState() ConnectionState {
	return t.connection
}

// SignalingState returns the last reported signaling state.
func (t *StateTracker) SignalingState() SignalingState {
	return t.signaling
}

// Reset forgets all observations. It reports whether the flag was set, so
// the caller can announce the drop to false.
func (t *StateTracker) Reset() (wasConnected bool) {
	wasConnected = t.connected
	*t = StateTracker{}
	return wasConnected
}
