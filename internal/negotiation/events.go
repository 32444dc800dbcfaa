package negotiation

import (
	"fmt"
	"sync"
)

// EventKind identifies what happened to a session.
type EventKind int

const (
	EventConnectedChanged EventKind = iota
	EventNegotiationFailed
	EventSignalDeliveryFailed
	EventInvalidDescription
	EventInvalidCandidate
	EventSignalingLost
	EventConnectionFailed
)

func (k EventKind) String() string {
	switch k {
	case EventConnectedChanged:
		return "connected-changed"
	case EventNegotiationFailed:
		return "negotiation-failed"
	case EventSignalDeliveryFailed:
		return "signal-delivery-failed"
	case EventInvalidDescription:
		return "invalid-description"
	case EventInvalidCandidate:
		return "invalid-candidate"
	case EventSignalingLost:
		return "signaling-lost"
	case EventConnectionFailed:
		return "connection-failed"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is surfaced to the application. Err is set for failure kinds and
// wraps the matching sentinel; Connected is set for EventConnectedChanged.
type Event struct {
	Kind      EventKind
	SessionID uint64
	Connected bool
	Err       error
}

// notifier delivers events in the order they were queued, outside the
// controller lock. Whichever goroutine finds the queue idle drains it;
// handlers that call back into the controller only enqueue, so they never
// deadlock and never reorder delivery.
type notifier struct {
	mu          sync.Mutex
	queue       []Event
	draining    bool
	onEvent     []func(Event)
	onConnected []func(sessionID uint64, connected bool)
}

func (n *notifier) subscribe(fn func(Event)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onEvent = append(n.onEvent, fn)
}

func (n *notifier) subscribeConnected(fn func(sessionID uint64, connected bool)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.onConnected = append(n.onConnected, fn)
}

// push queues an event. Callers hold the controller lock so queue order
// matches transition order.
func (n *notifier) push(ev Event) {
	n.mu.Lock()
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
}

// flush delivers queued events unless another goroutine already is.
func (n *notifier) flush() {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true

	for len(n.queue) > 0 {
		ev := n.queue[0]
		n.queue = n.queue[1:]
		onEvent := n.onEvent
		onConnected := n.onConnected
		n.mu.Unlock()

		for _, fn := range onEvent {
			fn(ev)
		}
		if ev.Kind == EventConnectedChanged {
			for _, fn := range onConnected {
				fn(ev.SessionID, ev.Connected)
			}
		}

		n.mu.Lock()
	}

	n.draining = false
	n.mu.Unlock()
}
