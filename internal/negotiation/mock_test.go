package negotiation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/1ureka/rtcnegotiator/internal/negotiation"
	"github.com/1ureka/rtcnegotiator/internal/protocol"
)

// Compile-time interface checks.
var (
	_ negotiation.Engine       = (*mockEngine)(nil)
	_ negotiation.SignalSender = (*recordingSender)(nil)
)

var errMock = errors.New("mock failure")

// mockEngine implements negotiation.Engine in memory. It records every call
// in order and lets tests fire the callbacks a real engine would.
type mockEngine struct {
	mu    sync.Mutex
	calls []string

	offerErr     error
	answerErr    error
	setLocalErr  error
	setRemoteErr error
	candidateErr error

	// offerStarted is closed when CreateOffer is entered; offerGate, when
	// set, holds CreateOffer until it is closed.
	offerStarted chan struct{}
	offerGate    chan struct{}
	offers       int

	closed bool

	onNegotiationNeeded func()
	onLocalCandidate    func(*protocol.Candidate)
	onConnectionState   func(negotiation.ConnectionState)
	onSignalingState    func(negotiation.SignalingState)
}

func newMockEngine() *mockEngine {
	return &mockEngine{offerStarted: make(chan struct{})}
}

func (m *mockEngine) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Calls returns a copy of the recorded call log.
func (m *mockEngine) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Closed reports whether Close was called.
func (m *mockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockEngine) CreateOffer(ctx context.Context) (protocol.Description, error) {
	m.record("create-offer")

	m.mu.Lock()
	m.offers++
	n := m.offers
	started, gate := m.offerStarted, m.offerGate
	if n == 1 {
		close(started)
	}
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return protocol.Description{}, ctx.Err()
		}
	}
	if m.offerErr != nil {
		return protocol.Description{}, m.offerErr
	}
	return protocol.Description{Type: protocol.SDPTypeOffer, SDP: fmt.Sprintf("v=0 offer-%d", n)}, nil
}

func (m *mockEngine) CreateAnswer(context.Context) (protocol.Description, error) {
	m.record("create-answer")
	if m.answerErr != nil {
		return protocol.Description{}, m.answerErr
	}
	return protocol.Description{Type: protocol.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (m *mockEngine) SetLocalDescription(desc protocol.Description) error {
	m.record("set-local:" + desc.Type)
	return m.setLocalErr
}

func (m *mockEngine) SetRemoteDescription(desc protocol.Description) error {
	m.record("set-remote:" + desc.Type)
	return m.setRemoteErr
}

func (m *mockEngine) AddRemoteCandidate(c protocol.Candidate) error {
	m.record("add-candidate:" + c.Candidate)
	return m.candidateErr
}

func (m *mockEngine) OnNegotiationNeeded(fn func()) {
	m.mu.Lock()
	m.onNegotiationNeeded = fn
	m.mu.Unlock()
}

func (m *mockEngine) OnLocalCandidate(fn func(*protocol.Candidate)) {
	m.mu.Lock()
	m.onLocalCandidate = fn
	m.mu.Unlock()
}

func (m *mockEngine) OnConnectionStateChange(fn func(negotiation.ConnectionState)) {
	m.mu.Lock()
	m.onConnectionState = fn
	m.mu.Unlock()
}

func (m *mockEngine) OnSignalingStateChange(fn func(negotiation.SignalingState)) {
	m.mu.Lock()
	m.onSignalingState = fn
	m.mu.Unlock()
}

func (m *mockEngine) Close() error {
	m.record("close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// FireNegotiationNeeded invokes the registered callback as the engine would.
// Fire* methods are no-ops until the controller has subscribed.
func (m *mockEngine) FireNegotiationNeeded() {
	m.mu.Lock()
	fn := m.onNegotiationNeeded
	m.mu.Unlock()
	if fn == nil {
		return
	}
	fn()
}

func (m *mockEngine) FireLocalCandidate(c *protocol.Candidate) {
	m.mu.Lock()
	fn := m.onLocalCandidate
	m.mu.Unlock()
	if fn == nil {
		return
	}
	fn(c)
}

func (m *mockEngine) FireConnectionState(s negotiation.ConnectionState) {
	m.mu.Lock()
	fn := m.onConnectionState
	m.mu.Unlock()
	if fn == nil {
		return
	}
	fn(s)
}

func (m *mockEngine) FireSignalingState(s negotiation.SignalingState) {
	m.mu.Lock()
	fn := m.onSignalingState
	m.mu.Unlock()
	if fn == nil {
		return
	}
	fn(s)
}

// mockFactory hands out a fresh mockEngine per attempt and remembers them.
type mockFactory struct {
	mu        sync.Mutex
	engines   []*mockEngine
	configure func(*mockEngine)
	err       error
}

func (f *mockFactory) New() (negotiation.Engine, error) {
	if f.err != nil {
		return nil, f.err
	}
	e := newMockEngine()
	if f.configure != nil {
		f.configure(e)
	}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e, nil
}

// Engine returns the i-th engine created, failing the test if absent.
func (f *mockFactory) Engine(t *testing.T, i int) *mockEngine {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.engines) {
		t.Fatalf("engine %d not created (have %d)", i, len(f.engines))
	}
	return f.engines[i]
}

// Latest returns the most recent engine, or nil before the first one.
func (f *mockFactory) Latest() *mockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.engines) == 0 {
		return nil
	}
	return f.engines[len(f.engines)-1]
}

// All returns every engine created so far.
func (f *mockFactory) All() []*mockEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mockEngine(nil), f.engines...)
}

func (f *mockFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines)
}

// recordingSender captures every frame written to the signaling channel.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (s *recordingSender) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, append([]byte(nil), data...))
	return nil
}

func (s *recordingSender) SetErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Messages decodes every captured frame.
func (s *recordingSender) Messages(t *testing.T) []protocol.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]protocol.Message, 0, len(s.frames))
	for i, f := range s.frames {
		msg, err := protocol.Decode(f)
		if err != nil {
			t.Fatalf("frame %d does not decode: %v", i, err)
		}
		out = append(out, msg)
	}
	return out
}

// Types returns the message type of every captured frame.
func (s *recordingSender) Types(t *testing.T) []protocol.MessageType {
	t.Helper()
	var out []protocol.MessageType
	for _, m := range s.Messages(t) {
		out = append(out, m.Type)
	}
	return out
}

// eventRecorder collects events delivered to an OnEvent subscriber.
type eventRecorder struct {
	mu     sync.Mutex
	events []negotiation.Event
}

func (r *eventRecorder) Record(ev negotiation.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) Events() []negotiation.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]negotiation.Event(nil), r.events...)
}

func (r *eventRecorder) Kinds() []negotiation.EventKind {
	var out []negotiation.EventKind
	for _, ev := range r.Events() {
		out = append(out, ev.Kind)
	}
	return out
}

// harness wires a controller to a mock factory, a recording sender and an
// event recorder.
type harness struct {
	ctrl    *negotiation.Controller
	factory *mockFactory
	sender  *recordingSender
	events  *eventRecorder
}

func newHarness(role negotiation.Role, configure func(*mockEngine)) *harness {
	h := &harness{
		factory: &mockFactory{configure: configure},
		sender:  &recordingSender{},
		events:  &eventRecorder{},
	}
	h.ctrl = negotiation.NewController(0, negotiation.Options{
		Role:      role,
		NewEngine: h.factory.New,
		Signals:   h.sender,
	})
	h.ctrl.OnEvent(h.events.Record)
	return h
}

// connectInitiator drives an initiator to negotiating.
func (h *harness) connectInitiator(t *testing.T) *mockEngine {
	t.Helper()
	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return h.factory.Engine(t, h.factory.Count()-1)
}

// establish drives an initiator to connected with the engine reporting a
// live connection.
func (h *harness) establish(t *testing.T) *mockEngine {
	t.Helper()
	e := h.connectInitiator(t)
	if err := h.ctrl.HandleAnswer(protocol.Description{Type: protocol.SDPTypeAnswer, SDP: "v=0 remote"}); err != nil {
		t.Fatalf("HandleAnswer: %v", err)
	}
	e.FireConnectionState(negotiation.ConnectionStateConnected)
	return e
}

func candidate(s string) protocol.Candidate {
	return protocol.Candidate{Candidate: s, SDPMLineIndex: 0}
}
