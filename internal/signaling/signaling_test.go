package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// recorder implements Handler, collecting frames and loss reports.
type recorder struct {
	mu     sync.Mutex
	frames []string
	got    chan struct{}
	lost   chan error
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16), lost: make(chan error, 1)}
}

func (r *recorder) HandleSignal(data []byte) error {
	r.mu.Lock()
	r.frames = append(r.frames, string(data))
	r.mu.Unlock()
	r.got <- struct{}{}
	return nil
}

func (r *recorder) HandleSignalingLost(cause error) {
	r.lost <- cause
}

func (r *recorder) Frames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...)
}

func startRelay(t *testing.T, pin string) (*Relay, string) {
	t.Helper()
	relay := NewRelay(pin)
	port, err := relay.Start("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { relay.Close() })

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	if pin != "" {
		url += "?pin=" + pin
	}
	return relay, url
}

func dialAndRun(t *testing.T, ctx context.Context, url string) (*Conn, *recorder) {
	t.Helper()
	conn, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	rec := newRecorder()
	go conn.Run(ctx, rec)
	t.Cleanup(func() { conn.Close() })
	return conn, rec
}

func waitForPeers(t *testing.T, relay *Relay, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for relay.Peers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("relay has %d peers, want %d", relay.Peers(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitFrame(t *testing.T, rec *recorder) {
	t.Helper()
	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("frame never arrived")
	}
}

func TestRelayForwardsToOtherPeers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, url := startRelay(t, "")
	a, recA := dialAndRun(t, ctx, url)
	_, recB := dialAndRun(t, ctx, url)
	_, recC := dialAndRun(t, ctx, url)
	waitForPeers(t, relay, 3)

	frames := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for _, f := range frames {
		if err := a.Send(ctx, []byte(f)); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	for _, rec := range []*recorder{recB, recC} {
		for range frames {
			waitFrame(t, rec)
		}
		got := rec.Frames()
		for i := range frames {
			if got[i] != frames[i] {
				t.Fatalf("frames = %v, want %v in order", got, frames)
			}
		}
	}

	// The sender never hears its own frames.
	time.Sleep(50 * time.Millisecond)
	if got := recA.Frames(); len(got) != 0 {
		t.Fatalf("sender received %v", got)
	}
}

func TestRelayRejectsWrongPIN(t *testing.T) {
	_, url := startRelay(t, "4321")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Dial(ctx, url[:len(url)-len("?pin=4321")]+"?pin=0000"); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("Dial with wrong PIN = %v, want ErrInvalidPIN", err)
	}

	conn, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial with PIN: %v", err)
	}
	conn.Close()
}

func TestRelayCloseReportsSignalingLost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, url := startRelay(t, "")
	_, rec := dialAndRun(t, ctx, url)
	waitForPeers(t, relay, 1)

	if err := relay.Close(); err != nil {
		t.Fatalf("relay Close: %v", err)
	}

	select {
	case err := <-rec.lost:
		if err == nil {
			t.Fatal("HandleSignalingLost called with nil cause")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signaling loss was not reported")
	}
}

func TestCloseEndsRunQuietly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay, url := startRelay(t, "")
	conn, err := Dial(ctx, url)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitForPeers(t, relay, 1)

	rec := newRecorder()
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, rec) }()

	conn.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run after Close = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	select {
	case err := <-rec.lost:
		t.Fatalf("HandleSignalingLost(%v) after local Close", err)
	default:
	}

	if err := conn.Send(ctx, []byte("x")); !errors.Is(err, ErrConnClosed) {
		t.Fatalf("Send after Close = %v, want ErrConnClosed", err)
	}
	waitForPeers(t, relay, 0)
}

func TestGeneratePIN(t *testing.T) {
	pin := GeneratePIN(6)
	if len(pin) != 6 {
		t.Fatalf("len = %d, want 6", len(pin))
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			t.Fatalf("PIN %q has non-digit", pin)
		}
	}
}
