package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

// Relay is the WebSocket server peers signal through. Every text frame a
// peer sends is forwarded unchanged to all other peers.
type Relay struct {
	pin string
	hub *hub

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	cancel   context.CancelFunc
}

// NewRelay creates a relay. An empty pin admits every client; otherwise
// clients must pass ?pin=<pin>.
func NewRelay(pin string) *Relay {
	return &Relay{pin: pin, hub: newHub()}
}

// Start listens on addr (":0" picks a free port) and returns the port.
func (r *Relay) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start relay: %w", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", r.handleWS)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &http.Server{Handler: mux}

	r.mu.Lock()
	r.listener = listener
	r.server = srv
	r.cancel = cancel
	r.mu.Unlock()

	go r.hub.run(ctx)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay: serve: %v", err)
		}
	}()

	util.LogInfo("relay listening on %s", listener.Addr())
	return port, nil
}

// Peers returns the number of connected peers.
func (r *Relay) Peers() int {
	return int(r.hub.count.Load())
}

func (r *Relay) handleWS(w http.ResponseWriter, req *http.Request) {
	if r.pin != "" && req.URL.Query().Get("pin") != r.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	select {
	case <-r.hub.done:
		http.Error(w, ErrRelayClosed.Error(), http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	p := newPeer(r.hub, conn)
	select {
	case r.hub.register <- p:
	case <-r.hub.done:
		conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

// Close stops the hub, closing every peer connection, and the listener.
func (r *Relay) Close() error {
	r.mu.Lock()
	srv, cancel := r.server, r.cancel
	r.mu.Unlock()

	if srv == nil {
		return nil
	}
	cancel()
	<-r.hub.done
	return srv.Close()
}
