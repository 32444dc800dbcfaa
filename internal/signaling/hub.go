package signaling

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtcnegotiator/internal/util"
)

const peerSendBuffer = 64

// frame is a text frame read from one peer, to be forwarded to the others.
type frame struct {
	from string
	data []byte
}

// hub owns the set of connected peers. Only run touches the peers map.
type hub struct {
	peers      map[string]*peer
	register   chan *peer
	unregister chan *peer
	broadcast  chan frame
	count      atomic.Int32
	done       chan struct{}
}

func newHub() *hub {
	return &hub{
		peers:      make(map[string]*peer),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		broadcast:  make(chan frame),
		done:       make(chan struct{}),
	}
}

func (h *hub) run(ctx context.Context) {
	defer func() {
		for id, p := range h.peers {
			delete(h.peers, id)
			close(p.send)
		}
		h.count.Store(0)
		close(h.done)
	}()

	for {
		select {
		case p := <-h.register:
			h.peers[p.id] = p
			h.count.Store(int32(len(h.peers)))
			util.LogInfo("relay: peer %s joined from %s (%d connected)", p.id, p.conn.RemoteAddr(), len(h.peers))

		case p := <-h.unregister:
			if _, ok := h.peers[p.id]; ok {
				delete(h.peers, p.id)
				close(p.send)
				h.count.Store(int32(len(h.peers)))
				util.LogInfo("relay: peer %s left (%d connected)", p.id, len(h.peers))
			}

		case f := <-h.broadcast:
			for id, p := range h.peers {
				if id == f.from {
					continue
				}
				select {
				case p.send <- f.data:
				default:
					util.LogWarning("relay: peer %s is not keeping up, disconnecting", id)
					delete(h.peers, id)
					close(p.send)
					h.count.Store(int32(len(h.peers)))
				}
			}
			util.LogDebug("relay: forwarded %d bytes from %s", len(f.data), f.from)

		case <-ctx.Done():
			return
		}
	}
}

// peer is one relay connection.
type peer struct {
	id   string
	hub  *hub
	conn *websocket.Conn
	send chan []byte
}

func newPeer(h *hub, conn *websocket.Conn) *peer {
	return &peer{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, peerSendBuffer),
	}
}

// readPump forwards the peer's text frames to the hub until the socket dies.
func (p *peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.done:
		}
		p.conn.Close()
	}()

	keepAlive(p.conn)
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				util.LogDebug("relay: peer %s read: %v", p.id, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case p.hub.broadcast <- frame{from: p.id, data: data}:
		case <-p.hub.done:
			return
		}
	}
}

// writePump is the only writer on the peer's socket.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case data, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
