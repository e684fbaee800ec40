// Package feed pushes committed notifications to connected websocket
// clients.
package feed

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"example.com/tokenledger/pkg/chain"
	"example.com/tokenledger/pkg/logger"
)

const (
	// sendBuffer is how many notifications a peer may lag behind before
	// it is dropped.
	sendBuffer = 256
	writeWait  = 10 * time.Second
)

// Conn is the write side of a subscriber connection.
type Conn interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Backlog returns journaled notifications with Seq >= since.
type Backlog func(since uint64, limit int) ([]chain.Notification, error)

type peer struct {
	conn    Conn
	send    chan chain.Notification
	lastSeq uint64
}

// Hub fans notifications out to its peers. Every peer sees each
// sequence number at most once and in increasing order. Writes happen on
// one goroutine per peer so a slow client never holds up the others.
type Hub struct {
	mu      sync.Mutex
	peers   map[string]*peer
	backlog Backlog
	log     *logger.Logger

	upgrader websocket.Upgrader
}

func NewHub(backlog Backlog, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		peers:   make(map[string]*peer),
		backlog: backlog,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Join registers conn for live notifications and starts its writer, which
// first replays the backlog from since.
func (h *Hub) Join(id string, conn Conn, since uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	p := &peer{conn: conn, send: make(chan chain.Notification, sendBuffer)}
	if since > 0 {
		p.lastSeq = since - 1
	}
	var replay []chain.Notification
	if h.backlog != nil {
		notes, err := h.backlog(since, 0)
		if err != nil {
			return err
		}
		replay = notes
		if len(notes) > 0 {
			p.lastSeq = notes[len(notes)-1].Seq
		}
	}

	h.peers[id] = p
	go h.writeLoop(id, p, replay)
	h.log.Debug("peer joined", "peer", id, "last_seq", p.lastSeq)
	return nil
}

// writeLoop writes the replay and then everything queued for p until the
// peer is removed or a write fails.
func (h *Hub) writeLoop(id string, p *peer, replay []chain.Notification) {
	for _, n := range replay {
		if err := h.write(p, n); err != nil {
			h.log.Warn("failed to replay notification", "peer", id, "seq", n.Seq, "error", err)
			h.Leave(id)
			return
		}
	}
	for n := range p.send {
		if err := h.write(p, n); err != nil {
			h.log.Warn("failed to send notification", "peer", id, "seq", n.Seq, "error", err)
			h.Leave(id)
			return
		}
	}
}

func (h *Hub) write(p *peer, n chain.Notification) error {
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return p.conn.WriteJSON(n)
}

// Leave removes a peer and closes its connection.
func (h *Hub) Leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removePeer(id)
}

// removePeer safely removes a peer from the hub. Callers hold mu.
func (h *Hub) removePeer(id string) {
	if p, exists := h.peers[id]; exists {
		close(p.send)
		_ = p.conn.Close()
		delete(h.peers, id)
		h.log.Debug("peer disconnected", "peer", id)
	}
}

// Broadcast queues notes for all connected peers, skipping any a peer has
// already received. It never blocks on a connection: peers whose queue is
// full are dropped.
func (h *Hub) Broadcast(notes []chain.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, p := range h.peers {
		for _, n := range notes {
			if n.Seq <= p.lastSeq {
				continue
			}
			select {
			case p.send <- n:
				p.lastSeq = n.Seq
				continue
			default:
			}
			h.log.Warn("peer too slow, dropping", "peer", id, "seq", n.Seq)
			h.removePeer(id)
			break
		}
	}
}

func (h *Hub) Peers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// ServeHTTP upgrades the request to a websocket and streams notifications
// until the client goes away. The optional since query parameter selects
// where the replay starts.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since uint64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			http.Error(w, "invalid since", http.StatusBadRequest)
			return
		}
		since = v
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	if err := h.Join(id, conn, since); err != nil {
		h.log.Warn("replay failed", "peer", id, "error", err)
		_ = conn.Close()
		return
	}
	defer h.Leave(id)

	// clients never send anything; reading only detects the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
