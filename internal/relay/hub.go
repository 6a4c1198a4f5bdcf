package relay

import (
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

const maxFrameSize = 1 << 20

// peer is one websocket connection attached to the relay.
type peer struct {
	id           string
	userID       string
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(conn *websocket.Conn, userID string, queueSize int, writeTimeout time.Duration) *peer {
	return &peer{
		id:           ulid.Make().String(),
		userID:       userID,
		conn:         conn,
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
	}
}

// enqueue hands frame to the writer. A peer whose queue is full is dropped.
func (p *peer) enqueue(frame []byte) bool {
	select {
	case <-p.done:
		return false
	default:
	}
	select {
	case p.send <- frame:
		return true
	default:
		glog.Warningf("[relay]peer %s (%s) send queue full, closing", p.id, p.userID)
		p.close()
		return false
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}

// writeLoop is the only goroutine writing to the connection.
func (p *peer) writeLoop() {
	for {
		select {
		case frame := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				glog.V(1).Infof("[relay]peer %s write: %v", p.id, err)
				p.close()
				return
			}
		case <-p.done:
			return
		}
	}
}

// Hub tracks peers and the session rooms they are subscribed to.
type Hub struct {
	mu    sync.RWMutex
	peers map[*peer]map[string]struct{}
	rooms map[string]map[*peer]struct{}
}

func NewHub() *Hub {
	return &Hub{
		peers: make(map[*peer]map[string]struct{}),
		rooms: make(map[string]map[*peer]struct{}),
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p] = make(map[string]struct{})
	h.mu.Unlock()
}

// unregister drops p from every room.
func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sessionID := range h.peers[p] {
		h.removeLocked(sessionID, p)
	}
	delete(h.peers, p)
}

func (h *Hub) join(sessionID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.peers[p]
	if !ok {
		return
	}
	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*peer]struct{})
		h.rooms[sessionID] = room
	}
	room[p] = struct{}{}
	subs[sessionID] = struct{}{}
}

func (h *Hub) leave(sessionID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.peers[p]; ok {
		delete(subs, sessionID)
	}
	h.removeLocked(sessionID, p)
}

func (h *Hub) removeLocked(sessionID string, p *peer) {
	room, ok := h.rooms[sessionID]
	if !ok {
		return
	}
	delete(room, p)
	if len(room) == 0 {
		delete(h.rooms, sessionID)
	}
}

// deliver queues frame for every peer in the room except skip and returns
// how many peers accepted it.
func (h *Hub) deliver(sessionID string, frame []byte, skip *peer) int {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.rooms[sessionID]))
	for p := range h.rooms[sessionID] {
		if p != skip {
			targets = append(targets, p)
		}
	}
	h.mu.RUnlock()

	n := 0
	for _, p := range targets {
		if p.enqueue(frame) {
			n++
		}
	}
	return n
}

// RoomSize reports how many local peers are subscribed to sessionID.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}

// PeerCount reports how many peers are connected.
func (h *Hub) PeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Close disconnects every peer.
func (h *Hub) Close() {
	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()
	for _, p := range peers {
		p.close()
	}
}
