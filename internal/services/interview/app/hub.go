package server

import (
	"encoding/json"
	"log"
	"sync"

	"golang.org/x/net/websocket"
)

// sessionHub tracks the live websocket peers grouped by session id. Groups
// are created lazily on first join and removed when the last peer leaves.
type sessionHub struct {
	mu     sync.Mutex
	groups map[string]*sessionGroup
}

func newSessionHub() *sessionHub {
	return &sessionHub{groups: make(map[string]*sessionGroup)}
}

// group returns the fan-out group for a session id, creating it if needed.
func (h *sessionHub) group(sessionID string) *sessionGroup {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[sessionID]
	if !ok {
		g = &sessionGroup{sessionID: sessionID, subscribers: make(map[*wsPeer]struct{})}
		h.groups[sessionID] = g
	}
	return g
}

// lookup returns the group for a session id without creating one. Server-side
// broadcasts (sweeper expiry, async hint completion) use it so a session with
// no connected peers stays absent from the hub.
func (h *sessionHub) lookup(sessionID string) *sessionGroup {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groups[sessionID]
}

// leave removes a peer from its group and drops the group once empty.
func (h *sessionHub) leave(sessionID string, p *wsPeer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	g, ok := h.groups[sessionID]
	if !ok {
		return
	}
	g.mu.Lock()
	delete(g.subscribers, p)
	empty := len(g.subscribers) == 0
	g.mu.Unlock()
	if empty {
		delete(h.groups, sessionID)
	}
}

// sessionGroup is the set of peers subscribed to one session.
type sessionGroup struct {
	sessionID string

	mu          sync.Mutex
	subscribers map[*wsPeer]struct{}
}

func (g *sessionGroup) join(p *wsPeer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subscribers[p] = struct{}{}
}

func (g *sessionGroup) peers() []*wsPeer {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*wsPeer, 0, len(g.subscribers))
	for p := range g.subscribers {
		out = append(out, p)
	}
	return out
}

// broadcast sends a frame to every subscriber. Send failures are logged and
// otherwise ignored; a dead peer is reaped by its own read loop.
func (g *sessionGroup) broadcast(f wsFrame) {
	g.broadcastExcept(nil, f)
}

// broadcastExcept sends a frame to every subscriber other than sender.
func (g *sessionGroup) broadcastExcept(sender *wsPeer, f wsFrame) {
	for _, p := range g.peers() {
		if p == sender {
			continue
		}
		if err := p.send(f); err != nil {
			log.Printf("session: broadcast %s to peer failed: %v", f.Type, err)
		}
	}
}

// wsPeer wraps one websocket connection with a locked encoder so frames from
// concurrent broadcasters never interleave on the wire.
type wsPeer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newWSPeer(ws *websocket.Conn) *wsPeer {
	return &wsPeer{enc: json.NewEncoder(ws)}
}

func (p *wsPeer) send(f wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(f)
}
