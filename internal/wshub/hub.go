// Package wshub owns the live websocket endpoints. A session may hold
// several endpoints at once (extra browser tabs share the session cookie);
// the hub fans a session-addressed message out to all of them.
package wshub

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// Endpoint is a single websocket connection bound to a session.
type Endpoint struct {
	SessionID string
	Conn      *websocket.Conn
	Send      chan []byte
}

// WritePump reads from the Send channel and writes to the connection.
// Returns when the channel closes or a write fails; a failed write is not
// retried, the endpoint's disconnect cleans up.
func (e *Endpoint) WritePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.Send:
			if !ok {
				return
			}
			if err := e.Conn.Write(ctx, websocket.MessageText, msg); err != nil {
				log.Debug().Str("session", e.SessionID).Err(err).Msg("write failed, dropping endpoint")
				return
			}
		}
	}
}

// Hub tracks endpoints by session id.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string][]*Endpoint
	count    int
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[string][]*Endpoint)}
}

// Register adds an endpoint to its session.
func (h *Hub) Register(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[e.SessionID] = append(h.sessions[e.SessionID], e)
	h.count++
}

// Unregister removes an endpoint and closes its Send channel.
func (h *Hub) Unregister(e *Endpoint) {
	h.mu.Lock()
	defer h.mu.Unlock()
	eps := h.sessions[e.SessionID]
	for i, cand := range eps {
		if cand == e {
			eps[i] = eps[len(eps)-1]
			eps = eps[:len(eps)-1]
			close(e.Send)
			h.count--
			break
		}
	}
	if len(eps) == 0 {
		delete(h.sessions, e.SessionID)
	} else {
		h.sessions[e.SessionID] = eps
	}
}

// Send delivers a frame to every endpoint of the listed sessions.
// Non-blocking: a full send buffer drops the frame for that endpoint.
func (h *Hub) Send(sessionIDs []string, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range sessionIDs {
		for _, e := range h.sessions[id] {
			select {
			case e.Send <- data:
			default:
				log.Warn().Str("session", id).Msg("send buffer full, frame dropped")
			}
		}
	}
}

// SendAll delivers a frame to every connected endpoint.
func (h *Hub) SendAll(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, eps := range h.sessions {
		for _, e := range eps {
			select {
			case e.Send <- data:
			default:
				log.Warn().Str("session", e.SessionID).Msg("send buffer full, frame dropped")
			}
		}
	}
}

// EndpointCount reports the number of live endpoints.
func (h *Hub) EndpointCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}
