package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"quizsync/internal/protocol"
	"quizsync/internal/wshub"
)

const sessionCookie = "quizsync_session"

// sessionID resolves the persistent session identity for a connection. The
// cookie survives reconnects, so every tab of one browser shares a session;
// non-browser clients can pass ?session_id= instead.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if id := r.URL.Query().Get("session_id"); id != "" {
		return id
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
	})
	return id
}

// handleWS upgrades the connection and pumps messages between the socket
// and the router until the endpoint goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sid := s.sessionID(w, r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		log.Warn().Str("session", sid).Err(err).Msg("websocket accept failed")
		return
	}

	ep := &wshub.Endpoint{
		SessionID: sid,
		Conn:      conn,
		Send:      make(chan []byte, 64),
	}
	s.hub.Register(ep)
	log.Info().Str("session", sid).Msg("endpoint connected")

	ctx, cancel := context.WithCancel(context.Background())
	go ep.WritePump(ctx)

	defer func() {
		cancel()
		s.hub.Unregister(ep)
		conn.Close(websocket.StatusNormalClosure, "")
		// The transport-level disconnect drives refcounting and room exit.
		s.core.HandleDisconnect(sid)
		log.Info().Str("session", sid).Msg("endpoint disconnected")
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn().Str("session", sid).Err(err).Msg("malformed frame")
			continue
		}
		s.core.Dispatch(sid, env)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	phase := "lobby"
	if s.core.RoundInProgress() {
		phase = "play"
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","phase":"%s","secs_remaining":%d}`, phase, s.core.SecsRemaining())
}
