package websocket

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"nanorelay/internal/config"
)

// FrameRouter dispatches one inbound frame. Implemented by internal/router;
// declared here so the transport layer has no dependency on routing logic.
type FrameRouter interface {
	Route(messageType int, data []byte, sender *Connection)
}

// WebSocket upgrader shared by all handler instances.
// FUNCTIONAL DISCOVERY: The relay trusts the token, not the origin; browsers
// talking to a local relay present arbitrary origins.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Handler accepts raw connections and runs one session per connection.
type Handler struct {
	registry *Registry
	router   FrameRouter
	cfg      *config.WebSocketConfig
}

// NewHandler creates a relay handler with its dependencies injected.
func NewHandler(registry *Registry, router FrameRouter, cfg *config.WebSocketConfig) *Handler {
	return &Handler{
		registry: registry,
		router:   router,
		cfg:      cfg,
	}
}

// HandleRelay upgrades the request and runs the session to completion.
// ARCHITECTURAL DISCOVERY: Upgrade failure ends the session before any
// registry interaction; after registration the deferred cleanup is the single
// exit path, so the connections entry is removed exactly once.
func (h *Handler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConnection(ws, ws.RemoteAddr().String(), h.cfg.QueueSize, h.cfg.WriteTimeout)

	if err := h.registry.Register(conn); err != nil {
		// Duplicate handle is a programming invariant violation; abort
		// this session only.
		log.Error().Err(err).Str("handle", conn.Handle()).Msg("connection registration failed")
		_ = conn.Close()
		return
	}

	h.runSession(conn)
}

// runSession is the inbound pump; the outbound pump is the connection's write
// pump started at construction. Whichever pump stops first ends the session:
// the write pump closes the socket on exit, which surfaces here as a read
// error, and a read error triggers the deferred unregister which closes the
// queue and stops the write pump.
func (h *Handler) runSession(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
	}()

	if err := conn.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	// Heartbeat keeps half-open connections from lingering as live bindings.
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("handle", conn.Handle()).Msg("read pump ended")
			}
			return
		}

		h.router.Route(messageType, data, conn)
	}
}
