package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"nanorelay/internal/websocket"
)

// Server exposes operational endpoints alongside the relay itself.
type Server struct {
	registry  *websocket.Registry
	startedAt time.Time
}

// NewServer creates the health/stats server.
func NewServer(registry *websocket.Registry) *Server {
	return &Server{
		registry:  registry,
		startedAt: time.Now(),
	}
}

// ServeHTTP handles /healthz.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := s.registry.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"connections":    stats["connections"],
		"bindings":       stats["bindings"],
	}); err != nil {
		log.Debug().Err(err).Msg("failed to write health response")
	}
}
