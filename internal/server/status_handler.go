package server

import (
	"net/http"

	"github.com/sideassist/sideassist/internal/protocol"
)

// handleHealth handles GET /health, the companion's liveness probe. A probe
// carrying x-client-id marks that companion as connected.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clientID := r.Header.Get(protocol.HeaderClientID)
	if clientID != "" {
		if s.tracker.Touch(clientID) {
			s.logger.Printf("server: companion %s connected from %s", clientID, r.RemoteAddr)
		}
	}

	protocol.WriteJSON(w, http.StatusOK, protocol.HealthResponse{
		Status:           "ok",
		Service:          protocol.ServiceName,
		ClientID:         clientID,
		Timestamp:        s.config.TimeNow().UTC(),
		ConnectedClients: s.tracker.Count(),
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	protocol.WriteJSON(w, http.StatusOK, protocol.StatusResponse{
		Running:              s.Running(),
		ConnectedClientCount: s.tracker.Count(),
		Port:                 s.Port(),
	})
}
