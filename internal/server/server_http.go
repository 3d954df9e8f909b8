package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sideassist/sideassist/internal/auth"
	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// Handler returns the LAN-facing router.
func (s *Server) Handler() http.Handler {
	return s.createRouter()
}

// createRouter registers every endpoint.
func (s *Server) createRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc(protocol.PathHealth, s.handleHealth).Methods("GET")
	r.HandleFunc(protocol.PathStatus, s.handleStatus).Methods("GET")

	r.Handle(protocol.PathAuth, auth.NewAuthHandler(s.credentials)).Methods("POST")
	r.Handle(protocol.PathCredential, s.credentialHandler()).Methods("GET", "POST")

	r.HandleFunc(protocol.PathInput, s.handleInput).Methods("POST")
	r.HandleFunc(protocol.PathCopy, s.handleCopy).Methods("POST")
	r.HandleFunc(protocol.PathPaste, s.handlePaste).Methods("POST")

	r.HandleFunc(protocol.PathCustomActions, s.handleListActions).Methods("GET")
	r.HandleFunc(protocol.PathCustomActionsRename, s.handleRenameAction).Methods("POST")
	r.HandleFunc(protocol.PathCustomActions+"/{id}/rename", s.handleRenameAction).Methods("POST")
	r.HandleFunc(protocol.PathCustomActions+"/{id}/run", s.handleRunAction).Methods("POST")
	r.HandleFunc(protocol.PathCustomActions+"/{id}", s.handleDeleteAction).Methods("DELETE")

	r.HandleFunc(protocol.PathRecordingStatus, s.handleRecordingStatus).Methods("GET")
	r.HandleFunc(protocol.PathRecordingPrepare, s.handleRecordingPrepare).Methods("POST")
	r.HandleFunc(protocol.PathRecordingStart, s.recordingControl(s.recorder.Start)).Methods("POST")
	r.HandleFunc(protocol.PathRecordingStop, s.recordingControl(s.recorder.Stop)).Methods("POST")
	r.HandleFunc(protocol.PathRecordingCancel, s.recordingControl(s.recorder.Cancel)).Methods("POST")
	r.HandleFunc(protocol.PathRecordingAcknowledge, s.recordingControl(s.recorder.Acknowledge)).Methods("POST")
	r.Handle(protocol.PathRecordingCapture, localOnly(http.HandlerFunc(s.handleRecordingCapture))).Methods("POST")

	r.HandleFunc(protocol.PathEvents, s.handleWebSocket).Methods("GET")

	return r
}

// LocalHandler returns the router served on the IPC socket. Callers on the
// socket are the host's own user, so no password is required.
func (s *Server) LocalHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(protocol.PathStatus, s.handleStatus).Methods("GET")
	r.Handle(protocol.PathCredential, s.credentialHandler()).Methods("GET", "POST")
	r.HandleFunc(protocol.PathCustomActions, s.handleListActions).Methods("GET")
	r.HandleFunc(protocol.PathRecordingStatus, s.handleRecordingStatus).Methods("GET")
	r.HandleFunc(protocol.PathRecordingCapture, s.handleRecordingCapture).Methods("POST")
	return r
}

func (s *Server) credentialHandler() http.Handler {
	h := auth.NewCredentialHandler(s.credentials)
	h.OnIssue(func(c auth.Credential) {
		s.logger.Printf("server: new credential issued, expires %s", c.ExpiresAt.Format("15:04:05"))
	})
	return h
}

// localOnly rejects requests that did not originate on this machine.
func localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsLocalRequest(r) {
			protocol.WriteError(w, apperrors.New(apperrors.CodeAuthForbidden, "endpoint is only available from the host machine"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebSocket upgrades an authorized request to an event stream.
// The password is passed as a query parameter because not every WebSocket
// client can set headers.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if err := s.credentials.Authorize(r.URL.Query().Get("password")); err != nil {
		s.logger.Printf("server: event stream rejected from %s: %v", r.RemoteAddr, err)
		protocol.WriteError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:   conn,
		send:   make(chan protocol.Message, channelBufferSize),
		done:   make(chan struct{}),
		server: s,
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = true
	s.mu.Unlock()

	s.logger.Printf("server: event stream connected (%d total)", s.StreamCount())

	// Snapshot so the subscriber never starts from an unknown state.
	client.send <- protocol.NewRecordingStatusMessage(s.recorder.Status())
	client.send <- protocol.NewClientsChangedMessage(s.tracker.Count())

	go client.writePump()
	go client.readPump()
}
