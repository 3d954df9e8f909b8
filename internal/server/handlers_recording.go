package server

import (
	"net/http"

	"github.com/sideassist/sideassist/internal/protocol"
)

// handleRecordingStatus handles GET /recording/status. Any peer may poll it.
func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	protocol.WriteJSON(w, http.StatusOK, s.recorder.Status())
}

// handleRecordingPrepare handles POST /recording/prepare.
func (s *Server) handleRecordingPrepare(w http.ResponseWriter, r *http.Request) {
	var req protocol.PrepareRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}

	status, err := s.recorder.Prepare(req.Name, req.Icon, req.ShortcutType)
	if err != nil {
		protocol.WriteError(w, err)
		return
	}
	protocol.WriteJSON(w, http.StatusOK, status)
}

// recordingControl adapts a password-only recording transition to a handler.
func (s *Server) recordingControl(op func() (protocol.RecordingStatus, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protocol.PasswordRequest
		if err := decodeJSON(r, &req); err != nil {
			protocol.WriteError(w, err)
			return
		}
		if err := s.authorize(r, req.Password); err != nil {
			protocol.WriteError(w, err)
			return
		}

		status, err := op()
		if err != nil {
			protocol.WriteError(w, err)
			return
		}
		protocol.WriteJSON(w, http.StatusOK, status)
	}
}

// captureResponse reports whether a captured event was kept.
type captureResponse struct {
	Accepted          bool `json:"accepted"`
	RecordedKeysCount int  `json:"recorded_keys_count"`
}

// handleRecordingCapture handles POST /recording/capture from the local key
// hook. It is mounted behind a local-only check.
func (s *Server) handleRecordingCapture(w http.ResponseWriter, r *http.Request) {
	var req protocol.CaptureRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}

	accepted, err := s.recorder.Capture(req.Key, req.EventType, req.Modifiers)
	if err != nil {
		protocol.WriteError(w, err)
		return
	}
	protocol.WriteJSON(w, http.StatusOK, captureResponse{
		Accepted:          accepted,
		RecordedKeysCount: s.recorder.Status().RecordedKeysCount,
	})
}
