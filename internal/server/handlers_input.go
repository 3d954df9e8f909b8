package server

import (
	"net/http"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// handleInput handles POST /input, the unified action endpoint.
func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req protocol.InputRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}

	ctx := r.Context()
	a := req.Action

	switch a.Type {
	case protocol.ActionText:
		if a.Text == "" {
			protocol.WriteError(w, apperrors.New(apperrors.CodeActionInvalid, "text is required"))
			return
		}
		if err := s.executor.TypeText(ctx, a.Text); err != nil {
			protocol.WriteError(w, err)
			return
		}
		protocol.WriteOK(w, "text sent")

	case protocol.ActionCopy:
		if err := s.executor.Copy(ctx); err != nil {
			protocol.WriteError(w, err)
			return
		}
		protocol.WriteOK(w, "copied")

	case protocol.ActionPaste:
		if err := s.executor.Paste(ctx); err != nil {
			protocol.WriteError(w, err)
			return
		}
		protocol.WriteOK(w, "pasted")

	case protocol.ActionCustom:
		if err := s.runAction(r, a.ActionID); err != nil {
			protocol.WriteError(w, err)
			return
		}
		protocol.WriteOK(w, "action executed")

	case protocol.ActionPrepareRecording:
		status, err := s.recorder.Prepare(a.Name, a.Icon, a.ShortcutType)
		if err != nil {
			protocol.WriteError(w, err)
			return
		}
		protocol.WriteJSON(w, http.StatusOK, status)

	default:
		protocol.WriteError(w, apperrors.New(apperrors.CodeActionInvalid, "unknown action type "+string(a.Type)))
	}
}

// handleCopy handles POST /copy.
func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req protocol.PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.executor.Copy(r.Context()); err != nil {
		protocol.WriteError(w, err)
		return
	}
	protocol.WriteOK(w, "copied")
}

// handlePaste handles POST /paste.
func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var req protocol.PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.executor.Paste(r.Context()); err != nil {
		protocol.WriteError(w, err)
		return
	}
	protocol.WriteOK(w, "pasted")
}
