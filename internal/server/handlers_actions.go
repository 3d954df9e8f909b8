package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
	"github.com/sideassist/sideassist/internal/storage"
)

// handleListActions handles GET /custom_actions.
func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.actions.ListActions()
	if err != nil {
		s.logger.Printf("server: list actions failed: %v", err)
		protocol.WriteError(w, apperrors.Wrap(apperrors.CodeStorageQueryFailed, "failed to list custom actions", err))
		return
	}
	protocol.WriteJSON(w, http.StatusOK, actions)
}

// handleRenameAction handles POST /custom_actions/{id}/rename and
// POST /custom_actions/rename. The path id wins over the body id.
func (s *Server) handleRenameAction(w http.ResponseWriter, r *http.Request) {
	var req protocol.RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}

	id := mux.Vars(r)["id"]
	if id == "" {
		id = req.ActionID
	}
	if id == "" {
		protocol.WriteError(w, apperrors.InvalidMessage("action_id is required"))
		return
	}
	if strings.TrimSpace(req.NewName) == "" {
		protocol.WriteError(w, apperrors.New(apperrors.CodeActionInvalid, "new_name is required"))
		return
	}

	if err := s.actions.RenameAction(id, req.NewName); err != nil {
		protocol.WriteError(w, s.storageError(id, err))
		return
	}

	s.broadcastActionsChanged("renamed", id)
	protocol.WriteOK(w, "renamed")
}

// handleDeleteAction handles DELETE /custom_actions/{id}.
func (s *Server) handleDeleteAction(w http.ResponseWriter, r *http.Request) {
	var req protocol.PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if req.Password == "" {
		req.Password = r.URL.Query().Get("password")
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.actions.DeleteAction(id); err != nil {
		protocol.WriteError(w, s.storageError(id, err))
		return
	}

	s.broadcastActionsChanged("deleted", id)
	protocol.WriteOK(w, "deleted")
}

// handleRunAction handles POST /custom_actions/{id}/run, a REST alias of
// /input with a custom action.
func (s *Server) handleRunAction(w http.ResponseWriter, r *http.Request) {
	var req protocol.PasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.authorize(r, req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}
	if err := s.runAction(r, mux.Vars(r)["id"]); err != nil {
		protocol.WriteError(w, err)
		return
	}
	protocol.WriteOK(w, "action executed")
}

// runAction replays a stored action and records the run.
func (s *Server) runAction(r *http.Request, id string) error {
	if id == "" {
		return apperrors.InvalidMessage("action_id is required")
	}
	action, err := s.actions.GetAction(id)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageQueryFailed, "failed to load custom action", err)
	}
	if action == nil {
		return apperrors.ActionNotFound(id)
	}
	if err := s.executor.Replay(r.Context(), *action); err != nil {
		s.logger.Printf("server: replay of %s failed: %v", id, err)
		return err
	}
	if err := s.actions.RecordRun(id, s.config.TimeNow()); err != nil {
		// The action ran; losing the counter is not worth failing the request.
		s.logger.Printf("server: failed to record run of %s: %v", id, err)
	}
	return nil
}

func (s *Server) storageError(id string, err error) error {
	if errors.Is(err, storage.ErrActionNotFound) {
		return apperrors.ActionNotFound(id)
	}
	s.logger.Printf("server: storage error for action %s: %v", id, err)
	return apperrors.Wrap(apperrors.CodeStorageSaveFailed, "failed to update custom action", err)
}
