package protocol

import (
	"encoding/json"
	"log"
	"net/http"

	apperrors "github.com/sideassist/sideassist/internal/errors"
)

// WriteJSON sends v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("protocol: failed to encode response: %v", err)
	}
}

// WriteError sends an ErrorResponse derived from err. The status comes from
// the error's code so both peers agree on it.
func WriteError(w http.ResponseWriter, err error) {
	code, message := apperrors.ToCodeAndMessage(err)
	WriteJSON(w, apperrors.HTTPStatus(code), ErrorResponse{
		Success:    false,
		ErrorCode:  code,
		Message:    message,
		NextAction: apperrors.NextAction(code),
	})
}

// WriteOK sends {success:true, message}.
func WriteOK(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Message: message})
}
