package server

import (
	"encoding/json"
	"io"
	"net/http"

	apperrors "github.com/sideassist/sideassist/internal/errors"
)

// maxBodyBytes bounds request bodies; the largest legitimate body is a
// typed text payload.
const maxBodyBytes = 64 * 1024

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return apperrors.InvalidMessage("invalid JSON body")
	}
	return nil
}

// authorize checks the password carried in a request body.
func (s *Server) authorize(r *http.Request, password string) error {
	if err := s.credentials.Authorize(password); err != nil {
		s.logger.Printf("server: rejected %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		return err
	}
	return nil
}
