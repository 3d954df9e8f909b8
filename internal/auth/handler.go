package auth

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// AuthHandler handles POST /auth. It answers 200 when the password matches
// the live credential and 401 otherwise. There is no lockout: the credential
// is short-lived and a new one replaces it on demand.
type AuthHandler struct {
	credentials *CredentialManager
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(cm *CredentialManager) *AuthHandler {
	return &AuthHandler{credentials: cm}
}

// ServeHTTP handles POST /auth requests.
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req protocol.PasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("auth: failed to parse auth request: %v", err)
		protocol.WriteError(w, apperrors.InvalidMessage("invalid JSON body"))
		return
	}

	if err := h.credentials.Authorize(req.Password); err != nil {
		protocol.WriteError(w, err)
		return
	}

	log.Printf("auth: companion authenticated from %s", r.RemoteAddr)
	protocol.WriteOK(w, "authenticated")
}

// CredentialHandler handles /credential. POST issues a fresh credential and
// GET returns the live one or null. Both are restricted to local callers so
// the password never crosses the network in response to a remote request.
type CredentialHandler struct {
	credentials *CredentialManager

	// onIssue is called after a credential is issued (may be nil).
	onIssue func(Credential)
}

// NewCredentialHandler creates a new credential handler.
func NewCredentialHandler(cm *CredentialManager) *CredentialHandler {
	return &CredentialHandler{credentials: cm}
}

// OnIssue registers a callback invoked after every successful issue.
func (h *CredentialHandler) OnIssue(fn func(Credential)) {
	h.onIssue = fn
}

// ServeHTTP handles GET and POST /credential requests.
func (h *CredentialHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !IsLocalRequest(r) {
		log.Printf("auth: rejected /credential from non-loopback address: %s", r.RemoteAddr)
		protocol.WriteError(w, apperrors.New(apperrors.CodeAuthForbidden, "credential management is only available from the host machine"))
		return
	}

	switch r.Method {
	case http.MethodGet:
		cred, ok := h.credentials.Current()
		if !ok {
			protocol.WriteJSON(w, http.StatusOK, nil)
			return
		}
		protocol.WriteJSON(w, http.StatusOK, toResponse(cred))

	case http.MethodPost:
		cred, err := h.credentials.Issue()
		if err != nil {
			log.Printf("auth: failed to issue credential: %v", err)
			protocol.WriteError(w, apperrors.Internal("failed to issue credential", err))
			return
		}
		if h.onIssue != nil {
			h.onIssue(cred)
		}
		protocol.WriteJSON(w, http.StatusOK, toResponse(cred))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func toResponse(c Credential) protocol.CredentialResponse {
	return protocol.CredentialResponse{
		Password:  c.Value,
		IssuedAt:  c.IssuedAt,
		ExpiresAt: c.ExpiresAt,
	}
}

// IsLocalRequest checks if the request originates from the local machine.
// Returns true for loopback or unix socket addresses.
func IsLocalRequest(r *http.Request) bool {
	// RemoteAddr is "host:port" or "[host]:port" for IPv6
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if isUnixSocketRemoteAddr(r.RemoteAddr) {
			return true
		}
		// If we can't parse the address, be conservative and reject
		log.Printf("auth: failed to parse RemoteAddr %q: %v", r.RemoteAddr, err)
		return false
	}

	ip := net.ParseIP(host)
	if ip == nil {
		log.Printf("auth: failed to parse IP from host %q", host)
		return false
	}

	return ip.IsLoopback()
}

func isUnixSocketRemoteAddr(remoteAddr string) bool {
	if remoteAddr == "" || remoteAddr == "@" {
		return true
	}
	return strings.HasPrefix(remoteAddr, "/") || strings.HasPrefix(remoteAddr, "@")
}
