package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

func postJSON(t *testing.T, h http.Handler, path, remote string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if remote != "" {
		req.RemoteAddr = remote
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthHandlerSuccess(t *testing.T) {
	cm := NewCredentialManager(CredentialConfig{Generate: fixedValues("42517")})
	if _, err := cm.Issue(); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	w := postJSON(t, NewAuthHandler(cm), "/auth", "192.168.1.50:5555", protocol.PasswordRequest{Password: "42517"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp protocol.APIResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success = true")
	}
}

func TestAuthHandlerWrongPassword(t *testing.T) {
	cm := NewCredentialManager(CredentialConfig{Generate: fixedValues("42517")})
	if _, err := cm.Issue(); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	w := postJSON(t, NewAuthHandler(cm), "/auth", "", protocol.PasswordRequest{Password: "00000"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}

	var resp protocol.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ErrorCode != apperrors.CodeAuthUnauthorized {
		t.Errorf("error_code = %q, want %q", resp.ErrorCode, apperrors.CodeAuthUnauthorized)
	}
	if resp.NextAction == "" {
		t.Error("expected next_action to be set")
	}
}

func TestAuthHandlerInvalidJSON(t *testing.T) {
	cm := NewCredentialManager(CredentialConfig{})
	req := httptest.NewRequest(http.MethodPost, "/auth", strings.NewReader("{not json"))
	w := httptest.NewRecorder()

	NewAuthHandler(cm).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestAuthHandlerMethodNotAllowed(t *testing.T) {
	cm := NewCredentialManager(CredentialConfig{})
	req := httptest.NewRequest(http.MethodGet, "/auth", nil)
	w := httptest.NewRecorder()

	NewAuthHandler(cm).ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestCredentialHandler_IssueAndGet(t *testing.T) {
	cm := NewCredentialManager(CredentialConfig{Generate: fixedValues("24680")})
	h := NewCredentialHandler(cm)

	var issued []Credential
	h.OnIssue(func(c Credential) { issued = append(issued, c) })

	// GET before issue returns null
	req := httptest.NewRequest(http.MethodGet, "/credential", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("GET body = %q, want null", w.Body.String())
	}

	w = postJSON(t, h, "/credential", "127.0.0.1:40000", struct{}{})
	if w.Code != http.StatusOK {
		t.Fatalf("POST status = %d: %s", w.Code, w.Body.String())
	}
	var resp protocol.CredentialResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Password != "24680" {
		t.Errorf("password = %q, want 24680", resp.Password)
	}
	if !resp.ExpiresAt.After(resp.IssuedAt) {
		t.Error("expires_at should be after issued_at")
	}
	if len(issued) != 1 {
		t.Errorf("OnIssue called %d times, want 1", len(issued))
	}

	req = httptest.NewRequest(http.MethodGet, "/credential", nil)
	req.RemoteAddr = "[::1]:40000"
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var got protocol.CredentialResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Password != "24680" {
		t.Errorf("GET password = %q, want 24680", got.Password)
	}
}

func TestCredentialHandler_RejectsRemote(t *testing.T) {
	cm := NewCredentialManager(CredentialConfig{})
	w := postJSON(t, NewCredentialHandler(cm), "/credential", "192.168.1.50:5555", struct{}{})

	if w.Code != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", w.Code)
	}
	if _, ok := cm.Current(); ok {
		t.Error("remote request should not issue a credential")
	}
}

func TestIsLocalRequest(t *testing.T) {
	tests := []struct {
		remote string
		want   bool
	}{
		{"127.0.0.1:1234", true},
		{"[::1]:1234", true},
		{"192.168.1.2:1234", false},
		{"10.0.0.5:80", false},
		{"", true},
		{"@", true},
		{"/tmp/sideassist.sock", true},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if got := IsLocalRequest(req); got != tt.want {
				t.Errorf("IsLocalRequest(%q) = %v, want %v", tt.remote, got, tt.want)
			}
		})
	}
}
