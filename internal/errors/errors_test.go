package errors

import (
	"errors"
	"net/http"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "without cause",
			err:      New(CodeActionNotFound, "custom action abc not found"),
			expected: "action.not_found: custom action abc not found",
		},
		{
			name:     "with cause",
			err:      Wrap(CodeNetUnreachable, "cannot reach host", errors.New("connection refused")),
			expected: "net.unreachable: cannot reach host (connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := Wrap(CodeNetUnreachable, "probe failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "CodedError",
			err:      New(CodeAuthUnauthorized, "invalid password"),
			expected: CodeAuthUnauthorized,
		},
		{
			name:     "wrapped CodedError",
			err:      errors.Join(errors.New("outer"), New(CodeRecordingStale, "stale")),
			expected: CodeRecordingStale,
		},
		{
			name:     "plain error",
			err:      errors.New("some error"),
			expected: CodeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "",
		},
		{
			name:     "CodedError",
			err:      New(CodeActionNotFound, "action not found"),
			expected: "action not found",
		},
		{
			name:     "plain error",
			err:      errors.New("some error"),
			expected: "some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessage(tt.err); got != tt.expected {
				t.Errorf("GetMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestToCodeAndMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "CodedError",
			err:         New(CodeAuthExpired, "password expired"),
			wantCode:    CodeAuthExpired,
			wantMessage: "password expired",
		},
		{
			name:        "plain error",
			err:         errors.New("some error"),
			wantCode:    CodeUnknown,
			wantMessage: "some error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ToCodeAndMessage(tt.err)
			if code != tt.wantCode {
				t.Errorf("ToCodeAndMessage() code = %q, want %q", code, tt.wantCode)
			}
			if message != tt.wantMessage {
				t.Errorf("ToCodeAndMessage() message = %q, want %q", message, tt.wantMessage)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := New(CodeAuthUnauthorized, "bad")

	if !IsCode(err, CodeAuthUnauthorized) {
		t.Error("IsCode() should return true for matching code")
	}

	if IsCode(err, CodeNetUnreachable) {
		t.Error("IsCode() should return false for non-matching code")
	}

	if IsCode(nil, CodeAuthUnauthorized) {
		t.Error("IsCode() should return false for nil error")
	}
}

func TestNextAction(t *testing.T) {
	for _, code := range []string{
		CodeNetUnreachable,
		CodeAuthUnauthorized,
		CodeAuthExpired,
		CodePairingMalformed,
		CodeSessionNotAuthenticated,
		CodeRecordingInProgress,
	} {
		if NextAction(code) == "" {
			t.Errorf("NextAction(%q) is empty", code)
		}
	}
	if got := NextAction(CodeInternal); got != "" {
		t.Errorf("NextAction(internal) = %q, want empty", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{CodeAuthUnauthorized, http.StatusUnauthorized},
		{CodeAuthExpired, http.StatusUnauthorized},
		{CodeAuthForbidden, http.StatusForbidden},
		{CodeRecordingStateViolation, http.StatusConflict},
		{CodeRecordingInProgress, http.StatusConflict},
		{CodeActionNotFound, http.StatusNotFound},
		{CodeServerInvalidMessage, http.StatusBadRequest},
		{CodeActionRateLimited, http.StatusTooManyRequests},
		{CodeInternal, http.StatusInternalServerError},
		{CodeUnknown, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := HTTPStatus(tt.code); got != tt.want {
				t.Errorf("HTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	t.Run("Unreachable", func(t *testing.T) {
		cause := errors.New("i/o timeout")
		err := Unreachable("192.168.1.10:8000", cause)
		if !IsCode(err, CodeNetUnreachable) {
			t.Errorf("Unreachable() code = %q, want %q", GetCode(err), CodeNetUnreachable)
		}
		if err.Message != "cannot reach host at 192.168.1.10:8000" {
			t.Errorf("Unreachable() message = %q", err.Message)
		}
		if err.Cause != cause {
			t.Error("Unreachable() should preserve cause")
		}
	})

	t.Run("StateViolation", func(t *testing.T) {
		err := StateViolation("start", "idle")
		if !IsCode(err, CodeRecordingStateViolation) {
			t.Errorf("StateViolation() code = %q", GetCode(err))
		}
		if err.Message != "cannot start while recording is idle" {
			t.Errorf("StateViolation() message = %q", err.Message)
		}
	})

	t.Run("RecordingInProgress", func(t *testing.T) {
		err := RecordingInProgress("Save All")
		if !IsCode(err, CodeRecordingInProgress) {
			t.Errorf("RecordingInProgress() code = %q", GetCode(err))
		}
	})

	t.Run("ActionNotFound", func(t *testing.T) {
		err := ActionNotFound("abc")
		if err.Message != "custom action abc not found" {
			t.Errorf("ActionNotFound() message = %q", err.Message)
		}
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		err := MalformedPayload("port out of range")
		if !IsCode(err, CodePairingMalformed) {
			t.Errorf("MalformedPayload() code = %q", GetCode(err))
		}
	})

	t.Run("NotAuthenticated", func(t *testing.T) {
		if !IsCode(NotAuthenticated(), CodeSessionNotAuthenticated) {
			t.Error("NotAuthenticated() has wrong code")
		}
	})

	t.Run("Internal", func(t *testing.T) {
		cause := errors.New("db connection lost")
		err := Internal("database error", cause)
		if !IsCode(err, CodeInternal) {
			t.Errorf("Internal() code = %q, want %q", GetCode(err), CodeInternal)
		}
		if err.Cause != cause {
			t.Error("Internal() should preserve cause")
		}
	})
}
