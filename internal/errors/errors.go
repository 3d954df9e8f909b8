// Package errors provides standardized error codes shared by the host and the
// companion.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (net, auth, pairing, recording, ...)
//   - error: The specific error type within that domain
//
// The host serializes codes into every non-2xx JSON response and the companion
// decodes them back into a CodedError, so both peers agree on the taxonomy:
// "check the network" (net.*), "try a fresh secret" (auth.*), "fix the pairing
// input" (pairing.*) and "recording already in progress elsewhere" (recording.*).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes by domain.
const (
	// Network domain - the host could not be reached within the probe deadline
	CodeNetUnreachable = "net.unreachable" // Probe deadline exceeded or connection refused
	CodeNetBadResponse = "net.bad_response" // Host answered with an undecodable body

	// Auth domain - shared secret checks
	CodeAuthUnauthorized = "auth.unauthorized"  // Wrong secret
	CodeAuthExpired      = "auth.expired"       // Secret matched an expired credential
	CodeAuthNoCredential = "auth.no_credential" // Host has no current credential
	CodeAuthForbidden    = "auth.forbidden"     // Local-only endpoint called from the network

	// Pairing domain - payload validation on the companion
	CodePairingMalformed = "pairing.malformed_payload" // Pairing payload failed validation

	// Session domain - companion session state
	CodeSessionNotAuthenticated = "session.not_authenticated" // Action attempted without an authenticated session

	// Recording domain - custom action capture protocol
	CodeRecordingStateViolation = "recording.state_violation" // Operation not allowed in the current state
	CodeRecordingInProgress     = "recording.in_progress"     // Another recording session exists
	CodeRecordingStale          = "recording.stale"           // Host still holds a recording the companion gave up on

	// Action domain - custom action management and execution
	CodeActionNotFound      = "action.not_found"      // Custom action id does not exist
	CodeActionInvalid       = "action.invalid"        // Unknown action type or bad arguments
	CodeActionExecuteFailed = "action.execute_failed" // Executor reported a failure
	CodeActionRateLimited   = "action.rate_limited"   // Too many actions per second

	// Storage domain - database and persistence errors
	CodeStorageOpenFailed  = "storage.open_failed"  // Database open failed
	CodeStorageQueryFailed = "storage.query_failed" // Database query failed
	CodeStorageSaveFailed  = "storage.save_failed"  // Failed to save data

	// Server domain - request decoding
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid request body

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// nextActions maps codes to the single primary recovery action for the user.
var nextActions = map[string]string{
	CodeNetUnreachable:          "Check that the host is running and both devices are on the same network.",
	CodeNetBadResponse:          "Check that the address points at a sideassist host.",
	CodeAuthUnauthorized:        "Scan the QR code again or enter the current 5-digit password.",
	CodeAuthExpired:             "Generate a new password on the host and pair again.",
	CodeAuthNoCredential:        "Generate a password on the host with 'sideassist credential'.",
	CodeAuthForbidden:           "Run this command on the host machine.",
	CodePairingMalformed:        "Rescan the QR code or re-enter the address, port and password.",
	CodeSessionNotAuthenticated: "Pair with the host before sending actions.",
	CodeRecordingStateViolation: "Refresh the recording status and retry the step.",
	CodeRecordingInProgress:     "Finish or cancel the recording already in progress.",
	CodeRecordingStale:          "Cancel the stale recording before preparing a new one.",
	CodeActionNotFound:          "Refresh the custom action list.",
	CodeActionRateLimited:       "Slow down and retry.",
}

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "auth.unauthorized")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// NextAction returns the recovery hint for a code, or "" if none is defined.
func NextAction(code string) string {
	return nextActions[code]
}

// HTTPStatus maps a code to the status the host answers with.
func HTTPStatus(code string) int {
	switch code {
	case CodeAuthUnauthorized, CodeAuthExpired, CodeAuthNoCredential:
		return http.StatusUnauthorized
	case CodeAuthForbidden:
		return http.StatusForbidden
	case CodeRecordingStateViolation, CodeRecordingInProgress, CodeRecordingStale:
		return http.StatusConflict
	case CodeActionNotFound:
		return http.StatusNotFound
	case CodeActionInvalid, CodeServerInvalidMessage:
		return http.StatusBadRequest
	case CodeActionRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors for frequently used error types.

// Unreachable creates a "net.unreachable" error.
func Unreachable(addr string, cause error) *CodedError {
	return Wrap(CodeNetUnreachable, fmt.Sprintf("cannot reach host at %s", addr), cause)
}

// Unauthorized creates an "auth.unauthorized" error.
func Unauthorized() *CodedError {
	return New(CodeAuthUnauthorized, "invalid password")
}

// MalformedPayload creates a "pairing.malformed_payload" error.
func MalformedPayload(reason string) *CodedError {
	return New(CodePairingMalformed, fmt.Sprintf("malformed pairing payload: %s", reason))
}

// NotAuthenticated creates a "session.not_authenticated" error.
func NotAuthenticated() *CodedError {
	return New(CodeSessionNotAuthenticated, "session is not authenticated")
}

// StateViolation creates a "recording.state_violation" error.
func StateViolation(op, state string) *CodedError {
	return New(CodeRecordingStateViolation, fmt.Sprintf("cannot %s while recording is %s", op, state))
}

// RecordingInProgress creates a "recording.in_progress" error.
func RecordingInProgress(name string) *CodedError {
	return New(CodeRecordingInProgress, fmt.Sprintf("recording %q is already in progress", name))
}

// ActionNotFound creates an "action.not_found" error.
func ActionNotFound(id string) *CodedError {
	return New(CodeActionNotFound, fmt.Sprintf("custom action %s not found", id))
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
