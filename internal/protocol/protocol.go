// Package protocol defines the JSON wire format spoken between the companion
// and the host. Both peers import it so request and response shapes can never
// drift apart.
package protocol

import (
	"time"
)

// HeaderClientID identifies a companion on /health probes.
const HeaderClientID = "x-client-id"

// ServiceName is reported by /health and used for mDNS.
const ServiceName = "sideassist"

// HTTP routes served by the host.
const (
	PathHealth               = "/health"
	PathStatus               = "/status"
	PathAuth                 = "/auth"
	PathCredential           = "/credential"
	PathInput                = "/input"
	PathCopy                 = "/copy"
	PathPaste                = "/paste"
	PathCustomActions        = "/custom_actions"
	PathCustomActionsRename  = "/custom_actions/rename"
	PathRecordingStatus      = "/recording/status"
	PathRecordingPrepare     = "/recording/prepare"
	PathRecordingStart       = "/recording/start"
	PathRecordingStop        = "/recording/stop"
	PathRecordingCancel      = "/recording/cancel"
	PathRecordingAcknowledge = "/recording/acknowledge"
	PathRecordingCapture     = "/recording/capture"
	PathEvents               = "/ws"
)

// ActionType names an /input action.
type ActionType string

const (
	ActionText             ActionType = "text"
	ActionCopy             ActionType = "copy"
	ActionPaste            ActionType = "paste"
	ActionCustom           ActionType = "custom"
	ActionPrepareRecording ActionType = "prepare_recording"
)

// Action is the tagged union carried by POST /input.
type Action struct {
	Type ActionType `json:"type"`

	// Text is set for ActionText.
	Text string `json:"text,omitempty"`

	// ActionID is set for ActionCustom.
	ActionID string `json:"action_id,omitempty"`

	// Name, Icon and ShortcutType are set for ActionPrepareRecording.
	Name         string `json:"name,omitempty"`
	Icon         string `json:"icon,omitempty"`
	ShortcutType string `json:"shortcut_type,omitempty"`
}

// InputRequest is the body of POST /input.
type InputRequest struct {
	Action   Action `json:"action"`
	Password string `json:"password"`
}

// PasswordRequest is the body of requests that only carry the secret
// (/auth, /copy, /paste and the recording control calls).
type PasswordRequest struct {
	Password string `json:"password"`
}

// PrepareRequest is the body of POST /recording/prepare.
type PrepareRequest struct {
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	ShortcutType string `json:"shortcut_type"`
	Password     string `json:"password"`
}

// RenameRequest is the body of the rename endpoints. ActionID is ignored when
// the id is part of the path.
type RenameRequest struct {
	ActionID string `json:"action_id,omitempty"`
	NewName  string `json:"new_name"`
	Password string `json:"password"`
}

// APIResponse is the generic success body.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ErrorResponse is the JSON body of every non-2xx host response.
type ErrorResponse struct {
	Success bool `json:"success"`

	// ErrorCode is the stable dotted taxonomy code (e.g., "auth.unauthorized").
	ErrorCode string `json:"error_code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// NextAction is the single primary recovery action for the user.
	NextAction string `json:"next_action,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string    `json:"status"`
	Service          string    `json:"service"`
	ClientID         string    `json:"client_id,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	ConnectedClients int       `json:"connected_clients"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Running              bool `json:"running"`
	ConnectedClientCount int  `json:"connected_client_count"`
	Port                 int  `json:"port"`
}

// CredentialResponse is returned by the local-only /credential endpoint.
type CredentialResponse struct {
	Password  string    `json:"password"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ShortcutType controls how a custom action is replayed.
const (
	ShortcutNormal     = "Normal"
	ShortcutSequential = "Sequential"
)

// Key event types.
const (
	EventPress   = "press"
	EventRelease = "release"
)

// KeyEvent is one captured input event.
type KeyEvent struct {
	Key       string   `json:"key"`
	EventType string   `json:"event_type"`
	Timestamp int64    `json:"timestamp"` // ms since recording start
	Modifiers []string `json:"modifiers,omitempty"`
}

// CustomAction is a persisted, replayable key sequence.
type CustomAction struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Icon         string     `json:"icon"`
	ShortcutType string     `json:"shortcut_type"`
	KeySequence  []KeyEvent `json:"key_sequence"`
	CreatedAt    time.Time  `json:"created_at"`
	RunCount     int        `json:"run_count"`
	LastRunAt    *time.Time `json:"last_run_at,omitempty"`
}

// RecordingState is the host recording state machine position.
type RecordingState string

const (
	RecordingIdle      RecordingState = "idle"
	RecordingPrepared  RecordingState = "prepared"
	RecordingRecording RecordingState = "recording"
	RecordingCompleted RecordingState = "completed"
)

// RecordingStatus is returned by GET /recording/status and by every
// recording control call.
type RecordingStatus struct {
	Status            RecordingState `json:"status"`
	ActionID          string         `json:"action_id,omitempty"`
	Name              string         `json:"name,omitempty"`
	Icon              string         `json:"icon,omitempty"`
	ShortcutType      string         `json:"shortcut_type,omitempty"`
	RecordedKeysCount int            `json:"recorded_keys_count"`
	StartedAt         *time.Time     `json:"started_at,omitempty"`
	Message           string         `json:"message,omitempty"`
}

// CaptureRequest delivers a raw input event from the local key hook.
type CaptureRequest struct {
	Key       string   `json:"key"`
	EventType string   `json:"event_type"`
	Modifiers []string `json:"modifiers,omitempty"`
}
