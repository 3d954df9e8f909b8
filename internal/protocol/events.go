package protocol

import (
	"encoding/json"
	"time"
)

// MessageType identifies a message pushed over the /ws event stream.
type MessageType string

const (
	// MessageTypeRecordingStatus carries a RecordingStatus after every transition.
	MessageTypeRecordingStatus MessageType = "recording.status"

	// MessageTypeRecordingCompleted carries the persisted CustomAction.
	MessageTypeRecordingCompleted MessageType = "recording.completed"

	// MessageTypeActionsChanged signals that the custom action list changed.
	// Payload: ActionsChangedPayload
	MessageTypeActionsChanged MessageType = "actions.changed"

	// MessageTypeClientsChanged carries the tracked companion count.
	// Payload: ClientsChangedPayload
	MessageTypeClientsChanged MessageType = "clients.changed"

	MessageTypeHeartbeat MessageType = "heartbeat"
)

// Message is the envelope for every event stream frame.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// Envelope is the decoding side of Message; the payload is decoded lazily
// once the type is known.
type Envelope struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// ActionsChangedPayload lists the ids touched by the change.
type ActionsChangedPayload struct {
	Reason    string `json:"reason"` // created, renamed, deleted
	ActionID  string `json:"action_id"`
	Remaining int    `json:"remaining"`
}

// ClientsChangedPayload reports the tracked companion count.
type ClientsChangedPayload struct {
	ConnectedClients int `json:"connected_clients"`
}

func newMessage(t MessageType, payload interface{}) Message {
	return Message{Type: t, Timestamp: time.Now().UnixMilli(), Payload: payload}
}

// NewRecordingStatusMessage wraps a status snapshot.
func NewRecordingStatusMessage(status RecordingStatus) Message {
	return newMessage(MessageTypeRecordingStatus, status)
}

// NewRecordingCompletedMessage wraps the action produced by a recording.
func NewRecordingCompletedMessage(action CustomAction) Message {
	return newMessage(MessageTypeRecordingCompleted, action)
}

// NewActionsChangedMessage reports a custom action list mutation.
func NewActionsChangedMessage(reason, actionID string, remaining int) Message {
	return newMessage(MessageTypeActionsChanged, ActionsChangedPayload{
		Reason:    reason,
		ActionID:  actionID,
		Remaining: remaining,
	})
}

// NewClientsChangedMessage reports the tracked companion count.
func NewClientsChangedMessage(count int) Message {
	return newMessage(MessageTypeClientsChanged, ClientsChangedPayload{ConnectedClients: count})
}

// NewHeartbeatMessage keeps idle event streams alive.
func NewHeartbeatMessage() Message {
	return newMessage(MessageTypeHeartbeat, struct{}{})
}
