// Package recording is the host's authoritative recording state machine:
//
//	Idle -> Prepared -> Recording -> Completed -> (acknowledged) -> Idle
//
// Prepared and Recording may also be cancelled back to Idle. A rejected call
// never mutates state. Every transition is published to subscribers so the
// server can push it to companions without them having to poll.
package recording

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// DefaultDebounce drops repeated presses of the same key arriving closer
// together than this (keyboard auto-repeat and double hook delivery).
const DefaultDebounce = 50 * time.Millisecond

// ActionSaver persists the custom action produced by a completed recording.
type ActionSaver interface {
	SaveAction(action *protocol.CustomAction) error
}

// Config holds configuration for the orchestrator.
type Config struct {
	// Store persists completed recordings. Required.
	Store ActionSaver

	// TimeNow returns the current time. Default: time.Now.
	TimeNow func() time.Time

	// NewID generates custom action ids. Default: uuid.NewString.
	NewID func() string

	// Debounce is the same-key press debounce window. Default: 50ms.
	// Negative disables debouncing.
	Debounce time.Duration

	// Logger receives state transitions. Nil discards.
	Logger *log.Logger
}

// session is the in-flight recording. It exists from Prepare until
// Acknowledge or Cancel.
type session struct {
	name         string
	icon         string
	shortcutType string
	startedAt    time.Time
	keys         []protocol.KeyEvent
	lastPress    map[string]time.Time
	action       *protocol.CustomAction
}

// Orchestrator serializes all recording transitions under one mutex.
type Orchestrator struct {
	mu sync.Mutex

	config Config
	logger *log.Logger

	state   protocol.RecordingState
	session *session

	bus *Bus
}

// NewOrchestrator creates an idle orchestrator.
func NewOrchestrator(config Config) *Orchestrator {
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.NewID == nil {
		config.NewID = uuid.NewString
	}
	if config.Debounce == 0 {
		config.Debounce = DefaultDebounce
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Orchestrator{
		config: config,
		logger: logger,
		state:  protocol.RecordingIdle,
		bus:    NewBus(logger),
	}
}

// Subscribe returns a channel of transition events and a function that
// releases it.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.bus.Subscribe()
}

// Prepare creates a recording session. Allowed only from Idle.
func (o *Orchestrator) Prepare(name, icon, shortcutType string) (protocol.RecordingStatus, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return o.Status(), apperrors.New(apperrors.CodeActionInvalid, "recording name is required")
	}
	switch shortcutType {
	case "":
		shortcutType = protocol.ShortcutNormal
	case protocol.ShortcutNormal, protocol.ShortcutSequential:
	default:
		return o.Status(), apperrors.New(apperrors.CodeActionInvalid, fmt.Sprintf("unknown shortcut type %q", shortcutType))
	}

	o.mu.Lock()
	switch o.state {
	case protocol.RecordingIdle:
	case protocol.RecordingCompleted:
		o.mu.Unlock()
		return o.Status(), apperrors.New(apperrors.CodeRecordingStale,
			"previous recording has not been acknowledged")
	default:
		current := o.session.name
		o.mu.Unlock()
		return o.Status(), apperrors.RecordingInProgress(current)
	}

	o.session = &session{
		name:         name,
		icon:         icon,
		shortcutType: shortcutType,
		lastPress:    make(map[string]time.Time),
	}
	o.state = protocol.RecordingPrepared
	status := o.statusLocked(fmt.Sprintf("Ready to record %q", name))
	o.mu.Unlock()

	o.logger.Printf("recording: prepared %q (%s)", name, shortcutType)
	o.bus.Publish(Event{Type: EventStatus, Status: status})
	return status, nil
}

// Start begins capturing. Allowed only from Prepared.
func (o *Orchestrator) Start() (protocol.RecordingStatus, error) {
	o.mu.Lock()
	if o.state != protocol.RecordingPrepared {
		err := apperrors.StateViolation("start", string(o.state))
		status := o.statusLocked("")
		o.mu.Unlock()
		return status, err
	}

	o.session.startedAt = o.config.TimeNow()
	o.state = protocol.RecordingRecording
	status := o.statusLocked("Recording")
	o.mu.Unlock()

	o.logger.Printf("recording: started %q", status.Name)
	o.bus.Publish(Event{Type: EventStatus, Status: status})
	return status, nil
}

// Capture appends a raw input event while recording. It reports whether
// the event was kept; debounced duplicates return false with no error.
func (o *Orchestrator) Capture(key, eventType string, modifiers []string) (bool, error) {
	if key == "" {
		return false, apperrors.New(apperrors.CodeActionInvalid, "key is required")
	}
	if eventType == "" {
		eventType = protocol.EventPress
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != protocol.RecordingRecording {
		return false, apperrors.StateViolation("capture", string(o.state))
	}

	now := o.config.TimeNow()
	s := o.session

	if eventType == protocol.EventPress && o.config.Debounce > 0 {
		if last, ok := s.lastPress[key]; ok && now.Sub(last) < o.config.Debounce {
			return false, nil
		}
		s.lastPress[key] = now
	}

	s.keys = append(s.keys, protocol.KeyEvent{
		Key:       key,
		EventType: eventType,
		Timestamp: now.Sub(s.startedAt).Milliseconds(),
		Modifiers: append([]string(nil), modifiers...),
	})
	return true, nil
}

// Stop finishes capturing and persists the custom action. Allowed only
// from Recording. If persisting fails the session stays in Recording.
func (o *Orchestrator) Stop() (protocol.RecordingStatus, error) {
	o.mu.Lock()
	if o.state != protocol.RecordingRecording {
		err := apperrors.StateViolation("stop", string(o.state))
		status := o.statusLocked("")
		o.mu.Unlock()
		return status, err
	}

	s := o.session
	action := &protocol.CustomAction{
		ID:           o.config.NewID(),
		Name:         s.name,
		Icon:         s.icon,
		ShortcutType: s.shortcutType,
		KeySequence:  append([]protocol.KeyEvent(nil), s.keys...),
		CreatedAt:    o.config.TimeNow(),
	}

	// Saved under the lock so a concurrent Cancel cannot race the write.
	if err := o.config.Store.SaveAction(action); err != nil {
		status := o.statusLocked("")
		o.mu.Unlock()
		o.logger.Printf("recording: failed to persist %q: %v", s.name, err)
		return status, apperrors.Wrap(apperrors.CodeStorageSaveFailed, "failed to save custom action", err)
	}

	s.action = action
	o.state = protocol.RecordingCompleted
	status := o.statusLocked(fmt.Sprintf("Saved %q with %d keys", s.name, len(action.KeySequence)))
	o.mu.Unlock()

	o.logger.Printf("recording: completed %q as %s (%d keys)", action.Name, action.ID, len(action.KeySequence))
	o.bus.Publish(Event{Type: EventStatus, Status: status})
	o.bus.Publish(Event{Type: EventCompleted, Status: status, Action: action})
	return status, nil
}

// Acknowledge clears a completed recording. Allowed only from Completed.
func (o *Orchestrator) Acknowledge() (protocol.RecordingStatus, error) {
	o.mu.Lock()
	if o.state != protocol.RecordingCompleted {
		err := apperrors.StateViolation("acknowledge", string(o.state))
		status := o.statusLocked("")
		o.mu.Unlock()
		return status, err
	}
	name := o.session.name
	o.reset()
	status := o.statusLocked("")
	o.mu.Unlock()

	o.logger.Printf("recording: acknowledged %q", name)
	o.bus.Publish(Event{Type: EventStatus, Status: status})
	return status, nil
}

// Cancel discards a prepared or running recording without persisting it.
func (o *Orchestrator) Cancel() (protocol.RecordingStatus, error) {
	o.mu.Lock()
	if o.state != protocol.RecordingPrepared && o.state != protocol.RecordingRecording {
		err := apperrors.StateViolation("cancel", string(o.state))
		status := o.statusLocked("")
		o.mu.Unlock()
		return status, err
	}
	name := o.session.name
	o.reset()
	status := o.statusLocked(fmt.Sprintf("Cancelled %q", name))
	o.mu.Unlock()

	o.logger.Printf("recording: cancelled %q", name)
	o.bus.Publish(Event{Type: EventStatus, Status: status})
	return status, nil
}

// Status returns a snapshot of the current recording state.
func (o *Orchestrator) Status() protocol.RecordingStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statusLocked("")
}

// State returns the current state.
func (o *Orchestrator) State() protocol.RecordingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// reset must be called with o.mu held.
func (o *Orchestrator) reset() {
	o.session = nil
	o.state = protocol.RecordingIdle
}

// statusLocked must be called with o.mu held.
func (o *Orchestrator) statusLocked(message string) protocol.RecordingStatus {
	status := protocol.RecordingStatus{
		Status:  o.state,
		Message: message,
	}
	s := o.session
	if s == nil {
		if message == "" {
			status.Message = "No recording in progress"
		}
		return status
	}

	status.Name = s.name
	status.Icon = s.icon
	status.ShortcutType = s.shortcutType
	status.RecordedKeysCount = len(s.keys)
	if !s.startedAt.IsZero() {
		started := s.startedAt
		status.StartedAt = &started
	}
	if s.action != nil {
		status.ActionID = s.action.ID
	}
	if message == "" {
		switch o.state {
		case protocol.RecordingPrepared:
			status.Message = fmt.Sprintf("Ready to record %q", s.name)
		case protocol.RecordingRecording:
			status.Message = "Recording"
		case protocol.RecordingCompleted:
			status.Message = fmt.Sprintf("Saved %q with %d keys", s.name, len(s.keys))
		}
	}
	return status
}
