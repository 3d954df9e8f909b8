// Package companion is the companion-side runtime: it pairs with a host,
// keeps a live view of the connection, dispatches remote actions and drives
// the recording protocol. A UI embeds it; the CLI drives it from a terminal.
package companion

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/pairing"
	"github.com/sideassist/sideassist/internal/protocol"
)

// HostAPI is the subset of the host client the companion uses.
type HostAPI interface {
	Health(ctx context.Context) (protocol.HealthResponse, error)
	Auth(ctx context.Context, password string) error
	Input(ctx context.Context, action protocol.Action, password string) error
	Copy(ctx context.Context, password string) error
	Paste(ctx context.Context, password string) error
	ListActions(ctx context.Context) ([]protocol.CustomAction, error)
	RecordingStatus(ctx context.Context) (protocol.RecordingStatus, error)
	PrepareRecording(ctx context.Context, name, icon, shortcutType, password string) (protocol.RecordingStatus, error)
	StartRecording(ctx context.Context, password string) (protocol.RecordingStatus, error)
	StopRecording(ctx context.Context, password string) (protocol.RecordingStatus, error)
	CancelRecording(ctx context.Context, password string) (protocol.RecordingStatus, error)
	AcknowledgeRecording(ctx context.Context, password string) (protocol.RecordingStatus, error)
}

// State is the companion's view of its connection.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateAuthenticated State = "authenticated"
)

// ErrNotAuthenticated is wrapped by every call refused for lack of an
// authenticated session.
var ErrNotAuthenticated = errors.New("session is not authenticated")

func notAuthenticated() error {
	return apperrors.Wrap(apperrors.CodeSessionNotAuthenticated, "pair with the host first", ErrNotAuthenticated)
}

// Snapshot is a copy of the session's observable fields.
type Snapshot struct {
	State            State
	Target           *pairing.ConnectionTarget
	ConnectedClients int
}

// Observation is the result of one liveness probe.
type Observation struct {
	Connected        bool
	ConnectedClients int
}

// Session is the single source of truth for the companion's connection.
// Probes take a sequence number before sending and report back through
// Apply, which ignores results older than the newest one applied, so a
// slow response can never overwrite a newer one.
type Session struct {
	mu sync.Mutex

	state   State
	target  *pairing.ConnectionTarget
	secret  string
	client  HostAPI
	clients int

	nextSeq uint64
	applied uint64

	// attempt identifies the connection attempt that owns the session.
	attempt uint64

	logger *log.Logger
}

// NewSession creates a disconnected session. If logger is nil, logs are
// discarded.
func NewSession(logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{state: StateDisconnected, logger: logger}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the session fields.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state, ConnectedClients: s.clients}
	if s.target != nil {
		t := *s.target
		snap.Target = &t
	}
	return snap
}

// NextSeq reserves the sequence number for a probe about to be sent.
func (s *Session) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSeq++
	return s.nextSeq
}

// Apply folds a probe result into the session. It reports whether the
// observation was newer than every previously applied one.
func (s *Session) Apply(seq uint64, obs Observation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq <= s.applied {
		return false
	}
	s.applied = seq

	if s.state == StateDisconnected {
		return true
	}
	if !obs.Connected {
		s.logger.Printf("companion: lost connection to %s", s.target.HostPort())
		s.resetLocked()
		return true
	}

	s.clients = obs.ConnectedClients
	if s.state == StateConnecting {
		s.state = StateConnected
	}
	return true
}

// begin starts a new connection attempt, discarding any previous one and
// invalidating its in-flight probes. The returned id is passed to release.
func (s *Session) begin(target pairing.ConnectionTarget, client HostAPI) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	s.applied = s.nextSeq
	s.attempt++
	s.state = StateConnecting
	s.target = &target
	s.client = client
	return s.attempt
}

// release tears the session down if attempt still owns it.
func (s *Session) release(attempt uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attempt == attempt {
		s.resetLocked()
	}
}

// authenticated marks the session authenticated if it is still connected to
// target.
func (s *Session) authenticated(target pairing.ConnectionTarget, secret string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.target == nil || *s.target != target {
		return false
	}
	s.state = StateAuthenticated
	s.secret = secret
	return true
}

// credentials returns the client and secret of an authenticated session.
func (s *Session) credentials() (HostAPI, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return nil, "", notAuthenticated()
	}
	return s.client, s.secret, nil
}

// current returns the client of any live session.
func (s *Session) current() (HostAPI, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDisconnected {
		return nil, false
	}
	return s.client, true
}

// Disconnect tears the session down.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Session) resetLocked() {
	s.state = StateDisconnected
	s.target = nil
	s.secret = ""
	s.client = nil
	s.clients = 0
}
