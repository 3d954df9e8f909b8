package companion

import (
	"context"
	"sync"

	"github.com/sideassist/sideassist/internal/pairing"
	"github.com/sideassist/sideassist/internal/protocol"
)

// fakeHost is an in-memory HostAPI that counts every call.
type fakeHost struct {
	mu sync.Mutex

	healthErr error
	authErr   error
	inputErr  error
	clients   int
	password  string

	statuses []protocol.RecordingState
	actions  []protocol.CustomAction

	calls        map[string]int
	lastAction   protocol.Action
	lastPassword string
}

func newFakeHost() *fakeHost {
	return &fakeHost{password: "12345", clients: 1, calls: make(map[string]int)}
}

func (h *fakeHost) record(name string) {
	h.calls[name]++
}

func (h *fakeHost) count(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[name]
}

func (h *fakeHost) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		n += c
	}
	return n
}

func (h *fakeHost) setHealthErr(err error) {
	h.mu.Lock()
	h.healthErr = err
	h.mu.Unlock()
}

func (h *fakeHost) Health(ctx context.Context) (protocol.HealthResponse, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("health")
	if h.healthErr != nil {
		return protocol.HealthResponse{}, h.healthErr
	}
	return protocol.HealthResponse{Status: "ok", Service: protocol.ServiceName, ConnectedClients: h.clients}, nil
}

func (h *fakeHost) Auth(ctx context.Context, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("auth")
	h.lastPassword = password
	return h.authErr
}

func (h *fakeHost) Input(ctx context.Context, action protocol.Action, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("input")
	h.lastAction = action
	h.lastPassword = password
	return h.inputErr
}

func (h *fakeHost) Copy(ctx context.Context, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("copy")
	return nil
}

func (h *fakeHost) Paste(ctx context.Context, password string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("paste")
	return nil
}

func (h *fakeHost) ListActions(ctx context.Context) ([]protocol.CustomAction, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("list")
	return h.actions, nil
}

// RecordingStatus pops the next scripted state; the last one repeats.
func (h *fakeHost) RecordingStatus(ctx context.Context) (protocol.RecordingStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("status")
	if len(h.statuses) == 0 {
		return protocol.RecordingStatus{Status: protocol.RecordingIdle}, nil
	}
	state := h.statuses[0]
	if len(h.statuses) > 1 {
		h.statuses = h.statuses[1:]
	}
	return protocol.RecordingStatus{Status: state, Name: "Demo"}, nil
}

func (h *fakeHost) PrepareRecording(ctx context.Context, name, icon, shortcutType, password string) (protocol.RecordingStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("prepare")
	return protocol.RecordingStatus{Status: protocol.RecordingPrepared, Name: name}, nil
}

func (h *fakeHost) StartRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("start")
	return protocol.RecordingStatus{Status: protocol.RecordingRecording}, nil
}

func (h *fakeHost) StopRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("stop")
	return protocol.RecordingStatus{Status: protocol.RecordingCompleted}, nil
}

func (h *fakeHost) CancelRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("cancel")
	return protocol.RecordingStatus{Status: protocol.RecordingIdle}, nil
}

func (h *fakeHost) AcknowledgeRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record("acknowledge")
	h.actions = append(h.actions, protocol.CustomAction{ID: "new", Name: "Demo"})
	return protocol.RecordingStatus{Status: protocol.RecordingIdle}, nil
}

var testTarget = pairing.ConnectionTarget{Address: "10.0.0.5", Port: 9090, Secret: "12345"}

func dialTo(h *fakeHost) DialFunc {
	return func(pairing.ConnectionTarget) HostAPI { return h }
}

// authenticatedSession pairs a session with h through a gate.
func authenticatedSession(h *fakeHost) (*Session, *Gate) {
	session := NewSession(nil)
	gate := NewGate(session, dialTo(h), nil)
	if err := gate.Pair(context.Background(), testTarget); err != nil {
		panic(err)
	}
	return session, gate
}
