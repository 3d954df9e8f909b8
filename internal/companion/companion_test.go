package companion

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/pairing"
	"github.com/sideassist/sideassist/internal/protocol"
)

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSession_ApplyIgnoresStaleObservations(t *testing.T) {
	s := NewSession(nil)
	s.begin(testTarget, newFakeHost())

	older := s.NextSeq()
	newer := s.NextSeq()

	if !s.Apply(newer, Observation{Connected: true, ConnectedClients: 3}) {
		t.Fatal("newer observation rejected")
	}
	if s.Apply(older, Observation{Connected: false}) {
		t.Error("older observation applied")
	}

	snap := s.Snapshot()
	if snap.State != StateConnected || snap.ConnectedClients != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Target == nil || *snap.Target != testTarget {
		t.Errorf("target = %+v", snap.Target)
	}
}

func TestSession_BeginInvalidatesInFlightProbes(t *testing.T) {
	s := NewSession(nil)
	s.begin(testTarget, newFakeHost())
	stale := s.NextSeq()

	s.begin(testTarget, newFakeHost())
	if s.Apply(stale, Observation{Connected: false}) {
		t.Error("probe from the previous attempt was applied")
	}
	if s.State() != StateConnecting {
		t.Errorf("state = %s, want connecting", s.State())
	}
}

func TestGate_PairSuccess(t *testing.T) {
	host := newFakeHost()
	session := NewSession(nil)
	gate := NewGate(session, dialTo(host), nil)

	var hooked pairing.ConnectionTarget
	gate.OnAuthenticated(func(target pairing.ConnectionTarget) { hooked = target })

	if err := gate.Pair(context.Background(), testTarget); err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if session.State() != StateAuthenticated {
		t.Errorf("state = %s", session.State())
	}
	if host.lastPassword != "12345" {
		t.Errorf("auth password = %q", host.lastPassword)
	}
	if hooked != testTarget {
		t.Errorf("OnAuthenticated target = %+v", hooked)
	}
}

func TestGate_Unreachable(t *testing.T) {
	host := newFakeHost()
	host.healthErr = errors.New("connection refused")
	session := NewSession(nil)
	gate := NewGate(session, dialTo(host), nil)

	ok, err := gate.Connect(context.Background(), testTarget)
	if ok || !apperrors.IsCode(err, apperrors.CodeNetUnreachable) {
		t.Errorf("Connect = (%v, %v)", ok, err)
	}
	if session.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", session.State())
	}
	if host.count("auth") != 0 {
		t.Error("auth attempted against an unreachable host")
	}
}

// racingHost applies a newer observation to session while its own health
// probe is in flight, then fails the probe.
type racingHost struct {
	*fakeHost
	session *Session
}

func (h *racingHost) Health(ctx context.Context) (protocol.HealthResponse, error) {
	h.session.Apply(h.session.NextSeq(), Observation{Connected: true})
	return protocol.HealthResponse{}, errors.New("connection refused")
}

func TestGate_UnreachableAfterNewerObservation(t *testing.T) {
	session := NewSession(nil)
	host := &racingHost{fakeHost: newFakeHost(), session: session}
	gate := NewGate(session, func(pairing.ConnectionTarget) HostAPI { return host }, nil)

	ok, err := gate.Connect(context.Background(), testTarget)
	if ok || !apperrors.IsCode(err, apperrors.CodeNetUnreachable) {
		t.Errorf("Connect = (%v, %v)", ok, err)
	}
	if session.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected after a failed connect", session.State())
	}
}

func TestGate_AuthRejected(t *testing.T) {
	host := newFakeHost()
	host.authErr = apperrors.Unauthorized()
	session := NewSession(nil)
	gate := NewGate(session, dialTo(host), nil)

	err := gate.Pair(context.Background(), testTarget)
	if !apperrors.IsCode(err, apperrors.CodeAuthUnauthorized) {
		t.Fatalf("err = %v", err)
	}
	if session.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", session.State())
	}
	if session.Snapshot().Target != nil {
		t.Error("target kept after rejection")
	}
	if host.count("auth") != 1 {
		t.Errorf("auth called %d times, want exactly 1", host.count("auth"))
	}
}

func TestGate_AuthenticateRequiresConnected(t *testing.T) {
	host := newFakeHost()
	gate := NewGate(NewSession(nil), dialTo(host), nil)

	if err := gate.Authenticate(context.Background(), testTarget, "12345"); err == nil {
		t.Fatal("Authenticate succeeded without Connect")
	}
	if host.total() != 0 {
		t.Errorf("network calls = %d", host.total())
	}
}

func TestDispatcher_NotAuthenticatedMakesNoCalls(t *testing.T) {
	host := newFakeHost()
	session := NewSession(nil)
	d := NewDispatcher(session)
	ctx := context.Background()

	// Connected but not authenticated is still refused.
	gate := NewGate(session, dialTo(host), nil)
	gate.Connect(ctx, testTarget)
	before := host.total()

	for name, call := range map[string]func() error{
		"text":  func() error { return d.SendText(ctx, "hi") },
		"copy":  func() error { return d.Copy(ctx) },
		"paste": func() error { return d.Paste(ctx) },
		"run":   func() error { return d.RunAction(ctx, "a1") },
	} {
		err := call()
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Errorf("%s: err = %v, want ErrNotAuthenticated", name, err)
		}
		if !apperrors.IsCode(err, apperrors.CodeSessionNotAuthenticated) {
			t.Errorf("%s: code = %q", name, apperrors.GetCode(err))
		}
	}
	if host.total() != before {
		t.Errorf("dispatcher made %d network calls", host.total()-before)
	}
}

func TestDispatcher_Sends(t *testing.T) {
	host := newFakeHost()
	session, _ := authenticatedSession(host)
	d := NewDispatcher(session)
	ctx := context.Background()

	if err := d.SendText(ctx, "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if host.lastAction.Type != protocol.ActionText || host.lastAction.Text != "hello" || host.lastPassword != "12345" {
		t.Errorf("input = %+v / %q", host.lastAction, host.lastPassword)
	}

	if err := d.RunAction(ctx, "a1"); err != nil {
		t.Fatalf("RunAction: %v", err)
	}
	if host.lastAction.Type != protocol.ActionCustom || host.lastAction.ActionID != "a1" {
		t.Errorf("input = %+v", host.lastAction)
	}

	d.Copy(ctx)
	d.Paste(ctx)
	if host.count("input") != 2 || host.count("copy") != 1 || host.count("paste") != 1 {
		t.Errorf("calls = %v", host.calls)
	}
}

func TestDispatcher_ExpiredCredentialTearsDown(t *testing.T) {
	host := newFakeHost()
	session, _ := authenticatedSession(host)
	host.inputErr = apperrors.New(apperrors.CodeAuthExpired, "credential expired")

	err := NewDispatcher(session).SendText(context.Background(), "hi")
	if !apperrors.IsCode(err, apperrors.CodeAuthExpired) {
		t.Fatalf("err = %v", err)
	}
	if session.State() != StateDisconnected {
		t.Errorf("state = %s, want disconnected", session.State())
	}
}

func TestMonitor_StartTwiceLeavesOneLoop(t *testing.T) {
	host := newFakeHost()
	session, _ := authenticatedSession(host)
	m := NewMonitor(session, MonitorConfig{Settle: time.Hour, Interval: time.Hour})

	m.Start()
	m.Start()
	if got := m.ActiveLoops(); got != 1 {
		t.Errorf("ActiveLoops = %d, want 1", got)
	}

	m.Stop()
	if got := m.ActiveLoops(); got != 0 {
		t.Errorf("ActiveLoops after Stop = %d", got)
	}
	m.Stop()
}

func TestMonitor_StopWithoutStart(t *testing.T) {
	m := NewMonitor(NewSession(nil), MonitorConfig{})
	m.Stop()
	m.Stop()
	if m.ActiveLoops() != 0 {
		t.Error("loop running without Start")
	}
}

func TestMonitor_LossTearsDownSession(t *testing.T) {
	host := newFakeHost()
	session, _ := authenticatedSession(host)
	m := NewMonitor(session, MonitorConfig{Settle: time.Millisecond, Interval: 5 * time.Millisecond})
	defer m.Stop()

	m.Start()
	waitFor(t, "first poll", func() bool { return host.count("health") >= 2 })
	if session.State() != StateAuthenticated {
		t.Fatalf("state = %s during healthy polling", session.State())
	}

	host.setHealthErr(errors.New("timeout"))
	waitFor(t, "teardown", func() bool { return session.State() == StateDisconnected })
	waitFor(t, "loop exit", func() bool { return m.ActiveLoops() == 0 })

	// No auto reconnect.
	probes := host.count("health")
	time.Sleep(30 * time.Millisecond)
	if host.count("health") != probes {
		t.Error("monitor kept probing after teardown")
	}
}

func TestMonitor_SettleDelaysFirstPoll(t *testing.T) {
	host := newFakeHost()
	session, _ := authenticatedSession(host)
	m := NewMonitor(session, MonitorConfig{Settle: time.Hour, Interval: time.Millisecond})
	defer m.Stop()

	before := host.count("health")
	m.Start()
	time.Sleep(20 * time.Millisecond)
	if host.count("health") != before {
		t.Error("polled before the settle delay elapsed")
	}
}

func TestMonitor_ReconnectDebounced(t *testing.T) {
	host := newFakeHost()
	session, _ := authenticatedSession(host)
	m := NewMonitor(session, MonitorConfig{ReconnectInterval: time.Hour})

	ok, err := m.Reconnect(context.Background())
	if !ok || err != nil {
		t.Fatalf("first Reconnect = (%v, %v)", ok, err)
	}
	probes := host.count("health")

	ok, err = m.Reconnect(context.Background())
	if ok || err != nil {
		t.Errorf("second Reconnect = (%v, %v), want dropped", ok, err)
	}
	if host.count("health") != probes {
		t.Error("debounced reconnect still probed")
	}
}

func TestRecorder_PollsUntilCompleted(t *testing.T) {
	host := newFakeHost()
	host.statuses = []protocol.RecordingState{
		protocol.RecordingPrepared,
		protocol.RecordingRecording,
		protocol.RecordingCompleted,
	}
	session, _ := authenticatedSession(host)
	r := NewRecorder(session, RecorderConfig{Poll: 5 * time.Millisecond})
	defer r.StopPolling()
	ctx := context.Background()

	if _, err := r.Prepare(ctx, "Demo", "keyboard", protocol.ShortcutNormal); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := r.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := r.ActivePollers(); got != 1 {
		t.Errorf("ActivePollers = %d after prepare+start, want 1", got)
	}

	select {
	case ev := <-r.Events():
		if ev.Type != RecordingCompleted {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no completion event")
	}

	if host.count("acknowledge") != 1 {
		t.Errorf("acknowledge called %d times", host.count("acknowledge"))
	}
	actions := r.Actions()
	if len(actions) != 1 || actions[0].ID != "new" {
		t.Errorf("actions after completion = %+v", actions)
	}
	waitFor(t, "poller exit", func() bool { return r.ActivePollers() == 0 })
}

func TestRecorder_CancelStopsPolling(t *testing.T) {
	host := newFakeHost()
	host.statuses = []protocol.RecordingState{protocol.RecordingPrepared}
	session, _ := authenticatedSession(host)
	r := NewRecorder(session, RecorderConfig{Poll: 5 * time.Millisecond})
	ctx := context.Background()

	r.Prepare(ctx, "Demo", "keyboard", protocol.ShortcutNormal)
	waitFor(t, "polling", func() bool { return host.count("status") > 0 })

	if _, err := r.Cancel(ctx); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if r.ActivePollers() != 0 {
		t.Errorf("ActivePollers = %d after Cancel", r.ActivePollers())
	}
	if host.count("cancel") != 1 {
		t.Errorf("cancel called %d times", host.count("cancel"))
	}
}

func TestRecorder_AbandonedWhenHostIdle(t *testing.T) {
	host := newFakeHost()
	host.statuses = []protocol.RecordingState{protocol.RecordingIdle}
	session, _ := authenticatedSession(host)
	r := NewRecorder(session, RecorderConfig{Poll: 5 * time.Millisecond})
	defer r.StopPolling()

	r.Prepare(context.Background(), "Demo", "", "")

	select {
	case ev := <-r.Events():
		if ev.Type != RecordingAbandoned {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no abandoned event")
	}
}

func TestRecorder_RequiresAuthentication(t *testing.T) {
	r := NewRecorder(NewSession(nil), RecorderConfig{})
	if _, err := r.Prepare(context.Background(), "x", "", ""); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("err = %v", err)
	}
	if r.ActivePollers() != 0 {
		t.Error("poller started without a session")
	}
}

func TestCompanion_PairPayload(t *testing.T) {
	host := newFakeHost()
	host.actions = []protocol.CustomAction{{ID: "a1", Name: "Save"}}

	c := New(Config{
		Dial:    dialTo(host),
		Monitor: MonitorConfig{Settle: time.Hour, Interval: time.Hour},
	})
	defer c.Disconnect()

	ran, err := c.PairPayload(context.Background(), "sideassist://connect?ip=10.0.0.5&port=9090&password=12345")
	if !ran || err != nil {
		t.Fatalf("PairPayload = (%v, %v)", ran, err)
	}
	if c.Session.State() != StateAuthenticated {
		t.Errorf("state = %s", c.Session.State())
	}
	if c.Monitor.ActiveLoops() != 1 {
		t.Errorf("ActiveLoops = %d, want 1", c.Monitor.ActiveLoops())
	}
	if len(c.Recorder.Actions()) != 1 {
		t.Errorf("actions not loaded: %+v", c.Recorder.Actions())
	}

	// Re-pairing restarts rather than duplicates the monitor.
	if err := c.PairFields(context.Background(), "10.0.0.5", "9090", "12345"); err != nil {
		t.Fatalf("PairFields: %v", err)
	}
	if c.Monitor.ActiveLoops() != 1 {
		t.Errorf("ActiveLoops after re-pair = %d, want 1", c.Monitor.ActiveLoops())
	}

	c.Disconnect()
	if c.Monitor.ActiveLoops() != 0 || c.Session.State() != StateDisconnected {
		t.Errorf("after Disconnect: loops=%d state=%s", c.Monitor.ActiveLoops(), c.Session.State())
	}
}

func TestCompanion_NewHandshakeStopsLoops(t *testing.T) {
	hostA := newFakeHost()
	hostA.statuses = []protocol.RecordingState{protocol.RecordingPrepared}
	hostB := newFakeHost()
	targetB := pairing.ConnectionTarget{Address: "10.0.0.6", Port: 9090, Secret: "12345"}

	c := New(Config{
		Dial: func(target pairing.ConnectionTarget) HostAPI {
			if target == targetB {
				return hostB
			}
			return hostA
		},
		Monitor:  MonitorConfig{Settle: time.Millisecond, Interval: 5 * time.Millisecond},
		Recorder: RecorderConfig{Poll: time.Millisecond},
	})
	defer c.Disconnect()

	if err := c.PairFields(context.Background(), "10.0.0.5", "9090", "12345"); err != nil {
		t.Fatalf("PairFields: %v", err)
	}
	if _, err := c.Recorder.Prepare(context.Background(), "Demo", "keyboard", protocol.ShortcutNormal); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	waitFor(t, "monitor polls", func() bool { return hostA.count("health") > 2 })

	ok, err := c.Gate.Connect(context.Background(), targetB)
	if !ok || err != nil {
		t.Fatalf("Connect = (%v, %v)", ok, err)
	}
	if c.Monitor.ActiveLoops() != 0 {
		t.Errorf("ActiveLoops = %d, want 0 before authentication", c.Monitor.ActiveLoops())
	}
	if c.Recorder.ActivePollers() != 0 {
		t.Errorf("ActivePollers = %d, want 0 before authentication", c.Recorder.ActivePollers())
	}

	polledA, polledB := hostA.count("health"), hostB.count("health")
	time.Sleep(50 * time.Millisecond)
	if c.Session.State() != StateConnected {
		t.Errorf("state = %s, want connected", c.Session.State())
	}
	if got := hostA.count("health"); got != polledA {
		t.Errorf("old host probed %d more time(s) after the new handshake began", got-polledA)
	}
	if got := hostB.count("health"); got != polledB {
		t.Errorf("unauthenticated host probed %d more time(s)", got-polledB)
	}

	if err := c.Gate.Authenticate(context.Background(), targetB, targetB.Secret); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if c.Monitor.ActiveLoops() != 1 {
		t.Errorf("ActiveLoops after authentication = %d, want 1", c.Monitor.ActiveLoops())
	}
}

func TestCompanion_MalformedPayloadNoNetwork(t *testing.T) {
	host := newFakeHost()
	c := New(Config{Dial: dialTo(host)})

	ran, err := c.PairPayload(context.Background(), "sideassist://connect?ip=10.0.0.5&port=70000&password=12345")
	if ran || !errors.Is(err, pairing.ErrMalformedPayload) {
		t.Errorf("PairPayload = (%v, %v)", ran, err)
	}
	if host.total() != 0 {
		t.Errorf("network calls = %d", host.total())
	}
}
