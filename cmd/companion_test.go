package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sideassist/sideassist/internal/protocol"
)

func hostArgs(h *testHost, password string) []string {
	return []string{"--ip", "127.0.0.1", "--port", h.port(), "--password", password}
}

func TestSendText_TypesOnHost(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)

	var stdout, stderr bytes.Buffer
	args := append([]string{"text"}, hostArgs(h, "12345")...)
	args = append(args, "hello", "world")
	code := runSend(args, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	ops := h.injector.Ops()
	if len(ops) != 1 || ops[0] != "type hello world" {
		t.Errorf("ops = %v, want [type hello world]", ops)
	}
}

func TestSendRun_ReplaysAction(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)
	h.saveAction(t, "a1", "Save file")

	var stdout, stderr bytes.Buffer
	args := append([]string{"run"}, hostArgs(h, "12345")...)
	args = append(args, "a1")
	if code := runSend(args, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}

	if len(h.injector.Ops()) == 0 {
		t.Error("running an action should inject keys")
	}
	got, _ := h.store.GetAction("a1")
	if got.RunCount != 1 {
		t.Errorf("RunCount = %d, want 1", got.RunCount)
	}
}

func TestSendRun_MissingAction(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)

	var stdout, stderr bytes.Buffer
	args := append([]string{"run"}, hostArgs(h, "12345")...)
	args = append(args, "nope")
	if code := runSend(args, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "action.not_found") {
		t.Errorf("stderr = %q, want action.not_found", stderr.String())
	}
	if !strings.Contains(stderr.String(), "Hint:") {
		t.Errorf("stderr = %q, want a hint", stderr.String())
	}
}

func TestSend_WrongPasswordNeverDispatches(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)

	var stdout, stderr bytes.Buffer
	args := append([]string{"paste"}, hostArgs(h, "99999")...)
	if code := runSend(args, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "auth.unauthorized") {
		t.Errorf("stderr = %q, want auth.unauthorized", stderr.String())
	}
	if ops := h.injector.Ops(); len(ops) != 0 {
		t.Errorf("ops = %v, want none", ops)
	}
}

func TestSend_ByPayload(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)

	payload := "sideassist://connect?ip=127.0.0.1&port=" + h.port() + "&password=12345"

	var stdout, stderr bytes.Buffer
	if code := runSend([]string{"copy", "--payload", payload}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}
	if len(h.injector.Ops()) == 0 {
		t.Error("copy should press the clipboard chord")
	}
}

func TestSend_Usage(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	tests := []struct {
		name string
		args []string
	}{
		{"no kind", nil},
		{"unknown kind", []string{"fax"}},
		{"text without text", []string{"text", "--ip", "127.0.0.1"}},
		{"run without id", []string{"run", "--ip", "127.0.0.1"}},
		{"no host", []string{"copy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := runSend(tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
		})
	}
}

func TestConnect_MalformedPayload(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	code := runConnect([]string{"sideassist://connect?ip=999.1.1.1&port=80&password=12345"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "pairing.malformed_payload") {
		t.Errorf("stderr = %q, want pairing.malformed_payload", stderr.String())
	}
}

func TestConnect_Unreachable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	// Port 1 on loopback refuses connections.
	code := runConnect([]string{"--ip", "127.0.0.1", "--port", "1", "--password", "12345"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "net.unreachable") {
		t.Errorf("stderr = %q, want net.unreachable", stderr.String())
	}
}

func TestRecord_RequiresName(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runRecord([]string{"--ip", "127.0.0.1"}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "--name is required") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

// withStdin replaces the command input for the duration of the test.
func withStdin(t *testing.T, r io.Reader) {
	t.Helper()
	prev := stdin
	stdin = r
	t.Cleanup(func() { stdin = prev })
}

// reachState polls the host recorder until it reaches want or gives up.
func reachState(h *testHost, want protocol.RecordingState) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if h.recorder.State() == want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestRecord_SavesAction(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)

	pr, pw := io.Pipe()
	withStdin(t, pr)

	go func() {
		if reachState(h, protocol.RecordingRecording) {
			h.recorder.Capture("ctrl", protocol.EventPress, nil)
			h.recorder.Capture("s", protocol.EventPress, []string{"ctrl"})
		}
		pw.Write([]byte("\n"))
	}()

	var stdout, stderr bytes.Buffer
	args := append([]string{"--name", "Save", "--wait", "10s"}, hostArgs(h, "12345")...)
	code := runRecord(args, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %q, stdout = %q", code, stderr.String(), stdout.String())
	}
	if !strings.Contains(stdout.String(), `Saved custom action "Save"`) {
		t.Errorf("stdout = %q", stdout.String())
	}

	actions, err := h.store.ListActions()
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(actions) != 1 || actions[0].Name != "Save" || len(actions[0].KeySequence) != 2 {
		t.Errorf("actions = %+v", actions)
	}
	if h.recorder.State() != protocol.RecordingIdle {
		t.Errorf("host recorder = %s, want idle after acknowledge", h.recorder.State())
	}
}

func TestRecord_Cancel(t *testing.T) {
	h := newTestHost(t)
	h.issue(t)

	withStdin(t, strings.NewReader("cancel\n"))

	var stdout, stderr bytes.Buffer
	args := append([]string{"--name", "Scratch"}, hostArgs(h, "12345")...)
	if code := runRecord(args, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr = %q", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Recording discarded") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if h.recorder.State() != protocol.RecordingIdle {
		t.Errorf("host recorder = %s, want idle", h.recorder.State())
	}
	if n, _ := h.store.CountActions(); n != 0 {
		t.Errorf("CountActions = %d, want 0", n)
	}
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	writeEvent(&buf, protocol.Envelope{
		Type:      protocol.MessageTypeClientsChanged,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local).UnixMilli(),
		Payload:   []byte(`{"count":2}`),
	})
	want := "[12:00:00] clients.changed {\"count\":2}\n"
	if buf.String() != want {
		t.Errorf("writeEvent = %q, want %q", buf.String(), want)
	}
}
