package companion

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sideassist/sideassist/internal/protocol"
)

// DefaultRecordingPoll is how often the recorder polls the host while a
// recording is in flight.
const DefaultRecordingPoll = 750 * time.Millisecond

// RecordingEventType distinguishes recorder events.
type RecordingEventType string

const (
	// RecordingCompleted fires once the host reports completion and the
	// recording has been acknowledged.
	RecordingCompleted RecordingEventType = "completed"

	// RecordingAbandoned fires when the host returns to idle without
	// completing (cancelled elsewhere or host restarted).
	RecordingAbandoned RecordingEventType = "abandoned"
)

// RecordingEvent reports the end of a recording.
type RecordingEvent struct {
	Type   RecordingEventType
	Status protocol.RecordingStatus
}

// RecorderConfig holds Recorder settings.
type RecorderConfig struct {
	// Poll is the status poll period. Default: 750ms.
	Poll time.Duration

	// Logger receives poll errors. Nil discards.
	Logger *log.Logger
}

// Recorder drives the host's recording protocol. The companion cannot
// observe host-side key events, so after prepare or start it polls the
// host's status until the recording completes, then acknowledges it,
// refreshes the action list and publishes a RecordingEvent.
type Recorder struct {
	session *Session
	poll    time.Duration
	logger  *log.Logger
	events  chan RecordingEvent

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	actionsMu sync.RWMutex
	actions   []protocol.CustomAction

	active int32
}

// NewRecorder creates an idle recorder.
func NewRecorder(session *Session, config RecorderConfig) *Recorder {
	if config.Poll == 0 {
		config.Poll = DefaultRecordingPoll
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Recorder{
		session: session,
		poll:    config.Poll,
		logger:  logger,
		events:  make(chan RecordingEvent, 8),
	}
}

// Events returns the channel recorder events are published on. Events are
// dropped if the channel is full.
func (r *Recorder) Events() <-chan RecordingEvent {
	return r.events
}

// Prepare asks the host to prepare a recording and starts polling.
func (r *Recorder) Prepare(ctx context.Context, name, icon, shortcutType string) (protocol.RecordingStatus, error) {
	client, secret, err := r.session.credentials()
	if err != nil {
		return protocol.RecordingStatus{}, err
	}
	status, err := client.PrepareRecording(ctx, name, icon, shortcutType, secret)
	if err != nil {
		return status, err
	}
	r.startPolling()
	return status, nil
}

// Start asks the host to begin capturing and makes sure polling runs.
func (r *Recorder) Start(ctx context.Context) (protocol.RecordingStatus, error) {
	client, secret, err := r.session.credentials()
	if err != nil {
		return protocol.RecordingStatus{}, err
	}
	status, err := client.StartRecording(ctx, secret)
	if err != nil {
		return status, err
	}
	r.startPolling()
	return status, nil
}

// Stop asks the host to finish capturing. The poller observes completion.
func (r *Recorder) Stop(ctx context.Context) (protocol.RecordingStatus, error) {
	client, secret, err := r.session.credentials()
	if err != nil {
		return protocol.RecordingStatus{}, err
	}
	return client.StopRecording(ctx, secret)
}

// Cancel stops polling and discards the host's recording.
func (r *Recorder) Cancel(ctx context.Context) (protocol.RecordingStatus, error) {
	r.StopPolling()

	client, secret, err := r.session.credentials()
	if err != nil {
		return protocol.RecordingStatus{}, err
	}
	return client.CancelRecording(ctx, secret)
}

// Actions returns the last fetched custom action list.
func (r *Recorder) Actions() []protocol.CustomAction {
	r.actionsMu.RLock()
	defer r.actionsMu.RUnlock()
	out := make([]protocol.CustomAction, len(r.actions))
	copy(out, r.actions)
	return out
}

// RefreshActions fetches the custom action list from the host.
func (r *Recorder) RefreshActions(ctx context.Context) ([]protocol.CustomAction, error) {
	client, _, err := r.session.credentials()
	if err != nil {
		return nil, err
	}
	actions, err := client.ListActions(ctx)
	if err != nil {
		return nil, err
	}
	r.actionsMu.Lock()
	r.actions = actions
	r.actionsMu.Unlock()
	return actions, nil
}

// ActivePollers returns the number of running poll loops.
func (r *Recorder) ActivePollers() int {
	return int(atomic.LoadInt32(&r.active))
}

// startPolling starts the poller unless one is already running.
func (r *Recorder) startPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		select {
		case <-r.done:
			// Previous loop finished on its own.
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	atomic.AddInt32(&r.active, 1)
	go r.run(ctx, done)
}

// StopPolling cancels the poller and waits for it to exit. It is safe to
// call when nothing is running.
func (r *Recorder) StopPolling() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel = nil
	r.done = nil
}

func (r *Recorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer atomic.AddInt32(&r.active, -1)

	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		client, secret, err := r.session.credentials()
		if err != nil {
			return
		}

		status, err := client.RecordingStatus(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Printf("companion: recording status poll failed: %v", err)
			continue
		}

		switch status.Status {
		case protocol.RecordingCompleted:
			if _, err := client.AcknowledgeRecording(ctx, secret); err != nil {
				r.logger.Printf("companion: acknowledge failed: %v", err)
				continue
			}
			if _, err := r.RefreshActions(ctx); err != nil {
				r.logger.Printf("companion: refresh actions failed: %v", err)
			}
			r.publish(RecordingEvent{Type: RecordingCompleted, Status: status})
			return

		case protocol.RecordingIdle:
			r.publish(RecordingEvent{Type: RecordingAbandoned, Status: status})
			return
		}
	}
}

func (r *Recorder) publish(ev RecordingEvent) {
	select {
	case r.events <- ev:
	default:
		r.logger.Printf("companion: recording event %s dropped", ev.Type)
	}
}
