package companion

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultMonitorSettle     = 10 * time.Second
	DefaultMonitorInterval   = 10 * time.Second
	DefaultReconnectInterval = 2 * time.Second
)

// MonitorConfig holds Monitor settings.
type MonitorConfig struct {
	// Settle delays the first poll after authentication. Default: 10s.
	Settle time.Duration

	// Interval is the poll period. Default: 10s.
	Interval time.Duration

	// ReconnectInterval is the minimum spacing of manual reconnects.
	// Default: 2s.
	ReconnectInterval time.Duration

	// Logger receives state changes. Nil discards.
	Logger *log.Logger
}

// Monitor polls the host's health endpoint while the session is
// authenticated. A failed poll tears the session down; the monitor never
// reconnects on its own.
//
// At most one poll loop exists: Start replaces a running loop and Stop
// waits for it to exit.
type Monitor struct {
	session  *Session
	settle   time.Duration
	interval time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	active int32
}

// NewMonitor creates a stopped monitor.
func NewMonitor(session *Session, config MonitorConfig) *Monitor {
	if config.Settle == 0 {
		config.Settle = DefaultMonitorSettle
	}
	if config.Interval == 0 {
		config.Interval = DefaultMonitorInterval
	}
	if config.ReconnectInterval == 0 {
		config.ReconnectInterval = DefaultReconnectInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Monitor{
		session:  session,
		settle:   config.Settle,
		interval: config.Interval,
		limiter:  rate.NewLimiter(rate.Every(config.ReconnectInterval), 1),
		logger:   logger,
	}
}

// Start begins polling, replacing any running loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	atomic.AddInt32(&m.active, 1)
	go m.run(ctx, done)
}

// Stop cancels the poll loop and waits for it to exit. It is safe to call
// when nothing is running.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.done = nil
}

// ActiveLoops returns the number of running poll loops.
func (m *Monitor) ActiveLoops() int {
	return int(atomic.LoadInt32(&m.active))
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer atomic.AddInt32(&m.active, -1)

	settle := time.NewTimer(m.settle)
	defer settle.Stop()

	select {
	case <-ctx.Done():
		return
	case <-settle.C:
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if !m.probe(ctx) {
			m.logger.Printf("companion: monitor stopped, session %s", m.session.State())
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// probe runs one health check and reports whether the session is still
// authenticated. An unauthenticated session ends the loop.
func (m *Monitor) probe(ctx context.Context) bool {
	client, _, err := m.session.credentials()
	if err != nil {
		return false
	}

	seq := m.session.NextSeq()
	health, err := client.Health(ctx)
	if ctx.Err() != nil {
		// Cancelled mid-probe; the result says nothing about the host.
		return false
	}
	if err != nil {
		m.session.Apply(seq, Observation{Connected: false})
	} else {
		m.session.Apply(seq, Observation{Connected: true, ConnectedClients: health.ConnectedClients})
	}
	return m.session.State() == StateAuthenticated
}

// Reconnect re-probes the current host once, for example when the app
// returns to the foreground. Calls closer together than the reconnect
// interval are dropped and report false with no error.
func (m *Monitor) Reconnect(ctx context.Context) (bool, error) {
	if !m.limiter.Allow() {
		return false, nil
	}
	client, ok := m.session.current()
	if !ok {
		return false, notAuthenticated()
	}

	seq := m.session.NextSeq()
	health, err := client.Health(ctx)
	if err != nil {
		m.session.Apply(seq, Observation{Connected: false})
		return false, err
	}
	m.session.Apply(seq, Observation{Connected: true, ConnectedClients: health.ConnectedClients})
	return true, nil
}
