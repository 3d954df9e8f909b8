package pairing

import (
	"context"
	"io"
	"log"
	"sync"
	"time"
)

// DefaultDuplicateWindow drops a re-scan of the same payload arriving within
// this long of the previous acceptance.
const DefaultDuplicateWindow = 3 * time.Second

// AttemptFunc runs the handshake for an accepted target.
type AttemptFunc func(ctx context.Context, target ConnectionTarget) error

// ResolverConfig holds Resolver settings.
type ResolverConfig struct {
	// Scheme is the only payload scheme accepted. Default: DefaultScheme.
	Scheme string

	// DuplicateWindow defaults to DefaultDuplicateWindow.
	DuplicateWindow time.Duration

	// TimeNow returns the current time. Default: time.Now.
	TimeNow func() time.Time

	// Logger receives dropped submissions. Nil discards.
	Logger *log.Logger
}

// Resolver admits at most one pairing handshake at a time. Camera scanners
// and deep-link handlers deliver the same payload several times in a burst;
// only the first reaches the handshake.
type Resolver struct {
	mu      sync.Mutex
	busy    bool
	lastRaw string
	lastAt  time.Time
	scheme  string
	window  time.Duration
	now     func() time.Time
	logger  *log.Logger
}

// NewResolver creates a resolver.
func NewResolver(config ResolverConfig) *Resolver {
	if config.DuplicateWindow == 0 {
		config.DuplicateWindow = DefaultDuplicateWindow
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.Scheme == "" {
		config.Scheme = DefaultScheme
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Resolver{
		scheme: config.Scheme,
		window: config.DuplicateWindow,
		now:    config.TimeNow,
		logger: logger,
	}
}

// Submit validates raw and, if admitted, runs attempt with the resolved
// target. It reports whether attempt ran; the error is attempt's result or
// the validation failure. Payloads arriving while an attempt is running, or
// repeating the last accepted payload within the duplicate window, are
// dropped with (false, nil).
func (r *Resolver) Submit(ctx context.Context, raw string, attempt AttemptFunc) (bool, error) {
	target, err := ParsePayload(r.scheme, raw)
	if err != nil {
		return false, err
	}
	key := clean(raw)

	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		r.logger.Printf("pairing: dropped payload for %s, handshake in progress", target.HostPort())
		return false, nil
	}
	now := r.now()
	if key == r.lastRaw && now.Sub(r.lastAt) < r.window {
		r.mu.Unlock()
		r.logger.Printf("pairing: dropped duplicate payload for %s", target.HostPort())
		return false, nil
	}
	r.busy = true
	r.lastRaw = key
	r.lastAt = now
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	return true, attempt(ctx, target)
}

// Busy reports whether a handshake is running.
func (r *Resolver) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy
}
