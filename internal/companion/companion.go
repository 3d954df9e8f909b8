package companion

import (
	"context"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/sideassist/sideassist/internal/hostclient"
	"github.com/sideassist/sideassist/internal/pairing"
)

// Config wires a Companion.
type Config struct {
	// ProbeTimeout bounds every request. Default: hostclient.DefaultTimeout.
	ProbeTimeout time.Duration

	// ClientID is sent on health probes. Default: generated per Companion.
	ClientID string

	Monitor  MonitorConfig
	Recorder RecorderConfig
	Resolver pairing.ResolverConfig

	// Dial overrides how host clients are created.
	Dial DialFunc

	// Logger receives runtime events. Nil discards.
	Logger *log.Logger
}

// Companion is the full companion runtime.
type Companion struct {
	Session    *Session
	Resolver   *pairing.Resolver
	Gate       *Gate
	Monitor    *Monitor
	Dispatcher *Dispatcher
	Recorder   *Recorder

	logger *log.Logger
}

// New wires a Companion. Successful pairing starts the monitor and loads the
// custom action list.
func New(config Config) *Companion {
	logger := config.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if config.Monitor.Logger == nil {
		config.Monitor.Logger = logger
	}
	if config.Recorder.Logger == nil {
		config.Recorder.Logger = logger
	}
	if config.Resolver.Logger == nil {
		config.Resolver.Logger = logger
	}

	dial := config.Dial
	if dial == nil {
		opts := hostclient.Options{Timeout: config.ProbeTimeout, ClientID: config.ClientID}
		if opts.ClientID == "" {
			// One id for the life of the runtime so the host counts us once.
			opts.ClientID = "companion-" + uuid.NewString()
		}
		dial = func(target pairing.ConnectionTarget) HostAPI {
			return hostclient.New(target.BaseURL(), opts)
		}
	}

	session := NewSession(logger)
	c := &Companion{
		Session:    session,
		Resolver:   pairing.NewResolver(config.Resolver),
		Gate:       NewGate(session, dial, logger),
		Monitor:    NewMonitor(session, config.Monitor),
		Dispatcher: NewDispatcher(session),
		Recorder:   NewRecorder(session, config.Recorder),
		logger:     logger,
	}

	c.Gate.OnBegin(func() {
		c.Monitor.Stop()
		c.Recorder.StopPolling()
	})
	c.Gate.OnAuthenticated(func(target pairing.ConnectionTarget) {
		c.Monitor.Start()
	})
	return c
}

// PairPayload pairs using a scanned or deep-linked payload. It reports
// whether the payload was admitted (duplicates and overlapping submissions
// are dropped).
func (c *Companion) PairPayload(ctx context.Context, raw string) (bool, error) {
	ran, err := c.Resolver.Submit(ctx, raw, c.Gate.Pair)
	if ran && err == nil {
		c.loadActions(ctx)
	}
	return ran, err
}

// PairFields pairs using manually entered fields. Typed input is never a
// scanner duplicate, so it bypasses the resolver.
func (c *Companion) PairFields(ctx context.Context, ip, port, password string) error {
	target, err := pairing.FromFields(ip, port, password)
	if err != nil {
		return err
	}
	if err := c.Gate.Pair(ctx, target); err != nil {
		return err
	}
	c.loadActions(ctx)
	return nil
}

func (c *Companion) loadActions(ctx context.Context) {
	if _, err := c.Recorder.RefreshActions(ctx); err != nil {
		c.logger.Printf("companion: loading custom actions failed: %v", err)
	}
}

// Disconnect stops background loops and tears the session down.
func (c *Companion) Disconnect() {
	c.Monitor.Stop()
	c.Recorder.StopPolling()
	c.Session.Disconnect()
}
