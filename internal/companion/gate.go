package companion

import (
	"context"
	"io"
	"log"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/pairing"
)

// DialFunc creates a host client for target.
type DialFunc func(target pairing.ConnectionTarget) HostAPI

// Gate performs the connect-then-authenticate handshake and drives the
// session through it:
//
//	Disconnected -> Connecting -> Connected -> Authenticated
//
// An unreachable host or a rejected secret returns the session to
// Disconnected. Nothing is retried automatically.
type Gate struct {
	session *Session
	dial    DialFunc
	logger  *log.Logger

	// onBegin runs before a handshake replaces the session (may be nil).
	onBegin func()

	// onAuthenticated runs after a successful handshake (may be nil).
	onAuthenticated func(target pairing.ConnectionTarget)
}

// NewGate creates a gate. If logger is nil, logs are discarded.
func NewGate(session *Session, dial DialFunc, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Gate{session: session, dial: dial, logger: logger}
}

// OnBegin registers a callback run before every handshake tears the
// previous session down. Loops bound to the old session stop here.
func (g *Gate) OnBegin(fn func()) {
	g.onBegin = fn
}

// OnAuthenticated registers a callback run after every successful handshake.
func (g *Gate) OnAuthenticated(fn func(target pairing.ConnectionTarget)) {
	g.onAuthenticated = fn
}

// Connect probes target's health endpoint. It reports reachability only.
func (g *Gate) Connect(ctx context.Context, target pairing.ConnectionTarget) (bool, error) {
	if g.onBegin != nil {
		g.onBegin()
	}
	client := g.dial(target)
	attempt := g.session.begin(target, client)

	seq := g.session.NextSeq()
	health, err := client.Health(ctx)
	if err != nil {
		if !g.session.Apply(seq, Observation{Connected: false}) {
			// A newer observation was applied first; drop this attempt anyway.
			g.session.release(attempt)
		}
		g.logger.Printf("companion: %s unreachable: %v", target.HostPort(), err)
		if apperrors.GetCode(err) == apperrors.CodeUnknown {
			err = apperrors.Unreachable(target.HostPort(), err)
		}
		return false, err
	}

	g.session.Apply(seq, Observation{Connected: true, ConnectedClients: health.ConnectedClients})
	if g.session.State() != StateConnected {
		return false, apperrors.New(apperrors.CodeSessionNotAuthenticated, "session changed during connect")
	}
	g.logger.Printf("companion: reached %s (%d companion(s) connected)", target.HostPort(), health.ConnectedClients)
	return true, nil
}

// Authenticate presents secret to the host the session is connected to.
// Any failure tears the session down.
func (g *Gate) Authenticate(ctx context.Context, target pairing.ConnectionTarget, secret string) error {
	client, ok := g.session.current()
	if !ok || g.session.State() != StateConnected {
		return apperrors.New(apperrors.CodeSessionNotAuthenticated, "connect to the host before authenticating")
	}

	if err := client.Auth(ctx, secret); err != nil {
		g.session.Disconnect()
		g.logger.Printf("companion: authentication with %s failed: %v", target.HostPort(), err)
		return err
	}

	if !g.session.authenticated(target, secret) {
		// A newer pairing attempt replaced this one while the request was in flight.
		return apperrors.New(apperrors.CodeSessionNotAuthenticated, "session changed during authentication")
	}
	g.logger.Printf("companion: authenticated with %s", target.HostPort())

	if g.onAuthenticated != nil {
		g.onAuthenticated(target)
	}
	return nil
}

// Pair runs Connect then Authenticate with the target's own secret. Its
// signature matches pairing.AttemptFunc.
func (g *Gate) Pair(ctx context.Context, target pairing.ConnectionTarget) error {
	if _, err := g.Connect(ctx, target); err != nil {
		return err
	}
	return g.Authenticate(ctx, target, target.Secret)
}
