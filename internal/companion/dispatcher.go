package companion

import (
	"context"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// Dispatcher sends actions to the host. Every call fails fast with
// ErrNotAuthenticated, without touching the network, unless the session is
// authenticated. Each call makes at most one request.
type Dispatcher struct {
	session *Session
}

// NewDispatcher creates a dispatcher bound to session.
func NewDispatcher(session *Session) *Dispatcher {
	return &Dispatcher{session: session}
}

// SendText types text on the host.
func (d *Dispatcher) SendText(ctx context.Context, text string) error {
	return d.send(ctx, func(c HostAPI, secret string) error {
		return c.Input(ctx, protocol.Action{Type: protocol.ActionText, Text: text}, secret)
	})
}

// Copy triggers the host's copy chord.
func (d *Dispatcher) Copy(ctx context.Context) error {
	return d.send(ctx, func(c HostAPI, secret string) error {
		return c.Copy(ctx, secret)
	})
}

// Paste triggers the host's paste chord.
func (d *Dispatcher) Paste(ctx context.Context) error {
	return d.send(ctx, func(c HostAPI, secret string) error {
		return c.Paste(ctx, secret)
	})
}

// RunAction replays a custom action by id.
func (d *Dispatcher) RunAction(ctx context.Context, id string) error {
	return d.send(ctx, func(c HostAPI, secret string) error {
		return c.Input(ctx, protocol.Action{Type: protocol.ActionCustom, ActionID: id}, secret)
	})
}

func (d *Dispatcher) send(ctx context.Context, call func(c HostAPI, secret string) error) error {
	client, secret, err := d.session.credentials()
	if err != nil {
		return err
	}
	err = call(client, secret)
	switch apperrors.GetCode(err) {
	case apperrors.CodeAuthExpired, apperrors.CodeAuthUnauthorized:
		// The host no longer accepts this secret; pairing must start over.
		d.session.Disconnect()
	}
	return err
}
