package hostclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// Watch subscribes to the host event stream and calls fn for each event
// until ctx is cancelled or the connection drops. It returns nil when ctx
// ends the stream.
func (c *Client) Watch(ctx context.Context, password string, fn func(protocol.Envelope)) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return apperrors.Internal("invalid host url", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = protocol.PathEvents
	u.RawQuery = url.Values{"password": {password}}.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return decodeError(resp)
		}
		return apperrors.Unreachable(c.baseURL, err)
	}
	defer conn.Close()

	// Closing the connection unblocks ReadMessage when ctx ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return apperrors.Unreachable(c.baseURL, err)
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		fn(env)
	}
}
