// Package hostclient is the companion's HTTP client for the host API. Every
// call is a single bounded-deadline request; a timeout is a definite
// failure and is never retried here.
package hostclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/sideassist/sideassist/internal/errors"
	"github.com/sideassist/sideassist/internal/protocol"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 2500 * time.Millisecond

// Options configures a Client.
type Options struct {
	// Timeout bounds each request. Default: DefaultTimeout.
	Timeout time.Duration

	// ClientID is sent as x-client-id on health probes.
	// Default: "companion-" plus a random uuid.
	ClientID string

	// HTTPClient overrides the transport.
	HTTPClient *http.Client
}

// Client talks to one host.
type Client struct {
	baseURL  string
	client   *http.Client
	timeout  time.Duration
	clientID string
}

// New creates a client for baseURL (e.g. "http://10.0.0.5:8080").
func New(baseURL string, opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ClientID == "" {
		opts.ClientID = "companion-" + uuid.NewString()
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   opts.HTTPClient,
		timeout:  opts.Timeout,
		clientID: opts.ClientID,
	}
}

// NewUnix creates a client for the host's local control socket.
func NewUnix(socketPath string, opts Options) *Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	opts.HTTPClient = &http.Client{Transport: transport}
	return New("http://unix", opts)
}

// BaseURL returns the host base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ClientID returns the id sent on health probes.
func (c *Client) ClientID() string {
	return c.clientID
}

// do sends one request and decodes a 2xx body into out (if non-nil).
// Non-2xx bodies are decoded into a CodedError.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return apperrors.Internal("failed to encode request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return apperrors.Internal("failed to build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.Unreachable(c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(apperrors.CodeNetBadResponse, "undecodable response from host", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body protocol.ErrorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err := json.Unmarshal(data, &body); err != nil || body.ErrorCode == "" {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		return apperrors.New(apperrors.CodeNetBadResponse, fmt.Sprintf("http %d: %s", resp.StatusCode, msg))
	}
	return apperrors.New(body.ErrorCode, body.Message)
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (protocol.HealthResponse, error) {
	var out protocol.HealthResponse
	header := http.Header{}
	header.Set(protocol.HeaderClientID, c.clientID)
	err := c.do(ctx, http.MethodGet, protocol.PathHealth, header, nil, &out)
	return out, err
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (protocol.StatusResponse, error) {
	var out protocol.StatusResponse
	err := c.do(ctx, http.MethodGet, protocol.PathStatus, nil, nil, &out)
	return out, err
}

// Auth verifies password with POST /auth.
func (c *Client) Auth(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodPost, protocol.PathAuth, nil, protocol.PasswordRequest{Password: password}, nil)
}

// Input sends one action through POST /input.
func (c *Client) Input(ctx context.Context, action protocol.Action, password string) error {
	return c.do(ctx, http.MethodPost, protocol.PathInput, nil, protocol.InputRequest{Action: action, Password: password}, nil)
}

// Copy sends POST /copy.
func (c *Client) Copy(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodPost, protocol.PathCopy, nil, protocol.PasswordRequest{Password: password}, nil)
}

// Paste sends POST /paste.
func (c *Client) Paste(ctx context.Context, password string) error {
	return c.do(ctx, http.MethodPost, protocol.PathPaste, nil, protocol.PasswordRequest{Password: password}, nil)
}

// ListActions fetches GET /custom_actions.
func (c *Client) ListActions(ctx context.Context) ([]protocol.CustomAction, error) {
	var out []protocol.CustomAction
	if err := c.do(ctx, http.MethodGet, protocol.PathCustomActions, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RenameAction sends POST /custom_actions/{id}/rename.
func (c *Client) RenameAction(ctx context.Context, id, newName, password string) error {
	path := protocol.PathCustomActions + "/" + url.PathEscape(id) + "/rename"
	return c.do(ctx, http.MethodPost, path, nil, protocol.RenameRequest{NewName: newName, Password: password}, nil)
}

// DeleteAction sends DELETE /custom_actions/{id}.
func (c *Client) DeleteAction(ctx context.Context, id, password string) error {
	path := protocol.PathCustomActions + "/" + url.PathEscape(id)
	return c.do(ctx, http.MethodDelete, path, nil, protocol.PasswordRequest{Password: password}, nil)
}

// RecordingStatus fetches GET /recording/status.
func (c *Client) RecordingStatus(ctx context.Context) (protocol.RecordingStatus, error) {
	var out protocol.RecordingStatus
	err := c.do(ctx, http.MethodGet, protocol.PathRecordingStatus, nil, nil, &out)
	return out, err
}

// PrepareRecording sends POST /recording/prepare.
func (c *Client) PrepareRecording(ctx context.Context, name, icon, shortcutType, password string) (protocol.RecordingStatus, error) {
	var out protocol.RecordingStatus
	err := c.do(ctx, http.MethodPost, protocol.PathRecordingPrepare, nil, protocol.PrepareRequest{
		Name:         name,
		Icon:         icon,
		ShortcutType: shortcutType,
		Password:     password,
	}, &out)
	return out, err
}

func (c *Client) recordingControl(ctx context.Context, path, password string) (protocol.RecordingStatus, error) {
	var out protocol.RecordingStatus
	err := c.do(ctx, http.MethodPost, path, nil, protocol.PasswordRequest{Password: password}, &out)
	return out, err
}

// StartRecording sends POST /recording/start.
func (c *Client) StartRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	return c.recordingControl(ctx, protocol.PathRecordingStart, password)
}

// StopRecording sends POST /recording/stop.
func (c *Client) StopRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	return c.recordingControl(ctx, protocol.PathRecordingStop, password)
}

// CancelRecording sends POST /recording/cancel.
func (c *Client) CancelRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	return c.recordingControl(ctx, protocol.PathRecordingCancel, password)
}

// AcknowledgeRecording sends POST /recording/acknowledge.
func (c *Client) AcknowledgeRecording(ctx context.Context, password string) (protocol.RecordingStatus, error) {
	return c.recordingControl(ctx, protocol.PathRecordingAcknowledge, password)
}

// Capture sends a captured key event. Only the host's own machine may call it.
func (c *Client) Capture(ctx context.Context, event protocol.CaptureRequest) error {
	return c.do(ctx, http.MethodPost, protocol.PathRecordingCapture, nil, event, nil)
}

// Credential fetches the current credential, or nil if none is live.
// Only the host's own machine may call it.
func (c *Client) Credential(ctx context.Context) (*protocol.CredentialResponse, error) {
	var out *protocol.CredentialResponse
	if err := c.do(ctx, http.MethodGet, protocol.PathCredential, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IssueCredential asks the host for a fresh credential.
func (c *Client) IssueCredential(ctx context.Context) (protocol.CredentialResponse, error) {
	var out protocol.CredentialResponse
	err := c.do(ctx, http.MethodPost, protocol.PathCredential, nil, struct{}{}, &out)
	return out, err
}
