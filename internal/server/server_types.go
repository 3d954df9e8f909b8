// Package server is the host's LAN-facing HTTP service. It exposes the
// health probe, authentication, remote input, custom action management and
// the recording protocol, and pushes state changes to companions over a
// WebSocket event stream.
package server

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sideassist/sideassist/internal/auth"
	"github.com/sideassist/sideassist/internal/protocol"
	"github.com/sideassist/sideassist/internal/recording"
)

// channelBufferSize is the buffer size for the broadcast channel and per-client
// send channels. If the buffer fills up, messages are dropped for slow clients.
const channelBufferSize = 256

// ActionStore is the custom action persistence the server needs.
type ActionStore interface {
	ListActions() ([]protocol.CustomAction, error)
	GetAction(id string) (*protocol.CustomAction, error)
	RenameAction(id, name string) error
	DeleteAction(id string) error
	RecordRun(id string, t time.Time) error
	CountActions() (int, error)
}

// Executor performs authorized actions on the host desktop.
type Executor interface {
	TypeText(ctx context.Context, text string) error
	Copy(ctx context.Context) error
	Paste(ctx context.Context) error
	Replay(ctx context.Context, action protocol.CustomAction) error
}

// Config wires the server to the rest of the host.
type Config struct {
	// Addr is the address to listen on (e.g., "0.0.0.0:8080").
	Addr string

	// Credentials verifies the password carried by every mutating request. Required.
	Credentials *auth.CredentialManager

	// Recorder is the recording state machine. Required.
	Recorder *recording.Orchestrator

	// Actions persists custom actions. Required.
	Actions ActionStore

	// Executor runs input actions. Required.
	Executor Executor

	// ClientTimeout drops companions silent for longer than this. Default: 15s.
	ClientTimeout time.Duration

	// SweepInterval is how often silent companions are swept. Default: 30s.
	SweepInterval time.Duration

	// TimeNow returns the current time. Default: time.Now.
	TimeNow func() time.Time

	// Logger receives server events. Nil uses the standard logger.
	Logger *log.Logger
}

// Server serves the host HTTP API and broadcasts events to WebSocket clients.
type Server struct {
	// addr is the address to listen on.
	addr string

	config Config
	logger *log.Logger

	credentials *auth.CredentialManager
	recorder    *recording.Orchestrator
	actions     ActionStore
	executor    Executor

	// tracker counts companions by their x-client-id.
	tracker *ClientTracker

	// upgrader converts HTTP connections to WebSocket connections.
	upgrader websocket.Upgrader

	// clients tracks all connected WebSocket clients.
	clients map[*Client]bool

	// mu protects clients, stopped and port.
	mu sync.RWMutex

	// stopped indicates whether the server has been stopped.
	// This prevents sending to a closed broadcast channel.
	stopped bool

	// port is the bound TCP port, known once the listener exists.
	port int

	// broadcast receives messages to send to all clients.
	broadcast chan protocol.Message

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// cancel stops the sweep loop and the recording event forwarder.
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Client is one WebSocket event stream subscriber.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	send chan protocol.Message

	// done is closed to signal the client should shut down.
	done chan struct{}

	// sendOnce ensures done is only closed once.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server
}

// NewServer creates a server. Call Start or StartAsync to begin serving.
func NewServer(config Config) *Server {
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.ClientTimeout == 0 {
		config.ClientTimeout = 15 * time.Second
	}
	if config.SweepInterval == 0 {
		config.SweepInterval = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		addr:        config.Addr,
		config:      config,
		logger:      logger,
		credentials: config.Credentials,
		recorder:    config.Recorder,
		actions:     config.Actions,
		executor:    config.Executor,
		clients:     make(map[*Client]bool),
		broadcast:   make(chan protocol.Message, channelBufferSize),
		upgrader: websocket.Upgrader{
			// Companions are native apps, not browsers; there is no origin to check.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.tracker = NewClientTracker(config.ClientTimeout, config.TimeNow, s.onClientsChanged)
	return s
}
