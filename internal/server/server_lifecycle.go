package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Start begins serving and blocks until the server stops.
// For non-blocking startup with error handling, use StartAsync() instead.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.startBackground(ln)

	s.logger.Printf("server: listening on %s", ln.Addr())
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StartAsync starts the server in a goroutine and returns any startup errors.
//
// The returned channel receives nil if startup succeeded, or an error if
// the listener could not be created (e.g., port already in use).
// After receiving from the channel, the server is either running or failed.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}
	s.startBackground(ln)

	go func() {
		s.logger.Printf("server: listening on %s", ln.Addr())
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// startBackground records the bound port and starts the goroutines that
// outlive individual requests.
func (s *Server) startBackground(ln net.Listener) {
	s.mu.Lock()
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcp.Port
	}
	s.httpServer = &http.Server{
		Handler:           s.createRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.runBroadcaster()

	s.wg.Add(2)
	go s.runSweeper(ctx)
	go s.forwardRecordingEvents(ctx)
}

// runSweeper drops silent companions every SweepInterval.
func (s *Server) runSweeper(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.tracker.Sweep(); n > 0 {
				s.logger.Printf("server: swept %d silent companion(s), %d connected", n, s.tracker.Count())
			}
		}
	}
}

// Stop gracefully shuts down the server.
// It signals every event stream client, stops accepting connections and
// waits for the background goroutines. Calling Stop twice is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	// writePump sends the close frame once it sees done.
	for client := range s.clients {
		client.closeSend()
	}
	s.clients = make(map[*Client]bool)

	// Must follow stopped=true so concurrent Broadcast calls cannot panic.
	close(s.broadcast)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Running reports whether the server has been started and not stopped.
func (s *Server) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.httpServer != nil && !s.stopped
}

// Port returns the bound TCP port, or 0 before the server starts.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// ClientCount returns the number of companions seen recently on /health.
func (s *Server) ClientCount() int {
	return s.tracker.Count()
}

// StreamCount returns the number of open event stream connections.
func (s *Server) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
