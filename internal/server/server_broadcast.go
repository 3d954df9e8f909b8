package server

import (
	"context"

	"github.com/sideassist/sideassist/internal/protocol"
	"github.com/sideassist/sideassist/internal/recording"
)

// Broadcast sends a message to all connected event stream clients.
// This method is non-blocking; messages are queued for delivery.
// If the server has been stopped, this method does nothing.
func (s *Server) Broadcast(msg protocol.Message) {
	// Holding RLock through the send keeps Stop from closing the channel
	// underneath us.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		s.logger.Printf("server: broadcast channel full, dropping %s", msg.Type)
	}
}

// broadcastActionsChanged announces a change to the custom action list.
func (s *Server) broadcastActionsChanged(reason, actionID string) {
	remaining, err := s.actions.CountActions()
	if err != nil {
		s.logger.Printf("server: count actions failed: %v", err)
		remaining = -1
	}
	s.Broadcast(protocol.NewActionsChangedMessage(reason, actionID, remaining))
}

// onClientsChanged is the ClientTracker callback.
func (s *Server) onClientsChanged(count int) {
	s.Broadcast(protocol.NewClientsChangedMessage(count))
}

// runBroadcaster reads from the broadcast channel and sends to all clients.
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			select {
			case <-client.done:
			case client.send <- msg:
			default:
				s.logger.Printf("server: client send buffer full, dropping %s", msg.Type)
			}
		}
		s.mu.RUnlock()
	}
}

// forwardRecordingEvents relays recorder transitions onto the event stream.
func (s *Server) forwardRecordingEvents(ctx context.Context) {
	defer s.wg.Done()

	events, unsubscribe := s.recorder.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case recording.EventStatus:
				s.Broadcast(protocol.NewRecordingStatusMessage(ev.Status))
			case recording.EventCompleted:
				if ev.Action == nil {
					continue
				}
				s.Broadcast(protocol.NewRecordingCompletedMessage(*ev.Action))
				s.broadcastActionsChanged("created", ev.Action.ID)
			}
		}
	}
}
