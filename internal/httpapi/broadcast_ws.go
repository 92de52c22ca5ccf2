package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/salesagent/internal/observability"
)

// handleBroadcastWS upgrades an operator client to the duplex message feed
// (spec §6.3): every CallInitiated/CallInProgress/CallStatus/TranscriptUpdate
// event is fanned out non-blockingly via broadcast.Bus, grounded on the
// teacher's handleSessionWS writer-goroutine-plus-read-loop shape.
func (s *Server) handleBroadcastWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	subID := uuid.NewString()
	ch, unsubscribe := s.bus.Subscribe(subID)
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetReadLimit(1 << 16)
	for {
		select {
		case <-done:
			s.bus.Disconnect(subID, "client_closed")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				observability.LogEvent("broadcast_ws_write_failed", "subscriber", subID, "err", err)
				return
			}
		}
	}
}
