package hub

import (
	"context"
	"encoding/json"
	"time"

	"gridloop/logger"

	"github.com/gorilla/websocket"
)

const (
	readLimit    = 4096
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second
)

// ReadPump reads frames from the socket until it closes. Inbound traffic on
// the gateway is heartbeat only; state flows client-ward. Unsubscribes on
// exit.
func (s *Session) ReadPump(ctx context.Context) {
	defer func() {
		s.Hub.Unsubscribe(s)
		s.Conn.Close()
	}()

	s.Conn.SetReadLimit(readLimit)
	s.Conn.SetReadDeadline(time.Now().Add(pongWait))
	s.Conn.SetPongHandler(func(string) error {
		s.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := s.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.ErrorField(err),
						logger.String("project", s.ProjectID),
						logger.String("user", s.UserID))
				}
				return
			}

			var frame Frame
			if err := json.Unmarshal(message, &frame); err != nil {
				logger.Warn("invalid frame",
					logger.ErrorField(err),
					logger.String("project", s.ProjectID))
				continue
			}

			if frame.Type == MsgTypePing {
				if s.Hub.presence != nil {
					if err := s.Hub.presence.Heartbeat(ctx, s.ProjectID, s.UserID); err != nil {
						logger.Warn("presence heartbeat failed",
							logger.ErrorField(err),
							logger.String("project", s.ProjectID),
							logger.String("user", s.UserID))
					}
				}

				s.Hub.reply(s, &Frame{Type: MsgTypePong})
			}
		}
	}
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.Send:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the channel
				s.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// coalesce whatever else is queued
			n := len(s.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-s.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
