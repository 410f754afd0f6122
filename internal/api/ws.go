package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

// streamWS streams one task's progress events as JSON text frames. Same
// event sequence and termination rules as the SSE stream.
// GET /ws/translation/:task_id
func (s *Server) streamWS(c *gin.Context) {
	taskID := c.Param("task_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	sub, err := s.bus.Subscribe(taskID)
	if err != nil {
		s.logger.Error("failed to subscribe to task events",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		return
	}
	defer s.bus.Unsubscribe(taskID, sub)

	// Reads are discarded; the pump exists to notice the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(bus.NewEvent(events.AgentSystem, events.StageConnected, 0, nil)); err != nil {
		return
	}

	s.logger.Debug("websocket stream opened", zap.String("task_id", taskID))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if ev.IsComplete() {
				writeWSClose(conn)
				return
			}
			ticker.Reset(s.heartbeat)

		case <-ticker.C:
			hb := bus.NewEvent(events.AgentSystem, events.StageHeartbeat, bus.HeartbeatProgress, nil)
			if err := conn.WriteJSON(hb); err != nil {
				return
			}
			if terminal := s.probeTask(taskID); terminal != nil {
				_ = conn.WriteJSON(terminal)
				writeWSClose(conn)
				return
			}

		case <-closed:
			s.logger.Debug("websocket client disconnected", zap.String("task_id", taskID))
			return

		case <-c.Request.Context().Done():
			return
		}
	}
}

// writeWSClose sends a normal-closure frame so well-behaved clients do not
// report an abnormal close.
func writeWSClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
