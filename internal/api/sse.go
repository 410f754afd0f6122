package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
)

// heartbeatInterval is how long a stream may stay silent before a heartbeat
// is written and the task's liveness is probed.
const heartbeatInterval = 5 * time.Second

// streamSSE streams one task's progress events as Server-Sent Events. The
// stream terminates on the orchestrator's complete event, on a synthesized
// terminal event when the task is found dead during a heartbeat, or when the
// client disconnects.
// GET /sse/translation/:task_id
func (s *Server) streamSSE(c *gin.Context) {
	taskID := c.Param("task_id")

	sub, err := s.bus.Subscribe(taskID)
	if err != nil {
		s.logger.Error("failed to subscribe to task events",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event stream unavailable"})
		return
	}
	defer s.bus.Unsubscribe(taskID, sub)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	if err := writeSSE(c.Writer, bus.NewEvent(events.AgentSystem, events.StageConnected, 0, nil)); err != nil {
		return
	}

	s.logger.Debug("sse stream opened", zap.String("task_id", taskID))

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSE(c.Writer, ev); err != nil {
				return
			}
			if ev.IsComplete() {
				return
			}
			ticker.Reset(s.heartbeat)

		case <-ticker.C:
			hb := bus.NewEvent(events.AgentSystem, events.StageHeartbeat, bus.HeartbeatProgress, nil)
			if err := writeSSE(c.Writer, hb); err != nil {
				return
			}
			if terminal := s.probeTask(taskID); terminal != nil {
				_ = writeSSE(c.Writer, terminal)
				return
			}

		case <-c.Request.Context().Done():
			s.logger.Debug("sse client disconnected", zap.String("task_id", taskID))
			return
		}
	}
}

// probeTask checks whether a silent task is still alive. It returns nil while
// the task runs, a synthesized complete when it finished without one reaching
// this subscriber, and an error event when it failed or is unknown.
func (s *Server) probeTask(taskID string) *bus.Event {
	if s.tasks.IsRunning(taskID) {
		return nil
	}
	outcome, ok := s.tasks.LastOutcome(taskID)
	switch {
	case !ok:
		return bus.NewEvent(events.AgentSystem, events.StageError, bus.HeartbeatProgress,
			map[string]any{"error": "task is not running"})
	case outcome.Succeeded():
		return bus.NewEvent(events.AgentOrchestrator, events.StageComplete, 100, nil)
	default:
		return bus.NewEvent(events.AgentSystem, events.StageError, bus.HeartbeatProgress,
			map[string]any{"error": outcome.Err.Error()})
	}
}

// writeSSE frames one event as `data: <json>` and flushes it out.
func writeSSE(w gin.ResponseWriter, ev *bus.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
