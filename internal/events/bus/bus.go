// Package bus provides the task-keyed progress event bus for papertrans.
//
// Agents publish progress events under their task id; streaming subscribers
// (SSE, WebSocket, CLI) each drain an independent FIFO queue. Events are
// never persisted; a task with no subscribers publishes into the void.
package bus

import (
	"context"
	"errors"
	"sync"
)

// Agent and stage names used by the runtime itself. Workflow agents publish
// under their own names.
const (
	AgentSystem       = "system"
	AgentOrchestrator = "orchestrator"

	StageConnected = "connected"
	StageHeartbeat = "heartbeat"
	StageComplete  = "complete"
	StageError     = "error"
)

// HeartbeatProgress marks events that carry no progress information.
const HeartbeatProgress = -1

// subscriberBufferSize is the per-subscriber queue capacity. A slow consumer
// loses its oldest events rather than stalling publishers.
const subscriberBufferSize = 256

// ErrClosed is returned when publishing or subscribing on a closed bus.
var ErrClosed = errors.New("event bus is closed")

// Event is the canonical progress event shape shared by all transports.
type Event struct {
	Agent    string         `json:"agent"`
	Stage    string         `json:"stage"`
	Progress int            `json:"progress"`
	Detail   map[string]any `json:"detail,omitempty"`
}

// NewEvent creates a progress event.
func NewEvent(agent, stage string, progress int, detail map[string]any) *Event {
	return &Event{
		Agent:    agent,
		Stage:    stage,
		Progress: progress,
		Detail:   detail,
	}
}

// IsComplete reports whether this event terminates a task's stream.
func (e *Event) IsComplete() bool {
	return e.Agent == AgentOrchestrator && e.Stage == StageComplete
}

// EventBus is a task-keyed fan-out of progress events.
type EventBus interface {
	// Subscribe registers a new queue for the task. Every subscriber
	// receives an independent copy of each event published afterwards.
	Subscribe(taskID string) (*Subscription, error)

	// Unsubscribe removes a specific subscription. Idempotent; safe to call
	// with an unknown task or an already removed subscription.
	Unsubscribe(taskID string, sub *Subscription)

	// Publish enqueues the event on every queue registered for the task.
	// With no subscribers the event is dropped silently.
	Publish(ctx context.Context, taskID string, event *Event) error

	// Close shuts the bus down and closes all subscriber queues.
	Close()

	// IsConnected returns connection status.
	IsConnected() bool
}

// Subscription is one subscriber's FIFO queue of events for a single task.
type Subscription struct {
	taskID string
	ch     chan *Event

	mu     sync.Mutex
	active bool
}

func newSubscription(taskID string) *Subscription {
	return &Subscription{
		taskID: taskID,
		ch:     make(chan *Event, subscriberBufferSize),
		active: true,
	}
}

// Events returns the receive side of the queue. The channel is closed when
// the subscription is removed or the bus shuts down.
func (s *Subscription) Events() <-chan *Event {
	return s.ch
}

// TaskID returns the task this subscription is keyed on.
func (s *Subscription) TaskID() string {
	return s.taskID
}

// IsValid returns whether the subscription is still active.
func (s *Subscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// deliver enqueues an event, dropping the oldest queued event when the
// queue is full. Callers must serialize deliveries per subscription to
// preserve FIFO order.
//
// Returns false when the event had to displace an older one.
func (s *Subscription) deliver(event *Event) bool {
	select {
	case s.ch <- event:
		return true
	default:
	}
	// Queue full: evict the oldest entry and retry once. The receiver may
	// have drained concurrently, so the retry can still fail harmlessly.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- event:
	default:
	}
	return false
}

// close marks the subscription inactive and closes the queue. Safe to call
// once; callers guard against double close via the active flag.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.ch)
}
