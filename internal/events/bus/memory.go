package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/logger"
)

// MemoryEventBus implements EventBus with in-process subscriber queues.
//
// Publish copies the event into every queue registered for the task while
// holding the bus lock, so each queue observes events in exact publish
// order. Distinct task ids are fully isolated from one another.
type MemoryEventBus struct {
	mu          sync.Mutex
	subscribers map[string][]*Subscription
	logger      *logger.Logger
	closed      bool
}

// NewMemoryEventBus creates a new in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subscribers: make(map[string][]*Subscription),
		logger:      log,
	}
}

// Subscribe registers a new queue for the task.
func (b *MemoryEventBus) Subscribe(taskID string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	sub := newSubscription(taskID)
	b.subscribers[taskID] = append(b.subscribers[taskID], sub)

	b.logger.Debug("Subscribed to task events",
		zap.String("task_id", taskID),
		zap.Int("subscribers", len(b.subscribers[taskID])))
	return sub, nil
}

// Unsubscribe removes a specific subscription for the task. Unknown tasks
// and repeated calls are no-ops.
func (b *MemoryEventBus) Unsubscribe(taskID string, sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[taskID]
	if !ok {
		return
	}
	for i, s := range subs {
		if s == sub {
			b.subscribers[taskID] = append(subs[:i], subs[i+1:]...)
			if len(b.subscribers[taskID]) == 0 {
				delete(b.subscribers, taskID)
			}
			s.close()
			return
		}
	}
}

// Publish enqueues the event on every queue registered for the task.
func (b *MemoryEventBus) Publish(ctx context.Context, taskID string, event *Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	subs := b.subscribers[taskID]
	if len(subs) == 0 {
		// Nobody is listening for this task; drop the event.
		return nil
	}

	for _, sub := range subs {
		if !sub.deliver(event) {
			b.logger.Warn("Subscriber queue full, dropped oldest event",
				zap.String("task_id", taskID),
				zap.String("agent", event.Agent),
				zap.String("stage", event.Stage))
		}
	}

	b.logger.Debug("Published event",
		zap.String("task_id", taskID),
		zap.String("agent", event.Agent),
		zap.String("stage", event.Stage),
		zap.Int("progress", event.Progress))

	return nil
}

// Close shuts the bus down and closes all subscriber queues.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.subscribers = make(map[string][]*Subscription)

	b.logger.Info("Memory event bus closed")
}

// IsConnected returns true until the bus is closed.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed
}

// SubscriberCount reports how many queues are registered for the task.
func (b *MemoryEventBus) SubscriberCount(taskID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[taskID])
}

