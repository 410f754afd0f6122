package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
)

// taskSubjectPrefix namespaces task event subjects on the wire.
const taskSubjectPrefix = "papertrans.task."

// NATSEventBus implements EventBus over a NATS connection, letting several
// processes observe the same task streams. Each Subscription is backed by a
// NATS subscription on the task's subject.
type NATSEventBus struct {
	conn   *nats.Conn
	logger *logger.Logger
	config config.NATSConfig

	mu   sync.Mutex
	subs map[*Subscription]*nats.Subscription
}

// NewNATSEventBus creates a new NATS event bus with reconnection logic.
func NewNATSEventBus(cfg config.NATSConfig, log *logger.Logger) (*NATSEventBus, error) {
	bus := &NATSEventBus{
		logger: log,
		config: cfg,
		subs:   make(map[*Subscription]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(5 * 1024 * 1024), // 5MB buffer during reconnect

		// Connection status handlers
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			} else {
				log.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error("NATS connection closed", zap.Error(err))
			} else {
				log.Info("NATS connection closed")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error",
				zap.Error(err),
				zap.String("subject", sub.Subject),
			)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	bus.conn = conn
	log.Info("Connected to NATS", zap.String("url", cfg.URL))

	return bus, nil
}

func taskSubject(taskID string) string {
	return taskSubjectPrefix + taskID
}

// Publish sends an event on the task's subject. With no subscribers NATS
// drops the message, matching the in-memory semantics.
func (b *NATSEventBus) Publish(ctx context.Context, taskID string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.conn.Publish(taskSubject(taskID), data); err != nil {
		b.logger.Error("Failed to publish event",
			zap.String("task_id", taskID),
			zap.String("stage", event.Stage),
			zap.Error(err),
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Subscribe creates a queue for the task fed by a NATS subscription. NATS
// serializes callbacks per subscription, preserving per-queue FIFO order.
func (b *NATSEventBus) Subscribe(taskID string) (*Subscription, error) {
	sub := newSubscription(taskID)

	natsSub, err := b.conn.Subscribe(taskSubject(taskID), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Error("Failed to unmarshal event",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		if !sub.deliver(&event) {
			b.logger.Warn("Subscriber queue full, dropped oldest event",
				zap.String("task_id", taskID),
				zap.String("stage", event.Stage))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to task %s: %w", taskID, err)
	}

	b.mu.Lock()
	b.subs[sub] = natsSub
	b.mu.Unlock()

	b.logger.Debug("Subscribed to task events", zap.String("task_id", taskID))
	return sub, nil
}

// Unsubscribe removes the subscription. Idempotent.
func (b *NATSEventBus) Unsubscribe(taskID string, sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	natsSub, ok := b.subs[sub]
	if ok {
		delete(b.subs, sub)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if err := natsSub.Unsubscribe(); err != nil {
		b.logger.Warn("Failed to unsubscribe from NATS",
			zap.String("task_id", taskID),
			zap.Error(err))
	}
	sub.close()
}

// Close drains the NATS connection and closes all subscriber queues.
func (b *NATSEventBus) Close() {
	b.mu.Lock()
	for sub, natsSub := range b.subs {
		_ = natsSub.Unsubscribe()
		sub.close()
	}
	b.subs = make(map[*Subscription]*nats.Subscription)
	b.mu.Unlock()

	if b.conn != nil {
		// Drain will process pending messages before closing
		if err := b.conn.Drain(); err != nil {
			b.logger.Warn("Error draining NATS connection", zap.Error(err))
			// Fall back to regular close
			b.conn.Close()
		}
		b.logger.Info("NATS connection closed")
	}
}

// IsConnected returns whether the NATS connection is active.
func (b *NATSEventBus) IsConnected() bool {
	if b.conn == nil {
		return false
	}
	return b.conn.IsConnected()
}
