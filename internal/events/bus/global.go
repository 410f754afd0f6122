package bus

import (
	"sync"

	"github.com/papertrans/papertrans/internal/common/logger"
)

var (
	defaultBus  EventBus
	defaultOnce sync.Once
	defaultMu   sync.RWMutex
)

// Default returns the process-global event bus, lazily initializing an
// in-memory bus on first use.
func Default() EventBus {
	defaultMu.RLock()
	b := defaultBus
	defaultMu.RUnlock()
	if b != nil {
		return b
	}

	defaultOnce.Do(func() {
		defaultMu.Lock()
		if defaultBus == nil {
			defaultBus = NewMemoryEventBus(logger.Default())
		}
		defaultMu.Unlock()
	})

	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultBus
}

// SetDefault replaces the process-global event bus. Wiring calls this once
// at startup, before any workflow runs.
func SetDefault(b EventBus) {
	defaultMu.Lock()
	defaultBus = b
	defaultMu.Unlock()
}
