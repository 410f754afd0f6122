package agent

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrCancelled is the signal raised by CancellationToken.Check once the
// token has been cancelled. A cancelled task is never retried.
var ErrCancelled = errors.New("task cancelled")

// CancellationToken is a lightweight cancellation flag scoped to one
// AgentContext. Agents check it on entry and between meaningful sub-steps;
// the API layer cancels it on user request.
type CancellationToken struct {
	cancelled atomic.Bool
}

// NewCancellationToken creates an uncancelled token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{}
}

// Cancel sets the flag. Idempotent and safe from any goroutine.
func (t *CancellationToken) Cancel() {
	t.cancelled.Store(true)
}

// IsCancelled reads the flag without raising.
func (t *CancellationToken) IsCancelled() bool {
	return t.cancelled.Load()
}

// Check returns ErrCancelled once the token has been cancelled, nil
// otherwise.
func (t *CancellationToken) Check() error {
	if t.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

// IsCancellation reports whether err stems from task or context
// cancellation, however deeply wrapped.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
