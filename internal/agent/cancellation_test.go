package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestCancellationToken(t *testing.T) {
	token := NewCancellationToken()

	if token.IsCancelled() {
		t.Error("expected fresh token to be uncancelled")
	}
	if err := token.Check(); err != nil {
		t.Errorf("expected nil from Check before cancel, got %v", err)
	}

	token.Cancel()
	token.Cancel() // idempotent

	if !token.IsCancelled() {
		t.Error("expected token to be cancelled")
	}
	if err := token.Check(); !errors.Is(err, ErrCancelled) {
		t.Errorf("expected ErrCancelled, got %v", err)
	}
}

func TestCancellationToken_ConcurrentCancel(t *testing.T) {
	token := NewCancellationToken()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token.Cancel()
			_ = token.Check()
		}()
	}
	wg.Wait()

	if !token.IsCancelled() {
		t.Error("expected token to be cancelled")
	}
}

func TestIsCancellation(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"cancelled", ErrCancelled, true},
		{"wrapped cancelled", fmt.Errorf("translation page 3: %w", ErrCancelled), true},
		{"context canceled", context.Canceled, true},
		{"wrapped context canceled", fmt.Errorf("llm call: %w", context.Canceled), true},
		{"deadline exceeded", context.DeadlineExceeded, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCancellation(tc.err); got != tc.want {
				t.Errorf("IsCancellation(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
