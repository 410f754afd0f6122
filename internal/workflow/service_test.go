package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
)

// newStubService builds a service whose registry resolves the given run
// function as the orchestrator.
func newStubService(t *testing.T, run func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error)) (*Service, *bus.MemoryEventBus) {
	t.Helper()
	log := newWorkflowTestLogger(t)
	b := bus.NewMemoryEventBus(log)
	t.Cleanup(b.Close)

	reg := agent.NewRegistry()
	require.NoError(t, reg.Register(events.AgentOrchestrator, func() (agent.Agent, error) {
		return newStubOrchestrator(run), nil
	}))

	svc, err := NewService(ServiceConfig{Bus: b, Registry: reg, Logger: log})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, b
}

// waitUntilCancelled parks a stub run until its token or context cancels.
func waitUntilCancelled(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
	for {
		if err := actx.CheckCancelled(); err != nil {
			return actx, err
		}
		select {
		case <-ctx.Done():
			return actx, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestService_StartRunsTaskToCompletion(t *testing.T) {
	svc, b := newStubService(t, func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		actx.TranslatedMD = "# 译文"
		actx.Publish(ctx, events.AgentOrchestrator, events.StageComplete, 100, nil)
		return actx, nil
	})

	sub, err := b.Subscribe("task0001")
	require.NoError(t, err)

	taskID, err := svc.Start(RunInput{
		FileContent: []byte("%PDF-1.4"),
		Filename:    "paper.pdf",
		TaskID:      "task0001",
	})
	require.NoError(t, err)
	assert.Equal(t, "task0001", taskID)

	require.Eventually(t, func() bool {
		o, ok := svc.LastOutcome(taskID)
		return ok && o.Succeeded()
	}, time.Second, 10*time.Millisecond)

	o, ok := svc.LastOutcome(taskID)
	require.True(t, ok)
	require.NotNil(t, o.Result)
	assert.Equal(t, "# 译文", o.Result.TranslatedMD)
	assert.False(t, o.Cancelled)
	assert.False(t, o.FinishedAt.IsZero())
	assert.False(t, svc.IsRunning(taskID))

	// The service injected its own bus; events surface on it.
	select {
	case ev := <-sub.Events():
		assert.True(t, ev.IsComplete())
	case <-time.After(time.Second):
		t.Fatal("no event arrived on the service bus")
	}
}

func TestService_GeneratesTaskID(t *testing.T) {
	svc, _ := newStubService(t, func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		return actx, nil
	})

	taskID, err := svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "paper.pdf"})
	require.NoError(t, err)
	assert.Len(t, taskID, 8)
}

func TestService_IsRunningWhileTaskBlocks(t *testing.T) {
	release := make(chan struct{})
	svc, _ := newStubService(t, func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return actx, nil
	})

	taskID, err := svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "paper.pdf"})
	require.NoError(t, err)

	assert.True(t, svc.IsRunning(taskID))
	_, ok := svc.LastOutcome(taskID)
	assert.False(t, ok)

	close(release)
	require.Eventually(t, func() bool {
		_, ok := svc.LastOutcome(taskID)
		return ok && !svc.IsRunning(taskID)
	}, time.Second, 10*time.Millisecond)
}

func TestService_CancelFlipsToken(t *testing.T) {
	svc, _ := newStubService(t, waitUntilCancelled)

	taskID, err := svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "paper.pdf"})
	require.NoError(t, err)
	require.True(t, svc.IsRunning(taskID))

	require.True(t, svc.Cancel(taskID))

	require.Eventually(t, func() bool {
		o, ok := svc.LastOutcome(taskID)
		return ok && o.Cancelled
	}, time.Second, 10*time.Millisecond)

	o, _ := svc.LastOutcome(taskID)
	assert.False(t, o.Succeeded())
	assert.True(t, agent.IsCancellation(o.Err))

	// Once finished the task is no longer cancellable.
	assert.False(t, svc.Cancel(taskID))
}

func TestService_CancelUnknownTask(t *testing.T) {
	svc, _ := newStubService(t, func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		return actx, nil
	})
	assert.False(t, svc.Cancel("deadbeef"))
}

func TestService_RejectsDuplicateRunningTask(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	svc, _ := newStubService(t, func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return actx, nil
	})

	_, err := svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "a.pdf", TaskID: "dup00001"})
	require.NoError(t, err)

	_, err = svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "b.pdf", TaskID: "dup00001"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestService_RecordsFailureOutcome(t *testing.T) {
	boom := errors.New("provider unreachable")
	svc, _ := newStubService(t, func(ctx context.Context, actx *agent.AgentContext) (*agent.AgentContext, error) {
		return actx, boom
	})

	taskID, err := svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "paper.pdf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		o, ok := svc.LastOutcome(taskID)
		return ok && o.Err != nil
	}, time.Second, 10*time.Millisecond)

	o, _ := svc.LastOutcome(taskID)
	assert.ErrorIs(t, o.Err, boom)
	assert.False(t, o.Succeeded())
	assert.False(t, o.Cancelled)
	assert.Nil(t, o.Result)
}

func TestService_ShutdownCancelsRunningTasks(t *testing.T) {
	svc, _ := newStubService(t, waitUntilCancelled)

	taskID, err := svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "paper.pdf"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))

	o, ok := svc.LastOutcome(taskID)
	require.True(t, ok)
	assert.True(t, o.Cancelled)

	_, err = svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "late.pdf"})
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestService_StartFailsWithoutOrchestrator(t *testing.T) {
	log := newWorkflowTestLogger(t)
	b := bus.NewMemoryEventBus(log)
	t.Cleanup(b.Close)

	svc, err := NewService(ServiceConfig{Bus: b, Registry: agent.NewRegistry(), Logger: log})
	require.NoError(t, err)

	_, err = svc.Start(RunInput{FileContent: []byte("%PDF-1.4"), Filename: "paper.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve orchestrator")
}

func TestNewService_Validation(t *testing.T) {
	log := newWorkflowTestLogger(t)
	b := bus.NewMemoryEventBus(log)
	t.Cleanup(b.Close)

	_, err := NewService(ServiceConfig{Registry: agent.NewRegistry(), Logger: log})
	assert.Error(t, err)

	_, err = NewService(ServiceConfig{Bus: b, Logger: log})
	assert.Error(t, err)
}
