package agent

import (
	"context"
	"errors"
	"testing"
)

// stubAgent records lifecycle calls and fails on demand.
type stubAgent struct {
	BaseAgent
	calls       []string
	setupErr    error
	runErr      error
	teardownErr error
}

func newStubAgent(name string) *stubAgent {
	return &stubAgent{BaseAgent: NewBaseAgent(name, "stub agent")}
}

func (a *stubAgent) Setup(ctx context.Context) error {
	a.calls = append(a.calls, "setup")
	return a.setupErr
}

func (a *stubAgent) Run(ctx context.Context, actx *AgentContext) (*AgentContext, error) {
	a.calls = append(a.calls, "run")
	if a.runErr != nil {
		return nil, a.runErr
	}
	return actx, nil
}

func (a *stubAgent) Teardown(ctx context.Context) error {
	a.calls = append(a.calls, "teardown")
	return a.teardownErr
}

func TestBaseAgent(t *testing.T) {
	base := NewBaseAgent("review", "checks translation quality")

	if base.Name() != "review" {
		t.Errorf("expected name review, got %s", base.Name())
	}
	if base.Description() != "checks translation quality" {
		t.Errorf("unexpected description: %s", base.Description())
	}
	if err := base.Setup(context.Background()); err != nil {
		t.Errorf("expected no-op setup, got %v", err)
	}
	if err := base.Teardown(context.Background()); err != nil {
		t.Errorf("expected no-op teardown, got %v", err)
	}
}

func TestInvoke_LifecycleOrder(t *testing.T) {
	a := newStubAgent("ocr")
	actx := NewAgentContext("t1", "paper.pdf", nil)

	out, err := Invoke(context.Background(), a, actx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != actx {
		t.Error("expected the same context back")
	}

	want := []string{"setup", "run", "teardown"}
	if len(a.calls) != len(want) {
		t.Fatalf("expected calls %v, got %v", want, a.calls)
	}
	for i := range want {
		if a.calls[i] != want[i] {
			t.Fatalf("expected calls %v, got %v", want, a.calls)
		}
	}
}

func TestInvoke_TeardownRunsOnRunFailure(t *testing.T) {
	a := newStubAgent("translation")
	a.runErr = errors.New("provider unavailable")
	actx := NewAgentContext("t1", "paper.pdf", nil)

	out, err := Invoke(context.Background(), a, actx)
	if err == nil {
		t.Fatal("expected run error")
	}
	if !errors.Is(err, a.runErr) {
		t.Errorf("expected run error to surface, got %v", err)
	}
	if out == nil {
		t.Error("expected the input context back on failure")
	}

	if len(a.calls) != 3 || a.calls[2] != "teardown" {
		t.Errorf("expected teardown to run after failed run, calls: %v", a.calls)
	}
}

func TestInvoke_SetupFailureSkipsRun(t *testing.T) {
	a := newStubAgent("index")
	a.setupErr = errors.New("store not ready")

	_, err := Invoke(context.Background(), a, NewAgentContext("t1", "paper.pdf", nil))
	if err == nil {
		t.Fatal("expected setup error")
	}
	if !errors.Is(err, a.setupErr) {
		t.Errorf("expected setup error to surface, got %v", err)
	}

	for _, call := range a.calls {
		if call == "run" || call == "teardown" {
			t.Errorf("expected no %s after failed setup, calls: %v", call, a.calls)
		}
	}
}

func TestInvoke_TeardownErrorAfterSuccess(t *testing.T) {
	a := newStubAgent("terminology")
	a.teardownErr = errors.New("tmp dir locked")

	_, err := Invoke(context.Background(), a, NewAgentContext("t1", "paper.pdf", nil))
	if err == nil {
		t.Fatal("expected teardown error to surface when run succeeded")
	}
	if !errors.Is(err, a.teardownErr) {
		t.Errorf("expected teardown error, got %v", err)
	}
}

func TestInvoke_RunErrorWinsOverTeardownError(t *testing.T) {
	a := newStubAgent("review")
	a.runErr = errors.New("run failed")
	a.teardownErr = errors.New("teardown failed")

	_, err := Invoke(context.Background(), a, NewAgentContext("t1", "paper.pdf", nil))
	if !errors.Is(err, a.runErr) {
		t.Errorf("expected run error to take precedence, got %v", err)
	}
}
