// Package agent defines the contract shared by all translation workflow
// agents: the Agent interface, the mutable AgentContext they exchange, the
// cancellation token, and the registry that maps stable type keys to
// constructors.
package agent

import (
	"context"
	"fmt"
)

// Agent is the capability set every workflow agent exposes. Agents are
// stateless between runs; per-task state lives on the AgentContext.
type Agent interface {
	// Name returns the stable agent name used in progress events.
	Name() string

	// Description returns a human-readable summary of what the agent does.
	Description() string

	// Setup prepares the agent before a run. Optional; most agents no-op.
	Setup(ctx context.Context) error

	// Run executes the agent against the shared task context and returns
	// it, usually mutated. ctx carries deadlines; user cancellation rides
	// on actx.Token.
	Run(ctx context.Context, actx *AgentContext) (*AgentContext, error)

	// Teardown releases anything Setup acquired. Runs even when Run fails.
	Teardown(ctx context.Context) error
}

// BaseAgent carries the name/description pair and no-op lifecycle hooks.
// Concrete agents embed it and implement Run.
type BaseAgent struct {
	name        string
	description string
}

// NewBaseAgent creates the embedded base for a named agent.
func NewBaseAgent(name, description string) BaseAgent {
	return BaseAgent{name: name, description: description}
}

// Name returns the agent name.
func (b BaseAgent) Name() string { return b.name }

// Description returns the agent description.
func (b BaseAgent) Description() string { return b.description }

// Setup is a no-op.
func (b BaseAgent) Setup(ctx context.Context) error { return nil }

// Teardown is a no-op.
func (b BaseAgent) Teardown(ctx context.Context) error { return nil }

// Invoke runs an agent through its full lifecycle: Setup, Run, Teardown.
// Teardown always runs once Setup succeeded, even when Run fails; the Run
// error takes precedence over a Teardown error.
func Invoke(ctx context.Context, a Agent, actx *AgentContext) (*AgentContext, error) {
	if err := a.Setup(ctx); err != nil {
		return actx, fmt.Errorf("agent %s setup: %w", a.Name(), err)
	}

	out, runErr := a.Run(ctx, actx)
	if out == nil {
		out = actx
	}

	tdErr := a.Teardown(ctx)
	if runErr != nil {
		return out, runErr
	}
	if tdErr != nil {
		return out, fmt.Errorf("agent %s teardown: %w", a.Name(), tdErr)
	}
	return out, nil
}
