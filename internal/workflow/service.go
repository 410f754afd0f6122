package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/agent"
	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/events"
	"github.com/papertrans/papertrans/internal/events/bus"
)

// defaultOutcomeCacheSize bounds the directory of finished tasks.
const defaultOutcomeCacheSize = 512

// ErrServiceClosed is returned by Start once the service has shut down.
var ErrServiceClosed = errors.New("workflow service is closed")

// TaskDirectory is the liveness view the streaming layer needs: whether a
// task is still running, and the terminal outcome of one that is not.
type TaskDirectory interface {
	IsRunning(taskID string) bool
	LastOutcome(taskID string) (*Outcome, bool)
}

// Outcome is the terminal record of one task.
type Outcome struct {
	TaskID     string
	Result     *Result
	Err        error
	Cancelled  bool
	FinishedAt time.Time
}

// Succeeded reports whether the task finished with a result.
func (o *Outcome) Succeeded() bool {
	return o.Err == nil
}

// ServiceConfig configures the async task service.
type ServiceConfig struct {
	Bus      bus.EventBus
	Registry *agent.Registry
	Logger   *logger.Logger

	// OutcomeCacheSize bounds the LRU of terminal outcomes. Zero selects
	// the default.
	OutcomeCacheSize int
}

// Service runs translation tasks asynchronously. Each Start spawns one
// goroutine bound to the service's own context, so tasks outlive the HTTP
// request that created them. Cancel flips the task's cancellation token;
// terminal outcomes stay available through the TaskDirectory view until
// evicted.
type Service struct {
	bus      bus.EventBus
	registry *agent.Registry
	log      *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	running  map[string]*agent.CancellationToken
	outcomes *lru.Cache[string, *Outcome]
}

var _ TaskDirectory = (*Service)(nil)

// NewService creates the async task service. The registry must have the
// orchestrator and its collaborators registered.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Bus == nil {
		return nil, fmt.Errorf("workflow service requires an event bus")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("workflow service requires an agent registry")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	size := cfg.OutcomeCacheSize
	if size <= 0 {
		size = defaultOutcomeCacheSize
	}
	outcomes, err := lru.New[string, *Outcome](size)
	if err != nil {
		return nil, fmt.Errorf("create outcome cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		bus:      cfg.Bus,
		registry: cfg.Registry,
		log:      log.WithFields(zap.String("component", "workflow-service")),
		baseCtx:  ctx,
		cancel:   cancel,
		running:  make(map[string]*agent.CancellationToken),
		outcomes: outcomes,
	}, nil
}

// Start launches a translation task and returns its id immediately. The
// orchestrator is resolved fresh per task; input Bus, Token and Orchestrator
// are overridden by the service's own.
func (s *Service) Start(in RunInput) (string, error) {
	taskID := in.TaskID
	if taskID == "" {
		taskID = NewTaskID()
	}

	orch, err := s.registry.Resolve(events.AgentOrchestrator)
	if err != nil {
		return "", fmt.Errorf("resolve orchestrator: %w", err)
	}

	token := agent.NewCancellationToken()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrServiceClosed
	}
	if _, exists := s.running[taskID]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("task %s is already running", taskID)
	}
	s.running[taskID] = token
	s.mu.Unlock()

	in.TaskID = taskID
	in.Token = token
	in.Bus = s.bus
	in.Orchestrator = orch

	s.wg.Add(1)
	go s.run(in)

	s.log.Info("translation task started",
		zap.String("task_id", taskID),
		zap.String("filename", in.Filename),
		zap.Bool("enable_ocr", in.EnableOCR),
	)
	return taskID, nil
}

// run executes one task to its terminal state and records the outcome. The
// running entry and the outcome swap under one lock acquisition so directory
// readers never observe a task as neither running nor finished.
func (s *Service) run(in RunInput) {
	defer s.wg.Done()

	res, err := Run(s.baseCtx, in)
	outcome := &Outcome{
		TaskID:     in.TaskID,
		Result:     res,
		Err:        err,
		Cancelled:  agent.IsCancellation(err),
		FinishedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	delete(s.running, in.TaskID)
	s.outcomes.Add(in.TaskID, outcome)
	s.mu.Unlock()

	switch {
	case outcome.Cancelled:
		s.log.Info("translation task cancelled", zap.String("task_id", in.TaskID))
	case err != nil:
		s.log.Warn("translation task failed", zap.String("task_id", in.TaskID), zap.Error(err))
	default:
		s.log.Info("translation task finished",
			zap.String("task_id", in.TaskID),
			zap.String("translation_id", res.TranslationID),
		)
	}
}

// Cancel flips the cancellation token of a running task. Returns false when
// no task with that id is running.
func (s *Service) Cancel(taskID string) bool {
	s.mu.Lock()
	token, ok := s.running[taskID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	token.Cancel()
	s.log.Info("translation task cancel requested", zap.String("task_id", taskID))
	return true
}

// IsRunning reports whether the task is still executing.
func (s *Service) IsRunning(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[taskID]
	return ok
}

// LastOutcome returns the terminal outcome of a finished task, if still
// cached.
func (s *Service) LastOutcome(taskID string) (*Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes.Get(taskID)
}

// Shutdown cancels every running task and waits for their goroutines to
// drain, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, token := range s.running {
		token.Cancel()
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("workflow service shutdown: %w", ctx.Err())
	}
}
