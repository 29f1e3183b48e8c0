package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

// MaxRetries is the ceiling on corrective re-routes per run. Once reached,
// the retry coordinator fast-fails to synthesis without consulting the planner.
const MaxRetries = 3

const (
	defaultContextWindow = 10
	defaultMaxHops       = 25
)

var ErrNoWorkers = errors.New("at least one worker is required")

// phase is the engine's position in the state machine.
type phase int

const (
	phaseSupervising phase = iota
	phaseDispatching
	phaseRetrying
	phaseSynthesizing
	phaseTerminated
)

// runState is the single mutable aggregate owned by one Run invocation.
type runState struct {
	history    *statex.History
	finalAns   string
	queryClass string
	retryCount int
	lastError  *contractx.WorkerError
}

// setFinal sets the final answer once; later attempts are ignored so the
// first terminal branch wins.
func (st *runState) setFinal(answer string) {
	if st.finalAns == "" {
		st.finalAns = strings.TrimSpace(answer)
	}
}

// Result is the externally observable outcome of a run.
type Result struct {
	Answer     string
	QueryClass string
	RetryCount int
	History    []statex.Turn
}

// Option customizes an Engine.
type Option func(*Engine)

// WithContextWindow bounds how many recent turns are rendered into
// planner decision prompts.
func WithContextWindow(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.contextWindow = n
		}
	}
}

// WithMaxHops caps the total number of state transitions per run as a
// defense against a planner that never signals FINISH. Zero disables the cap.
func WithMaxHops(n int) Option {
	return func(e *Engine) {
		e.maxHops = n
	}
}

// WithCallTimeout sets a deadline applied to every planner and worker call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// Engine drives one task through the supervising/dispatching/retrying/
// synthesizing state machine until it terminates with a final answer.
type Engine struct {
	planner contractx.Planner
	workers map[string]contractx.Worker
	order   []string

	contextWindow int
	maxHops       int
	callTimeout   time.Duration
}

// New builds an Engine over an explicit worker registry. Worker names must
// be unique; registration order is kept for deterministic prompts.
func New(planner contractx.Planner, workers []contractx.Worker, opts ...Option) (*Engine, error) {
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}

	registry := make(map[string]contractx.Worker, len(workers))
	order := make([]string, 0, len(workers))
	for _, w := range workers {
		if w == nil {
			return nil, errors.New("nil worker in registry")
		}
		name := strings.TrimSpace(w.Name())
		if name == "" || strings.EqualFold(name, contractx.RouteFinish) {
			return nil, fmt.Errorf("invalid worker name %q", w.Name())
		}
		if _, dup := registry[name]; dup {
			return nil, fmt.Errorf("duplicate worker name %q", name)
		}
		registry[name] = w
		order = append(order, name)
	}

	e := &Engine{
		planner:       planner,
		workers:       registry,
		order:         order,
		contextWindow: defaultContextWindow,
		maxHops:       defaultMaxHops,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Workers lists the registered worker names in registration order.
func (e *Engine) Workers() []string {
	return append([]string(nil), e.order...)
}

// Run executes one task to termination. The returned Result always carries
// a non-empty answer; err is non-nil only when the context was cancelled
// before the machine could terminate normally.
func (e *Engine) Run(ctx context.Context, task string) (Result, error) {
	task = strings.TrimSpace(task)
	st := &runState{
		history: statex.NewHistory(statex.Turn{
			Role:    statex.RoleUser,
			Source:  "user",
			Content: task,
		}),
	}
	if task == "" {
		st.setFinal("I need a question to work on. Please provide a task.")
		return e.finish(st), fmt.Errorf("%w: empty task", contractx.ErrValidation)
	}

	var (
		cur      = phaseSupervising
		target   string
		taskText string
		hops     int
	)

	for cur != phaseTerminated {
		if err := ctx.Err(); err != nil {
			st.setFinal("The request was cancelled before an answer could be produced.")
			return e.finish(st), err
		}
		if e.maxHops > 0 && hops >= e.maxHops && cur != phaseSynthesizing {
			log.Warn().Int("hops", hops).Msg("hop budget exceeded, forcing synthesis")
			cur = phaseSynthesizing
		}
		hops++

		switch cur {
		case phaseSupervising:
			cur, target, taskText = e.supervise(ctx, st)
		case phaseDispatching:
			cur = e.dispatch(ctx, st, target, taskText)
		case phaseRetrying:
			cur, target = e.retry(ctx, st, target)
		case phaseSynthesizing:
			e.synthesize(ctx, st)
			cur = phaseTerminated
		}
	}

	return e.finish(st), nil
}

func (e *Engine) finish(st *runState) Result {
	return Result{
		Answer:     st.finalAns,
		QueryClass: st.queryClass,
		RetryCount: st.retryCount,
		History:    st.history.Turns(),
	}
}

// dispatch invokes the named worker synchronously and applies the outcome.
// Success hands control back to the supervisor; failure records the typed
// error and moves to the retry coordinator.
func (e *Engine) dispatch(ctx context.Context, st *runState, target, taskText string) phase {
	w, ok := e.workers[target]
	if !ok {
		// Unreachable through supervise/retry, which validate targets.
		st.lastError = &contractx.WorkerError{
			Kind:    contractx.KindValidation,
			Worker:  target,
			Message: fmt.Sprintf("worker %q is not registered", target),
		}
		st.history.Append(statex.Turn{
			Role:    statex.RoleWorker,
			Source:  target,
			Content: st.lastError.Message,
			Err:     true,
		})
		return phaseRetrying
	}

	callCtx, cancel := e.callContext(ctx)
	content, err := w.Invoke(callCtx, taskText, st.history.Turns())
	cancel()
	if err != nil {
		we := contractx.AsWorkerError(target, err)
		st.lastError = we
		log.Error().Str("worker", target).Str("kind", string(we.Kind)).Msg(we.Message)
		st.history.Append(statex.Turn{
			Role:    statex.RoleWorker,
			Source:  target,
			Content: we.Message,
			Err:     true,
		})
		return phaseRetrying
	}

	st.history.Append(statex.Turn{
		Role:    statex.RoleWorker,
		Source:  target,
		Content: content,
	})
	return phaseSupervising
}

func (e *Engine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.callTimeout > 0 {
		return context.WithTimeout(ctx, e.callTimeout)
	}
	return context.WithCancel(ctx)
}
