package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	promptx "github.com/hierarch-ai/hrag/agent/prompt"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

// LLMPlanner backs the planner contract with structured-output chat model
// graphs, one per decision mode.
type LLMPlanner struct {
	routeRunner   compose.Runnable[map[string]any, routeLLMOutput]
	retryRunner   compose.Runnable[map[string]any, retryLLMOutput]
	composeRunner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Planner = (*LLMPlanner)(nil)

type routeLLMOutput struct {
	NextWorker      string `json:"next_worker"`
	Reasoning       string `json:"reasoning"`
	TaskDescription string `json:"task_description,omitempty"`
	QueryClass      string `json:"query_class,omitempty"`
}

type retryLLMOutput struct {
	Action    string `json:"action"`
	Worker    string `json:"worker,omitempty"`
	Reasoning string `json:"reasoning"`
}

func New(ctx context.Context, chatModel einomodel.BaseChatModel, prompts promptx.Set) (*LLMPlanner, error) {
	routeRunner, err := compileStructuredGraph[routeLLMOutput](ctx, chatModel, prompts.Supervisor, "planner.route")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrPlanner, err)
	}
	retryRunner, err := compileStructuredGraph[retryLLMOutput](ctx, chatModel, prompts.Retry, "planner.retry_analyze")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrPlanner, err)
	}
	composeRunner, err := compileMessageGraph(ctx, chatModel, prompts.Synthesizer, "planner.synthesize")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrPlanner, err)
	}

	return &LLMPlanner{
		routeRunner:   routeRunner,
		retryRunner:   retryRunner,
		composeRunner: composeRunner,
	}, nil
}

func (p *LLMPlanner) Route(ctx context.Context, req contractx.RouteRequest) (contractx.RouteDecision, error) {
	input, err := marshalInput(map[string]any{
		"conversation": statex.Render(req.History),
		"workers":      req.Workers,
	})
	if err != nil {
		return contractx.RouteDecision{}, err
	}

	out, err := p.routeRunner.Invoke(ctx, map[string]any{"input": input})
	if err != nil {
		return contractx.RouteDecision{}, fmt.Errorf("%w: route invoke: %v", contractx.ErrPlanner, err)
	}

	next := strings.TrimSpace(out.NextWorker)
	if next == "" {
		return contractx.RouteDecision{}, fmt.Errorf("%w: next_worker is empty", contractx.ErrSchemaViolation)
	}

	return contractx.RouteDecision{
		NextWorker:      next,
		Reasoning:       strings.TrimSpace(out.Reasoning),
		TaskDescription: strings.TrimSpace(out.TaskDescription),
		QueryClass:      strings.TrimSpace(out.QueryClass),
	}, nil
}

func (p *LLMPlanner) Analyze(ctx context.Context, req contractx.RetryRequest) (contractx.RetryDecision, error) {
	input, err := marshalInput(map[string]any{
		"failed_worker": req.FailedWorker,
		"error":         req.ErrorMessage,
		"user_task":     req.UserTask,
		"workers":       req.Workers,
	})
	if err != nil {
		return contractx.RetryDecision{}, err
	}

	out, err := p.retryRunner.Invoke(ctx, map[string]any{"input": input})
	if err != nil {
		return contractx.RetryDecision{}, fmt.Errorf("%w: retry invoke: %v", contractx.ErrPlanner, err)
	}

	action := contractx.RetryAction(normalizeAction(out.Action))
	switch action {
	case contractx.RetrySame, contractx.RetryAbort:
	case contractx.RetryDifferent:
		if strings.TrimSpace(out.Worker) == "" {
			return contractx.RetryDecision{}, fmt.Errorf("%w: retry_different requires a worker", contractx.ErrSchemaViolation)
		}
	default:
		return contractx.RetryDecision{}, fmt.Errorf("%w: unsupported action=%q", contractx.ErrSchemaViolation, out.Action)
	}

	return contractx.RetryDecision{
		Action:    action,
		Worker:    strings.TrimSpace(out.Worker),
		Reasoning: strings.TrimSpace(out.Reasoning),
	}, nil
}

func (p *LLMPlanner) Compose(ctx context.Context, req contractx.ComposeRequest) (string, error) {
	input, err := marshalInput(map[string]any{
		"conversation": statex.Render(req.History),
		"question":     req.UserTask,
	})
	if err != nil {
		return "", err
	}

	msg, err := p.composeRunner.Invoke(ctx, map[string]any{"input": input})
	if err != nil {
		return "", fmt.Errorf("%w: compose invoke: %v", contractx.ErrPlanner, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: compose returned empty content", contractx.ErrSchemaViolation)
	}
	return strings.TrimSpace(msg.Content), nil
}

func marshalInput(payload map[string]any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal planner payload: %v", contractx.ErrValidation, err)
	}
	return string(raw), nil
}

func normalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	return strings.ReplaceAll(action, "-", "_")
}
