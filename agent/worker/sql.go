package worker

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

// SQLOpener dials the database for one invocation. The worker closes the
// returned engine before returning.
type SQLOpener func(ctx context.Context) (contractx.SQLEngine, error)

// SQLWorker answers structured-data questions by letting the model explore
// the database through a small read-only toolset.
type SQLWorker struct {
	open         SQLOpener
	runner       compose.Runnable[[]*schema.Message, *schema.Message]
	systemPrompt string
}

var _ contractx.Worker = (*SQLWorker)(nil)

func NewSQL(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	open SQLOpener,
) (*SQLWorker, error) {
	if open == nil {
		return nil, fmt.Errorf("sql worker: nil opener")
	}

	toolModel, err := chatModel.WithTools(sqlToolInfos())
	if err != nil {
		return nil, fmt.Errorf("sql worker: bind tools: %w", err)
	}
	runner, err := compileChatGraph(ctx, toolModel, "worker.sql")
	if err != nil {
		return nil, fmt.Errorf("sql worker: %w", err)
	}

	return &SQLWorker{
		open:         open,
		runner:       runner,
		systemPrompt: systemPrompt,
	}, nil
}

func (w *SQLWorker) Name() string { return NameSQL }

func (w *SQLWorker) Invoke(ctx context.Context, task string, history []statex.Turn) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", &contractx.WorkerError{
			Kind:    contractx.KindValidation,
			Worker:  NameSQL,
			Message: "empty task",
		}
	}

	engine, err := w.open(ctx)
	if err != nil {
		return "", &contractx.WorkerError{
			Kind:    contractx.KindConnection,
			Worker:  NameSQL,
			Message: fmt.Sprintf("open database: %v", err),
		}
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("worker", NameSQL).Msg("close database engine")
		}
	}()

	msgs := seedMessages(w.systemPrompt, task, history)
	answer, err := runToolLoop(ctx, w.runner, msgs, sqlToolExecutor(engine))
	if err != nil {
		return "", contractx.AsWorkerError(NameSQL, err)
	}
	return answer, nil
}
