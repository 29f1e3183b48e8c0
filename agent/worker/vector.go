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

// VectorOpener dials the document index for one invocation.
type VectorOpener func(ctx context.Context) (contractx.VectorIndex, error)

// VectorWorker answers unstructured questions by searching the document
// index, semantically or narrowed by keyword.
type VectorWorker struct {
	open         VectorOpener
	runner       compose.Runnable[[]*schema.Message, *schema.Message]
	systemPrompt string
}

var _ contractx.Worker = (*VectorWorker)(nil)

func NewVector(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	open VectorOpener,
) (*VectorWorker, error) {
	if open == nil {
		return nil, fmt.Errorf("vector worker: nil opener")
	}

	toolModel, err := chatModel.WithTools(vectorToolInfos())
	if err != nil {
		return nil, fmt.Errorf("vector worker: bind tools: %w", err)
	}
	runner, err := compileChatGraph(ctx, toolModel, "worker.vector")
	if err != nil {
		return nil, fmt.Errorf("vector worker: %w", err)
	}

	return &VectorWorker{
		open:         open,
		runner:       runner,
		systemPrompt: systemPrompt,
	}, nil
}

func (w *VectorWorker) Name() string { return NameVector }

func (w *VectorWorker) Invoke(ctx context.Context, task string, history []statex.Turn) (string, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return "", &contractx.WorkerError{
			Kind:    contractx.KindValidation,
			Worker:  NameVector,
			Message: "empty task",
		}
	}

	index, err := w.open(ctx)
	if err != nil {
		return "", &contractx.WorkerError{
			Kind:    contractx.KindConnection,
			Worker:  NameVector,
			Message: fmt.Sprintf("open vector index: %v", err),
		}
	}
	defer func() {
		if cerr := index.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("worker", NameVector).Msg("close vector index")
		}
	}()

	msgs := seedMessages(w.systemPrompt, task, history)
	answer, err := runToolLoop(ctx, w.runner, msgs, vectorToolExecutor(index))
	if err != nil {
		return "", contractx.AsWorkerError(NameVector, err)
	}
	return answer, nil
}
