package worker

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

const (
	NameSQL    = "sql"
	NameVector = "vector"
)

// maxToolRounds bounds the model/tool loop inside one worker invocation.
const maxToolRounds = 5

const historyContextWindow = 6

// compileChatGraph wires a bare chat-model graph over a message slice so a
// worker can extend the conversation with tool results between rounds.
func compileChatGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	graphName string,
) (compose.Runnable[[]*schema.Message, *schema.Message], error) {
	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, fmt.Errorf("add edge start->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", graphName, err)
	}
	return runner, nil
}

// toolExecutor runs one requested tool call. Soft failures come back as
// result text so the model can correct itself; a returned error aborts the
// invocation.
type toolExecutor func(ctx context.Context, call schema.ToolCall) (string, error)

// runToolLoop drives the model until it answers in plain text instead of
// requesting tools, or the round budget runs out.
func runToolLoop(
	ctx context.Context,
	runner compose.Runnable[[]*schema.Message, *schema.Message],
	msgs []*schema.Message,
	exec toolExecutor,
) (string, error) {
	for round := 0; round < maxToolRounds; round++ {
		msg, err := runner.Invoke(ctx, msgs)
		if err != nil {
			return "", fmt.Errorf("%w: model invoke: %v", contractx.ErrExecution, err)
		}
		if msg == nil {
			return "", fmt.Errorf("%w: model returned no message", contractx.ErrExecution)
		}

		if len(msg.ToolCalls) == 0 {
			content := strings.TrimSpace(msg.Content)
			if content == "" {
				return "", fmt.Errorf("%w: model returned empty answer", contractx.ErrExecution)
			}
			return content, nil
		}

		msgs = append(msgs, msg)
		for _, call := range msg.ToolCalls {
			result, err := exec(ctx, call)
			if err != nil {
				return "", err
			}
			msgs = append(msgs, schema.ToolMessage(result, call.ID))
		}
	}
	return "", fmt.Errorf("%w: no final answer after %d tool rounds", contractx.ErrExecution, maxToolRounds)
}

// seedMessages builds the initial conversation for one invocation: the
// worker's system prompt, a clipped view of the run so far, and the task.
func seedMessages(systemPrompt, task string, history []statex.Turn) []*schema.Message {
	var b strings.Builder
	if len(history) > 1 {
		window := history
		if len(window) > historyContextWindow {
			window = window[len(window)-historyContextWindow:]
		}
		b.WriteString("Conversation so far:\n")
		b.WriteString(statex.Render(window))
		b.WriteString("\n\n")
	}
	b.WriteString("Task: ")
	b.WriteString(task)

	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(b.String()),
	}
}
