package contract

import (
	"context"

	statex "github.com/hierarch-ai/hrag/agent/state"
)

// Worker is a specialized capability the engine can dispatch a task to.
// Invoke must map every underlying fault to a *WorkerError; raw errors
// from backing systems never cross this boundary.
type Worker interface {
	Name() string
	Invoke(ctx context.Context, task string, history []statex.Turn) (string, error)
}

// Planner is the routing/decision oracle consulted by the supervisor,
// the retry coordinator, and the synthesizer. Implementations may be
// non-deterministic; callers validate every decision before acting on it.
type Planner interface {
	Route(ctx context.Context, req RouteRequest) (RouteDecision, error)
	Analyze(ctx context.Context, req RetryRequest) (RetryDecision, error)
	Compose(ctx context.Context, req ComposeRequest) (string, error)
}

// SQLEngine is the structured-query backing system consumed by the SQL worker.
type SQLEngine interface {
	ListTables(ctx context.Context) ([]string, error)
	TableSchema(ctx context.Context, table string) (TableSchema, error)
	Execute(ctx context.Context, query string) (QueryResult, error)
	Close() error
}

// VectorIndex is the semantic index consumed by the vector worker.
type VectorIndex interface {
	Search(ctx context.Context, query string, topK int) ([]VectorMatch, error)
	SearchFiltered(ctx context.Context, query string, filter map[string]string, topK int) ([]VectorMatch, error)
	Close() error
}
