package contract

import (
	statex "github.com/hierarch-ai/hrag/agent/state"
)

// RouteFinish is the planner's signal that enough information has been
// gathered and the run should move to synthesis.
const RouteFinish = "FINISH"

type RouteRequest struct {
	History []statex.Turn `json:"history"`
	Workers []string      `json:"workers"`
}

type RouteDecision struct {
	NextWorker      string `json:"next_worker"`
	Reasoning       string `json:"reasoning"`
	TaskDescription string `json:"task_description,omitempty"`
	QueryClass      string `json:"query_class,omitempty"`
}

type RetryAction string

const (
	RetrySame      RetryAction = "retry_same"
	RetryDifferent RetryAction = "retry_different"
	RetryAbort     RetryAction = "abort"
)

type RetryRequest struct {
	FailedWorker string   `json:"failed_worker"`
	ErrorMessage string   `json:"error_message"`
	UserTask     string   `json:"user_task"`
	Workers      []string `json:"workers"`
}

type RetryDecision struct {
	Action    RetryAction `json:"action"`
	Worker    string      `json:"worker,omitempty"`
	Reasoning string      `json:"reasoning"`
}

type ComposeRequest struct {
	History  []statex.Turn `json:"history"`
	UserTask string        `json:"user_task"`
}

type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type TableSchema struct {
	Table   string       `json:"table"`
	Columns []ColumnInfo `json:"columns"`
}

type QueryResult struct {
	Rows       []map[string]any `json:"rows"`
	RowCount   int              `json:"row_count"`
	Truncated  bool             `json:"truncated,omitempty"`
	DurationMS float64          `json:"execution_time_ms"`
}

type VectorMatch struct {
	ID       string            `json:"id"`
	Score    float64           `json:"score"`
	Text     string            `json:"text"`
	Source   string            `json:"source,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
