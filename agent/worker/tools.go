package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
)

const (
	toolListTables   = "list_tables"
	toolInspectTable = "inspect_table"
	toolExecuteQuery = "execute_query"

	toolSemanticSearch = "semantic_search"
	toolKeywordSearch  = "keyword_search"
)

func sqlToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: toolListTables,
			Desc: "List all tables available in the database.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		{
			Name: toolInspectTable,
			Desc: "Describe the columns of one table, including types and nullability.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"table": {
					Type:     schema.String,
					Desc:     "Name of the table to inspect.",
					Required: true,
				},
			}),
		},
		{
			Name: toolExecuteQuery,
			Desc: "Run a read-only SELECT statement and return the resulting rows.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"sql": {
					Type:     schema.String,
					Desc:     "A single SELECT statement. Write operations are rejected.",
					Required: true,
				},
			}),
		},
	}
}

func vectorToolInfos() []*schema.ToolInfo {
	return []*schema.ToolInfo{
		{
			Name: toolSemanticSearch,
			Desc: "Search the document index by meaning and return the closest passages.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Natural-language description of the information needed.",
					Required: true,
				},
				"top_k": {
					Type: schema.Integer,
					Desc: "Maximum number of passages to return.",
				},
			}),
		},
		{
			Name: toolKeywordSearch,
			Desc: "Search the document index by meaning, restricted to passages containing an exact keyword.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     schema.String,
					Desc:     "Natural-language description of the information needed.",
					Required: true,
				},
				"keyword": {
					Type:     schema.String,
					Desc:     "Exact term the returned passages must contain.",
					Required: true,
				},
			}),
		},
	}
}

// sqlToolExecutor bridges tool calls onto one open engine. Connection
// failures abort the invocation; query and validation failures are fed back
// to the model as text so it can rewrite the statement.
func sqlToolExecutor(engine contractx.SQLEngine) toolExecutor {
	return func(ctx context.Context, call schema.ToolCall) (string, error) {
		switch call.Function.Name {
		case toolListTables:
			tables, err := engine.ListTables(ctx)
			if err != nil {
				return toolFailure(err)
			}
			if len(tables) == 0 {
				return "The database contains no tables.", nil
			}
			return "Tables: " + strings.Join(tables, ", "), nil

		case toolInspectTable:
			table, err := argString(call.Function.Arguments, "table")
			if err != nil {
				return err.Error(), nil
			}
			tableSchema, err := engine.TableSchema(ctx, table)
			if err != nil {
				return toolFailure(err)
			}
			return marshalToolResult(tableSchema)

		case toolExecuteQuery:
			stmt, err := argString(call.Function.Arguments, "sql")
			if err != nil {
				return err.Error(), nil
			}
			result, err := engine.Execute(ctx, stmt)
			if err != nil {
				return toolFailure(err)
			}
			return marshalToolResult(result)

		default:
			return fmt.Sprintf("unknown tool %q", call.Function.Name), nil
		}
	}
}

// vectorToolExecutor bridges tool calls onto one open index.
func vectorToolExecutor(index contractx.VectorIndex) toolExecutor {
	return func(ctx context.Context, call schema.ToolCall) (string, error) {
		switch call.Function.Name {
		case toolSemanticSearch:
			query, err := argString(call.Function.Arguments, "query")
			if err != nil {
				return err.Error(), nil
			}
			topK := argInt(call.Function.Arguments, "top_k")
			matches, err := index.Search(ctx, query, topK)
			if err != nil {
				return toolFailure(err)
			}
			return renderMatches(query, matches), nil

		case toolKeywordSearch:
			query, err := argString(call.Function.Arguments, "query")
			if err != nil {
				return err.Error(), nil
			}
			keyword, err := argString(call.Function.Arguments, "keyword")
			if err != nil {
				return err.Error(), nil
			}
			matches, err := index.SearchFiltered(ctx, query, map[string]string{"text": keyword}, 0)
			if err != nil {
				return toolFailure(err)
			}
			return renderMatches(query, matches), nil

		default:
			return fmt.Sprintf("unknown tool %q", call.Function.Name), nil
		}
	}
}

func toolFailure(err error) (string, error) {
	if errors.Is(err, contractx.ErrConnection) {
		return "", err
	}
	return "Error: " + err.Error(), nil
}

func renderMatches(query string, matches []contractx.VectorMatch) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No relevant documents found for: %s", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d passages for %q:\n", len(matches), query)
	for i, m := range matches {
		fmt.Fprintf(&b, "%d. [score=%.3f source=%s] %s\n", i+1, m.Score, m.Source, m.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func marshalToolResult(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: marshal tool result: %v", contractx.ErrExecution, err)
	}
	return string(raw), nil
}

func argString(raw, key string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return "", fmt.Errorf("malformed tool arguments: %v", err)
	}
	value, ok := args[key].(string)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return strings.TrimSpace(value), nil
}

func argInt(raw, key string) int {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return 0
	}
	if value, ok := args[key].(float64); ok {
		return int(value)
	}
	return 0
}
