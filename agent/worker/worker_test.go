package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	statex "github.com/hierarch-ai/hrag/agent/state"
)

// fakeToolModel plays back scripted assistant messages and records the
// conversation it was shown on each round.
type fakeToolModel struct {
	responses []*schema.Message
	err       error

	calls    int
	recorded [][]*schema.Message
	tools    []*schema.ToolInfo
}

var _ einomodel.ToolCallingChatModel = (*fakeToolModel)(nil)

func (m *fakeToolModel) Generate(_ context.Context, msgs []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.calls++
	m.recorded = append(m.recorded, msgs)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("tool model script exhausted")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *fakeToolModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("streaming not scripted")
}

func (m *fakeToolModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	m.tools = tools
	return m, nil
}

func toolCallMsg(id, name, args string) *schema.Message {
	return schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}})
}

type fakeSQLEngine struct {
	tables      []string
	tableSchema contractx.TableSchema
	execResult  contractx.QueryResult
	execErr     error

	execCalls int
	lastQuery string
	closed    bool
}

func (e *fakeSQLEngine) ListTables(context.Context) ([]string, error) { return e.tables, nil }

func (e *fakeSQLEngine) TableSchema(context.Context, string) (contractx.TableSchema, error) {
	return e.tableSchema, nil
}

func (e *fakeSQLEngine) Execute(_ context.Context, query string) (contractx.QueryResult, error) {
	e.execCalls++
	e.lastQuery = query
	if e.execErr != nil {
		return contractx.QueryResult{}, e.execErr
	}
	return e.execResult, nil
}

func (e *fakeSQLEngine) Close() error {
	e.closed = true
	return nil
}

type fakeVectorIndex struct {
	matches   []contractx.VectorMatch
	searchErr error

	searchCalls int
	lastQuery   string
	lastFilter  map[string]string
	closed      bool
}

func (v *fakeVectorIndex) Search(_ context.Context, query string, _ int) ([]contractx.VectorMatch, error) {
	v.searchCalls++
	v.lastQuery = query
	return v.matches, v.searchErr
}

func (v *fakeVectorIndex) SearchFiltered(_ context.Context, query string, filter map[string]string, _ int) ([]contractx.VectorMatch, error) {
	v.searchCalls++
	v.lastQuery = query
	v.lastFilter = filter
	return v.matches, v.searchErr
}

func (v *fakeVectorIndex) Close() error {
	v.closed = true
	return nil
}

func newSQLWorker(t *testing.T, model *fakeToolModel, engine *fakeSQLEngine) *SQLWorker {
	t.Helper()
	w, err := NewSQL(context.Background(), model, "You query databases.",
		func(context.Context) (contractx.SQLEngine, error) { return engine, nil })
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	return w
}

func TestSQLWorkerAnswersAfterQuery(t *testing.T) {
	t.Parallel()

	engine := &fakeSQLEngine{execResult: contractx.QueryResult{
		Rows:     []map[string]any{{"count": 7}},
		RowCount: 1,
	}}
	model := &fakeToolModel{responses: []*schema.Message{
		toolCallMsg("c1", toolExecuteQuery, `{"sql":"SELECT COUNT(*) AS count FROM users"}`),
		schema.AssistantMessage("There are 7 users.", nil),
	}}

	w := newSQLWorker(t, model, engine)
	out, err := w.Invoke(context.Background(), "how many users?", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "There are 7 users." {
		t.Fatalf("out = %q", out)
	}
	if engine.execCalls != 1 {
		t.Fatalf("exec calls = %d, want 1", engine.execCalls)
	}
	if engine.lastQuery != "SELECT COUNT(*) AS count FROM users" {
		t.Fatalf("query = %q", engine.lastQuery)
	}
	if !engine.closed {
		t.Fatal("engine must be closed after invocation")
	}

	// Second round must include the tool result.
	second := model.recorded[1]
	last := second[len(second)-1]
	if last.Role != schema.Tool || !strings.Contains(last.Content, `"count":7`) {
		t.Fatalf("tool result not fed back: %+v", last)
	}
}

func TestSQLWorkerFeedsQueryErrorsBack(t *testing.T) {
	t.Parallel()

	engine := &fakeSQLEngine{execErr: fmt.Errorf("%w: DELETE statements are not allowed", contractx.ErrValidation)}
	model := &fakeToolModel{responses: []*schema.Message{
		toolCallMsg("c1", toolExecuteQuery, `{"sql":"DELETE FROM users"}`),
		schema.AssistantMessage("I cannot modify data; only reads are possible.", nil),
	}}

	w := newSQLWorker(t, model, engine)
	out, err := w.Invoke(context.Background(), "delete all users", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "only reads") {
		t.Fatalf("out = %q", out)
	}

	second := model.recorded[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "Error:") {
		t.Fatalf("soft failure not surfaced to model: %q", last.Content)
	}
}

func TestSQLWorkerOpenFailureIsConnectionError(t *testing.T) {
	t.Parallel()

	model := &fakeToolModel{}
	w, err := NewSQL(context.Background(), model, "prompt",
		func(context.Context) (contractx.SQLEngine, error) {
			return nil, errors.New("dial tcp: refused")
		})
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}

	_, err = w.Invoke(context.Background(), "anything", nil)
	if !errors.Is(err, contractx.ErrConnection) {
		t.Fatalf("err = %v, want connection error", err)
	}
	var we *contractx.WorkerError
	if !errors.As(err, &we) || we.Worker != NameSQL {
		t.Fatalf("err = %v, want WorkerError from %s", err, NameSQL)
	}
	if model.calls != 0 {
		t.Fatalf("model calls = %d, want 0", model.calls)
	}
}

func TestSQLWorkerEmptyTask(t *testing.T) {
	t.Parallel()

	engine := &fakeSQLEngine{}
	w := newSQLWorker(t, &fakeToolModel{}, engine)

	_, err := w.Invoke(context.Background(), "  ", nil)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestSQLWorkerRoundBudget(t *testing.T) {
	t.Parallel()

	engine := &fakeSQLEngine{tables: []string{"users"}}
	responses := make([]*schema.Message, 0, maxToolRounds)
	for i := 0; i < maxToolRounds; i++ {
		responses = append(responses, toolCallMsg(fmt.Sprintf("c%d", i), toolListTables, `{}`))
	}
	model := &fakeToolModel{responses: responses}

	w := newSQLWorker(t, model, engine)
	_, err := w.Invoke(context.Background(), "loop forever", nil)
	if !errors.Is(err, contractx.ErrExecution) {
		t.Fatalf("err = %v, want execution error", err)
	}
	if model.calls != maxToolRounds {
		t.Fatalf("model calls = %d, want %d", model.calls, maxToolRounds)
	}
}

func TestSQLWorkerIncludesHistoryContext(t *testing.T) {
	t.Parallel()

	engine := &fakeSQLEngine{}
	model := &fakeToolModel{responses: []*schema.Message{
		schema.AssistantMessage("done", nil),
	}}

	w := newSQLWorker(t, model, engine)
	history := []statex.Turn{
		{Role: statex.RoleUser, Source: "user", Content: "original question"},
		{Role: statex.RoleWorker, Source: "vector", Content: "doc excerpt"},
	}
	if _, err := w.Invoke(context.Background(), "follow up", history); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	user := model.recorded[0][1].Content
	if !strings.Contains(user, "doc excerpt") {
		t.Fatalf("history missing from seed message: %q", user)
	}
	if !strings.Contains(user, "Task: follow up") {
		t.Fatalf("task missing from seed message: %q", user)
	}
}

func TestVectorWorkerSemanticSearch(t *testing.T) {
	t.Parallel()

	index := &fakeVectorIndex{matches: []contractx.VectorMatch{
		{ID: "d1", Score: 0.92, Text: "refund policy lasts 30 days", Source: "handbook.pdf"},
	}}
	model := &fakeToolModel{responses: []*schema.Message{
		toolCallMsg("c1", toolSemanticSearch, `{"query":"refund policy","top_k":3}`),
		schema.AssistantMessage("Refunds are accepted within 30 days.", nil),
	}}

	w, err := NewVector(context.Background(), model, "You search documents.",
		func(context.Context) (contractx.VectorIndex, error) { return index, nil })
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}

	out, err := w.Invoke(context.Background(), "what is the refund policy?", nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(out, "30 days") {
		t.Fatalf("out = %q", out)
	}
	if index.lastQuery != "refund policy" {
		t.Fatalf("query = %q", index.lastQuery)
	}
	if !index.closed {
		t.Fatal("index must be closed after invocation")
	}

	second := model.recorded[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "handbook.pdf") {
		t.Fatalf("match not fed back: %q", last.Content)
	}
}

func TestVectorWorkerKeywordSearchBuildsFilter(t *testing.T) {
	t.Parallel()

	index := &fakeVectorIndex{}
	model := &fakeToolModel{responses: []*schema.Message{
		toolCallMsg("c1", toolKeywordSearch, `{"query":"pricing","keyword":"enterprise"}`),
		schema.AssistantMessage("No enterprise pricing documents were found.", nil),
	}}

	w, err := NewVector(context.Background(), model, "prompt",
		func(context.Context) (contractx.VectorIndex, error) { return index, nil })
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}

	if _, err := w.Invoke(context.Background(), "enterprise pricing", nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if index.lastFilter["text"] != "enterprise" {
		t.Fatalf("filter = %v", index.lastFilter)
	}

	second := model.recorded[1]
	last := second[len(second)-1]
	if !strings.Contains(last.Content, "No relevant documents found") {
		t.Fatalf("empty result message = %q", last.Content)
	}
}

func TestVectorWorkerConnectionErrorAborts(t *testing.T) {
	t.Parallel()

	index := &fakeVectorIndex{searchErr: fmt.Errorf("%w: dial refused", contractx.ErrConnection)}
	model := &fakeToolModel{responses: []*schema.Message{
		toolCallMsg("c1", toolSemanticSearch, `{"query":"anything"}`),
	}}

	w, err := NewVector(context.Background(), model, "prompt",
		func(context.Context) (contractx.VectorIndex, error) { return index, nil })
	if err != nil {
		t.Fatalf("NewVector: %v", err)
	}

	_, err = w.Invoke(context.Background(), "anything", nil)
	if !errors.Is(err, contractx.ErrConnection) {
		t.Fatalf("err = %v, want connection error", err)
	}
	var we *contractx.WorkerError
	if !errors.As(err, &we) || we.Worker != NameVector {
		t.Fatalf("err = %v, want WorkerError from %s", err, NameVector)
	}
	if !index.closed {
		t.Fatal("index must be closed even on failure")
	}
}
