package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
)

const defaultMaxRows = 100

// Config holds the connection settings for one read-only engine.
type Config struct {
	DSN     string `envconfig:"DSN" required:"true"`
	MaxRows int    `envconfig:"MAX_ROWS" default:"100"`
}

// Engine is a read-only query engine over Postgres. It satisfies
// contract.SQLEngine; statements that are not plain SELECTs are rejected
// before they reach the database.
type Engine struct {
	db      *bun.DB
	maxRows int
}

var _ contractx.SQLEngine = (*Engine)(nil)

// Open dials the database and verifies the connection before returning.
func Open(ctx context.Context, cfg Config) (*Engine, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", contractx.ErrValidation)
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", contractx.ErrConnection, err)
	}

	return &Engine{db: db, maxRows: maxRows}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// ListTables returns the table names in the public schema.
func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", contractx.ErrExecution, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%w: scan table name: %v", contractx.ErrExecution, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", contractx.ErrExecution, err)
	}
	return tables, nil
}

// TableSchema returns column metadata for one table.
func (e *Engine) TableSchema(ctx context.Context, table string) (contractx.TableSchema, error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return contractx.TableSchema{}, fmt.Errorf("%w: empty table name", contractx.ErrValidation)
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = ?
		ORDER BY ordinal_position`, table)
	if err != nil {
		return contractx.TableSchema{}, fmt.Errorf("%w: inspect %s: %v", contractx.ErrExecution, table, err)
	}
	defer rows.Close()

	out := contractx.TableSchema{Table: table}
	for rows.Next() {
		var col contractx.ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable); err != nil {
			return contractx.TableSchema{}, fmt.Errorf("%w: scan column: %v", contractx.ErrExecution, err)
		}
		col.Nullable = strings.EqualFold(nullable, "YES")
		out.Columns = append(out.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return contractx.TableSchema{}, fmt.Errorf("%w: inspect %s: %v", contractx.ErrExecution, table, err)
	}
	if len(out.Columns) == 0 {
		return contractx.TableSchema{}, fmt.Errorf("%w: table %q not found", contractx.ErrExecution, table)
	}
	return out, nil
}

// Execute runs one validated SELECT statement and returns at most maxRows rows.
func (e *Engine) Execute(ctx context.Context, query string) (contractx.QueryResult, error) {
	if err := ValidateReadOnly(query); err != nil {
		return contractx.QueryResult{}, err
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: %v", contractx.ErrExecution, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: read columns: %v", contractx.ErrExecution, err)
	}

	result := contractx.QueryResult{}
	for rows.Next() {
		if len(result.Rows) >= e.maxRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return contractx.QueryResult{}, fmt.Errorf("%w: scan row: %v", contractx.ErrExecution, err)
		}

		row := make(map[string]any, len(columns))
		for i, name := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[name] = string(raw)
			} else {
				row[name] = values[i]
			}
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return contractx.QueryResult{}, fmt.Errorf("%w: %v", contractx.ErrExecution, err)
	}

	result.RowCount = len(result.Rows)
	result.DurationMS = float64(time.Since(start).Microseconds()) / 1000
	return result, nil
}

var writeKeywords = []string{
	"INSERT", "UPDATE", "DELETE", "DROP", "ALTER",
	"CREATE", "TRUNCATE", "GRANT", "REVOKE", "MERGE",
}

// ValidateReadOnly rejects anything that is not a single SELECT (or WITH)
// statement.
func ValidateReadOnly(query string) error {
	stmt := strings.ToUpper(strings.TrimSpace(query))
	if stmt == "" {
		return fmt.Errorf("%w: empty statement", contractx.ErrValidation)
	}
	for _, kw := range writeKeywords {
		if strings.HasPrefix(stmt, kw) {
			return fmt.Errorf("%w: %s statements are not allowed", contractx.ErrValidation, kw)
		}
	}
	if !strings.HasPrefix(stmt, "SELECT") && !strings.HasPrefix(stmt, "WITH") {
		return fmt.Errorf("%w: only SELECT statements are allowed", contractx.ErrValidation)
	}
	if trailing := strings.TrimRight(stmt, "; \t\n"); strings.ContainsRune(trailing, ';') {
		return fmt.Errorf("%w: multiple statements are not allowed", contractx.ErrValidation)
	}
	return nil
}
