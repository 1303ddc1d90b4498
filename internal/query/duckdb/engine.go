package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/maerai/maer/internal/query"
)

// Engine owns one in-memory DuckDB database. The pool is pinned to a single
// connection so statements from one session never run concurrently.
type Engine struct {
	id string
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

func Open(ctx context.Context) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	return &Engine{id: uuid.NewString(), db: db}, nil
}

func (e *Engine) ID() string {
	return e.id
}

// DB exposes the underlying handle for dataset loading.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Lockdown turns off access to files, URLs and extensions and freezes the
// configuration so later statements cannot turn it back on. Data already
// loaded into tables stays queryable.
func (e *Engine) Lockdown(ctx context.Context) error {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lock down duckdb: %w", err)
		}
	}
	return nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

func (e *Engine) ListTables(ctx context.Context) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("show tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (e *Engine) ListColumns(ctx context.Context, table string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", QuoteString(table)))
	if err != nil {
		return nil, fmt.Errorf("table info %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	fields, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("table info columns: %w", err)
	}
	nameIndex := -1
	for i, field := range fields {
		if field == "name" {
			nameIndex = i
			break
		}
	}
	if nameIndex < 0 {
		return nil, fmt.Errorf("table info %q: missing name column", table)
	}

	columns := make([]string, 0)
	for rows.Next() {
		values := make([]any, len(fields))
		targets := make([]any, len(fields))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("scan table info: %w", err)
		}
		columns = append(columns, fmt.Sprint(normalizeValue(values[nameIndex])))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate table info: %w", err)
	}
	return columns, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if request.RowLimit > 0 && len(resultRows) >= request.RowLimit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:   columns,
		Rows:      resultRows,
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	default:
		return typed
	}
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}
