package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/maerai/maer/internal/query/duckdb"
)

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxIdleTime time.Duration
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}
	return db, nil
}

const listColumnsSQL = `
SELECT c.table_name, c.column_name, c.data_type
FROM information_schema.columns c
JOIN information_schema.tables t
  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
ORDER BY c.table_name, c.ordinal_position`

// Source copies every base table of one Postgres schema into the engine.
// Each call to Materialize takes a fresh snapshot.
type Source struct {
	db     *sql.DB
	schema string
}

func NewSource(db *sql.DB, schema string) *Source {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	return &Source{db: db, schema: schema}
}

func (s *Source) Name() string {
	return "postgres"
}

func (s *Source) Close() error {
	return s.db.Close()
}

type column struct {
	name     string
	dataType string
}

type table struct {
	name    string
	columns []column
}

func (s *Source) Materialize(ctx context.Context, engine *duckdb.Engine) ([]string, error) {
	tables, err := s.describe(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tables))
	for _, tbl := range tables {
		if err := s.copyTable(ctx, engine, tbl); err != nil {
			return nil, fmt.Errorf("copy %s.%s: %w", s.schema, tbl.name, err)
		}
		names = append(names, tbl.name)
	}
	return names, nil
}

func (s *Source) describe(ctx context.Context) ([]table, error) {
	rows, err := s.db.QueryContext(ctx, listColumnsSQL, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list postgres columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tables := make([]table, 0)
	for rows.Next() {
		var tableName string
		var col column
		if err := rows.Scan(&tableName, &col.name, &col.dataType); err != nil {
			return nil, fmt.Errorf("scan postgres column: %w", err)
		}
		if len(tables) == 0 || tables[len(tables)-1].name != tableName {
			tables = append(tables, table{name: tableName})
		}
		last := &tables[len(tables)-1]
		last.columns = append(last.columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate postgres columns: %w", err)
	}
	return tables, nil
}

func (s *Source) copyTable(ctx context.Context, engine *duckdb.Engine, tbl table) error {
	defs := make([]string, len(tbl.columns))
	selected := make([]string, len(tbl.columns))
	placeholders := make([]string, len(tbl.columns))
	types := make([]string, len(tbl.columns))
	for i, col := range tbl.columns {
		types[i] = DuckDBType(col.dataType)
		defs[i] = duckdb.QuoteIdent(col.name) + " " + types[i]
		selected[i] = pgx.Identifier{col.name}.Sanitize()
		placeholders[i] = "?"
	}

	target := duckdb.QuoteIdent(tbl.name)
	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", target, strings.Join(defs, ", "))
	if _, err := engine.DB().ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	source := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), pgx.Identifier{s.schema, tbl.name}.Sanitize())
	rows, err := s.db.QueryContext(ctx, source)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tx, err := engine.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", target, strings.Join(placeholders, ", ")))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = insert.Close() }()

	for rows.Next() {
		values := make([]any, len(tbl.columns))
		targets := make([]any, len(tbl.columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			values[i] = coerce(value, types[i])
		}
		if _, err := insert.ExecContext(ctx, values...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return tx.Commit()
}

// coerce turns driver text into the Go type the target column expects. Values
// that do not parse are passed through for DuckDB to reject.
func coerce(value any, duckType string) any {
	if raw, ok := value.([]byte); ok {
		value = string(raw)
	}
	text, ok := value.(string)
	if !ok {
		return value
	}
	switch duckType {
	case "DOUBLE":
		if parsed, err := strconv.ParseFloat(text, 64); err == nil {
			return parsed
		}
	case "BIGINT":
		if parsed, err := strconv.ParseInt(text, 10, 64); err == nil {
			return parsed
		}
	}
	return text
}

// DuckDBType maps an information_schema data_type onto a DuckDB column type.
// Anything without a close equivalent lands in VARCHAR.
func DuckDBType(pgType string) string {
	switch strings.ToLower(strings.TrimSpace(pgType)) {
	case "smallint", "integer", "bigint":
		return "BIGINT"
	case "numeric", "decimal", "real", "double precision":
		return "DOUBLE"
	case "timestamp without time zone", "timestamp with time zone", "timestamp":
		return "TIMESTAMP"
	case "date":
		return "DATE"
	case "boolean":
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}
