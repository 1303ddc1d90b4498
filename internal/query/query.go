package query

import (
	"context"
	"time"
)

type Request struct {
	SQL      string
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Engine is a live connection to the backing analytical engine. ID is unique
// per opened connection and never reused, so it is safe as a cache key.
type Engine interface {
	ID() string
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
	Execute(ctx context.Context, request Request) (Result, error)
	Close() error
}
