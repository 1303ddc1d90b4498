package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maerai/maer/internal/query/duckdb"
)

// DirSource copies every csv and parquet file in a directory into a table
// named after the file.
type DirSource struct {
	Dir string
}

func NewDirSource(dir string) (*DirSource, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("dataset dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve dataset dir: %w", err)
	}
	return &DirSource{Dir: abs}, nil
}

func (s *DirSource) Name() string {
	return "dir"
}

func (s *DirSource) Materialize(ctx context.Context, engine *duckdb.Engine) ([]string, error) {
	return registerFiles(ctx, engine, s.Dir)
}

// registerFiles loads each supported file into its own table. The engine
// disables file access once loading is done, so nothing may read lazily.
func registerFiles(ctx context.Context, engine *duckdb.Engine, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	tables := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		table, reader, ok := fileRelation(filepath.Join(dir, entry.Name()))
		if !ok {
			continue
		}
		stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS SELECT * FROM %s", duckdb.QuoteIdent(table), reader)
		if _, err := engine.DB().ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("register %s: %w", entry.Name(), err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func fileRelation(path string) (string, string, bool) {
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(name))
	table := strings.TrimSuffix(name, filepath.Ext(name))
	if table == "" {
		return "", "", false
	}
	switch ext {
	case ".csv":
		return table, fmt.Sprintf("read_csv_auto(%s, HEADER=TRUE)", duckdb.QuoteString(path)), true
	case ".parquet":
		return table, fmt.Sprintf("read_parquet(%s)", duckdb.QuoteString(path)), true
	default:
		return "", "", false
	}
}
