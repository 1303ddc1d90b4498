package schema

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/maerai/maer/internal/observability"
)

const DefaultColumnLimit = 10

// Source is the catalog surface of a backing-engine connection.
type Source interface {
	ID() string
	ListTables(ctx context.Context) ([]string, error)
	ListColumns(ctx context.Context, table string) ([]string, error)
}

type Table struct {
	Name    string   `json:"table_name"`
	Columns []string `json:"columns"`
}

type entry struct {
	tables []Table
	text   string
}

// Catalog memoizes schema descriptions per connection ID. Entries live until
// Invalidate or Reset is called; a reloaded dataset gets a new connection ID
// and therefore never sees a previous connection's schema.
type Catalog struct {
	columnLimit int

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

func NewCatalog(columnLimit int) *Catalog {
	if columnLimit <= 0 {
		columnLimit = DefaultColumnLimit
	}
	return &Catalog{columnLimit: columnLimit, entries: map[string]entry{}}
}

// Describe renders one "- table(col1, col2, ...)" line per table in catalog
// order.
func (c *Catalog) Describe(ctx context.Context, src Source) (string, error) {
	e, err := c.load(ctx, src)
	if err != nil {
		return "", err
	}
	return e.text, nil
}

func (c *Catalog) Tables(ctx context.Context, src Source) ([]Table, error) {
	e, err := c.load(ctx, src)
	if err != nil {
		return nil, err
	}
	out := make([]Table, len(e.tables))
	for i, table := range e.tables {
		out[i] = Table{Name: table.Name, Columns: append([]string(nil), table.Columns...)}
	}
	return out, nil
}

func (c *Catalog) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
	c.group.Forget(id)
}

func (c *Catalog) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		c.group.Forget(id)
	}
	c.entries = map[string]entry{}
}

func (c *Catalog) load(ctx context.Context, src Source) (entry, error) {
	if src == nil {
		return entry{}, fmt.Errorf("schema source is required")
	}
	id := src.ID()
	if id == "" {
		return entry{}, fmt.Errorf("schema source id is required")
	}

	c.mu.RLock()
	cached, ok := c.entries[id]
	c.mu.RUnlock()
	if ok {
		observability.ObserveSchemaCache(true)
		return cached, nil
	}

	// Only the caller that runs introspection counts a miss; callers that
	// joined it or found the entry stored meanwhile count a hit.
	introspected := false
	value, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.RLock()
		cached, ok := c.entries[id]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
		introspected = true
		observability.ObserveSchemaCache(false)
		built, err := c.introspect(ctx, src)
		if err != nil {
			return entry{}, err
		}
		c.mu.Lock()
		c.entries[id] = built
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return entry{}, err
	}
	if !introspected {
		observability.ObserveSchemaCache(true)
	}
	return value.(entry), nil
}

func (c *Catalog) introspect(ctx context.Context, src Source) (entry, error) {
	names, err := src.ListTables(ctx)
	if err != nil {
		return entry{}, fmt.Errorf("list tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	lines := make([]string, 0, len(names))
	for _, name := range names {
		columns, err := src.ListColumns(ctx, name)
		if err != nil {
			return entry{}, fmt.Errorf("list columns for %q: %w", name, err)
		}
		if len(columns) > c.columnLimit {
			columns = columns[:c.columnLimit]
		}
		tables = append(tables, Table{Name: name, Columns: columns})
		lines = append(lines, fmt.Sprintf("- %s(%s)", name, strings.Join(columns, ", ")))
	}
	return entry{tables: tables, text: strings.Join(lines, "\n")}, nil
}
