package analyst

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/query/duckdb"
)

func TestIsReadOnly(t *testing.T) {
	tests := []struct {
		statement string
		want      bool
	}{
		{"SELECT 1", true},
		{"  select * from sales_enriched;", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"SHOW TABLES", true},
		{"DESCRIBE sales_enriched", true},
		{"SUMMARIZE sales_enriched", true},
		{"EXPLAIN SELECT 1", true},
		{"FROM sales_enriched LIMIT 3", true},
		{"SELECT(1)", true},
		{"select;;", true},
		{"", false},
		{" ; ", false},
		{"DROP TABLE olist_orders_dataset", false},
		{"INSERT INTO t VALUES (1)", false},
		{"SELECT 1; DROP TABLE t", false},
		{"selection_table", false},
		{"withdraw", false},
		{"COPY t TO 'out.csv'", false},
		{"SELECT ';'", false},
	}
	for _, tc := range tests {
		if got := IsReadOnly(tc.statement); got != tc.want {
			t.Errorf("IsReadOnly(%q) = %v, want %v", tc.statement, got, tc.want)
		}
	}
}

func TestRunManualQueryLeavesMemoryUntouched(t *testing.T) {
	f := newFixture(t, testOptions())

	result, err := f.service.RunManualQuery(context.Background(), f.session, "SELECT COUNT(*) AS n FROM olist_orders_dataset")
	if err != nil {
		t.Fatalf("RunManualQuery() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(300) {
		t.Fatalf("rows = %v", result.Rows)
	}
	if f.session.Memory.Len() != 0 {
		t.Fatalf("memory len = %d", f.session.Memory.Len())
	}
	if len(f.client.prompts) != 0 {
		t.Fatal("manual query should not call the model")
	}
}

func TestRunManualQueryErrors(t *testing.T) {
	f := newFixture(t, testOptions())
	ctx := context.Background()

	if _, err := f.service.RunManualQuery(ctx, f.session, "  "); !errors.Is(err, ErrEmptyStatement) {
		t.Fatalf("empty statement error = %v", err)
	}
	_, err := f.service.RunManualQuery(ctx, f.session, "SELECT missing_column FROM sales_enriched")
	if err == nil || !strings.Contains(err.Error(), "missing_column") {
		t.Fatalf("engine error = %v", err)
	}

	// Writes are allowed unless the guard is on.
	if _, err := f.service.RunManualQuery(ctx, f.session, "CREATE TABLE scratch AS SELECT 1 AS x"); err != nil {
		t.Fatalf("unguarded write error = %v", err)
	}
}

func TestRunManualQueryReadOnlyGuard(t *testing.T) {
	opts := testOptions()
	opts.ReadOnlyManual = true
	f := newFixture(t, opts)
	ctx := context.Background()

	if _, err := f.service.RunManualQuery(ctx, f.session, "DROP VIEW sales_enriched"); !errors.Is(err, ErrStatementNotAllowed) {
		t.Fatalf("guarded write error = %v", err)
	}
	if _, err := f.service.RunManualQuery(ctx, f.session, "SELECT 1 AS one;"); err != nil {
		t.Fatalf("guarded read error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "credentials.csv")
	if err := os.WriteFile(path, []byte("user,password\nroot,hunter2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	fileRead := "SELECT * FROM read_csv_auto(" + duckdb.QuoteString(path) + ")"
	if !IsReadOnly(fileRead) {
		t.Fatalf("IsReadOnly(%q) = false", fileRead)
	}
	if _, err := f.service.RunManualQuery(ctx, f.session, fileRead); err == nil {
		t.Fatal("file read succeeded on a loaded session engine")
	}
}

func TestRunPreset(t *testing.T) {
	f := newFixture(t, testOptions())
	ctx := context.Background()

	for _, preset := range f.service.Presets() {
		got, result, err := f.service.RunPreset(ctx, f.session, preset.Name)
		if err != nil {
			t.Fatalf("RunPreset(%q) error = %v", preset.Name, err)
		}
		if got.Title != preset.Title || len(result.Columns) != 2 {
			t.Fatalf("RunPreset(%q) = %+v, columns %v", preset.Name, got, result.Columns)
		}
	}

	_, result, err := f.service.RunPreset(ctx, f.session, "top-categories")
	if err != nil {
		t.Fatalf("RunPreset() error = %v", err)
	}
	if len(result.Rows) == 0 || len(result.Rows) > 5 {
		t.Fatalf("top-categories rows = %d", len(result.Rows))
	}

	if _, _, err := f.service.RunPreset(ctx, f.session, "nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("unknown preset error = %v", err)
	}
	if f.session.Memory.Len() != 0 {
		t.Fatal("presets should not touch memory")
	}
}

func TestPresetsUseConfiguredView(t *testing.T) {
	presets := Presets("fact_sales", "purchased_at")
	if len(presets) != 4 {
		t.Fatalf("presets = %d", len(presets))
	}
	if !strings.Contains(presets[1].SQL, "strftime(purchased_at,'%Y-%m')") || !strings.Contains(presets[1].SQL, "FROM fact_sales") {
		t.Fatalf("monthly SQL = %s", presets[1].SQL)
	}
}

func TestOverview(t *testing.T) {
	f := newFixture(t, testOptions())

	overview, err := f.service.Overview(context.Background(), f.session)
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if overview.KPIs.TotalOrders <= 0 || overview.KPIs.TotalOrders > 300 {
		t.Fatalf("TotalOrders = %d", overview.KPIs.TotalOrders)
	}
	if overview.KPIs.TotalRevenue <= 0 || overview.KPIs.CustomerCities <= 0 {
		t.Fatalf("KPIs = %+v", overview.KPIs)
	}
	if overview.KPIs.AverageRating < 1 || overview.KPIs.AverageRating > 5 {
		t.Fatalf("AverageRating = %f", overview.KPIs.AverageRating)
	}
	if len(overview.Monthly) == 0 {
		t.Fatal("expected monthly revenue rows")
	}
	for i := 1; i < len(overview.Monthly); i++ {
		if overview.Monthly[i-1].Month >= overview.Monthly[i].Month {
			t.Fatalf("months not ascending: %+v", overview.Monthly)
		}
	}
	if len(overview.TopCategories) == 0 || len(overview.TopCategories) > 10 {
		t.Fatalf("TopCategories = %+v", overview.TopCategories)
	}
}

func TestMarkdownPreview(t *testing.T) {
	result := query.Result{
		Columns: []string{"category", "total", "day"},
		Rows: [][]any{
			{"bed|bath", 12.5, time.Date(2018, 1, 2, 0, 0, 0, 0, time.UTC)},
			{nil, int64(3), time.Date(2018, 1, 2, 10, 30, 0, 0, time.UTC)},
			{"line\nbreak", 1.0, nil},
		},
	}
	got := MarkdownPreview(result, 2)
	want := "| category | total | day |\n" +
		"| --- | --- | --- |\n" +
		"| bed\\|bath | 12.5 | 2018-01-02 |\n" +
		"|  | 3 | 2018-01-02 10:30:00 |"
	if got != want {
		t.Fatalf("MarkdownPreview() =\n%s\nwant\n%s", got, want)
	}

	if got := MarkdownPreview(result, 0); !strings.HasSuffix(got, "| line break | 1 |  |") {
		t.Fatalf("unlimited preview = %s", got)
	}
}
