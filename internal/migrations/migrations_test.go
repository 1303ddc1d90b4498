package migrations

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func twoStepFS() fstest.MapFS {
	return fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("CREATE TABLE two (id INT);")},
		"sql/000002_two.down.sql": {Data: []byte("DROP TABLE two;")},
		"sql/000001_one.up.sql":   {Data: []byte("CREATE TABLE one (id INT);")},
		"sql/000001_one.down.sql": {Data: []byte("DROP TABLE one;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}
}

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	items, err := loadMigrations(twoStepFS())
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
	if items[1].DownSQL != "DROP TABLE two;" {
		t.Fatalf("DownSQL = %q", items[1].DownSQL)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEmbeddedMigrationsCreateOlistTables(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations(embedded) error = %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected at least one embedded migration")
	}
	for _, table := range []string{
		"olist_orders_dataset",
		"olist_order_items_dataset",
		"olist_products_dataset",
		"olist_customers_dataset",
		"olist_order_payments_dataset",
		"olist_order_reviews_dataset",
	} {
		if !strings.Contains(items[0].UpSQL, "CREATE TABLE "+table+" (") {
			t.Fatalf("up migration does not create %s", table)
		}
		if !strings.Contains(items[0].DownSQL, table) {
			t.Fatalf("down migration does not drop %s", table)
		}
	}
}

func TestRunnerUpAppliesPendingMigrations(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: twoStepFS()}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + migrationTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM " + migrationTable + " ORDER BY version ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE two (id INT);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + migrationTable + " (version) VALUES ($1)")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	assertSQLMock(t, mock)
}

func TestRunnerUpHonorsSteps(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: twoStepFS()}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + migrationTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM " + migrationTable)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE one (id INT);")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO " + migrationTable)).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := runner.Up(context.Background(), db, 1)
	if err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}
	assertSQLMock(t, mock)
}

func TestRunnerUpRollsBackFailedScript(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: twoStepFS()}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + migrationTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM " + migrationTable)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE one (id INT);")).
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	applied, err := runner.Up(context.Background(), db, 0)
	if err == nil || !strings.Contains(err.Error(), "apply migration 1") {
		t.Fatalf("Up() error = %v", err)
	}
	if applied != 0 {
		t.Fatalf("applied = %d, want 0", applied)
	}
	assertSQLMock(t, mock)
}

func TestRunnerDownRevertsNewestMigration(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: twoStepFS()}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + migrationTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM " + migrationTable + " ORDER BY version DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(2)).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE two;")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM " + migrationTable + " WHERE version = $1")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	reverted, err := runner.Down(context.Background(), db, 0)
	if err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if reverted != 1 {
		t.Fatalf("reverted = %d, want 1", reverted)
	}
	assertSQLMock(t, mock)
}

func TestRunnerDownErrorsOnUnknownAppliedVersion(t *testing.T) {
	db, mock := newSQLMock(t)
	runner := &Runner{fsys: twoStepFS()}

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS " + migrationTable)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM " + migrationTable)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(9)))

	_, err := runner.Down(context.Background(), db, 1)
	if err == nil || !strings.Contains(err.Error(), "missing from source") {
		t.Fatalf("Down() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations not met: %v", err)
	}
}
