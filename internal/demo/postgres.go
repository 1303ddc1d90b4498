package demo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// SeedPostgres replaces the contents of the Olist tables with ds. The tables
// must already exist; see internal/migrations.
func SeedPostgres(ctx context.Context, db *sql.DB, ds Dataset) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seeders := []func() error{
		func() error { return insertRows(ctx, tx, ds.Customers) },
		func() error { return insertRows(ctx, tx, ds.Products) },
		func() error { return insertRows(ctx, tx, ds.Orders) },
		func() error { return insertRows(ctx, tx, ds.Items) },
		func() error { return insertRows(ctx, tx, ds.Payments) },
		func() error { return insertRows(ctx, tx, ds.Reviews) },
	}
	for _, seed := range seeders {
		if err := seed(); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed tx: %w", err)
	}
	return nil
}

func insertRows[T record](ctx context.Context, tx *sql.Tx, rows []T) error {
	var zero T
	table := pgx.Identifier{zero.table()}.Sanitize()
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", zero.table(), err)
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL(table, zero.header()))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", zero.table(), err)
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.values()...); err != nil {
			return fmt.Errorf("insert into %s: %w", zero.table(), err)
		}
	}
	return nil
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = pgx.Identifier{column}.Sanitize()
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	return "INSERT INTO " + table + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
}
