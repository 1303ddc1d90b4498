package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/query/duckdb"
)

var ErrMissingTables = errors.New("required dataset tables missing")

// RequiredTables are the raw Olist tables the enriched view joins.
var RequiredTables = []string{
	"olist_order_items_dataset",
	"olist_orders_dataset",
	"olist_products_dataset",
	"olist_customers_dataset",
	"olist_order_payments_dataset",
	"olist_order_reviews_dataset",
}

// Source materializes raw tables into a freshly opened engine and returns the
// names it created.
type Source interface {
	Name() string
	Materialize(ctx context.Context, engine *duckdb.Engine) ([]string, error)
}

type Loader struct {
	source      Source
	primaryView string
	logger      *slog.Logger
}

func NewLoader(source Source, primaryView string, logger *slog.Logger) (*Loader, error) {
	if source == nil {
		return nil, fmt.Errorf("dataset source is required")
	}
	primaryView = strings.TrimSpace(primaryView)
	if primaryView == "" {
		return nil, fmt.Errorf("primary view name is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{source: source, primaryView: primaryView, logger: logger}, nil
}

func (l *Loader) PrimaryView() string {
	return l.primaryView
}

// Open returns a new engine with the raw tables and the enriched view in place
// and file and network access switched off. The engine is closed again if any
// step fails.
func (l *Loader) Open(ctx context.Context) (query.Engine, error) {
	start := time.Now()
	engine, err := duckdb.Open(ctx)
	if err != nil {
		return nil, err
	}

	tables, err := l.source.Materialize(ctx, engine)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("materialize %s dataset: %w", l.source.Name(), err)
	}
	if err := verifyTables(tables); err != nil {
		_ = engine.Close()
		return nil, err
	}
	if _, err := engine.DB().ExecContext(ctx, EnrichedViewSQL(l.primaryView)); err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("create %s view: %w", l.primaryView, err)
	}
	if err := engine.Lockdown(ctx); err != nil {
		_ = engine.Close()
		return nil, err
	}

	l.logger.Info(
		"dataset loaded",
		slog.String("source", l.source.Name()),
		slog.String("engine_id", engine.ID()),
		slog.Int("tables", len(tables)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return engine, nil
}

// Close releases resources held by the source, if any.
func (l *Loader) Close() error {
	if closer, ok := l.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func verifyTables(tables []string) error {
	present := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		present[table] = struct{}{}
	}
	missing := make([]string, 0)
	for _, required := range RequiredTables {
		if _, ok := present[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", ErrMissingTables, strings.Join(missing, ", "))
}

// EnrichedViewSQL joins the raw tables into one analytic view. Timestamps are
// cast on the way in so text-typed sources behave like the CSV exports.
func EnrichedViewSQL(view string) string {
	return "CREATE OR REPLACE VIEW " + duckdb.QuoteIdent(view) + ` AS
SELECT oi.order_id,
       oi.product_id,
       p.product_category_name AS category,
       CAST(oi.price AS DOUBLE) AS price,
       CAST(oi.freight_value AS DOUBLE) AS freight_value,
       o.order_status,
       TRY_CAST(o.order_purchase_timestamp AS TIMESTAMP) AS order_purchase_timestamp,
       TRY_CAST(o.order_delivered_customer_date AS TIMESTAMP) AS order_delivered_customer_date,
       c.customer_city,
       c.customer_state,
       pay.payment_type,
       CAST(pay.payment_value AS DOUBLE) AS payment_value,
       CAST(r.review_score AS DOUBLE) AS review_score
FROM olist_order_items_dataset oi
JOIN olist_orders_dataset o ON oi.order_id = o.order_id
LEFT JOIN olist_products_dataset p ON oi.product_id = p.product_id
LEFT JOIN olist_customers_dataset c ON o.customer_id = c.customer_id
LEFT JOIN olist_order_payments_dataset pay ON o.order_id = pay.order_id
LEFT JOIN olist_order_reviews_dataset r ON o.order_id = r.order_id`
}
