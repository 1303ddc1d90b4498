package analyst

import (
	"context"
	"fmt"

	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/session"
)

type KPIs struct {
	TotalOrders    int64   `json:"total_orders"`
	TotalRevenue   float64 `json:"total_revenue"`
	CustomerCities int64   `json:"customer_cities"`
	AverageRating  float64 `json:"average_rating"`
}

type MonthlyRevenue struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
}

type CategorySales struct {
	Category   string  `json:"category"`
	TotalSales float64 `json:"total_sales"`
}

// Overview is the headline dashboard for the enriched view.
type Overview struct {
	KPIs          KPIs             `json:"kpis"`
	Monthly       []MonthlyRevenue `json:"monthly_revenue"`
	TopCategories []CategorySales  `json:"top_categories"`
}

const overviewCategoryLimit = 10

func (s *Service) Overview(ctx context.Context, sess *session.Session) (Overview, error) {
	view := s.opts.PrimaryView
	var out Overview
	err := sess.Run(func(engine query.Engine) error {
		kpis, err := s.execute(ctx, engine, "overview", fmt.Sprintf(`SELECT COUNT(DISTINCT order_id) AS total_orders,
       SUM(payment_value) AS total_revenue,
       COUNT(DISTINCT customer_city) AS customer_cities,
       AVG(review_score) AS avg_rating
FROM %s`, view))
		if err != nil {
			return fmt.Errorf("kpis: %w", err)
		}
		if len(kpis.Rows) == 1 {
			row := kpis.Rows[0]
			out.KPIs = KPIs{
				TotalOrders:    asInt(row[0]),
				TotalRevenue:   asFloat(row[1]),
				CustomerCities: asInt(row[2]),
				AverageRating:  asFloat(row[3]),
			}
		}

		monthly, err := s.execute(ctx, engine, "overview", fmt.Sprintf(`SELECT strftime(%s,'%%Y-%%m') AS month, SUM(price) AS revenue
FROM %s GROUP BY month ORDER BY month`, s.opts.TimestampColumn, view))
		if err != nil {
			return fmt.Errorf("monthly revenue: %w", err)
		}
		out.Monthly = make([]MonthlyRevenue, 0, len(monthly.Rows))
		for _, row := range monthly.Rows {
			out.Monthly = append(out.Monthly, MonthlyRevenue{Month: fmt.Sprint(row[0]), Revenue: asFloat(row[1])})
		}

		top, err := s.execute(ctx, engine, "overview", fmt.Sprintf(`SELECT COALESCE(category,'unknown') AS category, SUM(price) AS total_sales
FROM %s GROUP BY category ORDER BY total_sales DESC LIMIT %d`, view, overviewCategoryLimit))
		if err != nil {
			return fmt.Errorf("top categories: %w", err)
		}
		out.TopCategories = make([]CategorySales, 0, len(top.Rows))
		for _, row := range top.Rows {
			out.TopCategories = append(out.TopCategories, CategorySales{Category: fmt.Sprint(row[0]), TotalSales: asFloat(row[1])})
		}
		return nil
	})
	return out, err
}

func asInt(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int32:
		return int64(typed)
	case int:
		return int64(typed)
	case uint64:
		return int64(typed)
	case float64:
		return int64(typed)
	default:
		return 0
	}
}

func asFloat(value any) float64 {
	switch typed := value.(type) {
	case float64:
		return typed
	case float32:
		return float64(typed)
	case int64:
		return float64(typed)
	case int32:
		return float64(typed)
	default:
		return 0
	}
}
