package analyst

import (
	"context"
	"errors"
	"fmt"

	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/session"
)

var ErrUnknownPreset = errors.New("unknown preset")

// Preset is a canned demo query run directly against the engine.
type Preset struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	SQL   string `json:"sql"`
}

func Presets(view, timestampColumn string) []Preset {
	return []Preset{
		{
			Name:  "top-categories",
			Title: "Top 5 categories by total sales",
			SQL:   fmt.Sprintf("SELECT category,SUM(price) AS total_sales FROM %s GROUP BY category ORDER BY total_sales DESC LIMIT 5", view),
		},
		{
			Name:  "monthly-revenue",
			Title: "Monthly revenue trend",
			SQL:   fmt.Sprintf("SELECT strftime(%s,'%%Y-%%m') AS month,SUM(price) AS revenue FROM %s GROUP BY month ORDER BY month", timestampColumn, view),
		},
		{
			Name:  "best-states",
			Title: "Best states by average review score",
			SQL:   fmt.Sprintf("SELECT customer_state,AVG(review_score) AS avg_score FROM %s GROUP BY customer_state HAVING COUNT(*)>50 ORDER BY avg_score DESC LIMIT 10", view),
		},
		{
			Name:  "payment-share",
			Title: "Payment methods share",
			SQL:   fmt.Sprintf("SELECT payment_type,SUM(payment_value) AS total_value FROM %s GROUP BY payment_type ORDER BY total_value DESC", view),
		},
	}
}

func (s *Service) Presets() []Preset {
	return Presets(s.opts.PrimaryView, s.opts.TimestampColumn)
}

func (s *Service) RunPreset(ctx context.Context, sess *session.Session, name string) (Preset, query.Result, error) {
	for _, preset := range s.Presets() {
		if preset.Name != name {
			continue
		}
		var result query.Result
		err := sess.Run(func(engine query.Engine) error {
			var err error
			result, err = s.execute(ctx, engine, "preset", preset.SQL)
			return err
		})
		return preset, result, err
	}
	return Preset{}, query.Result{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
}
