package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maer_questions_total",
			Help: "Total number of submitted questions by terminal outcome.",
		},
		[]string{"outcome"},
	)
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maer_model_calls_total",
			Help: "Total number of generative model calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	modelCallLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maer_model_call_latency_ms",
			Help:    "Generative model call latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
		[]string{"provider"},
	)
	repairAttemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maer_repair_attempts_total",
			Help: "Total number of automatic repair attempts after a failed statement.",
		},
	)
	statementLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "maer_statement_latency_ms",
			Help:    "Backing engine statement latency in milliseconds by origin and outcome.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"origin", "outcome"},
	)
	insightsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maer_insights_total",
			Help: "Total number of insight generation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "maer_active_sessions",
			Help: "Current number of open analyst sessions.",
		},
	)
	schemaCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maer_schema_cache_total",
			Help: "Schema description cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		modelCallsTotal,
		modelCallLatencyMs,
		repairAttemptsTotal,
		statementLatencyMs,
		insightsTotal,
		activeSessions,
		schemaCacheTotal,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveModelCall(provider, outcome string, elapsed time.Duration) {
	modelCallsTotal.WithLabelValues(provider, outcome).Inc()
	modelCallLatencyMs.WithLabelValues(provider).Observe(float64(elapsed.Milliseconds()))
}

func IncrementRepairAttempts() {
	repairAttemptsTotal.Inc()
}

func ObserveStatement(origin string, ok bool, elapsed time.Duration) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	statementLatencyMs.WithLabelValues(origin, outcome).Observe(float64(elapsed.Milliseconds()))
}

func ObserveInsight(outcome string) {
	insightsTotal.WithLabelValues(outcome).Inc()
}

func SetActiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	activeSessions.Set(float64(count))
}

func ObserveSchemaCache(hit bool) {
	if hit {
		schemaCacheTotal.WithLabelValues("hit").Inc()
		return
	}
	schemaCacheTotal.WithLabelValues("miss").Inc()
}
