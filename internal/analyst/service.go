package analyst

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maerai/maer/internal/config"
	"github.com/maerai/maer/internal/conversation"
	"github.com/maerai/maer/internal/llm"
	"github.com/maerai/maer/internal/nl2sql"
	"github.com/maerai/maer/internal/observability"
	"github.com/maerai/maer/internal/query"
	"github.com/maerai/maer/internal/schema"
	"github.com/maerai/maer/internal/session"
)

var ErrEmptyQuestion = errors.New("question is required")

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Answer is the outcome of one question turn. A failed pipeline is reported
// through Status and Error, never as a Go error.
type Answer struct {
	Status    Status   `json:"status"`
	SQL       string   `json:"sql"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
	Insight   string   `json:"insight,omitempty"`
	Reasoning []string `json:"reasoning,omitempty"`
	Attempts  int      `json:"attempts"`
	Repaired  bool     `json:"repaired"`
	Error     string   `json:"error,omitempty"`
}

type Options struct {
	PrimaryView     string
	TimestampColumn string
	SummaryWindow   int
	RepairBudget    int
	ResultRowLimit  int
	PreviewRows     int
	InsightsEnabled bool
	ReadOnlyManual  bool
}

func OptionsFrom(cfg config.Config) Options {
	return Options{
		PrimaryView:     cfg.Dataset.PrimaryView,
		TimestampColumn: cfg.Dataset.TimestampColumn,
		SummaryWindow:   cfg.Pipeline.SummaryWindow,
		RepairBudget:    cfg.Pipeline.RepairBudget,
		ResultRowLimit:  cfg.Pipeline.ResultRowLimit,
		PreviewRows:     cfg.Pipeline.PreviewRows,
		InsightsEnabled: cfg.Pipeline.InsightsEnabled,
		ReadOnlyManual:  cfg.Pipeline.SQLLabReadOnly,
	}
}

type Service struct {
	client     llm.Client
	catalog    *schema.Catalog
	prompts    nl2sql.PromptBuilder
	extractor  nl2sql.Extractor
	summarizer *Summarizer
	opts       Options
	logger     *slog.Logger
}

func NewService(client llm.Client, catalog *schema.Catalog, prompts nl2sql.PromptBuilder, opts Options, logger *slog.Logger) (*Service, error) {
	if client == nil {
		return nil, fmt.Errorf("model client is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("schema catalog is required")
	}
	if strings.TrimSpace(opts.PrimaryView) == "" {
		return nil, fmt.Errorf("primary view is required")
	}
	if opts.SummaryWindow <= 0 {
		opts.SummaryWindow = conversation.DefaultWindow
	}
	if opts.RepairBudget < 0 {
		opts.RepairBudget = 0
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = 10
	}
	if logger == nil {
		logger = observability.Discard()
	}
	return &Service{
		client:     client,
		catalog:    catalog,
		prompts:    prompts,
		extractor:  nl2sql.NewExtractor(opts.PrimaryView),
		summarizer: NewSummarizer(client, prompts),
		opts:       opts,
		logger:     logger,
	}, nil
}

// SubmitQuestion runs one conversational turn: record the question, generate
// a statement, execute it and repair it within the configured budget, record
// the outcome and optionally summarize the rows.
func (s *Service) SubmitQuestion(ctx context.Context, sess *session.Session, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	var answer Answer
	err := sess.Run(func(engine query.Engine) error {
		answer = s.answer(ctx, sess, engine, question)
		return nil
	})
	if err != nil {
		return Answer{}, err
	}
	observability.ObserveQuestion(string(answer.Status))
	return answer, nil
}

type turn struct {
	sess     *session.Session
	engine   query.Engine
	logger   *slog.Logger
	attempt  int
	budget   int
	lastSQL  string
	lastErr  string
	repaired bool
}

func (s *Service) answer(ctx context.Context, sess *session.Session, engine query.Engine, question string) Answer {
	started := time.Now()
	t := &turn{
		sess:   sess,
		engine: engine,
		logger: s.logger.With(slog.String("session_id", sess.ID)),
		budget: s.opts.RepairBudget,
	}
	sess.Memory.Append(conversation.RoleUser, question)

	t.state("BUILD_PROMPT")
	schemaText, err := s.catalog.Describe(ctx, engine)
	if err != nil {
		t.lastErr = "Error: " + err.Error()
		return s.fail(t, started)
	}
	prompt := s.prompts.Build(question, schemaText, sess.Memory.Summarize(s.opts.SummaryWindow))

	var answer Answer
	for {
		t.attempt++
		t.state("CALL_MODEL")
		resp := s.client.Generate(ctx, prompt)
		if !resp.OK() {
			t.lastErr = resp.Failure.Message
			t.logger.Warn("model call failed",
				slog.Int("attempt", t.attempt),
				slog.String("reason", string(resp.Failure.Reason)),
				slog.Bool("retryable", resp.Failure.Retryable),
			)
			if !resp.Failure.Retryable || !t.spend() {
				return s.fail(t, started)
			}
			// Nothing was executed, so the same prompt is sent again.
			continue
		}

		t.state("EXTRACT")
		statement := s.extractor.Extract(resp.Text)
		if !t.repaired && sess.ShowReasoning() {
			answer.Reasoning = nl2sql.ReasoningLines(resp.Text)
		}
		t.lastSQL = statement

		t.state("EXECUTE")
		origin := "generated"
		if t.repaired {
			origin = "repaired"
		}
		result, err := s.execute(ctx, engine, origin, statement)
		if err == nil {
			return s.succeed(ctx, t, answer, result, started)
		}
		t.lastErr = err.Error()
		t.logger.Info("statement failed", slog.Int("attempt", t.attempt), slog.String("error", t.lastErr))
		if !t.spend() {
			return s.fail(t, started)
		}

		t.state("REPAIR_PROMPT")
		observability.IncrementRepairAttempts()
		t.repaired = true
		prompt = s.prompts.BuildRepair(statement, schemaText, t.lastErr)
	}
}

func (t *turn) state(name string) {
	t.logger.Debug("pipeline state", slog.String("state", name), slog.Int("attempt", t.attempt))
}

func (t *turn) spend() bool {
	if t.budget <= 0 {
		return false
	}
	t.budget--
	return true
}

func (s *Service) succeed(ctx context.Context, t *turn, answer Answer, result query.Result, started time.Time) Answer {
	answer.Status = StatusSucceeded
	answer.SQL = t.lastSQL
	answer.Columns = result.Columns
	answer.Rows = result.Rows
	answer.Truncated = result.Truncated
	answer.Attempts = t.attempt
	answer.Repaired = t.repaired
	t.sess.Memory.Append(conversation.RoleAssistant, "SQL: "+t.lastSQL)

	if s.opts.InsightsEnabled && len(result.Rows) > 0 {
		preview := MarkdownPreview(result, s.opts.PreviewRows)
		if insight, ok := s.summarizer.Summarize(ctx, preview, t.sess.Memory.Summarize(s.opts.SummaryWindow)); ok {
			answer.Insight = insight
			t.sess.Memory.Append(conversation.RoleAssistant, "Insight: "+insight)
		}
	}

	t.logger.Info("question answered",
		slog.String("status", string(answer.Status)),
		slog.Int("attempts", answer.Attempts),
		slog.Bool("repaired", answer.Repaired),
		slog.Int("rows", len(answer.Rows)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return answer
}

func (s *Service) fail(t *turn, started time.Time) Answer {
	if t.lastSQL != "" {
		t.sess.Memory.Append(conversation.RoleAssistant, "Failed SQL: "+t.lastSQL)
	} else {
		t.sess.Memory.Append(conversation.RoleAssistant, "No SQL generated.")
	}
	t.logger.Info("question failed",
		slog.Int("attempts", t.attempt),
		slog.Bool("repaired", t.repaired),
		slog.Duration("elapsed", time.Since(started)),
	)
	return Answer{
		Status:   StatusFailed,
		SQL:      t.lastSQL,
		Attempts: t.attempt,
		Repaired: t.repaired,
		Error:    t.lastErr,
	}
}

func (s *Service) execute(ctx context.Context, engine query.Engine, origin, statement string) (query.Result, error) {
	started := time.Now()
	result, err := engine.Execute(ctx, query.Request{SQL: statement, RowLimit: s.opts.ResultRowLimit})
	observability.ObserveStatement(origin, err == nil, time.Since(started))
	return result, err
}

func (s *Service) ResetMemory(sess *session.Session) {
	sess.Memory.Reset()
}

func (s *Service) SetReasoningDisplay(sess *session.Session, enabled bool) {
	sess.SetShowReasoning(enabled)
}

// Schema returns the cached schema for the session's current connection.
func (s *Service) Schema(ctx context.Context, sess *session.Session) ([]schema.Table, string, error) {
	var tables []schema.Table
	var text string
	err := sess.Run(func(engine query.Engine) error {
		var err error
		if tables, err = s.catalog.Tables(ctx, engine); err != nil {
			return err
		}
		text, err = s.catalog.Describe(ctx, engine)
		return err
	})
	return tables, text, err
}
