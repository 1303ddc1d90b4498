package analyst

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/maerai/maer/internal/conversation"
	"github.com/maerai/maer/internal/dataset"
	"github.com/maerai/maer/internal/demo"
	"github.com/maerai/maer/internal/llm"
	"github.com/maerai/maer/internal/nl2sql"
	"github.com/maerai/maer/internal/schema"
	"github.com/maerai/maer/internal/session"
)

const topCategoriesSQL = "SELECT category, SUM(price) AS total_sales FROM sales_enriched GROUP BY category ORDER BY total_sales DESC LIMIT 5"

type scriptedClient struct {
	mu        sync.Mutex
	responses []llm.Response
	prompts   []string
}

func (c *scriptedClient) Provider() string { return "scripted" }

func (c *scriptedClient) Generate(_ context.Context, prompt string) llm.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if len(c.responses) == 0 {
		return llm.Response{Failure: &llm.Failure{Reason: llm.ReasonTransport, Message: "Error: script exhausted"}}
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next
}

func text(value string) llm.Response {
	return llm.Response{Text: value}
}

func transportFailure(message string) llm.Response {
	return llm.Response{Failure: &llm.Failure{Reason: llm.ReasonTransport, Message: message, Retryable: true}}
}

type fixture struct {
	service *Service
	session *session.Session
	client  *scriptedClient
}

func testOptions() Options {
	return Options{
		PrimaryView:     "sales_enriched",
		TimestampColumn: "order_purchase_timestamp",
		SummaryWindow:   6,
		RepairBudget:    1,
		ResultRowLimit:  1000,
		PreviewRows:     10,
	}
}

func newFixture(t *testing.T, opts Options, responses ...llm.Response) *fixture {
	t.Helper()

	genOpts := demo.DefaultOptions()
	genOpts.Orders = 300
	genOpts.Customers = 80
	genOpts.Products = 40
	g, err := demo.NewGenerator(genOpts)
	if err != nil {
		t.Fatalf("NewGenerator() error = %v", err)
	}
	files, err := g.Generate().Encode(demo.FormatCSV)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	dir := t.TempDir()
	if err := demo.WriteDir(dir, files); err != nil {
		t.Fatalf("WriteDir() error = %v", err)
	}
	source, err := dataset.NewDirSource(dir)
	if err != nil {
		t.Fatalf("NewDirSource() error = %v", err)
	}
	loader, err := dataset.NewLoader(source, opts.PrimaryView, nil)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	catalog := schema.NewCatalog(10)
	manager, err := session.NewManager(loader, catalog, session.Options{MemoryLimit: conversation.DefaultLimit}, nil)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = manager.CloseAll() })
	sess, err := manager.Create(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	client := &scriptedClient{responses: responses}
	prompts := nl2sql.NewPromptBuilder(opts.PrimaryView, opts.TimestampColumn, "The Olist dataset contains historical timestamps (2016–2018).")
	service, err := NewService(client, catalog, prompts, opts, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return &fixture{service: service, session: sess, client: client}
}

func (f *fixture) ask(t *testing.T, question string) Answer {
	t.Helper()
	answer, err := f.service.SubmitQuestion(context.Background(), f.session, question)
	if err != nil {
		t.Fatalf("SubmitQuestion() error = %v", err)
	}
	return answer
}

func TestSubmitQuestionTopCategories(t *testing.T) {
	f := newFixture(t, testOptions(), text("# Aggregate price per category.\n# Order by total and keep five.\n"+topCategoriesSQL))

	answer := f.ask(t, "Top 5 categories by total sales")
	if answer.Status != StatusSucceeded {
		t.Fatalf("Status = %q, error = %q", answer.Status, answer.Error)
	}
	if answer.SQL != topCategoriesSQL+";" {
		t.Fatalf("SQL = %q", answer.SQL)
	}
	if strings.Join(answer.Columns, ",") != "category,total_sales" {
		t.Fatalf("Columns = %v", answer.Columns)
	}
	if len(answer.Rows) == 0 || len(answer.Rows) > 5 {
		t.Fatalf("rows = %d", len(answer.Rows))
	}
	if answer.Attempts != 1 || answer.Repaired {
		t.Fatalf("Attempts/Repaired = %d/%v", answer.Attempts, answer.Repaired)
	}
	if answer.Reasoning != nil {
		t.Fatalf("Reasoning = %v, want nil while display is off", answer.Reasoning)
	}

	turns := f.session.Memory.Turns()
	if len(turns) != 2 {
		t.Fatalf("turns = %+v", turns)
	}
	if turns[0].Role != conversation.RoleUser || turns[0].Content != "Top 5 categories by total sales" {
		t.Fatalf("user turn = %+v", turns[0])
	}
	if turns[1].Role != conversation.RoleAssistant || turns[1].Content != "SQL: "+topCategoriesSQL+";" {
		t.Fatalf("assistant turn = %+v", turns[1])
	}

	prompt := f.client.prompts[0]
	for _, want := range []string{"- sales_enriched(order_id, product_id, category", "User: Top 5 categories by total sales", "User question:\nTop 5 categories by total sales"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSubmitQuestionRepairsFailedStatement(t *testing.T) {
	f := newFixture(t, testOptions(),
		text("# use a column\nSELECT nonexistent_col FROM sales_enriched"),
		text("```sql\nSELECT category FROM sales_enriched LIMIT 3\n```"),
	)

	answer := f.ask(t, "Show me the nonexistent column")
	if answer.Status != StatusSucceeded {
		t.Fatalf("Status = %q, error = %q", answer.Status, answer.Error)
	}
	if answer.SQL != "SELECT category FROM sales_enriched LIMIT 3;" {
		t.Fatalf("SQL = %q", answer.SQL)
	}
	if len(answer.Rows) != 3 || !answer.Repaired || answer.Attempts != 2 {
		t.Fatalf("rows/repaired/attempts = %d/%v/%d", len(answer.Rows), answer.Repaired, answer.Attempts)
	}

	if len(f.client.prompts) != 2 {
		t.Fatalf("prompts = %d", len(f.client.prompts))
	}
	repair := f.client.prompts[1]
	if !strings.Contains(repair, "Original SQL:\nSELECT nonexistent_col FROM sales_enriched;\n") {
		t.Fatalf("repair prompt missing failed statement:\n%s", repair)
	}
	errorSection := repair[strings.Index(repair, "Error:\n"):]
	if !strings.Contains(errorSection, "nonexistent_col") {
		t.Fatalf("repair prompt missing engine error:\n%s", repair)
	}

	turns := f.session.Memory.Turns()
	if last := turns[len(turns)-1].Content; last != "SQL: SELECT category FROM sales_enriched LIMIT 3;" {
		t.Fatalf("last turn = %q", last)
	}
	for _, turn := range turns {
		if strings.Contains(turn.Content, "nonexistent_col") && turn.Role == conversation.RoleAssistant {
			t.Fatalf("original statement recorded in memory: %+v", turn)
		}
	}
}

func TestSubmitQuestionDoubleModelFailure(t *testing.T) {
	f := newFixture(t, testOptions(),
		transportFailure("Error: upstream reset"),
		transportFailure("Error: deadline exceeded"),
	)

	answer := f.ask(t, "Monthly revenue")
	if answer.Status != StatusFailed {
		t.Fatalf("Status = %q", answer.Status)
	}
	if answer.Error != "Error: deadline exceeded" {
		t.Fatalf("Error = %q", answer.Error)
	}
	if answer.Attempts != 2 || answer.SQL != "" {
		t.Fatalf("attempts/sql = %d/%q", answer.Attempts, answer.SQL)
	}
	if len(f.client.prompts) != 2 || f.client.prompts[0] != f.client.prompts[1] {
		t.Fatal("retry after a model failure should resend the primary prompt")
	}

	turns := f.session.Memory.Turns()
	if len(turns) != 2 || turns[1].Content != "No SQL generated." {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestSubmitQuestionDoubleExecutionFailure(t *testing.T) {
	f := newFixture(t, testOptions(),
		text("SELECT missing_a FROM sales_enriched"),
		text("SELECT missing_b FROM sales_enriched"),
	)

	answer := f.ask(t, "Broken question")
	if answer.Status != StatusFailed {
		t.Fatalf("Status = %q", answer.Status)
	}
	if answer.SQL != "SELECT missing_b FROM sales_enriched;" {
		t.Fatalf("SQL = %q", answer.SQL)
	}
	if !strings.Contains(answer.Error, "missing_b") {
		t.Fatalf("Error = %q", answer.Error)
	}
	if len(f.client.prompts) != 2 {
		t.Fatalf("model calls = %d, want exactly one repair", len(f.client.prompts))
	}

	turns := f.session.Memory.Turns()
	last := turns[len(turns)-1]
	if last.Content != "Failed SQL: SELECT missing_b FROM sales_enriched;" {
		t.Fatalf("last turn = %q", last.Content)
	}
	if strings.Contains(last.Content, "Binder") || strings.Contains(last.Content, "not found") {
		t.Fatalf("error text retained in memory: %q", last.Content)
	}

	next := f.ask(t, "Follow-up")
	if next.Status != StatusFailed || next.Error != "Error: script exhausted" {
		t.Fatalf("session unusable after failure: %+v", next)
	}
}

func TestSubmitQuestionMissingCredentialFailsFast(t *testing.T) {
	f := newFixture(t, testOptions(), llm.Response{Failure: &llm.Failure{
		Reason:  llm.ReasonMissingCredential,
		Message: "Error: Missing GEMINI_API_KEY",
	}})

	answer := f.ask(t, "Anything")
	if answer.Status != StatusFailed || answer.Error != "Error: Missing GEMINI_API_KEY" {
		t.Fatalf("answer = %+v", answer)
	}
	if answer.Attempts != 1 || len(f.client.prompts) != 1 {
		t.Fatalf("attempts = %d, calls = %d", answer.Attempts, len(f.client.prompts))
	}
}

func TestSubmitQuestionHonorsRepairBudget(t *testing.T) {
	opts := testOptions()
	opts.RepairBudget = 0
	f := newFixture(t, opts, text("SELECT nope FROM sales_enriched"))
	if answer := f.ask(t, "q"); answer.Status != StatusFailed || answer.Attempts != 1 {
		t.Fatalf("budget 0 answer = %+v", answer)
	}

	opts.RepairBudget = 2
	f = newFixture(t, opts,
		text("SELECT nope FROM sales_enriched"),
		text("SELECT still_nope FROM sales_enriched"),
		text("SELECT COUNT(*) AS n FROM sales_enriched"),
	)
	answer := f.ask(t, "q")
	if answer.Status != StatusSucceeded || answer.Attempts != 3 || !answer.Repaired {
		t.Fatalf("budget 2 answer = %+v", answer)
	}
}

func TestSubmitQuestionIncludesReasoningWhenEnabled(t *testing.T) {
	f := newFixture(t, testOptions(), text("# first\n  # second\n"+topCategoriesSQL))
	f.service.SetReasoningDisplay(f.session, true)

	answer := f.ask(t, "Top 5 categories by total sales")
	if strings.Join(answer.Reasoning, "|") != "# first|# second" {
		t.Fatalf("Reasoning = %q", answer.Reasoning)
	}
}

func TestSubmitQuestionAppendsInsight(t *testing.T) {
	opts := testOptions()
	opts.InsightsEnabled = true
	f := newFixture(t, opts, text(topCategoriesSQL), text("  Two categories drive most revenue.  "))

	answer := f.ask(t, "Top 5 categories by total sales")
	if answer.Insight != "Two categories drive most revenue." {
		t.Fatalf("Insight = %q", answer.Insight)
	}
	turns := f.session.Memory.Turns()
	if last := turns[len(turns)-1].Content; last != "Insight: Two categories drive most revenue." {
		t.Fatalf("last turn = %q", last)
	}
	insightPrompt := f.client.prompts[1]
	if !strings.Contains(insightPrompt, "| category | total_sales |") || !strings.Contains(insightPrompt, "Assistant: SQL: ") {
		t.Fatalf("insight prompt = %s", insightPrompt)
	}
}

func TestSubmitQuestionSkipsFailedInsight(t *testing.T) {
	opts := testOptions()
	opts.InsightsEnabled = true
	f := newFixture(t, opts, text(topCategoriesSQL), transportFailure("Error: 503"))

	answer := f.ask(t, "Top 5 categories by total sales")
	if answer.Status != StatusSucceeded || answer.Insight != "" {
		t.Fatalf("answer = %+v", answer)
	}
	if f.session.Memory.Len() != 2 {
		t.Fatalf("memory len = %d", f.session.Memory.Len())
	}
}

func TestSubmitQuestionSkipsInsightForEmptyResult(t *testing.T) {
	opts := testOptions()
	opts.InsightsEnabled = true
	f := newFixture(t, opts, text("SELECT * FROM sales_enriched WHERE 1 = 0"))

	answer := f.ask(t, "Nothing")
	if answer.Status != StatusSucceeded || len(answer.Rows) != 0 {
		t.Fatalf("answer = %+v", answer)
	}
	if len(f.client.prompts) != 1 {
		t.Fatalf("model calls = %d, want no insight call", len(f.client.prompts))
	}
}

func TestSubmitQuestionExtractionFallbacks(t *testing.T) {
	f := newFixture(t, testOptions(), text(""), text("# only thinking here"))

	answer := f.ask(t, "q1")
	if answer.SQL != nl2sql.EmptyResponseSQL || answer.Status != StatusSucceeded {
		t.Fatalf("empty response answer = %+v", answer)
	}
	answer = f.ask(t, "q2")
	if answer.SQL != "SELECT * FROM sales_enriched LIMIT 20;" || len(answer.Rows) != 20 {
		t.Fatalf("reasoning-only answer = %+v", answer)
	}
}

func TestSubmitQuestionRejectsEmptyQuestion(t *testing.T) {
	f := newFixture(t, testOptions())
	if _, err := f.service.SubmitQuestion(context.Background(), f.session, "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("SubmitQuestion() error = %v, want ErrEmptyQuestion", err)
	}
	if f.session.Memory.Len() != 0 {
		t.Fatal("empty question should not touch memory")
	}
}

func TestMemoryStaysBoundedAcrossTurns(t *testing.T) {
	responses := make([]llm.Response, 0, 12)
	for i := 0; i < 12; i++ {
		responses = append(responses, text("SELECT 1 AS one"))
	}
	f := newFixture(t, testOptions(), responses...)
	for i := 0; i < 12; i++ {
		f.ask(t, "again")
	}
	if f.session.Memory.Len() != conversation.DefaultLimit {
		t.Fatalf("memory len = %d", f.session.Memory.Len())
	}
}

func TestResetMemory(t *testing.T) {
	f := newFixture(t, testOptions(), text("SELECT 1"))
	f.ask(t, "q")
	f.service.ResetMemory(f.session)
	if f.session.Memory.Len() != 0 {
		t.Fatalf("memory len = %d", f.session.Memory.Len())
	}
}

func TestSchemaReturnsEnrichedView(t *testing.T) {
	f := newFixture(t, testOptions())
	tables, text, err := f.service.Schema(context.Background(), f.session)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	if len(tables) != 7 {
		t.Fatalf("tables = %+v", tables)
	}
	if !strings.Contains(text, "- sales_enriched(order_id, product_id, category, price, freight_value, order_status, order_purchase_timestamp, order_delivered_customer_date, customer_city, customer_state)") {
		t.Fatalf("schema text = %s", text)
	}
}
