package analyst

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maerai/maer/internal/llm"
	"github.com/maerai/maer/internal/nl2sql"
	"github.com/maerai/maer/internal/observability"
	"github.com/maerai/maer/internal/query"
)

// Summarizer asks the model for a short business reading of a result preview.
// It never fails a turn: any failure is reported as ok == false.
type Summarizer struct {
	client  llm.Client
	prompts nl2sql.PromptBuilder
}

func NewSummarizer(client llm.Client, prompts nl2sql.PromptBuilder) *Summarizer {
	return &Summarizer{client: client, prompts: prompts}
}

func (s *Summarizer) Summarize(ctx context.Context, preview, memorySummary string) (string, bool) {
	resp := s.client.Generate(ctx, s.prompts.BuildInsight(preview, memorySummary))
	if !resp.OK() {
		observability.ObserveInsight("failed")
		return "", false
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		observability.ObserveInsight("empty")
		return "", false
	}
	observability.ObserveInsight("ok")
	return text, true
}

// MarkdownPreview renders the first limit rows as a pipe table.
func MarkdownPreview(result query.Result, limit int) string {
	var sb strings.Builder
	header := make([]string, len(result.Columns))
	separator := make([]string, len(result.Columns))
	for i, column := range result.Columns {
		header[i] = escapeCell(column)
		separator[i] = "---"
	}
	sb.WriteString("| " + strings.Join(header, " | ") + " |\n")
	sb.WriteString("| " + strings.Join(separator, " | ") + " |")

	rows := result.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = escapeCell(formatCell(value))
		}
		sb.WriteString("\n| " + strings.Join(cells, " | ") + " |")
	}
	return sb.String()
}

func formatCell(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case time.Time:
		if typed.Hour() == 0 && typed.Minute() == 0 && typed.Second() == 0 && typed.Nanosecond() == 0 {
			return typed.Format("2006-01-02")
		}
		return typed.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(typed)
	}
}

func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", `\|`)
}
