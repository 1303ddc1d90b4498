package nl2sql

import (
	"fmt"
	"strings"
)

type PromptBuilder struct {
	Dialect         string
	Persona         string
	PrimaryView     string
	TimestampColumn string
	DatasetNote     string
}

func NewPromptBuilder(primaryView, timestampColumn, datasetNote string) PromptBuilder {
	return PromptBuilder{
		Dialect:         "DuckDB",
		Persona:         "MAER.AI, a senior data analyst for an ecommerce platform",
		PrimaryView:     primaryView,
		TimestampColumn: timestampColumn,
		DatasetNote:     datasetNote,
	}
}

// Build composes the question prompt. Schema, memory and question are embedded
// verbatim.
func (b PromptBuilder) Build(question, schemaText, memorySummary string) string {
	latest := b.latestExpr()
	column := b.TimestampColumn

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s using %s.\n\n", b.Persona, b.Dialect)
	sb.WriteString("IMPORTANT DATE RULES (strict):\n")
	if note := strings.TrimSpace(b.DatasetNote); note != "" {
		fmt.Fprintf(&sb, "- %s\n", note)
	}
	sb.WriteString("- NEVER use CURRENT_DATE, NOW(), TODAY(), or system time.\n")
	fmt.Fprintf(&sb, "- ALL date comparisons MUST be relative to:\n    %s\n\n", latest)
	sb.WriteString("Examples you MUST follow:\n")
	fmt.Fprintf(&sb, "- \"last month\" →\n    DATE_TRUNC('month', %s)\n    = DATE_TRUNC('month', %s - INTERVAL 1 MONTH)\n\n", column, latest)
	fmt.Fprintf(&sb, "- \"this month\" →\n    DATE_TRUNC('month', %s)\n    = DATE_TRUNC('month', %s)\n\n", column, latest)
	fmt.Fprintf(&sb, "- \"last 3 months\" →\n    %s >=\n    %s - INTERVAL 3 MONTH\n\n", column, latest)
	fmt.Fprintf(&sb, "- \"last week\" →\n    %s >=\n    %s - INTERVAL 7 DAY\n\n", column, latest)
	sb.WriteString("- NEVER assume today's real date.\n\n")
	sb.WriteString("Now, as usual:\n")
	fmt.Fprintf(&sb, "First, provide reasoning in 3–5 lines prefixed with '%s'.\n", ReasoningMarker)
	fmt.Fprintf(&sb, "Then output ONLY the final valid %s SQL query.\n\n", b.Dialect)
	fmt.Fprintf(&sb, "Schema:\n%s\n\n", schemaText)
	fmt.Fprintf(&sb, "Conversation memory:\n%s\n\n", memorySummary)
	fmt.Fprintf(&sb, "User question:\n%s\n", question)
	return sb.String()
}

// BuildRepair composes the prompt that asks the model to correct a statement
// the engine rejected.
func (b PromptBuilder) BuildRepair(failedSQL, schemaText, errorText string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fix this SQL for %s.\n\n", b.Dialect)
	fmt.Fprintf(&sb, "Schema:\n%s\n\n", schemaText)
	fmt.Fprintf(&sb, "Original SQL:\n%s\n\n", failedSQL)
	fmt.Fprintf(&sb, "Error:\n%s\n\n", errorText)
	fmt.Fprintf(&sb, "Return ONLY valid SQL. Do not include reasoning lines prefixed with '%s'.\n", ReasoningMarker)
	return sb.String()
}

func (b PromptBuilder) BuildInsight(preview, memorySummary string) string {
	var sb strings.Builder
	sb.WriteString("You are a senior business analyst.\n")
	sb.WriteString("Summarize this table into 2–3 actionable insights considering previous chat memory:\n")
	fmt.Fprintf(&sb, "%s\n\n", memorySummary)
	fmt.Fprintf(&sb, "Table:\n%s\n", preview)
	return sb.String()
}

func (b PromptBuilder) latestExpr() string {
	return fmt.Sprintf("(SELECT MAX(%s) FROM %s)", b.TimestampColumn, b.PrimaryView)
}
