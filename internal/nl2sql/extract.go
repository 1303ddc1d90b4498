package nl2sql

import "strings"

const (
	// EmptyResponseSQL is returned when the model produced no text at all.
	EmptyResponseSQL = "SELECT 'Error: Empty SQL from model' AS message;"

	ReasoningMarker = "#"
)

var fenceStripper = strings.NewReplacer("```sql", "", "```", "", "`", "")

// clauseStarts are matched against the trimmed, lower-cased start of each
// line. Matching is per line: a clause that does not begin its own line is
// only kept if the line it sits on is kept.
var clauseStarts = []string{
	"select",
	"with",
	"from",
	"where",
	"group by",
	"order by",
	"having",
	"join",
	"left join",
	"right join",
	"inner join",
	"limit",
}

type Extractor struct {
	FallbackView string
}

func NewExtractor(fallbackView string) Extractor {
	return Extractor{FallbackView: fallbackView}
}

// FallbackSQL is the statement used when no clause line survives extraction.
func (e Extractor) FallbackSQL() string {
	view := strings.TrimSpace(e.FallbackView)
	if view == "" {
		view = "sales_enriched"
	}
	return "SELECT * FROM " + view + " LIMIT 20;"
}

// Extract reduces raw model output to a single statement terminated by ";".
func (e Extractor) Extract(raw string) string {
	if raw == "" {
		return EmptyResponseSQL
	}

	cleaned := strings.TrimSpace(fenceStripper.Replace(raw))

	kept := make([]string, 0)
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSuffix(line, "\r")
		lowered := strings.ToLower(strings.TrimSpace(line))
		if strings.HasPrefix(lowered, ReasoningMarker) {
			continue
		}
		if startsWithClause(lowered) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		return e.FallbackSQL()
	}

	statement := strings.TrimSpace(strings.Join(kept, "\n"))
	if !strings.HasSuffix(statement, ";") {
		statement += ";"
	}
	return statement
}

// ReasoningLines returns the marker-prefixed commentary lines of raw output,
// trimmed, in order.
func ReasoningLines(raw string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ReasoningMarker) {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

func startsWithClause(line string) bool {
	for _, start := range clauseStarts {
		if strings.HasPrefix(line, start) {
			return true
		}
	}
	return false
}
