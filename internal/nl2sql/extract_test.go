package nl2sql

import (
	"strings"
	"testing"
)

func TestExtractEmptyResponse(t *testing.T) {
	if got := NewExtractor("sales_enriched").Extract(""); got != EmptyResponseSQL {
		t.Fatalf("Extract(\"\") = %q", got)
	}
}

func TestExtractReasoningOnlyFallsBack(t *testing.T) {
	raw := "# The user wants totals\n# I will group by category\nHere is my answer."
	got := NewExtractor("sales_enriched").Extract(raw)
	if got != "SELECT * FROM sales_enriched LIMIT 20;" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestExtractFallbackUsesConfiguredView(t *testing.T) {
	got := NewExtractor("fact_sales").Extract("no sql here")
	if got != "SELECT * FROM fact_sales LIMIT 20;" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestExtractSingleSelectGetsTerminator(t *testing.T) {
	tests := []string{
		"SELECT 1",
		"  select count(*) from sales_enriched",
		"\tSeLeCt category FROM sales_enriched",
	}
	for _, raw := range tests {
		got := NewExtractor("sales_enriched").Extract(raw)
		want := strings.TrimSpace(raw) + ";"
		if got != want {
			t.Fatalf("Extract(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestExtractStripsFencesAndReasoning(t *testing.T) {
	raw := strings.Join([]string{
		"# Category totals need a SUM over price",
		"# Order descending and keep five",
		"```sql",
		"SELECT category, SUM(price) AS total_sales FROM sales_enriched GROUP BY category ORDER BY total_sales DESC LIMIT 5",
		"```",
	}, "\n")

	got := NewExtractor("sales_enriched").Extract(raw)
	want := "SELECT category, SUM(price) AS total_sales FROM sales_enriched GROUP BY category ORDER BY total_sales DESC LIMIT 5;"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractKeepsAllowListedClauseLinesOnly(t *testing.T) {
	raw := strings.Join([]string{
		"Sure! Here is the query:",
		"SELECT customer_state, AVG(review_score) AS avg_score",
		"FROM sales_enriched",
		"  WHERE review_score IS NOT NULL",
		"GROUP BY customer_state",
		"HAVING COUNT(*) > 50",
		"ORDER BY avg_score DESC",
		"LIMIT 10;",
		"",
		"This returns the best states.",
	}, "\n")

	got := NewExtractor("sales_enriched").Extract(raw)
	want := strings.Join([]string{
		"SELECT customer_state, AVG(review_score) AS avg_score",
		"FROM sales_enriched",
		"  WHERE review_score IS NOT NULL",
		"GROUP BY customer_state",
		"HAVING COUNT(*) > 50",
		"ORDER BY avg_score DESC",
		"LIMIT 10;",
	}, "\n")
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractDropsLinesOutsideAllowList(t *testing.T) {
	// Continuation lines that do not start with an allow-listed keyword are
	// dropped even when they belong to the statement.
	raw := "SELECT a,\n  b\nFROM t\nUNION ALL\nSELECT c, d FROM u"
	got := NewExtractor("t").Extract(raw)
	want := "SELECT a,\nFROM t\nSELECT c, d FROM u;"
	if got != want {
		t.Fatalf("Extract() = %q, want %q", got, want)
	}
}

func TestExtractRemovesInlineBackticks(t *testing.T) {
	got := NewExtractor("t").Extract("`SELECT 1`")
	if got != "SELECT 1;" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestExtractHandlesCRLF(t *testing.T) {
	got := NewExtractor("t").Extract("# why\r\nSELECT 1\r\nFROM t\r\n")
	if got != "SELECT 1\nFROM t;" {
		t.Fatalf("Extract() = %q", got)
	}
}

func TestExtractIsIdempotent(t *testing.T) {
	extractor := NewExtractor("sales_enriched")
	inputs := []string{
		"",
		"nothing useful",
		"SELECT 1",
		"# r\n```sql\nSELECT a\nFROM t\nWHERE a > 1\n```",
		"WITH x AS (SELECT 1)\nSELECT * FROM x;",
	}
	for _, raw := range inputs {
		once := extractor.Extract(raw)
		twice := extractor.Extract(once)
		if once != twice {
			t.Fatalf("Extract not idempotent for %q: %q -> %q", raw, once, twice)
		}
	}
}

func TestExtractNeverEmitsMarkersOrFences(t *testing.T) {
	raw := "```sql\n# comment\nselect '#' as hash\n```"
	got := NewExtractor("t").Extract(raw)
	if strings.Contains(got, "```") {
		t.Fatalf("Extract() kept fence: %q", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), ReasoningMarker) {
			t.Fatalf("Extract() kept reasoning line: %q", got)
		}
	}
}

func TestReasoningLines(t *testing.T) {
	raw := "  # first\nSELECT 1\n#second\nnot reasoning"
	got := ReasoningLines(raw)
	if len(got) != 2 || got[0] != "# first" || got[1] != "#second" {
		t.Fatalf("ReasoningLines() = %#v", got)
	}
}
