package report

import (
	"strings"
	"testing"
	"time"

	"expenses/internal/core"
)

var generated = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func sample() []core.Expense {
	return []core.Expense{
		{ID: "a", Title: "Groceries", Amount: core.Cents(1000), Category: core.Food, Date: time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)},
		{ID: "b", Title: "Snacks", Amount: core.Cents(500), Category: core.Food, Date: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)},
		{ID: "c", Title: "Train | return", Amount: core.Cents(2000), Category: core.Transportation, Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func TestMarkdownContainsSummaryAndRows(t *testing.T) {
	out, err := New(sample(), "USD", generated).Markdown()
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	for _, want := range []string{
		"# Expense Summary Report",
		"## Summary Overview",
		"**Total Expenses:** $35.00",
		"**Number of Expenses:** 3",
		"**Average Expense:** $11.67",
		"**Most Frequent Category:** Food",
		`**Highest Expense:** Train \| return - $20.00 (Transportation)`,
		"| Groceries | $10.00 | Food | 2024-01-05 |",
		"| Snacks | $5.00 | Food | 2024-01-20 |",
		"_Report generated on 2024-03-01 09:30 UTC_",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "No expense data available.") {
		t.Error("empty-state line in a report with data")
	}
}

func TestMarkdownEmpty(t *testing.T) {
	out, err := New(nil, "USD", generated).Markdown()
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	if !strings.Contains(out, "No expense data available.") {
		t.Fatalf("expected empty-state line, got:\n%s", out)
	}
	if strings.Contains(out, "Summary Overview") {
		t.Fatal("summary rendered without data")
	}
}

func TestMarkdownCurrency(t *testing.T) {
	out, err := New(sample(), "EUR", generated).Markdown()
	if err != nil {
		t.Fatalf("markdown: %v", err)
	}
	if !strings.Contains(out, "€") {
		t.Fatalf("expected euro amounts, got:\n%s", out)
	}
}

func TestHTML(t *testing.T) {
	out, err := New(sample(), "USD", generated).HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	for _, want := range []string{"<h1>Expense Summary Report</h1>", "<table>", "<td>Groceries</td>", "Train | return"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestHTMLEscapesUserText(t *testing.T) {
	recs := []core.Expense{{ID: "x", Title: "<script>alert(1)</script>", Amount: core.Cents(100), Category: core.Other, Date: generated}}
	out, err := New(recs, "USD", generated).HTML()
	if err != nil {
		t.Fatalf("html: %v", err)
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped title in:\n%s", out)
	}
}

func TestTerminal(t *testing.T) {
	out, err := New(sample(), "USD", generated).Terminal("notty", 100)
	if err != nil {
		t.Fatalf("terminal: %v", err)
	}
	for _, want := range []string{"Expense Summary Report", "Groceries", "Food"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestEscapeCell(t *testing.T) {
	if got := escapeCell("a|b\nc"); got != `a\|b c` {
		t.Fatalf("got %q", got)
	}
}
