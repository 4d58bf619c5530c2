// Package report renders the printable expense summary as Markdown, HTML
// and terminal output.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"expenses/internal/core"
)

//go:embed templates/*.md
var templates embed.FS

// Report is the data behind one rendering.
type Report struct {
	Records     []core.Expense
	Summary     core.Summary
	HasData     bool
	Currency    string
	GeneratedAt time.Time
}

// New builds a report over records in sequence order.
func New(records []core.Expense, currency string, generatedAt time.Time) Report {
	r := Report{
		Records:     append([]core.Expense(nil), records...),
		Currency:    currency,
		GeneratedAt: generatedAt,
	}
	r.Summary, r.HasData = core.Summarize(records)
	return r
}

var tmpl = template.Must(template.New("report.md").Funcs(template.FuncMap{
	"cell":  escapeCell,
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04 MST") },
	"money": func(m core.Money) string { return m.Format("") }, // rebound per render
}).ParseFS(templates, "templates/report.md"))

// Markdown renders the report source.
func (r Report) Markdown() (string, error) {
	t, err := tmpl.Clone()
	if err != nil {
		return "", fmt.Errorf("clone report template: %w", err)
	}
	t.Funcs(template.FuncMap{
		"money": func(m core.Money) string { return m.Format(r.Currency) },
	})

	var b strings.Builder
	if err := t.ExecuteTemplate(&b, "report.md", r); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return b.String(), nil
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// HTML renders the report as an HTML fragment.
func (r Report) HTML() (string, error) {
	src, err := r.Markdown()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert report to html: %w", err)
	}
	return buf.String(), nil
}

// Terminal renders the report for a terminal of the given width. style is a
// glamour standard style name; "notty" produces plain text.
func (r Report) Terminal(style string, width int) (string, error) {
	src, err := r.Markdown()
	if err != nil {
		return "", err
	}
	if style == "" {
		style = "dark"
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("create terminal renderer: %w", err)
	}
	out, err := tr.Render(src)
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return out, nil
}

// escapeCell keeps user text from breaking the surrounding Markdown.
func escapeCell(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"|", `\|`,
		"*", `\*`,
		"_", `\_`,
		"`", "\\`",
		"<", "&lt;",
		">", "&gt;",
		"\n", " ",
		"\r", "",
	)
	return r.Replace(s)
}
