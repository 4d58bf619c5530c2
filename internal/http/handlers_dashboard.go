package http

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"expenses/internal/core"
	"expenses/internal/identity"
	applog "expenses/internal/log"
	"expenses/internal/store"
)

var templateFuncs = template.FuncMap{
	"lower": strings.ToLower,
}

type recordView struct {
	ID          string
	Title       string
	Amount      string
	AmountValue string
	Category    string
	Date        string
	DateValue   string
	Editing     bool
}

type barView struct {
	Label   string
	Amount  string
	Percent int
	Width   int
}

type summaryView struct {
	Total                string
	Count                int
	Average              string
	HighestTitle         string
	HighestAmount        string
	HighestCategory      string
	MostFrequentCategory string
}

// formView is the add/edit form. ErrorField names the rejected field.
type formView struct {
	ExpenseForm
	Action     string
	Editing    bool
	ID         string
	Error      string
	ErrorField string
}

// FieldError returns the error message when name is the rejected field.
func (f formView) FieldError(name string) string {
	if f.ErrorField == name {
		return f.Error
	}
	return ""
}

type dashboardView struct {
	User       string
	Anonymous  bool
	Categories []string
	Form       formView
	Records    []recordView
	HasData    bool
	Summary    summaryView
	ByCategory []barView
	ByMonth    []barView
}

func newRecordView(e core.Expense, currency string) recordView {
	return recordView{
		ID:          e.ID,
		Title:       e.Title,
		Amount:      e.Amount.Format(currency),
		AmountValue: e.Amount.String(),
		Category:    e.Category.String(),
		Date:        e.Date.Format("Jan 02, 2006"),
		DateValue:   e.Date.Format(dateLayout),
	}
}

// blankForm is the add form with today's date preselected.
func blankForm() formView {
	return formView{
		ExpenseForm: ExpenseForm{Date: time.Now().Format(dateLayout)},
		Action:      "/expenses",
	}
}

func editForm(e core.Expense) formView {
	return formView{
		ExpenseForm: ExpenseForm{
			Title:    e.Title,
			Amount:   e.Amount.String(),
			Category: e.Category.String(),
			Date:     e.Date.Format(dateLayout),
		},
		Action:  "/expenses/" + e.ID,
		Editing: true,
		ID:      e.ID,
	}
}

// buildDashboard derives the page model from one snapshot. A non-nil form
// replaces the default add/edit form, e.g. to echo a rejected submission.
func buildDashboard(snap store.Snapshot, id identity.Identity, currency string, form *formView) dashboardView {
	v := dashboardView{
		User:      id.UserID,
		Anonymous: id.Anonymous(),
		HasData:   snap.HasData,
	}
	for _, c := range core.Categories {
		v.Categories = append(v.Categories, c.String())
	}

	switch {
	case form != nil:
		v.Form = *form
	case snap.Editing != nil:
		v.Form = editForm(*snap.Editing)
	default:
		v.Form = blankForm()
	}

	for _, e := range snap.Records {
		rv := newRecordView(e, currency)
		rv.Editing = v.Form.Editing && v.Form.ID == e.ID
		v.Records = append(v.Records, rv)
	}

	if !snap.HasData {
		return v
	}

	sum := snap.Summary
	v.Summary = summaryView{
		Total:                sum.Total.Format(currency),
		Count:                sum.Count,
		Average:              sum.AverageMoney().Format(currency),
		HighestTitle:         sum.Highest.Title,
		HighestAmount:        sum.Highest.Amount.Format(currency),
		HighestCategory:      sum.Highest.Category.String(),
		MostFrequentCategory: sum.MostFrequentCategory.String(),
	}

	var maxCat int64
	for _, c := range snap.Shares {
		maxCat = max(maxCat, c.Amount.Cents)
	}
	for _, c := range snap.Shares {
		v.ByCategory = append(v.ByCategory, barView{
			Label:   c.Category.String(),
			Amount:  c.Amount.Format(currency),
			Percent: c.Percent,
			Width:   barWidth(c.Amount.Cents, maxCat),
		})
	}

	var maxMonth int64
	for _, m := range snap.ByMonth {
		maxMonth = max(maxMonth, m.Total.Cents)
	}
	for _, m := range snap.ByMonth {
		v.ByMonth = append(v.ByMonth, barView{
			Label:  m.Label,
			Amount: m.Total.Format(currency),
			Width:  barWidth(m.Total.Cents, maxMonth),
		})
	}
	return v
}

// barWidth scales value to a rounded percentage of maxValue, keeping tiny
// non-zero values visible.
func barWidth(value, maxValue int64) int {
	if maxValue <= 0 || value <= 0 {
		return 0
	}
	width := int((value*100 + maxValue/2) / maxValue)
	if width < 2 {
		width = 2
	}
	return min(width, 100)
}

// render executes a template into memory so a failure never leaves a
// half-written response.
func (s *Server) render(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, fmt.Errorf("templates not loaded")
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.Bytes(), nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	snap, err := s.expenses.Dashboard(r.Context(), id)
	if err != nil {
		s.respondError(w, r, applog.OpLoad, err)
		return
	}
	s.writeDashboard(w, r, NewHTMXResponse(), buildDashboard(snap, id, s.currency, nil))
}

// writeDashboard renders the dashboard body for htmx requests and the full
// page otherwise.
func (s *Server) writeDashboard(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, view dashboardView) {
	name := "dashboard.html"
	if isHTMX(r) {
		name = "content"
	}
	body, err := s.render(name, view)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Dashboard render failed",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldOperation, applog.OpRender)
		ErrorResponse(http.StatusInternalServerError, "Could not render the dashboard").Write(w)
		return
	}
	b.BodyHTML(body).Write(w)
}

// afterMutation answers a successful form mutation: htmx gets the refreshed
// dashboard body, plain forms are redirected back to the dashboard.
func (s *Server) afterMutation(w http.ResponseWriter, r *http.Request, id identity.Identity, b *HTMXResponseBuilder) {
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	snap, err := s.expenses.Dashboard(r.Context(), id)
	if err != nil {
		s.respondError(w, r, applog.OpLoad, err)
		return
	}
	s.writeDashboard(w, r, b, buildDashboard(snap, id, s.currency, nil))
}

func (s *Server) handleAPIExpenses(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	records, err := s.expenses.Records(r.Context(), id)
	if err != nil {
		s.respondError(w, r, applog.OpLoad, err)
		return
	}
	if records == nil {
		records = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, records)
}

type summaryJSON struct {
	Total                core.Money    `json:"total"`
	Count                int           `json:"count"`
	Average              core.Money    `json:"average"`
	Highest              core.Expense  `json:"highest"`
	MostFrequentCategory core.Category `json:"mostFrequentCategory"`
}

type analyticsJSON struct {
	HasData    bool                 `json:"hasData"`
	Summary    *summaryJSON         `json:"summary,omitempty"`
	ByCategory []core.CategoryShare `json:"byCategory"`
	ByMonth    []core.MonthTotal    `json:"byMonth"`
}

func (s *Server) handleAPIAnalytics(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	snap, err := s.expenses.Dashboard(r.Context(), id)
	if err != nil {
		s.respondError(w, r, applog.OpLoad, err)
		return
	}

	resp := analyticsJSON{
		HasData:    snap.HasData,
		ByCategory: snap.Shares,
		ByMonth:    snap.ByMonth,
	}
	if resp.ByCategory == nil {
		resp.ByCategory = []core.CategoryShare{}
	}
	if resp.ByMonth == nil {
		resp.ByMonth = []core.MonthTotal{}
	}
	if snap.HasData {
		resp.Summary = &summaryJSON{
			Total:                snap.Summary.Total,
			Count:                snap.Summary.Count,
			Average:              snap.Summary.AverageMoney(),
			Highest:              snap.Summary.Highest,
			MostFrequentCategory: snap.Summary.MostFrequentCategory,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
