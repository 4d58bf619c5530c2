package http

import (
	"html/template"
	"net/http"
	"time"

	applog "expenses/internal/log"
	"expenses/internal/report"
)

type reportView struct {
	Body template.HTML
}

func (s *Server) buildReport(w http.ResponseWriter, r *http.Request) (report.Report, bool) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return report.Report{}, false
	}
	records, err := s.expenses.Records(r.Context(), id)
	if err != nil {
		s.respondError(w, r, applog.OpLoad, err)
		return report.Report{}, false
	}
	return report.New(records, s.currency, time.Now()), true
}

// handleReportHTML serves the printable summary page.
func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.buildReport(w, r)
	if !ok {
		return
	}
	fragment, err := rep.HTML()
	var page []byte
	if err == nil {
		// goldmark drops raw HTML from the source
		page, err = s.render("report.html", reportView{Body: template.HTML(fragment)})
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Report render failed",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldOperation, applog.OpRender)
		ErrorResponse(http.StatusInternalServerError, "Could not render the report").Write(w)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	NewHTMXResponse().BodyHTML(page).Write(w)
}

// handleReportMarkdown serves the report source for download.
func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	rep, ok := s.buildReport(w, r)
	if !ok {
		return
	}
	src, err := rep.Markdown()
	if err != nil {
		s.respondError(w, r, applog.OpRender, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="expense-report.md"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(src))
}
