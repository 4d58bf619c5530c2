package http

import (
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/identity"
	applog "expenses/internal/log"
	"expenses/internal/store"
)

// requireIdentity returns the resolved identity or answers 401.
func (s *Server) requireIdentity(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	id, err := identity.FromContext(r.Context())
	if err != nil {
		s.respondError(w, r, "", err)
		return identity.Identity{}, false
	}
	return id, true
}

// respondError maps err to a status and writes it in the format the client
// expects. Server-side failures are logged with their cause.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := statusForError(err)
	if status >= http.StatusInternalServerError {
		errType := applog.ErrorTypeInternal
		if core.IsPersistence(err) {
			errType = applog.ErrorTypePersistence
		}
		applog.NewStructuredLogger(s.logger).LogError(r.Context(), "Expense request failed", err, errType, op, nil)
	}

	if wantsJSON(r) {
		writeJSONError(w, err)
		return
	}
	ErrorResponse(status, msg).TriggerErrorNotification(msg).Write(w)
}

// respondInvalid re-renders the dashboard with the rejected form and its
// first field error.
func (s *Server) respondInvalid(w http.ResponseWriter, r *http.Request, id identity.Identity, form formView, err error) {
	var ve *core.ValidationError
	if wantsJSON(r) || !errors.As(err, &ve) {
		s.respondError(w, r, "", err)
		return
	}
	snap, derr := s.expenses.Dashboard(r.Context(), id)
	if derr != nil {
		s.respondError(w, r, applog.OpLoad, derr)
		return
	}
	form.ErrorField = ve.Field
	form.Error = validationMessage(ve)
	b := NewHTMXResponse().Status(http.StatusUnprocessableEntity)
	s.writeDashboard(w, r, b, buildDashboard(snap, id, s.currency, &form))
}

// readForm parses the request body into the submitted form.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (ExpenseForm, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		if wantsJSON(r) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Malformed request body"})
		} else {
			ErrorResponse(http.StatusBadRequest, "Malformed request body").Write(w)
		}
		return ExpenseForm{}, false
	}
	return ReadExpenseForm(p), true
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	form, ok := s.readForm(w, r)
	if !ok {
		return
	}

	in, err := form.Input()
	var rec core.Expense
	if err == nil {
		rec, err = s.expenses.Create(r.Context(), id, in)
	}
	if err != nil {
		if core.IsValidation(err) {
			s.respondInvalid(w, r, id, formView{ExpenseForm: form, Action: "/expenses"}, err)
			return
		}
		s.respondError(w, r, applog.OpCreate, err)
		return
	}
	s.countMutation(store.OpCreate)

	if wantsJSON(r) {
		w.Header().Set("Location", "/api/expenses")
		writeJSON(w, http.StatusCreated, rec)
		return
	}
	s.afterMutation(w, r, id, NewHTMXResponse().
		TriggerExpenseChanged(store.OpCreate, rec.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Expense added"))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	expenseID := r.PathValue("id")
	form, ok := s.readForm(w, r)
	if !ok {
		return
	}

	in, err := form.Input()
	var rec core.Expense
	if err == nil {
		rec, err = s.expenses.Update(r.Context(), id, expenseID, in)
	} else if found, ferr := s.exists(r, id, expenseID); ferr != nil || !found {
		// a missing record wins over a bad submission
		err = ferr
		if err == nil {
			err = core.ErrNotFound
		}
	}
	if err != nil {
		if core.IsValidation(err) {
			s.respondInvalid(w, r, id, formView{
				ExpenseForm: form,
				Action:      "/expenses/" + expenseID,
				Editing:     true,
				ID:          expenseID,
			}, err)
			return
		}
		s.respondError(w, r, applog.OpUpdate, err)
		return
	}
	s.countMutation(store.OpUpdate)

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	s.afterMutation(w, r, id, NewHTMXResponse().
		TriggerExpenseChanged(store.OpUpdate, rec.ID).
		TriggerFormReset().
		TriggerSuccessNotification("Expense updated"))
}

// exists reports whether the owner has a record with expenseID.
func (s *Server) exists(r *http.Request, id identity.Identity, expenseID string) (bool, error) {
	records, err := s.expenses.Records(r.Context(), id)
	if err != nil {
		return false, err
	}
	for _, e := range records {
		if e.ID == expenseID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	expenseID := r.PathValue("id")
	if err := s.expenses.Delete(r.Context(), id, expenseID); err != nil {
		s.respondError(w, r, applog.OpDelete, err)
		return
	}
	s.countMutation(store.OpDelete)

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.afterMutation(w, r, id, NewHTMXResponse().
		TriggerExpenseChanged(store.OpDelete, expenseID).
		TriggerSuccessNotification("Expense deleted"))
}

func (s *Server) handleSelectForEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	rec, err := s.expenses.SelectForEdit(r.Context(), id, r.PathValue("id"))
	if err != nil {
		s.respondError(w, r, applog.OpSelect, err)
		return
	}
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, rec)
		return
	}
	s.afterMutation(w, r, id, NewHTMXResponse())
}

func (s *Server) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}
	if err := s.expenses.ClearSelection(r.Context(), id); err != nil {
		s.respondError(w, r, applog.OpSelect, err)
		return
	}
	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.afterMutation(w, r, id, NewHTMXResponse().TriggerFormReset())
}
