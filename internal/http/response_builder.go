// Package http provides HTTP server and handler implementations.
//
// This file implements the builder used for HTMX responses and the mapping
// from domain errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/identity"
)

// HTMXResponseBuilder provides a fluent API for building HTMX responses.
type HTMXResponseBuilder struct {
	triggers   map[string]interface{}
	statusCode int
	body       []byte
	headers    map[string]string
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		triggers:   make(map[string]interface{}),
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.statusCode = code
	return b
}

// Trigger adds a named trigger with optional data to the HX-Trigger header.
func (b *HTMXResponseBuilder) Trigger(name string, data interface{}) *HTMXResponseBuilder {
	b.triggers[name] = data
	return b
}

// TriggerExpenseChanged adds the expense:<op>d trigger carrying the record id.
func (b *HTMXResponseBuilder) TriggerExpenseChanged(op, id string) *HTMXResponseBuilder {
	return b.Trigger("expense:"+op+"d", map[string]string{"id": id})
}

// TriggerFormReset adds the form:reset trigger.
func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// TriggerNotification adds a show-notification trigger.
func (b *HTMXResponseBuilder) TriggerNotification(notifType NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger("show-notification", map[string]interface{}{
		"type":     string(notifType),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 5000)
}

func (b *HTMXResponseBuilder) Header(name, value string) *HTMXResponseBuilder {
	b.headers[name] = value
	return b
}

// BodyHTML sets the response body as HTML content.
func (b *HTMXResponseBuilder) BodyHTML(html []byte) *HTMXResponseBuilder {
	b.headers["Content-Type"] = "text/html; charset=utf-8"
	b.body = html
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if len(b.triggers) > 0 {
		if triggerJSON, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(triggerJSON))
		}
	}
	w.WriteHeader(b.statusCode)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse creates an error fragment. The message is HTML-escaped.
func ErrorResponse(statusCode int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(statusCode).
		BodyHTML([]byte(`<div class="error">` + template.HTMLEscapeString(message) + `</div>`))
}

// statusForError maps a domain error to the response status and the message
// shown to the user. Internal details never reach the message.
func statusForError(err error) (int, string) {
	var ve *core.ValidationError
	switch {
	case errors.Is(err, identity.ErrUnresolved):
		return http.StatusUnauthorized, "Sign in to manage your expenses"
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, validationMessage(ve)
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "Expense not found"
	case core.IsPersistence(err):
		return http.StatusInternalServerError, "Could not save your expenses, please retry"
	default:
		return http.StatusInternalServerError, "Something went wrong"
	}
}

// validationMessage returns the user-facing text for a field violation.
func validationMessage(ve *core.ValidationError) string {
	switch {
	case errors.Is(ve, core.ErrEmptyTitle):
		return "Title is required"
	case errors.Is(ve, core.ErrTitleTooLong):
		return "Title must be at most 200 characters"
	case errors.Is(ve, core.ErrInvalidAmount):
		return "Amount must be greater than 0"
	case errors.Is(ve, core.ErrInvalidCategory):
		return "Category is required"
	case errors.Is(ve, core.ErrInvalidDate):
		return "Date is required"
	default:
		return ve.Error()
	}
}

// errorBody is the JSON error shape of the API.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, err error) {
	status, msg := statusForError(err)
	body := errorBody{Error: msg}
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	writeJSON(w, status, body)
}
