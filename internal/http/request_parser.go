// Package http provides HTTP server and handler implementations.
//
// This file implements parsing of expense input from form-encoded or JSON
// request bodies.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"expenses/internal/core"
)

// maxBodyBytes bounds request bodies; an expense is a handful of short fields.
const maxBodyBytes = 64 << 10

// dateLayout is the HTML date input format.
const dateLayout = "2006-01-02"

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads the body once and stores it for parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || trimmed[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ExpenseForm is the raw submitted form, kept so it can be echoed back when
// validation fails.
type ExpenseForm struct {
	Title    string
	Amount   string
	Category string
	Date     string
}

// ReadExpenseForm extracts the expense fields from a parsed body.
func ReadExpenseForm(p *RequestBodyParser) ExpenseForm {
	return ExpenseForm{
		Title:    p.Get("title"),
		Amount:   p.Get("amount"),
		Category: p.Get("category"),
		Date:     p.Get("date"),
	}
}

// Input converts the form into an ExpenseInput. Unparseable fields are left
// zero, so Validate reports the first offending field in form order.
func (f ExpenseForm) Input() (core.ExpenseInput, error) {
	in := core.ExpenseInput{Title: f.Title}
	if amount, err := core.ParseMoney(f.Amount); err == nil {
		in.Amount = amount
	}
	if cat, err := core.ParseCategory(f.Category); err == nil {
		in.Category = cat
	}
	if d, err := parseDate(f.Date); err == nil {
		in.Date = d
	}
	return in, in.Validate()
}

// parseDate accepts the date input format or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
