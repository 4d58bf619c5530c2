package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxTitleLength = 200

type (
	// Expense is a single persisted expense record.
	Expense struct {
		ID       string    `json:"id"`
		Title    string    `json:"title"`
		Amount   Money     `json:"amount"`
		Category Category  `json:"category"`
		Date     time.Time `json:"date"`
		UserID   string    `json:"userId,omitempty"` // empty for anonymous usage
	}

	// ExpenseInput carries the user-editable fields of an Expense.
	ExpenseInput struct {
		Title    string
		Amount   Money
		Category Category
		Date     time.Time
	}

	// ValidationError reports which field of an ExpenseInput was rejected.
	ValidationError struct {
		Field string
		Err   error
	}

	// PersistenceError wraps a failure of the persisted mirror.
	PersistenceError struct {
		Op  string // "read" or "write"
		Key string
		Err error
	}
)

var (
	ErrEmptyTitle      = errors.New("title is required")
	ErrTitleTooLong    = fmt.Errorf("title too long (max %d characters)", maxTitleLength)
	ErrInvalidAmount   = errors.New("amount must be greater than 0")
	ErrInvalidCategory = errors.New("unknown category")
	ErrInvalidDate     = errors.New("date is required")

	ErrNotFound = errors.New("expense not found")
)

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is (or wraps) a PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// Validate checks the input and returns the first violation found.
func (in ExpenseInput) Validate() error {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return &ValidationError{Field: "title", Err: ErrEmptyTitle}
	}
	if len(title) > maxTitleLength {
		return &ValidationError{Field: "title", Err: ErrTitleTooLong}
	}
	if err := in.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Err: err}
	}
	if !in.Category.Valid() {
		return &ValidationError{Field: "category", Err: ErrInvalidCategory}
	}
	if in.Date.IsZero() {
		return &ValidationError{Field: "date", Err: ErrInvalidDate}
	}
	return nil
}

// Normalized returns a copy with surrounding whitespace removed from the title.
func (in ExpenseInput) Normalized() ExpenseInput {
	in.Title = strings.TrimSpace(in.Title)
	return in
}

// Input returns the editable fields of the record.
func (e Expense) Input() ExpenseInput {
	return ExpenseInput{
		Title:    e.Title,
		Amount:   e.Amount,
		Category: e.Category,
		Date:     e.Date,
	}
}

// Validate checks a stored record, including its identifier.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return &ValidationError{Field: "id", Err: errors.New("id is required")}
	}
	return e.Input().Validate()
}
