package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func validInput() ExpenseInput {
	return ExpenseInput{
		Title:    "Groceries",
		Amount:   Money{Cents: 1250},
		Category: Food,
		Date:     time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
	}
}

func TestExpenseInputValidate(t *testing.T) {
	if err := validInput().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*ExpenseInput)
		field  string
		want   error
	}{
		{"empty title", func(in *ExpenseInput) { in.Title = "   " }, "title", ErrEmptyTitle},
		{"long title", func(in *ExpenseInput) { in.Title = strings.Repeat("x", 201) }, "title", ErrTitleTooLong},
		{"zero amount", func(in *ExpenseInput) { in.Amount = Money{} }, "amount", ErrInvalidAmount},
		{"negative amount", func(in *ExpenseInput) { in.Amount = Money{Cents: -1} }, "amount", ErrInvalidAmount},
		{"no category", func(in *ExpenseInput) { in.Category = 0 }, "category", ErrInvalidCategory},
		{"bad category", func(in *ExpenseInput) { in.Category = Category(99) }, "category", ErrInvalidCategory},
		{"zero date", func(in *ExpenseInput) { in.Date = time.Time{} }, "date", ErrInvalidDate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			err := in.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tc.field {
				t.Fatalf("expected validation error on %q, got %v", tc.field, err)
			}
			if !IsValidation(err) {
				t.Fatalf("IsValidation(%v) = false", err)
			}
		})
	}
}

func TestExpenseValidateRequiresID(t *testing.T) {
	e := Expense{Title: "x", Amount: Money{Cents: 1}, Category: Other, Date: time.Now()}
	if err := e.Validate(); err == nil {
		t.Fatal("expected error for missing id")
	}
	e.ID = "abc"
	if err := e.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
}

func TestParseCategory(t *testing.T) {
	cases := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"Food", Food, true},
		{" transportation ", Transportation, true},
		{"OTHER", Other, true},
		{"Transport", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseCategory(tc.in)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: expected %v, got %v (err=%v)", tc.in, tc.want, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidCategory) {
			t.Fatalf("%q: expected ErrInvalidCategory, got %v", tc.in, err)
		}
	}
}

func TestCategoriesAreExhaustive(t *testing.T) {
	if len(Categories) != 10 {
		t.Fatalf("expected 10 categories, got %d", len(Categories))
	}
	seen := map[string]bool{}
	for _, c := range Categories {
		if !c.Valid() {
			t.Fatalf("category %d not valid", c)
		}
		if seen[c.String()] {
			t.Fatalf("duplicate name %s", c)
		}
		seen[c.String()] = true
	}
}

func TestExpenseJSON(t *testing.T) {
	e := Expense{
		ID:       "id-1",
		Title:    "Bus",
		Amount:   Money{Cents: 250},
		Category: Transportation,
		Date:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"amount":2.50`, `"category":"Transportation"`, `"date":"2024-02-01T00:00:00Z"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected %s in %s", want, s)
		}
	}
	if strings.Contains(s, "userId") {
		t.Fatalf("anonymous record should omit userId: %s", s)
	}
}

func TestExpenseUnmarshalRejectsUnknownCategory(t *testing.T) {
	var e Expense
	err := json.Unmarshal([]byte(`{"id":"1","title":"x","amount":1,"category":"Pets","date":"2024-01-01T00:00:00Z"}`), &e)
	if !errors.Is(err, ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
}
