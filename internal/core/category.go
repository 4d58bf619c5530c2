package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category is one of the fixed expense categories. The zero value is invalid.
type Category int

const (
	Food Category = iota + 1
	Transportation
	Entertainment
	Utilities
	Housing
	Healthcare
	Shopping
	Education
	Travel
	Other
)

// Categories lists every category in display order.
var Categories = []Category{
	Food,
	Transportation,
	Entertainment,
	Utilities,
	Housing,
	Healthcare,
	Shopping,
	Education,
	Travel,
	Other,
}

var categoryNames = map[Category]string{
	Food:           "Food",
	Transportation: "Transportation",
	Entertainment:  "Entertainment",
	Utilities:      "Utilities",
	Housing:        "Housing",
	Healthcare:     "Healthcare",
	Shopping:       "Shopping",
	Education:      "Education",
	Travel:         "Travel",
	Other:          "Other",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Valid reports whether c belongs to the enumeration.
func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory resolves a category name, ignoring case and surrounding spaces.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(categoryNames[c], s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) MarshalJSON() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCategory, int(c))
	}
	return json.Marshal(categoryNames[c])
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
