package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCategory is returned when a category name is not one of the two sample kinds.
var ErrUnknownCategory = errors.New("microguard: unknown category")

// Category is the kind of sample under test.
type Category string

const (
	CategoryBlood Category = "blood"
	CategoryWater Category = "water"
)

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{CategoryBlood, CategoryWater}
}

// ParseCategory resolves a category name case-insensitively.
func ParseCategory(name string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(name))) {
	case CategoryBlood:
		return CategoryBlood, nil
	case CategoryWater:
		return CategoryWater, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, name)
	}
}

func (c Category) Valid() bool {
	return c == CategoryBlood || c == CategoryWater
}

// DisplayName is the capitalised label used in prompts and documents.
func (c Category) DisplayName() string {
	switch c {
	case CategoryBlood:
		return "Blood"
	case CategoryWater:
		return "Water"
	default:
		return string(c)
	}
}

func (c Category) String() string { return string(c) }
