package model

import (
	"fmt"
	"strings"
)

// Category is the product family a batch belongs to.
type Category string

const (
	CategoryPowders Category = "Powders"
	CategoryTeas    Category = "Teas"
	CategoryFresh   Category = "Fresh"
	CategoryPoultry Category = "Poultry"
	CategoryBeef    Category = "Beef"
	CategoryGrains  Category = "Grains"
	CategoryDairy   Category = "Dairy"
	CategorySpices  Category = "Spices"
	CategorySeafood Category = "Seafood"
)

var categories = []Category{
	CategoryPowders, CategoryTeas, CategoryFresh, CategoryPoultry, CategoryBeef,
	CategoryGrains, CategoryDairy, CategorySpices, CategorySeafood,
}

// Categories returns every known category in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory resolves s to a known category, ignoring case and
// surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}
