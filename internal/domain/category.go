package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category is a content topic an email address can subscribe to.
type Category string

// DefaultCategories is the category set the service ships with.
var DefaultCategories = []Category{
	"sports",
	"entertainment",
	"boycott",
	"hollywood",
	"bollywood",
	"politics",
	"crime",
	"religious",
	"automobile",
	"education",
	"health",
	"war",
	"business",
	"fashion",
	"environment",
	"accidents",
}

// CategoryRegistry is an immutable set of valid categories.
type CategoryRegistry struct {
	ordered []Category
	set     map[Category]struct{}
}

// NewCategoryRegistry builds a registry from the given values.
// Duplicates are dropped, registry order follows first occurrence.
func NewCategoryRegistry(values []Category) (*CategoryRegistry, error) {
	if len(values) == 0 {
		return nil, errors.New("category registry: at least one category is required")
	}

	r := &CategoryRegistry{
		ordered: make([]Category, 0, len(values)),
		set:     make(map[Category]struct{}, len(values)),
	}
	for _, v := range values {
		name := Category(strings.TrimSpace(string(v)))
		if name == "" {
			return nil, errors.New("category registry: empty category name")
		}
		if _, ok := r.set[name]; ok {
			continue
		}
		r.set[name] = struct{}{}
		r.ordered = append(r.ordered, name)
	}
	return r, nil
}

// MustCategoryRegistry is like NewCategoryRegistry but panics on error.
func MustCategoryRegistry(values []Category) *CategoryRegistry {
	r, err := NewCategoryRegistry(values)
	if err != nil {
		panic(fmt.Sprintf("invalid category registry: %v", err))
	}
	return r
}

// Contains reports whether c is a registered category.
func (r *CategoryRegistry) Contains(c Category) bool {
	_, ok := r.set[c]
	return ok
}

// List returns a copy of the registered categories in registry order.
func (r *CategoryRegistry) List() []Category {
	out := make([]Category, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// String returns the categories joined by commas.
func (r *CategoryRegistry) String() string {
	names := make([]string, len(r.ordered))
	for i, c := range r.ordered {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}
