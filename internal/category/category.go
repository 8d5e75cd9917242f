package category

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ID identifies a category
type ID = string

// Unassigned is the result of classifying a description no rule matches.
// It is reserved and cannot be used as a category ID.
const Unassigned ID = "unassigned"

// MatchMode controls how a rule pattern is compared with a description
type MatchMode string

const (
	MatchExact     MatchMode = "exact"
	MatchPrefix    MatchMode = "prefix"
	MatchSubstring MatchMode = "substring"
)

// Rule is a single keyword rule of a category
type Rule struct {
	Pattern       string    `json:"pattern"`
	Mode          MatchMode `json:"mode"`
	CaseSensitive bool      `json:"case_sensitive,omitempty"`
}

// Category is a spend classification bucket with ordered matching rules
type Category struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
	Rules       []Rule `json:"rules"`
	// Priority orders categories during classification. Lower values are
	// tried first; zero means unset and falls back to most recently edited first.
	Priority int `json:"priority,omitempty"`
	// ShelfLifeDays infers an expiration date for pantry entries; zero means unknown.
	ShelfLifeDays int       `json:"shelf_life_days,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ErrNotFound is returned when a category does not exist
var ErrNotFound = errors.New("category not found")

// ConfigurationError reports a malformed category, rejected at save time
type ConfigurationError struct {
	CategoryID ID
	Field      string
	Reason     string
}

func (e *ConfigurationError) Error() string {
	if e.CategoryID == "" {
		return fmt.Sprintf("invalid category: %s %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid category %s: %s %s", e.CategoryID, e.Field, e.Reason)
}

// Validate checks a category before it is saved. IDs are expected to be set.
func Validate(c Category) error {
	if strings.TrimSpace(c.ID) == "" {
		return &ConfigurationError{Field: "id", Reason: "is empty"}
	}
	if strings.EqualFold(strings.TrimSpace(c.ID), Unassigned) {
		return &ConfigurationError{CategoryID: c.ID, Field: "id", Reason: "is reserved"}
	}
	if strings.TrimSpace(c.Name) == "" {
		return &ConfigurationError{CategoryID: c.ID, Field: "name", Reason: "is empty"}
	}
	if c.Priority < 0 {
		return &ConfigurationError{CategoryID: c.ID, Field: "priority", Reason: "is negative"}
	}
	if c.ShelfLifeDays < 0 {
		return &ConfigurationError{CategoryID: c.ID, Field: "shelf_life_days", Reason: "is negative"}
	}
	for i, rule := range c.Rules {
		field := fmt.Sprintf("rules[%d]", i)
		if Fold(rule.Pattern) == "" {
			return &ConfigurationError{CategoryID: c.ID, Field: field, Reason: "has an empty pattern"}
		}
		switch rule.Mode {
		case MatchExact, MatchPrefix, MatchSubstring:
		default:
			return &ConfigurationError{CategoryID: c.ID, Field: field, Reason: fmt.Sprintf("has unknown mode %q", rule.Mode)}
		}
	}
	return nil
}
