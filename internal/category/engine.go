package category

import (
	"sort"
	"strings"
)

// Match describes which rule classified a description
type Match struct {
	CategoryID ID
	RuleIndex  int
}

type compiledRule struct {
	pattern       string
	mode          MatchMode
	caseSensitive bool
}

type compiledCategory struct {
	id    ID
	rules []compiledRule
}

// Engine classifies item descriptions against a frozen snapshot of categories.
// It is safe for concurrent use; build a new Engine when the rules change.
type Engine struct {
	categories []compiledCategory
}

// NewEngine snapshots the given categories in evaluation order
func NewEngine(categories []Category) *Engine {
	ordered := make([]Category, len(categories))
	copy(ordered, categories)
	sortForEvaluation(ordered)

	e := &Engine{categories: make([]compiledCategory, 0, len(ordered))}
	for _, c := range ordered {
		cc := compiledCategory{id: c.ID}
		for _, rule := range c.Rules {
			pattern := Fold(rule.Pattern)
			if rule.CaseSensitive {
				pattern = FoldCase(rule.Pattern)
			}
			if pattern == "" {
				continue
			}
			cc.rules = append(cc.rules, compiledRule{
				pattern:       pattern,
				mode:          rule.Mode,
				caseSensitive: rule.CaseSensitive,
			})
		}
		e.categories = append(e.categories, cc)
	}
	return e
}

// sortForEvaluation puts categories with an explicit priority first (lowest
// value first), then the rest by most recent edit. IDs break remaining ties.
func sortForEvaluation(categories []Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		a, b := categories[i], categories[j]
		switch {
		case a.Priority > 0 && b.Priority > 0:
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
		case a.Priority > 0:
			return true
		case b.Priority > 0:
			return false
		default:
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.After(b.UpdatedAt)
			}
		}
		return a.ID < b.ID
	})
}

// Classify returns the first matching category, or Unassigned
func (e *Engine) Classify(description string) ID {
	if m, ok := e.Match(description); ok {
		return m.CategoryID
	}
	return Unassigned
}

// Match returns the category and rule that matched the description
func (e *Engine) Match(description string) (Match, bool) {
	folded := Fold(description)
	if folded == "" {
		return Match{}, false
	}
	foldedCase := FoldCase(description)

	for _, c := range e.categories {
		for i, rule := range c.rules {
			subject := folded
			if rule.caseSensitive {
				subject = foldedCase
			}
			if matches(subject, rule) {
				return Match{CategoryID: c.id, RuleIndex: i}, true
			}
		}
	}
	return Match{}, false
}

// Order returns the category IDs in evaluation order
func (e *Engine) Order() []ID {
	ids := make([]ID, len(e.categories))
	for i, c := range e.categories {
		ids[i] = c.id
	}
	return ids
}

func matches(subject string, rule compiledRule) bool {
	switch rule.mode {
	case MatchExact:
		return subject == rule.pattern
	case MatchPrefix:
		return strings.HasPrefix(subject, rule.pattern)
	case MatchSubstring:
		return strings.Contains(subject, rule.pattern)
	}
	return false
}
