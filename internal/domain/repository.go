// Package domain defines the core interfaces and types for the rule workbench.
package domain

import (
	"context"
	"strings"
)

// RuleStore holds the working set of rules.
// Implementations keep rules in process memory; nothing is persisted.
type RuleStore interface {
	// Put inserts or replaces a rule.
	Put(ctx context.Context, rule *Rule) error

	// Get returns a copy of a rule, or ErrNotFound.
	Get(ctx context.Context, ruleID string) (*Rule, error)

	// List returns copies of the rules matching filter, ordered by priority then name.
	List(ctx context.Context, filter RuleFilter) ([]*Rule, error)

	// Delete removes a rule, or returns ErrNotFound.
	Delete(ctx context.Context, ruleID string) error

	// Len is the number of rules held.
	Len() int
}

// RuleFilter narrows a rule listing. Zero values match everything.
type RuleFilter struct {
	Status    RuleStatus
	RiskLevel RiskLevel
	Search    string // case-insensitive match on name and description
}

// Match reports whether r passes the filter.
func (f RuleFilter) Match(r *Rule) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.RiskLevel != "" && r.Action.RiskLevel != f.RiskLevel {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.Name), q) && !strings.Contains(strings.ToLower(r.Description), q) {
			return false
		}
	}
	return true
}
