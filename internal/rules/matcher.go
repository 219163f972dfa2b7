// Package rules evaluates categorization rule predicates. Evaluation is
// pure: the same rule set and transaction always produce the same match,
// which makes the matcher reusable for live categorization and for
// dry-run previews.
package rules

import (
	"sort"
	"strings"

	"github.com/kmorrow/pocketbooks/internal/database/repository"
)

// Matcher holds an ordered rule set.
type Matcher struct {
	rules []repository.Rule
}

// NewMatcher builds a matcher over the given rules, ordering them by
// priority descending with created_at then id as the tiebreak. Inactive
// rules are dropped. Callers may pass rules in any order.
func NewMatcher(ruleSet []repository.Rule) *Matcher {
	active := make([]repository.Rule, 0, len(ruleSet))
	for _, r := range ruleSet {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i], active[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return &Matcher{rules: active}
}

// Rules returns the evaluation-ordered rule set.
func (m *Matcher) Rules() []repository.Rule { return m.rules }

// Match returns the first rule matching the transaction, or nil.
func (m *Matcher) Match(t repository.Transaction) *repository.Rule {
	for i := range m.rules {
		if Matches(m.rules[i], t) {
			return &m.rules[i]
		}
	}
	return nil
}

// Matches reports whether every set predicate on the rule holds for the
// transaction. A rule with no merchant predicate matches on amount,
// account, and direction alone.
func Matches(r repository.Rule, t repository.Transaction) bool {
	if !merchantMatches(r, t.Description()) {
		return false
	}
	abs := t.AmountCents
	if abs < 0 {
		abs = -abs
	}
	if r.AmountMinCents != nil && abs < *r.AmountMinCents {
		return false
	}
	if r.AmountMaxCents != nil && abs > *r.AmountMaxCents {
		return false
	}
	if r.AccountID != nil && *r.AccountID != t.AccountID {
		return false
	}
	switch r.Direction {
	case repository.DirectionInflow:
		if t.AmountCents < 0 {
			return false
		}
	case repository.DirectionOutflow:
		if t.AmountCents >= 0 {
			return false
		}
	}
	return true
}

// merchantMatches applies the merchant predicate case-insensitively.
// Exact takes precedence over contains when both are set.
func merchantMatches(r repository.Rule, description string) bool {
	desc := strings.ToLower(description)
	if r.MerchantExact != nil {
		return desc == strings.ToLower(*r.MerchantExact)
	}
	if r.MerchantContains != nil {
		return strings.Contains(desc, strings.ToLower(*r.MerchantContains))
	}
	return true
}
