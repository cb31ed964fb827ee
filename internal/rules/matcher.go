// Package rules classifies transactions by matching their descriptions
// against an ordered list of user rules. The first matching rule wins.
package rules

import (
	"regexp"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
)

// Matcher compiles rule patterns and keeps the compiled form in an LRU so
// repeated sweeps over the same rule set do not recompile.
type Matcher struct {
	compiled *cache.LRUCache[*regexp.Regexp]
}

func NewMatcher(cacheSize int, ttl time.Duration) *Matcher {
	return &Matcher{compiled: cache.NewLRUCache[*regexp.Regexp](cacheSize, ttl)}
}

// Cache exposes the compiled-pattern cache for registration with a cache.Manager.
func (m *Matcher) Cache() *cache.LRUCache[*regexp.Regexp] {
	return m.compiled
}

func (m *Matcher) compile(rule core.Rule) (*regexp.Regexp, error) {
	re, err := m.compiled.GetOrCreate(rule.Pattern, func() (*regexp.Regexp, error) {
		return regexp.Compile(rule.Pattern)
	})
	if err != nil {
		return nil, &core.PatternError{RuleID: rule.ID, Pattern: rule.Pattern, Err: err}
	}
	return re, nil
}

// Validate reports a *core.PatternError when pattern does not compile.
func (m *Matcher) Validate(pattern string) error {
	_, err := m.compile(core.Rule{Pattern: pattern})
	return err
}

// Matches tests the rule's pattern against description. A malformed pattern
// is an error, never a non-match.
func (m *Matcher) Matches(rule core.Rule, description string) (bool, error) {
	re, err := m.compile(rule)
	if err != nil {
		return false, err
	}
	return re.MatchString(description), nil
}

// Classify returns the category of the first rule in rules that matches
// description, or nil when none does.
func (m *Matcher) Classify(rules []core.Rule, description string) (*int64, error) {
	for _, rule := range rules {
		ok, err := m.Matches(rule, description)
		if err != nil {
			return nil, err
		}
		if ok {
			category := rule.CategoryID
			return &category, nil
		}
	}
	return nil, nil
}
