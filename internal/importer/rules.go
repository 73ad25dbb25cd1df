package importer

import (
	"fmt"
	"regexp"
	"strings"

	"fresherjobs/internal/model"
)

// RuleSet is a source's import rules, compiled once per import run and
// matched against the listing an item maps to.
type RuleSet struct {
	include []fieldMatcher
	exclude []fieldMatcher
}

type fieldMatcher struct {
	ruleID int64
	scope  model.RuleScope
	word   string
	re     *regexp.Regexp
}

// listingText holds the lowercased listing fields rules look at.
type listingText struct {
	title, company, description string
}

func textOf(o model.Opportunity) listingText {
	return listingText{
		title:       strings.ToLower(o.Title),
		company:     strings.ToLower(o.Company),
		description: strings.ToLower(o.Description),
	}
}

func (t listingText) scoped(scope model.RuleScope) string {
	switch scope {
	case model.ScopeTitle:
		return t.title
	case model.ScopeCompany:
		return t.company
	case model.ScopeContent:
		return t.description
	default:
		return t.title + "\n" + t.company + "\n" + t.description
	}
}

func (m fieldMatcher) matches(t listingText) bool {
	text := t.scoped(m.scope)
	if m.re != nil {
		return m.re.MatchString(text)
	}
	return strings.Contains(text, m.word)
}

// CompileRules prepares rules for matching. Word rules match a
// case-insensitive substring and regex rules a case-insensitive pattern.
// A rule with an unknown kind or a broken pattern fails the whole set.
func CompileRules(rules []model.Rule) (*RuleSet, error) {
	rs := &RuleSet{}
	for _, r := range rules {
		m := fieldMatcher{ruleID: r.ID, scope: r.Scope}
		switch r.Kind {
		case model.RuleInclude, model.RuleExclude:
			m.word = strings.ToLower(strings.TrimSpace(r.Value))
			if m.word == "" {
				continue
			}
		case model.RuleIncludeRe, model.RuleExcludeRe:
			re, err := compilePattern(r.Value)
			if err != nil {
				return nil, fmt.Errorf("rule %d: %w", r.ID, err)
			}
			m.re = re
		default:
			return nil, fmt.Errorf("rule %d: unknown kind %q", r.ID, r.Kind)
		}

		if r.Kind == model.RuleInclude || r.Kind == model.RuleIncludeRe {
			rs.include = append(rs.include, m)
		} else {
			rs.exclude = append(rs.exclude, m)
		}
	}
	return rs, nil
}

// Allows reports whether a mapped listing may become a draft. Any matching
// exclude rule rejects it; when include rules exist one of them must match.
// A nil set allows everything.
func (rs *RuleSet) Allows(o model.Opportunity) bool {
	if rs == nil {
		return true
	}
	t := textOf(o)
	for _, m := range rs.exclude {
		if m.matches(t) {
			return false
		}
	}
	if len(rs.include) == 0 {
		return true
	}
	for _, m := range rs.include {
		if m.matches(t) {
			return true
		}
	}
	return false
}

// Len returns the number of active rules in the set.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.include) + len(rs.exclude)
}

// ValidateRegex checks a regex rule value before it is stored.
func ValidateRegex(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return re, nil
}
