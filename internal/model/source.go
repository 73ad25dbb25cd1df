package model

import "time"

// Source is a partner RSS/Atom feed that listings are imported from.
type Source struct {
	ID              int64
	Name            string
	URL             string
	DefaultType     OpportunityType
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// RuleKind defines the type of import rule.
type RuleKind string

// Supported rule kinds.
const (
	RuleInclude   RuleKind = "include"
	RuleExclude   RuleKind = "exclude"
	RuleIncludeRe RuleKind = "include_re"
	RuleExcludeRe RuleKind = "exclude_re"
)

// RuleScope defines which part of a feed item a rule matches against.
type RuleScope string

// Supported rule scopes.
const (
	ScopeTitle   RuleScope = "title"
	ScopeCompany RuleScope = "company"
	ScopeContent RuleScope = "content"
	ScopeAll     RuleScope = "all"
)

// Rule is a single include/exclude rule attached to a source.
type Rule struct {
	ID        int64
	SourceID  int64
	Kind      RuleKind
	Scope     RuleScope
	Value     string
	CreatedAt time.Time
}
