// Package model defines the domain types used across the application.
package model

import "time"

// OpportunityType is the kind of listing.
type OpportunityType string

// Supported opportunity types.
const (
	TypeJob        OpportunityType = "JOB"
	TypeInternship OpportunityType = "INTERNSHIP"
	TypeWalkIn     OpportunityType = "WALKIN"
)

// ParseOpportunityType returns the type for s, or false when s is unknown.
func ParseOpportunityType(s string) (OpportunityType, bool) {
	switch t := OpportunityType(s); t {
	case TypeJob, TypeInternship, TypeWalkIn:
		return t, true
	}
	return "", false
}

// WorkMode describes where the work happens.
type WorkMode string

// Supported work modes.
const (
	WorkOnsite WorkMode = "ONSITE"
	WorkRemote WorkMode = "REMOTE"
	WorkHybrid WorkMode = "HYBRID"
)

// Status is the publication state of a listing.
type Status string

// Supported listing statuses.
const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
	StatusActive    Status = "ACTIVE"
	StatusArchived  Status = "ARCHIVED"
)

// Opportunity is a job, internship or walk-in listing.
type Opportunity struct {
	ID                  string          `json:"id"`
	Type                OpportunityType `json:"type"`
	Title               string          `json:"title"`
	Company             string          `json:"company"`
	Description         string          `json:"description,omitempty"`
	AllowedDegrees      []string        `json:"allowedDegrees"`
	AllowedPassoutYears []int           `json:"allowedPassoutYears"`
	RequiredSkills      []string        `json:"requiredSkills"`
	Locations           []string        `json:"locations"`
	WorkMode            *WorkMode       `json:"workMode,omitempty"`
	SalaryMin           *int            `json:"salaryMin,omitempty"`
	SalaryMax           *int            `json:"salaryMax,omitempty"`
	ExperienceMin       *int            `json:"experienceMin,omitempty"`
	ExperienceMax       *int            `json:"experienceMax,omitempty"`
	ApplyLink           string          `json:"applyLink,omitempty"`
	Status              Status          `json:"status"`
	PostedAt            time.Time       `json:"postedAt"`
	ExpiresAt           *time.Time      `json:"expiresAt,omitempty"`
	UpdatedAt           *time.Time      `json:"updatedAt,omitempty"`
	DeletedAt           *time.Time      `json:"deletedAt,omitempty"`
}

// Expired reports whether the listing's expiry lies at or before now.
// Listings without an expiry never expire.
func (o *Opportunity) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// Visible reports whether candidates may see the listing.
func (o *Opportunity) Visible() bool {
	if o.DeletedAt != nil {
		return false
	}
	return o.Status == StatusPublished || o.Status == StatusActive
}

// Revision returns the timestamp used to order versions of a listing:
// UpdatedAt when present, PostedAt otherwise.
func (o *Opportunity) Revision() time.Time {
	if o.UpdatedAt != nil {
		return *o.UpdatedAt
	}
	return o.PostedAt
}

// Profile holds a candidate's eligibility and preference data.
type Profile struct {
	UserID           string     `json:"userId"`
	FullName         string     `json:"fullName,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	College          string     `json:"college,omitempty"`
	EducationLevel   string     `json:"educationLevel,omitempty"`
	GraduationYear   *int       `json:"graduationYear,omitempty"`
	PGGraduationYear *int       `json:"pgGraduationYear,omitempty"`
	Skills           []string   `json:"skills"`
	PreferredCities  []string   `json:"preferredCities"`
	WorkModes        []WorkMode `json:"workModes"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// ActionType is a tracked state a candidate sets on a listing.
type ActionType string

// Supported action types.
const (
	ActionViewed   ActionType = "VIEWED"
	ActionApplied  ActionType = "APPLIED"
	ActionPlanning ActionType = "PLANNING"
)

// ParseActionType returns the action type for s, or false when s is unknown.
func ParseActionType(s string) (ActionType, bool) {
	switch a := ActionType(s); a {
	case ActionViewed, ActionApplied, ActionPlanning:
		return a, true
	}
	return "", false
}

// AuditEntry records one admin mutation.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	EntityID  string    `json:"entityId"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
