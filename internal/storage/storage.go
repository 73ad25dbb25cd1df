// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"fresherjobs/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ClosingSoonWindow is how close to expiry a listing must be to count as
// closing soon.
const ClosingSoonWindow = 3 * 24 * time.Hour

// ListQuery is the coarse database-level predicate for the candidate feed.
// Only visible, non-expired listings are returned.
type ListQuery struct {
	Now            time.Time
	Type           model.OpportunityType
	City           string
	ClosingSoon    bool
	SavedBy        string
	EducationLevel string
	Limit          int
	Offset         int
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateOpportunity(ctx context.Context, o *model.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*model.Opportunity, error)
	UpdateOpportunity(ctx context.Context, o *model.Opportunity) error
	SoftDeleteOpportunity(ctx context.Context, id string) error
	ListOpportunities(ctx context.Context, q ListQuery) ([]model.Opportunity, int, error)
	ListRecent(ctx context.Context, status model.Status, limit int) ([]model.Opportunity, error)
	ListClosingSoon(ctx context.Context, now time.Time, within time.Duration, limit int) ([]model.Opportunity, error)

	ToggleSave(ctx context.Context, userID, opportunityID string) (bool, error)
	IsSaved(ctx context.Context, userID, opportunityID string) (bool, error)
	SavedIDs(ctx context.Context, userID string) (map[string]bool, error)
	TrackAction(ctx context.Context, userID, opportunityID string, action model.ActionType) error
	RemoveAction(ctx context.Context, userID, opportunityID string) error
	GetAction(ctx context.Context, userID, opportunityID string) (model.ActionType, error)

	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpsertProfile(ctx context.Context, p *model.Profile) error

	AppendAudit(ctx context.Context, e *model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)

	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListDueSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, src *model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	CreateRule(ctx context.Context, r *model.Rule) error
	ListRules(ctx context.Context, sourceID int64) ([]model.Rule, error)
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	DeleteRule(ctx context.Context, id int64) error

	MarkSeen(ctx context.Context, sourceID int64, guid string) error
	IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error)

	Close() error
}
