package model

// OfflineActionKind discriminates queued mutations.
type OfflineActionKind string

// Supported offline action kinds.
const (
	OfflineSaveToggle   OfflineActionKind = "SAVE_TOGGLE"
	OfflineActionTrack  OfflineActionKind = "ACTION_TRACK"
	OfflineActionRemove OfflineActionKind = "ACTION_REMOVE"
)

// OfflineAction is a mutation waiting to be replayed against the API.
// CreatedAt is Unix milliseconds.
type OfflineAction struct {
	ID            string            `json:"id"`
	Type          OfflineActionKind `json:"type"`
	OwnerID       string            `json:"ownerId,omitempty"`
	OpportunityID string            `json:"opportunityId"`
	CreatedAt     int64             `json:"createdAt"`
	Attempts      int               `json:"attempts"`
	ActionType    ActionType        `json:"actionType,omitempty"`
}

// FeedCacheEntry is a locally persisted snapshot of the opportunity feed.
// CachedAt is Unix milliseconds.
type FeedCacheEntry struct {
	CachedAt      int64         `json:"cachedAt"`
	Opportunities []Opportunity `json:"opportunities"`
	Count         int           `json:"count"`
}
