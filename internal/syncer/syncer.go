// Package syncer coordinates the API client with the offline queue and
// the feed cache on the client side.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fresherjobs/internal/apiclient"
	"fresherjobs/internal/feedcache"
	"fresherjobs/internal/kv"
	"fresherjobs/internal/model"
	"fresherjobs/internal/offline"
)

// ProfileKey is the store key of the cached profile.
const ProfileKey = "fresherjobs_profile"

// API is the part of the API client the syncer drives.
type API interface {
	offline.API
	ListOpportunities(ctx context.Context, p apiclient.ListParams) (*apiclient.ListResponse, error)
	GetProfile(ctx context.Context) (*apiclient.ProfileResponse, error)
	Online(ctx context.Context) bool
}

// Feed is the result of LoadFeed.
type Feed struct {
	Opportunities []model.Opportunity
	Count         int
	FromCache     bool
	CachedAt      time.Time
}

// MutationResult reports how a mutation was handled.
type MutationResult struct {
	Saved  bool
	Queued bool
}

// Syncer serves feed reads and user mutations, falling back to local state
// when the API cannot be reached.
type Syncer struct {
	api   API
	queue *offline.Queue
	cache *feedcache.Cache
	store kv.Store
	log   *slog.Logger
	now   func() time.Time

	pollInterval time.Duration
}

// New creates a Syncer.
func New(api API, queue *offline.Queue, cache *feedcache.Cache, store kv.Store, log *slog.Logger) *Syncer {
	return &Syncer{
		api:          api,
		queue:        queue,
		cache:        cache,
		store:        store,
		log:          log,
		now:          time.Now,
		pollInterval: 15 * time.Second,
	}
}

// LoadFeed fetches a page of the feed. A successful first page replaces
// the cache and later pages are merged into it. When the fetch fails the
// cached feed is returned instead, if there is one.
func (s *Syncer) LoadFeed(ctx context.Context, p apiclient.ListParams, appendPage bool) (*Feed, error) {
	resp, err := s.api.ListOpportunities(ctx, p)
	if err == nil {
		if appendPage {
			s.cache.Merge(resp.Opportunities, resp.Count)
		} else {
			s.cache.Save(resp.Opportunities, resp.Count)
		}
		s.cache.MarkFeedSync(s.now())
		return &Feed{Opportunities: resp.Opportunities, Count: resp.Count}, nil
	}

	entry, ok := s.cache.Read()
	if !ok {
		return nil, err
	}
	s.log.Warn("serving cached feed", "error", err, "entries", len(entry.Opportunities))
	return &Feed{
		Opportunities: entry.Opportunities,
		Count:         entry.Count,
		FromCache:     true,
		CachedAt:      time.UnixMilli(entry.CachedAt),
	}, nil
}

// ToggleSave flips the saved state of an opportunity, queueing the toggle
// when the API is unreachable.
func (s *Syncer) ToggleSave(ctx context.Context, ownerID, opportunityID string) (MutationResult, error) {
	if !s.api.Online(ctx) {
		s.queue.EnqueueSaveToggle(ownerID, opportunityID)
		return MutationResult{Queued: true}, nil
	}
	saved, err := s.api.ToggleSave(ctx, opportunityID)
	if err != nil {
		if !queueable(err) {
			return MutationResult{}, err
		}
		s.log.Warn("queue save toggle", "opportunity_id", opportunityID, "error", err)
		s.queue.EnqueueSaveToggle(ownerID, opportunityID)
		return MutationResult{Queued: true}, nil
	}
	return MutationResult{Saved: saved}, nil
}

// TrackAction sets the tracked action, queueing it when the API is unreachable.
func (s *Syncer) TrackAction(ctx context.Context, ownerID, opportunityID string, action model.ActionType) (MutationResult, error) {
	if !s.api.Online(ctx) {
		s.queue.EnqueueActionTrack(ownerID, opportunityID, action)
		return MutationResult{Queued: true}, nil
	}
	if err := s.api.TrackAction(ctx, opportunityID, action); err != nil {
		if !queueable(err) {
			return MutationResult{}, err
		}
		s.log.Warn("queue action track", "opportunity_id", opportunityID, "error", err)
		s.queue.EnqueueActionTrack(ownerID, opportunityID, action)
		return MutationResult{Queued: true}, nil
	}
	return MutationResult{}, nil
}

// RemoveAction clears the tracked action, queueing it when the API is unreachable.
func (s *Syncer) RemoveAction(ctx context.Context, ownerID, opportunityID string) (MutationResult, error) {
	if !s.api.Online(ctx) {
		s.queue.EnqueueActionRemove(ownerID, opportunityID)
		return MutationResult{Queued: true}, nil
	}
	if err := s.api.RemoveAction(ctx, opportunityID); err != nil {
		if !queueable(err) {
			return MutationResult{}, err
		}
		s.log.Warn("queue action remove", "opportunity_id", opportunityID, "error", err)
		s.queue.EnqueueActionRemove(ownerID, opportunityID)
		return MutationResult{Queued: true}, nil
	}
	return MutationResult{}, nil
}

// queueable reports whether a failed mutation should be retried later.
// Auth failures and client errors other than 401 are returned instead.
func queueable(err error) bool {
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return false
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}

// Flush replays the owner's queued mutations.
func (s *Syncer) Flush(ctx context.Context, ownerID string) offline.FlushResult {
	return s.queue.Flush(ctx, ownerID)
}

// SetPollInterval changes how often Run checks connectivity.
func (s *Syncer) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Run flushes once immediately and then again every time connectivity
// returns, until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context, ownerID string) {
	s.log.Info("syncer started", "poll_interval", s.pollInterval)
	s.queue.Flush(ctx, ownerID)

	wasOnline := s.api.Online(ctx)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("syncer stopped")
			return
		case <-ticker.C:
			online := s.api.Online(ctx)
			if online && !wasOnline {
				s.log.Info("connectivity restored, flushing offline queue")
				s.queue.Flush(ctx, ownerID)
			}
			wasOnline = online
		}
	}
}

// Profile returns the live profile, refreshing the local copy, or the
// cached copy when the API cannot be reached.
func (s *Syncer) Profile(ctx context.Context) (*model.Profile, bool, error) {
	resp, err := s.api.GetProfile(ctx)
	if err == nil {
		if resp.Profile != nil {
			s.saveProfile(resp.Profile)
		}
		return resp.Profile, false, nil
	}
	if errors.Is(err, apiclient.ErrUnauthorized) {
		return nil, false, err
	}
	p, ok := s.cachedProfile()
	if !ok {
		return nil, false, err
	}
	return p, true, nil
}

func (s *Syncer) saveProfile(p *model.Profile) {
	data, err := json.Marshal(p)
	if err != nil {
		s.log.Warn("encode profile", "error", err)
		return
	}
	if err := s.store.Set(ProfileKey, data); err != nil {
		s.log.Warn("write profile", "error", err)
	}
}

func (s *Syncer) cachedProfile() (*model.Profile, bool) {
	data, err := s.store.Get(ProfileKey)
	if err != nil {
		return nil, false
	}
	var p model.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		s.log.Warn("decode cached profile", "error", fmt.Errorf("unmarshal: %w", err))
		return nil, false
	}
	return &p, true
}
