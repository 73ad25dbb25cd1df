// Package feedcache keeps a bounded local snapshot of the opportunity feed
// for use when the API is unreachable.
package feedcache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"fresherjobs/internal/kv"
	"fresherjobs/internal/model"
)

// Store keys.
const (
	FeedKey           = "fresherjobs_feed_cache"
	LastFeedSyncKey   = "fresherjobs_last_feed_sync"
	LastDetailSyncKey = "fresherjobs_last_detail_sync"
)

// MaxEntries caps the number of cached opportunities.
const MaxEntries = 250

// Cache reads and writes the feed snapshot. Write failures are logged and
// swallowed so that callers never fail because of the cache.
type Cache struct {
	store kv.Store
	log   *slog.Logger
	now   func() time.Time

	mu sync.Mutex
}

// New creates a Cache on top of store.
func New(store kv.Store, log *slog.Logger) *Cache {
	return &Cache{store: store, log: log, now: time.Now}
}

// Save replaces the snapshot with opps, truncated to MaxEntries.
func (c *Cache) Save(opps []model.Opportunity, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(opps) > MaxEntries {
		opps = opps[:MaxEntries]
	}
	c.write(model.FeedCacheEntry{
		CachedAt:      c.now().UnixMilli(),
		Opportunities: slices.Clone(opps),
		Count:         count,
	})
}

// Merge unions opps into the existing snapshot by ID. The more recent
// revision of a listing wins; the result is ordered newest first and
// truncated to MaxEntries. Count never shrinks below what either side
// reported.
func (c *Cache) Merge(opps []model.Opportunity, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, _ := c.readLocked()

	byID := make(map[string]model.Opportunity, len(existing.Opportunities)+len(opps))
	for _, list := range [][]model.Opportunity{existing.Opportunities, opps} {
		for _, o := range list {
			cur, ok := byID[o.ID]
			if !ok || o.Revision().After(cur.Revision()) {
				byID[o.ID] = o
			}
		}
	}

	merged := make([]model.Opportunity, 0, len(byID))
	for _, o := range byID {
		merged = append(merged, o)
	}
	slices.SortFunc(merged, func(a, b model.Opportunity) int {
		if d := b.Revision().Compare(a.Revision()); d != 0 {
			return d
		}
		return strings.Compare(a.ID, b.ID)
	})

	total := max(count, existing.Count, len(merged))
	if len(merged) > MaxEntries {
		merged = merged[:MaxEntries]
	}
	c.write(model.FeedCacheEntry{
		CachedAt:      c.now().UnixMilli(),
		Opportunities: merged,
		Count:         total,
	})
}

// Read returns the snapshot, or false when none exists or the stored
// value is malformed.
func (c *Cache) Read() (model.FeedCacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked()
}

// Clear removes the snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Delete(FeedKey); err != nil {
		c.log.Warn("clear feed cache", "error", err)
	}
}

func (c *Cache) readLocked() (model.FeedCacheEntry, bool) {
	data, err := c.store.Get(FeedKey)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			c.log.Warn("read feed cache", "error", err)
		}
		return model.FeedCacheEntry{}, false
	}

	// Structural check: opportunities must be an array and cachedAt a number.
	var raw struct {
		CachedAt      *json.Number      `json:"cachedAt"`
		Opportunities []json.RawMessage `json:"opportunities"`
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw.CachedAt == nil || raw.Opportunities == nil {
		c.log.Warn("feed cache malformed")
		return model.FeedCacheEntry{}, false
	}

	var entry model.FeedCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.log.Warn("decode feed cache", "error", err)
		return model.FeedCacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) write(entry model.FeedCacheEntry) {
	if entry.Opportunities == nil {
		entry.Opportunities = []model.Opportunity{}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		c.log.Warn("encode feed cache", "error", err)
		return
	}
	if err := c.store.Set(FeedKey, data); err != nil {
		c.log.Warn("write feed cache", "error", err)
	}
}

// MarkFeedSync records t as the last successful feed sync.
func (c *Cache) MarkFeedSync(t time.Time) { c.setTime(LastFeedSyncKey, t) }

// MarkDetailSync records t as the last successful detail sync.
func (c *Cache) MarkDetailSync(t time.Time) { c.setTime(LastDetailSyncKey, t) }

// LastFeedSync returns the last feed sync time, if any.
func (c *Cache) LastFeedSync() (time.Time, bool) { return c.getTime(LastFeedSyncKey) }

// LastDetailSync returns the last detail sync time, if any.
func (c *Cache) LastDetailSync() (time.Time, bool) { return c.getTime(LastDetailSyncKey) }

func (c *Cache) setTime(key string, t time.Time) {
	if err := c.store.Set(key, []byte(strconv.FormatInt(t.UnixMilli(), 10))); err != nil {
		c.log.Warn("write sync time", "key", key, "error", err)
	}
}

func (c *Cache) getTime(key string) (time.Time, bool) {
	data, err := c.store.Get(key)
	if err != nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
