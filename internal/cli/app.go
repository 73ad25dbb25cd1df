// Package cli implements the fresher terminal client: a cobra command tree
// over the sync coordinator, with a bbolt file for offline state.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fresherjobs/internal/apiclient"
	"fresherjobs/internal/eligibility"
	"fresherjobs/internal/feedcache"
	"fresherjobs/internal/kv"
	"fresherjobs/internal/match"
	"fresherjobs/internal/model"
	"fresherjobs/internal/offline"
	"fresherjobs/internal/syncer"
)

// PageSize is the number of listings requested per feed page.
const PageSize = 20

const closingSoonWindow = 3 * 24 * time.Hour

// App is one client session for a single user.
type App struct {
	userID string
	syncer *syncer.Syncer
	queue  *offline.Queue
	log    *slog.Logger
	now    func() time.Time
	closer io.Closer
}

// NewApp wires the queue, feed cache and sync coordinator on top of api
// and store.
func NewApp(api syncer.API, store kv.Store, userID string, log *slog.Logger) *App {
	queue := offline.New(store, api, api.Online, log)
	cache := feedcache.New(store, log)
	return &App{
		userID: userID,
		syncer: syncer.New(api, queue, cache, store, log),
		queue:  queue,
		log:    log,
		now:    time.Now,
	}
}

// Open creates an App from settings, keeping offline state in
// <data_dir>/fresher.db.
func Open(s Settings, log *slog.Logger) (*App, error) {
	if strings.TrimSpace(s.APIURL) == "" {
		return nil, fmt.Errorf("api_url is not set")
	}
	if err := os.MkdirAll(s.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := kv.OpenBolt(filepath.Join(s.DataDir, "fresher.db"))
	if err != nil {
		return nil, err
	}
	client := apiclient.New(s.APIURL, &http.Client{Timeout: 15 * time.Second}, s.UserID, s.Token)
	app := NewApp(client, store, s.UserID, log)
	app.closer = store
	return app, nil
}

// Close releases the local store.
func (a *App) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// FeedOptions are the feed filters of the feed command.
type FeedOptions struct {
	Type        model.OpportunityType
	City        string
	ClosingSoon bool
	SavedOnly   bool
	Page        int
}

// FeedItem is a listing with its match score.
type FeedItem struct {
	Opportunity model.Opportunity
	Match       match.Result
}

// FeedResult is one rendered page of the feed.
type FeedResult struct {
	Items     []FeedItem
	Count     int
	FromCache bool
	CachedAt  time.Time
}

// Feed loads a page, live or cached, and applies eligibility, ordering and
// scoring locally against the user's profile.
func (a *App) Feed(ctx context.Context, opts FeedOptions) (*FeedResult, error) {
	page := max(opts.Page, 1)
	params := apiclient.ListParams{
		Type:        opts.Type,
		City:        opts.City,
		ClosingSoon: opts.ClosingSoon,
		SavedOnly:   opts.SavedOnly,
		Limit:       PageSize,
		Offset:      (page - 1) * PageSize,
	}
	feed, err := a.syncer.LoadFeed(ctx, params, page > 1)
	if err != nil {
		return nil, fmt.Errorf("load feed: %w", err)
	}
	profile, _, err := a.syncer.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	now := a.now()
	opps := feed.Opportunities
	if feed.FromCache {
		opps = filterCached(opps, opts, now)
	}
	opps = eligibility.SortForDisplay(eligibility.FilterEligible(opps, profile))

	res := &FeedResult{
		Items:     make([]FeedItem, 0, len(opps)),
		Count:     feed.Count,
		FromCache: feed.FromCache,
		CachedAt:  feed.CachedAt,
	}
	for _, o := range opps {
		res.Items = append(res.Items, FeedItem{Opportunity: o, Match: match.Score(profile, o, now)})
	}
	return res, nil
}

// filterCached re-applies the query filters the server would have applied.
// The saved filter needs server state and is not applied offline.
func filterCached(opps []model.Opportunity, opts FeedOptions, now time.Time) []model.Opportunity {
	city := eligibility.Normalize(opts.City)
	out := make([]model.Opportunity, 0, len(opps))
	for _, o := range opps {
		if !o.Visible() || o.Expired(now) {
			continue
		}
		if opts.Type != "" && o.Type != opts.Type {
			continue
		}
		if city != "" && !locatedIn(o, city) {
			continue
		}
		if opts.ClosingSoon && (o.ExpiresAt == nil || o.ExpiresAt.After(now.Add(closingSoonWindow))) {
			continue
		}
		out = append(out, o)
	}
	return out
}

func locatedIn(o model.Opportunity, city string) bool {
	for _, l := range o.Locations {
		if strings.Contains(eligibility.Normalize(l), city) {
			return true
		}
	}
	return false
}

// ToggleSave flips the saved state, queueing it when offline.
func (a *App) ToggleSave(ctx context.Context, id string) (syncer.MutationResult, error) {
	return a.syncer.ToggleSave(ctx, a.userID, id)
}

// Track records an action, queueing it when offline.
func (a *App) Track(ctx context.Context, id string, action model.ActionType) (syncer.MutationResult, error) {
	return a.syncer.TrackAction(ctx, a.userID, id, action)
}

// Untrack clears the action, queueing it when offline.
func (a *App) Untrack(ctx context.Context, id string) (syncer.MutationResult, error) {
	return a.syncer.RemoveAction(ctx, a.userID, id)
}

// FlushOnOpen replays mutations queued by earlier sessions. It makes no
// network call when nothing is queued.
func (a *App) FlushOnOpen(ctx context.Context) offline.FlushResult {
	return a.syncer.Flush(ctx, a.userID)
}

// Watch replays queued mutations now and every time connectivity returns,
// checking every interval until ctx is cancelled. onChange receives the
// user's pending count after each queue change.
func (a *App) Watch(ctx context.Context, interval time.Duration, onChange func(pending int)) {
	a.syncer.SetPollInterval(interval)
	unsubscribe := a.queue.Subscribe(func() { onChange(a.queue.PendingCount(a.userID)) })
	defer unsubscribe()
	a.syncer.Run(ctx, a.userID)
}

// Sync replays the user's queued mutations.
func (a *App) Sync(ctx context.Context) offline.FlushResult {
	return a.syncer.Flush(ctx, a.userID)
}

// Pending returns the user's queued mutations.
func (a *App) Pending() []model.OfflineAction {
	return a.queue.Pending(a.userID)
}

// Profile returns the user's profile and whether it came from the local copy.
func (a *App) Profile(ctx context.Context) (*model.Profile, bool, error) {
	return a.syncer.Profile(ctx)
}
