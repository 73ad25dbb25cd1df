// Package scheduler runs the periodic partner feed import and the
// closing-soon digest.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fresherjobs/internal/importer"
	"fresherjobs/internal/model"
	"fresherjobs/internal/storage"
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Recorder receives import statistics.
type Recorder interface {
	ItemsImported(source string, n int)
	ImportRun(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ItemsImported(string, int) {}
func (nopRecorder) ImportRun(bool)            {}

// Scheduler periodically imports due sources as draft listings.
type Scheduler struct {
	store       storage.Storage
	importer    *importer.Importer
	sender      Sender
	adminChatID int64
	rec         Recorder
	log         *slog.Logger
	tick        time.Duration
}

// New creates a Scheduler. Import summaries go to adminChatID when it is
// non-zero; rec may be nil.
func New(store storage.Storage, im *importer.Importer, sender Sender, adminChatID int64, rec Recorder, log *slog.Logger) *Scheduler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Scheduler{
		store:       store,
		importer:    im,
		sender:      sender,
		adminChatID: adminChatID,
		rec:         rec,
		log:         log,
		tick:        1 * time.Minute,
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	sources, err := s.store.ListDueSources(ctx)
	if err != nil {
		s.log.Error("list due sources", "error", err)
		return
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			return
		}
		created, err := s.importSource(ctx, src)
		s.rec.ImportRun(err == nil)
		if err != nil {
			s.log.Error("import source", "source_id", src.ID, "url", src.URL, "error", err)
			continue
		}
		if created > 0 {
			s.notify(fmt.Sprintf("Imported %d draft listing(s) from #%d \"%s\".\nReview with /drafts.", created, src.ID, src.Name))
		}
	}
}

// CheckSource imports a single source immediately, regardless of its
// interval, and returns the number of drafts created.
func (s *Scheduler) CheckSource(ctx context.Context, id int64) (int, error) {
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("get source: %w", err)
	}
	n, err := s.importSource(ctx, *src)
	s.rec.ImportRun(err == nil)
	return n, err
}

func (s *Scheduler) importSource(ctx context.Context, src model.Source) (int, error) {
	s.log.Debug("checking source", "source_id", src.ID, "name", src.Name)

	feed, err := s.importer.Fetch(ctx, src.URL)
	if err != nil {
		s.updateLastCheck(ctx, &src)
		return 0, fmt.Errorf("fetch source: %w", err)
	}

	rules, err := s.store.ListRules(ctx, src.ID)
	if err != nil {
		return 0, fmt.Errorf("list rules: %w", err)
	}
	rs, err := importer.CompileRules(rules)
	if err != nil {
		s.updateLastCheck(ctx, &src)
		return 0, fmt.Errorf("compile rules: %w", err)
	}
	s.log.Debug("rules compiled", "source_id", src.ID, "rules", rs.Len())

	created := 0
	for _, c := range s.importer.Candidates(feed, src, rs) {
		seen, err := s.store.IsSeen(ctx, src.ID, c.GUID)
		if err != nil {
			s.log.Error("check seen", "source_id", src.ID, "guid", c.GUID, "error", err)
			continue
		}
		if seen {
			continue
		}

		opp := c.Opportunity
		if err := s.store.CreateOpportunity(ctx, &opp); err != nil {
			s.log.Error("create draft", "source_id", src.ID, "guid", c.GUID, "error", err)
			continue
		}
		created++

		if err := s.store.MarkSeen(ctx, src.ID, c.GUID); err != nil {
			s.log.Error("mark seen", "source_id", src.ID, "guid", c.GUID, "error", err)
		}
	}

	if created > 0 {
		s.log.Info("imported drafts", "source_id", src.ID, "name", src.Name, "count", created)
		s.rec.ItemsImported(src.Name, created)
	}

	s.updateLastCheck(ctx, &src)
	return created, nil
}

func (s *Scheduler) updateLastCheck(ctx context.Context, src *model.Source) {
	now := time.Now().UTC()
	src.LastCheckAt = &now
	if err := s.store.UpdateSource(ctx, src); err != nil {
		s.log.Error("update last check", "source_id", src.ID, "error", err)
	}
}

func (s *Scheduler) notify(text string) {
	if s.adminChatID == 0 || s.sender == nil {
		return
	}
	s.sender.SendMessage(s.adminChatID, text)
}
