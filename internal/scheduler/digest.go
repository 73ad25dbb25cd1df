package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"fresherjobs/internal/eligibility"
	"fresherjobs/internal/model"
	"fresherjobs/internal/storage"
)

// DigestSize is the maximum number of listings in one digest.
const DigestSize = 10

// Digest posts listings that close within storage.ClosingSoonWindow to a
// broadcast chat on a cron schedule.
type Digest struct {
	store  storage.Storage
	sender Sender
	chatID int64
	log    *slog.Logger
	now    func() time.Time
}

// NewDigest creates a Digest that posts to chatID.
func NewDigest(store storage.Storage, sender Sender, chatID int64, log *slog.Logger) *Digest {
	return &Digest{
		store:  store,
		sender: sender,
		chatID: chatID,
		log:    log,
		now:    time.Now,
	}
}

// Run schedules Send with the given five-field cron spec (UTC) and blocks
// until ctx is cancelled. A running digest finishes before Run returns.
func (d *Digest) Run(ctx context.Context, spec string) error {
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(spec, func() {
		n, err := d.Send(ctx)
		if err != nil {
			d.log.Error("send digest", "error", err)
			return
		}
		d.log.Info("sent digest", "chat_id", d.chatID, "count", n)
	}); err != nil {
		return fmt.Errorf("parse digest schedule %q: %w", spec, err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// Send posts one digest and returns the number of listings in it.
// Nothing is posted when no listing closes soon.
func (d *Digest) Send(ctx context.Context) (int, error) {
	now := d.now().UTC()
	opps, err := d.store.ListClosingSoon(ctx, now, storage.ClosingSoonWindow, DigestSize)
	if err != nil {
		return 0, fmt.Errorf("list closing soon: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}
	d.sender.SendMessage(d.chatID, FormatDigest(eligibility.SortForDisplay(opps)))
	return len(opps), nil
}

// FormatDigest formats listings as a numbered Telegram message.
func FormatDigest(opps []model.Opportunity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Closing soon (%d):\n", len(opps))
	for i, o := range opps {
		fmt.Fprintf(&b, "\n%d. [%s] %s, %s\n", i+1, o.Type, o.Title, o.Company)
		if o.ExpiresAt != nil {
			fmt.Fprintf(&b, "   closes %s\n", o.ExpiresAt.UTC().Format("2006-01-02 15:04 UTC"))
		}
		if o.ApplyLink != "" {
			fmt.Fprintf(&b, "   %s\n", o.ApplyLink)
		}
	}
	return b.String()
}
