// Package funnel counts acquisition funnel events per traffic source.
package funnel

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
)

// Event is a funnel stage.
type Event string

// Tracked funnel events.
const (
	DetailView    Event = "DETAIL_VIEW"
	LoginView     Event = "LOGIN_VIEW"
	AuthSuccess   Event = "AUTH_SUCCESS"
	SignupSuccess Event = "SIGNUP_SUCCESS"
)

// Events lists every tracked event in funnel order.
var Events = []Event{DetailView, LoginView, AuthSuccess, SignupSuccess}

// UnknownSource replaces empty or fully invalid source names.
const UnknownSource = "unknown"

const maxSourceLen = 64

// ParseEvent normalizes s to a known event, case-insensitively.
func ParseEvent(s string) (Event, bool) {
	e := Event(strings.ToUpper(strings.TrimSpace(s)))
	if slices.Contains(Events, e) {
		return e, true
	}
	return "", false
}

// SanitizeSource lowercases s and keeps only [a-z0-9_-], up to 64 characters.
func SanitizeSource(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if b.Len() >= maxSourceLen {
			break
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return UnknownSource
	}
	return b.String()
}

// Counters holds raw event counts.
type Counters map[Event]int64

// Store persists additive counters per source.
type Store interface {
	Incr(ctx context.Context, source string, event Event) error
	All(ctx context.Context) (map[string]Counters, error)
}

// Row is the funnel for one source, or the totals.
type Row struct {
	Source               string  `json:"source"`
	DetailViews          int64   `json:"detailViews"`
	LoginViews           int64   `json:"loginViews"`
	AuthSuccess          int64   `json:"authSuccess"`
	SignupSuccess        int64   `json:"signupSuccess"`
	DetailToLoginPercent float64 `json:"detailToLoginPercent"`
	LoginToAuthPercent   float64 `json:"loginToAuthPercent"`
}

// Metrics is the funnel report.
type Metrics struct {
	Totals  Row   `json:"totals"`
	Sources []Row `json:"sources"`
}

// Tracker records events and builds reports.
type Tracker struct {
	store Store
	log   *slog.Logger
}

// NewTracker creates a Tracker backed by store.
func NewTracker(store Store, log *slog.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// Record counts one event for source. Unknown events are ignored and store
// failures are logged, never returned.
func (t *Tracker) Record(ctx context.Context, source, event string) {
	e, ok := ParseEvent(event)
	if !ok {
		return
	}
	src := SanitizeSource(source)
	if err := t.store.Incr(ctx, src, e); err != nil {
		t.log.Warn("record funnel event", "source", src, "event", e, "error", err)
	}
}

// Metrics returns per-source funnels ordered by auth successes, plus totals.
func (t *Tracker) Metrics(ctx context.Context) (Metrics, error) {
	all, err := t.store.All(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("load funnel counters: %w", err)
	}

	m := Metrics{Totals: Row{Source: "total"}, Sources: make([]Row, 0, len(all))}
	for src, c := range all {
		row := Row{
			Source:        src,
			DetailViews:   c[DetailView],
			LoginViews:    c[LoginView],
			AuthSuccess:   c[AuthSuccess],
			SignupSuccess: c[SignupSuccess],
		}
		m.Totals.DetailViews += row.DetailViews
		m.Totals.LoginViews += row.LoginViews
		m.Totals.AuthSuccess += row.AuthSuccess
		m.Totals.SignupSuccess += row.SignupSuccess
		m.Sources = append(m.Sources, withRates(row))
	}
	m.Totals = withRates(m.Totals)

	slices.SortFunc(m.Sources, func(a, b Row) int {
		if a.AuthSuccess != b.AuthSuccess {
			if a.AuthSuccess > b.AuthSuccess {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Source, b.Source)
	})
	return m, nil
}

func withRates(r Row) Row {
	r.DetailToLoginPercent = percent(r.LoginViews, r.DetailViews)
	r.LoginToAuthPercent = percent(r.AuthSuccess, r.LoginViews)
	return r
}

func percent(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*100*100) / 100
}
