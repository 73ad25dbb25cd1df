package feedcache

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fresherjobs/internal/kv"
	"fresherjobs/internal/model"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache() *Cache {
	c := New(kv.NewMemory(), testLogger())
	c.now = func() time.Time { return base }
	return c
}

func opp(id string, posted time.Time) model.Opportunity {
	return model.Opportunity{ID: id, Title: "Role " + id, Status: model.StatusPublished, PostedAt: posted}
}

func ids(entry model.FeedCacheEntry) []string {
	out := make([]string, 0, len(entry.Opportunities))
	for _, o := range entry.Opportunities {
		out = append(out, o.ID)
	}
	return out
}

func TestReadEmpty(t *testing.T) {
	c := newTestCache()
	if _, ok := c.Read(); ok {
		t.Error("expected no cache")
	}
}

func TestSaveTruncates(t *testing.T) {
	c := newTestCache()
	var opps []model.Opportunity
	for i := 0; i < MaxEntries+10; i++ {
		opps = append(opps, opp(fmt.Sprintf("o%03d", i), base))
	}

	c.Save(opps, 400)

	got, ok := c.Read()
	if !ok {
		t.Fatal("expected cache")
	}
	if len(got.Opportunities) != MaxEntries {
		t.Errorf("got %d entries, want %d", len(got.Opportunities), MaxEntries)
	}
	if got.Count != 400 {
		t.Errorf("count = %d, want 400", got.Count)
	}
	if got.CachedAt != base.UnixMilli() {
		t.Errorf("cachedAt = %d, want %d", got.CachedAt, base.UnixMilli())
	}
}

func TestMergeNewerWins(t *testing.T) {
	c := newTestCache()
	c.Save([]model.Opportunity{opp("a", base), opp("b", base.Add(-time.Hour))}, 2)

	updated := base.Add(time.Hour)
	newer := opp("b", base.Add(-time.Hour))
	newer.Title = "Renamed"
	newer.UpdatedAt = &updated
	stale := opp("a", base.Add(-48*time.Hour))
	stale.Title = "Stale"

	c.Merge([]model.Opportunity{newer, stale, opp("c", base.Add(-2*time.Hour))}, 1)

	got, _ := c.Read()
	if diff := cmp.Diff([]string{"b", "a", "c"}, ids(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
	if got.Opportunities[0].Title != "Renamed" {
		t.Errorf("b title = %q, want Renamed", got.Opportunities[0].Title)
	}
	if got.Opportunities[1].Title != "Role a" {
		t.Errorf("a title = %q, want Role a", got.Opportunities[1].Title)
	}
	if got.Count != 3 {
		t.Errorf("count = %d, want 3", got.Count)
	}
}

func TestMergeIdempotent(t *testing.T) {
	opps := []model.Opportunity{
		opp("x", base.Add(-3*time.Hour)),
		opp("y", base.Add(-time.Hour)),
		opp("z", base.Add(-time.Hour)),
	}

	once := newTestCache()
	once.Merge(opps, 3)
	twice := newTestCache()
	twice.Merge(opps, 3)
	twice.Merge(opps, 3)

	a, _ := once.Read()
	b, _ := twice.Read()
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("merge not idempotent (-once +twice):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"y", "z", "x"}, ids(a)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCap(t *testing.T) {
	c := newTestCache()
	var first, second []model.Opportunity
	for i := 0; i < 200; i++ {
		first = append(first, opp(fmt.Sprintf("a%03d", i), base.Add(-time.Duration(2*i+1)*time.Minute)))
		second = append(second, opp(fmt.Sprintf("b%03d", i), base.Add(-time.Duration(2*i)*time.Minute)))
	}

	c.Merge(first, 200)
	c.Merge(second, 200)

	got, _ := c.Read()
	if len(got.Opportunities) != MaxEntries {
		t.Fatalf("got %d entries, want %d", len(got.Opportunities), MaxEntries)
	}
	if got.Count != 400 {
		t.Errorf("count = %d, want 400", got.Count)
	}
	// Minutes 0..249 survive; the oldest kept is minute 249 = a124.
	if last := got.Opportunities[MaxEntries-1].ID; last != "a124" {
		t.Errorf("last entry = %s, want a124", last)
	}
	for i := 1; i < len(got.Opportunities); i++ {
		if got.Opportunities[i].Revision().After(got.Opportunities[i-1].Revision()) {
			t.Fatalf("entries not sorted at %d", i)
		}
	}
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "{oops"},
		{name: "missing timestamp", data: `{"opportunities":[],"count":0}`},
		{name: "opportunities not array", data: `{"cachedAt":1,"opportunities":{},"count":0}`},
		{name: "missing opportunities", data: `{"cachedAt":1,"count":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := kv.NewMemory()
			_ = store.Set(FeedKey, []byte(tt.data))
			c := New(store, testLogger())
			if _, ok := c.Read(); ok {
				t.Error("expected malformed cache to read as absent")
			}
		})
	}
}

type failingStore struct{ kv.Store }

func (failingStore) Set(string, []byte) error { return errors.New("quota exceeded") }

func TestWriteFailureIsSilent(t *testing.T) {
	c := New(failingStore{kv.NewMemory()}, testLogger())
	c.Save([]model.Opportunity{opp("a", base)}, 1)
	c.Merge([]model.Opportunity{opp("b", base)}, 1)
	if _, ok := c.Read(); ok {
		t.Error("expected no cache after failed writes")
	}
}

func TestSyncTimes(t *testing.T) {
	c := newTestCache()
	if _, ok := c.LastFeedSync(); ok {
		t.Error("expected no feed sync time")
	}

	c.MarkFeedSync(base)
	c.MarkDetailSync(base.Add(time.Minute))

	if got, ok := c.LastFeedSync(); !ok || !got.Equal(base) {
		t.Errorf("feed sync = %v %v, want %v", got, ok, base)
	}
	if got, ok := c.LastDetailSync(); !ok || !got.Equal(base.Add(time.Minute)) {
		t.Errorf("detail sync = %v %v, want %v", got, ok, base.Add(time.Minute))
	}
}
