package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fresherjobs/internal/apiclient"
	"fresherjobs/internal/kv"
	"fresherjobs/internal/model"
)

var errOffline = errors.New("dial tcp: connection refused")

type fakeAPI struct {
	mu         sync.Mutex
	online     bool
	listErr    error
	mutErr     error
	list       []model.Opportunity
	count      int
	profile    *model.Profile
	lastParams apiclient.ListParams
	saved      map[string]bool
	actions    map[string]model.ActionType
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{online: true, saved: map[string]bool{}, actions: map[string]model.ActionType{}}
}

func (f *fakeAPI) set(fn func(f *fakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeAPI) Online(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeAPI) ListOpportunities(_ context.Context, p apiclient.ListParams) (*apiclient.ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return nil, errOffline
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.lastParams = p
	return &apiclient.ListResponse{Opportunities: f.list, Count: f.count}, nil
}

func (f *fakeAPI) GetProfile(context.Context) (*apiclient.ProfileResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return nil, errOffline
	}
	return &apiclient.ProfileResponse{Profile: f.profile}, nil
}

func (f *fakeAPI) ToggleSave(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutErr != nil {
		return false, f.mutErr
	}
	f.saved[id] = !f.saved[id]
	return f.saved[id], nil
}

func (f *fakeAPI) TrackAction(_ context.Context, id string, action model.ActionType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutErr != nil {
		return f.mutErr
	}
	f.actions[id] = action
	return nil
}

func (f *fakeAPI) RemoveAction(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mutErr != nil {
		return f.mutErr
	}
	delete(f.actions, id)
	return nil
}

type harness struct {
	t          *testing.T
	api        *fakeAPI
	store      kv.Store
	configPath string
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:          t,
		api:        newFakeAPI(),
		store:      kv.NewMemory(),
		configPath: filepath.Join(t.TempDir(), "config.yaml"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()
	return h.runContext(context.Background(), args...)
}

func (h *harness) runContext(ctx context.Context, args ...string) (string, error) {
	h.t.Helper()
	open := func(Settings, *slog.Logger) (*App, error) {
		return NewApp(h.api, h.store, "u1", slog.New(slog.NewTextHandler(io.Discard, nil))), nil
	}
	root := NewRootCommand(h.configPath, open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, err := h.run(args...)
	if err != nil {
		h.t.Fatalf("%v: %v", args, err)
	}
	return out
}

func intPtr(v int) *int { return &v }

func testProfile() *model.Profile {
	return &model.Profile{
		UserID:          "u1",
		FullName:        "Asha Rao",
		Phone:           "9000000000",
		College:         "COEP",
		EducationLevel:  "BTECH",
		GraduationYear:  intPtr(2025),
		Skills:          []string{"Go"},
		PreferredCities: []string{"Pune"},
		WorkModes:       []model.WorkMode{model.WorkOnsite},
	}
}

func testListings(now time.Time) []model.Opportunity {
	soon := now.Add(24 * time.Hour)
	return []model.Opportunity{
		{
			ID: "job-go", Type: model.TypeJob, Title: "Go Developer", Company: "Acme",
			AllowedDegrees: []string{"BTECH"}, RequiredSkills: []string{"go"},
			Locations: []string{"Pune"}, Status: model.StatusPublished, PostedAt: now.Add(-time.Hour),
		},
		{
			ID: "walk-in", Type: model.TypeWalkIn, Title: "Walk-in Drive", Company: "Globex",
			AllowedDegrees: []string{"BTECH"}, Locations: []string{"Mumbai"},
			Status: model.StatusActive, PostedAt: now.Add(-48 * time.Hour), ExpiresAt: &soon,
		},
		{
			ID: "mca", Type: model.TypeJob, Title: "MCA Only", Company: "Hooli",
			AllowedDegrees: []string{"MCA"}, Status: model.StatusPublished, PostedAt: now,
		},
	}
}

func assertOrder(t *testing.T, out string, want ...string) {
	t.Helper()
	last := -1
	for _, w := range want {
		i := strings.Index(out, w)
		if i < 0 {
			t.Fatalf("output missing %q:\n%s", w, out)
		}
		if i < last {
			t.Errorf("%q out of order:\n%s", w, out)
		}
		last = i
	}
}

func TestFeedLiveThenCached(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) {
		f.list = testListings(time.Now())
		f.count = 3
		f.profile = testProfile()
	})

	out := h.mustRun("feed")
	assertOrder(t, out, "Opportunities (2 of 3)", "Walk-in Drive", "Go Developer")
	if strings.Contains(out, "MCA Only") {
		t.Errorf("ineligible listing shown:\n%s", out)
	}
	if strings.Contains(out, "cached") {
		t.Errorf("live feed marked cached:\n%s", out)
	}

	h.api.set(func(f *fakeAPI) { f.online = false })
	out = h.mustRun("feed")
	assertOrder(t, out, "showing cached data from just now", "Walk-in Drive", "Go Developer")

	out = h.mustRun("feed", "--type", "walkin")
	if !strings.Contains(out, "Walk-in Drive") || strings.Contains(out, "Go Developer") {
		t.Errorf("cached type filter:\n%s", out)
	}
	out = h.mustRun("feed", "--city", "pune")
	if strings.Contains(out, "Walk-in Drive") || !strings.Contains(out, "Go Developer") {
		t.Errorf("cached city filter:\n%s", out)
	}
	out = h.mustRun("feed", "--closing-soon")
	if !strings.Contains(out, "Walk-in Drive") || strings.Contains(out, "Go Developer") {
		t.Errorf("cached closing-soon filter:\n%s", out)
	}
}

func TestFeedParams(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) { f.profile = testProfile() })

	h.mustRun("feed", "--type", "walkin", "--city", "Pune", "--saved", "--closing-soon", "--page", "3")
	want := apiclient.ListParams{
		Type: model.TypeWalkIn, City: "Pune", ClosingSoon: true, SavedOnly: true,
		Limit: PageSize, Offset: 2 * PageSize,
	}
	if diff := cmp.Diff(want, h.api.lastParams); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	if _, err := h.run("feed", "--type", "gig"); err == nil {
		t.Error("expected error for invalid --type")
	}
}

func TestFeedIncompleteProfile(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) {
		f.listErr = &apiclient.StatusError{StatusCode: http.StatusForbidden, Body: []byte(`{"error":"profile incomplete"}`)}
	})
	out := h.mustRun("feed")
	if !strings.Contains(out, "Complete your profile") {
		t.Errorf("output = %q", out)
	}
}

func TestFeedOfflineWithoutCache(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) { f.online = false })
	if _, err := h.run("feed"); !errors.Is(err, errOffline) {
		t.Errorf("err = %v, want offline error", err)
	}
}

func TestMutationsOnline(t *testing.T) {
	h := newHarness(t)

	if out := h.mustRun("save", "o1"); out != "Saved.\n" {
		t.Errorf("first save = %q", out)
	}
	if out := h.mustRun("save", "o1"); out != "Removed from saved.\n" {
		t.Errorf("second save = %q", out)
	}
	if out := h.mustRun("track", "o1", "planning"); out != "Tracked PLANNING.\n" {
		t.Errorf("track = %q", out)
	}
	if got := h.api.actions["o1"]; got != model.ActionPlanning {
		t.Errorf("action = %q", got)
	}
	if out := h.mustRun("untrack", "o1"); out != "Action cleared.\n" {
		t.Errorf("untrack = %q", out)
	}
	if _, err := h.run("track", "o1", "shared"); err == nil {
		t.Error("expected error for invalid action")
	}
	if _, err := h.run("save"); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestOfflineQueueAndSync(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) { f.online = false })

	if out := h.mustRun("save", "o1"); out != "Offline: save toggle queued.\n" {
		t.Errorf("save = %q", out)
	}
	if out := h.mustRun("track", "o2", "viewed"); out != "Offline: queued for the next sync.\n" {
		t.Errorf("track = %q", out)
	}
	h.mustRun("track", "o2", "applied")

	out := h.mustRun("pending")
	assertOrder(t, out, "Pending actions (2)", "SAVE_TOGGLE o1", "ACTION_TRACK APPLIED o2")

	if out := h.mustRun("sync"); out != "Synced 0, failed 0, remaining 2.\n" {
		t.Errorf("offline sync = %q", out)
	}

	h.api.set(func(f *fakeAPI) { f.online = true })
	if out := h.mustRun("sync"); out != "Synced 2, failed 0, remaining 0.\n" {
		t.Errorf("online sync = %q", out)
	}
	if !h.api.saved["o1"] || h.api.actions["o2"] != model.ActionApplied {
		t.Errorf("replayed state: saved=%v actions=%v", h.api.saved, h.api.actions)
	}
	if out := h.mustRun("pending"); out != "No pending actions.\n" {
		t.Errorf("pending after sync = %q", out)
	}
}

func TestCommandsFlushOnOpen(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) { f.online = false })
	h.mustRun("save", "o1")
	h.mustRun("track", "o2", "applied")

	h.api.set(func(f *fakeAPI) { f.online = true })
	if out := h.mustRun("pending"); out != "No pending actions.\n" {
		t.Errorf("pending after reconnect = %q", out)
	}
	if !h.api.saved["o1"] || h.api.actions["o2"] != model.ActionApplied {
		t.Errorf("replayed state: saved=%v actions=%v", h.api.saved, h.api.actions)
	}
}

func TestWatchFlushesOnReconnect(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) { f.online = false })
	h.mustRun("save", "o1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := h.runContext(ctx, "watch", "--interval", "5ms")
		done <- result{out, err}
	}()

	time.Sleep(20 * time.Millisecond)
	h.api.set(func(f *fakeAPI) { f.online = true })

	deadline := time.After(5 * time.Second)
	for synced := false; !synced; {
		select {
		case <-deadline:
			t.Fatal("queued save was not replayed after reconnect")
		case <-time.After(5 * time.Millisecond):
		}
		h.api.set(func(f *fakeAPI) { synced = f.saved["o1"] })
	}
	cancel()

	res := <-done
	if res.err != nil {
		t.Fatalf("watch: %v", res.err)
	}
	assertOrder(t, res.out, "Watching connectivity every 5ms.", "0 pending.", "Stopped with 0 pending.")

	if _, err := h.run("watch", "--interval", "0s"); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestSyncAuthRequired(t *testing.T) {
	h := newHarness(t)
	h.api.set(func(f *fakeAPI) { f.online = false })
	h.mustRun("save", "o1")

	h.api.set(func(f *fakeAPI) {
		f.online = true
		f.mutErr = &apiclient.StatusError{StatusCode: http.StatusUnauthorized}
	})
	out := h.mustRun("sync")
	assertOrder(t, out, "Synced 0, failed 1, remaining 1.", "Session expired")

	_, err := h.run("save", "o2")
	if !errors.Is(err, apiclient.ErrUnauthorized) || !strings.Contains(err.Error(), "config set token") {
		t.Errorf("save err = %v", err)
	}
}

func TestProfileCommand(t *testing.T) {
	h := newHarness(t)

	if out := h.mustRun("profile"); !strings.Contains(out, "No profile yet") {
		t.Errorf("empty profile = %q", out)
	}

	h.api.set(func(f *fakeAPI) { f.profile = testProfile() })
	out := h.mustRun("profile")
	assertOrder(t, out, "Profile", "Asha Rao", "BTECH", "2025", "Go", "ONSITE", "100%")
	if strings.Contains(out, "cached") {
		t.Errorf("live profile marked cached:\n%s", out)
	}

	h.api.set(func(f *fakeAPI) { f.online = false })
	if out := h.mustRun("profile"); !strings.Contains(out, "Profile (cached copy)") {
		t.Errorf("offline profile = %q", out)
	}
}

func TestConfigCommand(t *testing.T) {
	h := newHarness(t)

	if out := h.mustRun("config", "set", "token", "abc123"); out != "Updated token.\n" {
		t.Errorf("set = %q", out)
	}
	if out := h.mustRun("config", "get", "token"); out != "abc123\n" {
		t.Errorf("get = %q", out)
	}
	if _, err := h.run("config", "set", "colour", "blue"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestHumanAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3*time.Hour + 10*time.Minute, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := humanAge(tt.d); got != tt.want {
			t.Errorf("humanAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
