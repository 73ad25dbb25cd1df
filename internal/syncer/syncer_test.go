package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fresherjobs/internal/apiclient"
	"fresherjobs/internal/feedcache"
	"fresherjobs/internal/kv"
	"fresherjobs/internal/model"
	"fresherjobs/internal/offline"
)

type mockAPI struct {
	mu      sync.Mutex
	online  bool
	listErr error
	mutErr  error
	list    []model.Opportunity
	profile *model.Profile
	profErr error
	toggles []string
}

func (m *mockAPI) setOnline(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = v
}

func (m *mockAPI) Online(context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *mockAPI) ListOpportunities(context.Context, apiclient.ListParams) (*apiclient.ListResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return &apiclient.ListResponse{Opportunities: m.list, Count: len(m.list)}, nil
}

func (m *mockAPI) GetProfile(context.Context) (*apiclient.ProfileResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.profErr != nil {
		return nil, m.profErr
	}
	return &apiclient.ProfileResponse{Profile: m.profile}, nil
}

func (m *mockAPI) ToggleSave(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mutErr != nil {
		return false, m.mutErr
	}
	m.toggles = append(m.toggles, id)
	return true, nil
}

func (m *mockAPI) TrackAction(context.Context, string, model.ActionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutErr
}

func (m *mockAPI) RemoveAction(context.Context, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mutErr
}

func (m *mockAPI) getToggles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.toggles...)
}

func newTestSyncer(api *mockAPI) (*Syncer, *offline.Queue) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := kv.NewMemory()
	q := offline.New(store, api, api.Online, log)
	s := New(api, q, feedcache.New(store, log), store, log)
	return s, q
}

func TestLoadFeedFallsBackToCache(t *testing.T) {
	api := &mockAPI{online: true, list: []model.Opportunity{{ID: "o1", Title: "Analyst"}}}
	s, _ := newTestSyncer(api)
	ctx := context.Background()

	live, err := s.LoadFeed(ctx, apiclient.ListParams{}, false)
	if err != nil {
		t.Fatalf("live load: %v", err)
	}
	if live.FromCache {
		t.Error("live load reported cache")
	}

	api.listErr = errors.New("dial tcp: connection refused")
	cached, err := s.LoadFeed(ctx, apiclient.ListParams{}, false)
	if err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if !cached.FromCache {
		t.Error("expected cached feed")
	}
	if diff := cmp.Diff(live.Opportunities, cached.Opportunities); diff != "" {
		t.Errorf("cached feed mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFeedNoCache(t *testing.T) {
	api := &mockAPI{listErr: errors.New("offline")}
	s, _ := newTestSyncer(api)

	if _, err := s.LoadFeed(context.Background(), apiclient.ListParams{}, false); err == nil {
		t.Error("expected error without cache")
	}
}

func TestToggleSaveQueuesWhenOffline(t *testing.T) {
	api := &mockAPI{online: false}
	s, q := newTestSyncer(api)

	got, err := s.ToggleSave(context.Background(), "u1", "o1")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if diff := cmp.Diff(MutationResult{Queued: true}, got); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if n := q.PendingCount("u1"); n != 1 {
		t.Errorf("got %d pending, want 1", n)
	}
	if toggles := api.getToggles(); len(toggles) != 0 {
		t.Errorf("got %d api toggles, want 0", len(toggles))
	}
}

func TestMutationErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantQueued bool
		wantErr    bool
	}{
		{name: "transport", err: errors.New("connection reset"), wantQueued: true},
		{name: "server", err: &apiclient.StatusError{StatusCode: http.StatusBadGateway}, wantQueued: true},
		{name: "unauthorized", err: &apiclient.StatusError{StatusCode: http.StatusUnauthorized}, wantErr: true},
		{name: "not found", err: &apiclient.StatusError{StatusCode: http.StatusNotFound}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockAPI{online: true, mutErr: tt.err}
			s, q := newTestSyncer(api)

			got, err := s.TrackAction(context.Background(), "u1", "o1", model.ActionApplied)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got.Queued != tt.wantQueued {
				t.Errorf("queued = %v, want %v", got.Queued, tt.wantQueued)
			}
			wantPending := 0
			if tt.wantQueued {
				wantPending = 1
			}
			if n := q.PendingCount("u1"); n != wantPending {
				t.Errorf("got %d pending, want %d", n, wantPending)
			}
		})
	}
}

func TestRunFlushesOnReconnect(t *testing.T) {
	api := &mockAPI{online: false}
	s, q := newTestSyncer(api)
	s.pollInterval = 5 * time.Millisecond

	q.EnqueueSaveToggle("u1", "o1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, "u1")
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if n := q.PendingCount("u1"); n != 1 {
		t.Fatalf("flushed while offline: %d pending", n)
	}

	api.setOnline(true)
	deadline := time.Now().Add(2 * time.Second)
	for q.PendingCount("u1") != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if diff := cmp.Diff([]string{"o1"}, api.getToggles()); diff != "" {
		t.Errorf("toggles mismatch (-want +got):\n%s", diff)
	}
}

func TestProfileFallsBackToCache(t *testing.T) {
	year := 2025
	api := &mockAPI{profile: &model.Profile{UserID: "u1", EducationLevel: "BTECH", GraduationYear: &year}}
	s, _ := newTestSyncer(api)
	ctx := context.Background()

	if _, cached, err := s.Profile(ctx); err != nil || cached {
		t.Fatalf("live profile: cached=%v err=%v", cached, err)
	}

	api.profErr = errors.New("timeout")
	p, cached, err := s.Profile(ctx)
	if err != nil {
		t.Fatalf("cached profile: %v", err)
	}
	if !cached {
		t.Error("expected cached profile")
	}
	if diff := cmp.Diff(api.profile, p); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}

	api.profErr = &apiclient.StatusError{StatusCode: http.StatusUnauthorized}
	if _, _, err := s.Profile(ctx); !errors.Is(err, apiclient.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}
