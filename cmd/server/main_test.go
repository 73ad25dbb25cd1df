package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"fresherjobs/internal/api"
	"fresherjobs/internal/edgecache"
	"fresherjobs/internal/funnel"
	"fresherjobs/internal/metrics"
	"fresherjobs/internal/storage"
)

type countingTransport struct {
	trips atomic.Int32
}

func (t *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	t.trips.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

type serverFixture struct {
	handler   http.Handler
	edge      *edgecache.Cache
	transport *countingTransport
}

func newServerFixture(t *testing.T, withEdge bool) *serverFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := metrics.New(log)
	srv := api.New(store, funnel.NewTracker(funnel.NewMemoryStore(), log), log)

	f := &serverFixture{transport: &countingTransport{}}
	if withEdge {
		origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "<html>%s</html>", r.URL.Path)
		}))
		t.Cleanup(origin.Close)
		u, err := url.Parse(origin.URL)
		if err != nil {
			t.Fatalf("parse origin: %v", err)
		}
		f.edge = edgecache.New(u, f.transport, edgecache.NewMemoryStorage(), "test", m, log)
		t.Cleanup(f.edge.Wait)
	}
	f.handler = newHandler(srv, f.edge, m)
	return f
}

func (f *serverFixture) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	var body io.Reader
	if method == http.MethodPost {
		body = strings.NewReader(`{"source":"campus","event":"DETAIL_VIEW"}`)
	}
	req := httptest.NewRequest(method, target, body)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCachesAPIReads(t *testing.T) {
	f := newServerFixture(t, true)
	user := map[string]string{"X-User-ID": "u1"}

	for _, target := range []string{"/api/health", "/api/profile"} {
		rec := f.do(http.MethodGet, target, user)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", target, rec.Code)
		}
		if got := rec.Header().Get("X-Edge-Cache"); got != "MISS" {
			t.Errorf("GET %s first state = %q, want MISS", target, got)
		}
		rec = f.do(http.MethodGet, target, user)
		if got := rec.Header().Get("X-Edge-Cache"); got != "HIT" {
			t.Errorf("GET %s second state = %q, want HIT", target, got)
		}
		f.edge.Wait()
	}

	rec := f.do(http.MethodPost, "/api/growth/events", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("growth event status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("X-Edge-Cache"); got != "" {
		t.Errorf("mutation went through the cache: %q", got)
	}
	if got := f.transport.trips.Load(); got != 0 {
		t.Errorf("origin round trips for API traffic = %d, want 0", got)
	}

	rec = f.do(http.MethodGet, "/saved", map[string]string{"Sec-Fetch-Mode": "navigate"})
	if rec.Body.String() != "<html>/saved</html>" || rec.Header().Get("X-Edge-Cache") != "MISS" {
		t.Errorf("navigation: %q %q", rec.Body.String(), rec.Header().Get("X-Edge-Cache"))
	}
	if got := f.transport.trips.Load(); got != 1 {
		t.Errorf("origin round trips = %d, want 1", got)
	}

	rec = f.do(http.MethodGet, "/metrics", nil)
	body := rec.Body.String()
	for _, want := range []string{
		`fresherjobs_edge_cache_lookups_total{cache="api",result="hit"} 2`,
		`route="GET /api/health"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}

func TestHandlerWithoutEdgeCache(t *testing.T) {
	f := newServerFixture(t, false)

	rec := f.do(http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("X-Edge-Cache"); got != "" {
		t.Errorf("cache state = %q, want none", got)
	}
	if rec := f.do(http.MethodGet, "/saved", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown page status = %d, want 404", rec.Code)
	}
}
