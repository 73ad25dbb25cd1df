package edgecache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type origin struct {
	mu      sync.Mutex
	version int
	hits    map[string]int
}

func (o *origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.mu.Lock()
	o.hits[r.URL.Path]++
	v := o.version
	o.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/missing"):
		http.NotFound(w, r)
	case strings.HasSuffix(r.URL.Path, "/brochure.pdf"):
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxBodySize+1))
	case r.Method == http.MethodPost:
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, "created")
	default:
		fmt.Fprintf(w, "%s v%d user=%s", r.URL.Path, v, r.Header.Get("X-User-ID"))
	}
}

func (o *origin) bump() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.version++
}

func (o *origin) hitCount(p string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[p]
}

type flakyTransport struct {
	down atomic.Bool
}

func (t *flakyTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.down.Load() {
		return nil, errors.New("dial tcp: connection refused")
	}
	return http.DefaultTransport.RoundTrip(r)
}

type lookup struct{ cache, result string }

type recorder struct {
	mu      sync.Mutex
	lookups []lookup
}

func (r *recorder) CacheLookup(cache, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups = append(r.lookups, lookup{cache, result})
}

type fixture struct {
	origin    *origin
	transport *flakyTransport
	storage   *MemoryStorage
	cache     *Cache
	rec       *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	o := &origin{hits: make(map[string]int)}
	srv := httptest.NewServer(o)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	f := &fixture{origin: o, transport: &flakyTransport{}, storage: NewMemoryStorage(), rec: &recorder{}}
	f.cache = New(u, f.transport, f.storage, "v2", f.rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) do(method, target string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.cache.ServeHTTP(rec, req)
	return rec
}

var navigate = map[string]string{"Sec-Fetch-Mode": "navigate", "Accept": "text/html"}

func TestInstallAndActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.storage.Put(ctx, "fresherjobs-static-v1", "/", &Entry{Status: 200})
	_ = f.storage.Put(ctx, "fresherjobs-api-v1", "/api/health", &Entry{Status: 200})
	_ = f.storage.Put(ctx, "fresherjobs-api-v2", "/api/health", &Entry{Status: 200})

	if err := f.cache.Install(ctx); err != nil {
		t.Fatalf("install: %v", err)
	}
	if err := f.cache.Activate(ctx); err != nil {
		t.Fatalf("activate: %v", err)
	}

	names, _ := f.storage.Caches(ctx)
	if diff := cmp.Diff([]string{"fresherjobs-api-v2", "fresherjobs-static-v2"}, names); diff != "" {
		t.Errorf("caches mismatch (-want +got):\n%s", diff)
	}
	for _, route := range PrecacheRoutes {
		if _, ok, _ := f.storage.Get(ctx, "fresherjobs-static-v2", route); !ok {
			t.Errorf("route %s not precached", route)
		}
	}
}

func TestNavigationFallbacks(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/opportunities/abc", navigate)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Edge-Cache") != "MISS" {
		t.Fatalf("online navigation: %d %s", rec.Code, rec.Header().Get("X-Edge-Cache"))
	}

	f.transport.down.Store(true)

	rec = f.do(http.MethodGet, "/opportunities/abc", navigate)
	if got := rec.Body.String(); got != "/opportunities/abc v0 user=" {
		t.Errorf("cached navigation body = %q", got)
	}
	if got := rec.Header().Get("X-Edge-Cache"); got != "HIT" {
		t.Errorf("cache state = %q, want HIT", got)
	}

	rec = f.do(http.MethodGet, "/never-visited", navigate)
	if rec.Code != http.StatusOK || rec.Body.String() != offlineHTML {
		t.Errorf("inline offline page not served: %d %q", rec.Code, rec.Body.String())
	}

	f.transport.down.Store(false)
	if err := f.cache.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	f.transport.down.Store(true)

	rec = f.do(http.MethodGet, "/never-visited", navigate)
	if got := rec.Body.String(); got != "/offline v0 user=" {
		t.Errorf("offline page body = %q", got)
	}
}

func TestAPIStaleWhileRevalidate(t *testing.T) {
	f := newFixture(t)
	hdr := map[string]string{"X-User-ID": "u1"}

	rec := f.do(http.MethodGet, "/api/opportunities?type=JOB&utm_source=mail", hdr)
	if got := rec.Header().Get("X-Edge-Cache"); got != "MISS" {
		t.Fatalf("first request state = %q", got)
	}

	f.origin.bump()
	rec = f.do(http.MethodGet, "/api/opportunities?type=JOB&utm_campaign=x", hdr)
	if got := rec.Body.String(); got != "/api/opportunities v0 user=u1" {
		t.Errorf("stale body = %q", got)
	}
	f.cache.Wait()

	rec = f.do(http.MethodGet, "/api/opportunities?type=JOB", hdr)
	if got := rec.Body.String(); got != "/api/opportunities v1 user=u1" {
		t.Errorf("revalidated body = %q", got)
	}
	f.cache.Wait()

	rec = f.do(http.MethodGet, "/api/opportunities?type=JOB", map[string]string{"X-User-ID": "u2"})
	if got := rec.Header().Get("X-Edge-Cache"); got != "MISS" {
		t.Errorf("other user state = %q, want MISS", got)
	}
}

func TestAPIOffline(t *testing.T) {
	f := newFixture(t)
	f.transport.down.Store(true)

	rec := f.do(http.MethodGet, "/api/profile", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body struct {
		Error   string `json:"error"`
		Offline bool   `json:"offline"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Offline || body.Error == "" {
		t.Errorf("body = %+v", body)
	}
}

func TestAPIErrorsNotCached(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/api/opportunities/missing", nil)
	if _, ok, _ := f.storage.Get(context.Background(), "fresherjobs-api-v2", " /api/opportunities/missing"); ok {
		t.Error("non-2xx response cached")
	}
}

func TestStaticCacheFirst(t *testing.T) {
	f := newFixture(t)

	f.do(http.MethodGet, "/assets/app.js", nil)
	f.transport.down.Store(true)

	rec := f.do(http.MethodGet, "/assets/app.js?ref=home", nil)
	if got := rec.Body.String(); got != "/assets/app.js v0 user=" {
		t.Errorf("static body = %q", got)
	}
	f.cache.Wait()

	if got := f.origin.hitCount("/assets/app.js"); got != 1 {
		t.Errorf("origin hits = %d, want 1", got)
	}
}

func TestBypass(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/opportunities/o1/save", nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("POST status = %d, want 201", rec.Code)
	}
	rec = f.do(http.MethodGet, "/api/admin/audit", nil)
	if rec.Header().Get("X-Edge-Cache") != "" {
		t.Error("admin API went through the cache")
	}
	names, _ := f.storage.Caches(context.Background())
	if len(names) != 0 {
		t.Errorf("caches created on bypass: %v", names)
	}
}

type localAPI struct {
	calls  atomic.Int32
	failed atomic.Bool
}

func (a *localAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := a.calls.Add(1)
	if a.failed.Load() {
		http.Error(w, `{"error":"database is locked"}`, http.StatusInternalServerError)
		return
	}
	if r.Method == http.MethodPost {
		w.WriteHeader(http.StatusCreated)
		return
	}
	fmt.Fprintf(w, `{"path":%q,"call":%d}`, r.URL.Path, n)
}

func TestWrapServesAPILocally(t *testing.T) {
	f := newFixture(t)
	local := &localAPI{}
	h := f.cache.Wrap(local)
	do := func(method, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, target, nil)
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodGet, "/api/opportunities")
	if got := rec.Header().Get("X-Edge-Cache"); got != "MISS" {
		t.Fatalf("first read state = %q, want MISS", got)
	}
	rec = do(http.MethodGet, "/api/opportunities")
	if got := rec.Header().Get("X-Edge-Cache"); got != "HIT" {
		t.Errorf("second read state = %q, want HIT", got)
	}
	if got := rec.Body.String(); got != `{"path":"/api/opportunities","call":1}` {
		t.Errorf("cached body = %q", got)
	}
	f.cache.Wait()

	rec = do(http.MethodPost, "/api/opportunities/o1/save")
	if rec.Code != http.StatusCreated || rec.Header().Get("X-Edge-Cache") != "" {
		t.Errorf("mutation: %d %q", rec.Code, rec.Header().Get("X-Edge-Cache"))
	}
	if got := f.origin.hitCount("/api/opportunities"); got != 0 {
		t.Errorf("origin saw %d API reads, want 0", got)
	}

	local.failed.Store(true)
	rec = do(http.MethodGet, "/api/opportunities")
	if got := rec.Header().Get("X-Edge-Cache"); got != "HIT" {
		t.Errorf("stale read state = %q, want HIT", got)
	}
	f.cache.Wait()

	rec = do(http.MethodGet, "/api/profile")
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("X-Edge-Cache") != "OFFLINE" {
		t.Errorf("uncached read with failing API: %d %q", rec.Code, rec.Header().Get("X-Edge-Cache"))
	}
}

func TestOversizedBodyNotCached(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/files/brochure.pdf", navigate)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.Len(); got != maxBodySize+1 {
		t.Errorf("body length = %d, want %d", got, maxBodySize+1)
	}
	if got := rec.Header().Get("X-Edge-Cache"); got != "BYPASS" {
		t.Errorf("cache state = %q, want BYPASS", got)
	}
	if _, ok, _ := f.storage.Get(context.Background(), "fresherjobs-static-v2", "/files/brochure.pdf"); ok {
		t.Error("oversized body cached")
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "/a?utm_source=x&utm_medium=y&utm_campaign=z&utm_term=t&utm_content=c&ref=r", want: "/a"},
		{raw: "/a?b=2&a=1&ref=r", want: "/a?a=1&b=2"},
		{raw: "/a", want: "/a"},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.raw)
		if got := CacheKey(u); got != tt.want {
			t.Errorf("CacheKey(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
