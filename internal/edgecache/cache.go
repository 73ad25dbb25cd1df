// Package edgecache is a caching reverse proxy in front of the web origin.
// It serves pages and allow-listed API reads from cache while the origin is
// slow or unreachable, and revalidates them in the background.
package edgecache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"fresherjobs/internal/metrics"
)

// Cache name prefixes. The full names carry the deployed version.
const (
	StaticCachePrefix = "fresherjobs-static-"
	APICachePrefix    = "fresherjobs-api-"
)

// OfflinePath is the precached page served when a navigation fails.
const OfflinePath = "/offline"

// APIPrefixes are the API paths served stale-while-revalidate.
var APIPrefixes = []string{"/api/opportunities", "/api/profile", "/api/health"}

// PrecacheRoutes are fetched into the static cache by Install.
var PrecacheRoutes = []string{"/", OfflinePath, "/opportunities", "/saved", "/manifest.webmanifest"}

// trackingParams are dropped from cache keys.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref"}

var staticDests = []string{"style", "script", "image", "font"}

var staticExts = []string{
	".css", ".js", ".mjs", ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico",
	".woff", ".woff2", ".ttf", ".otf",
}

const offlineHTML = `<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Offline</title></head>
<body><h1>You are offline</h1><p>Check your connection and try again. Saved listings are still available.</p></body>
</html>
`

const maxBodySize = 10 << 20

// Recorder receives cache lookup outcomes.
type Recorder interface {
	CacheLookup(cache, result string)
}

type nopRecorder struct{}

func (nopRecorder) CacheLookup(string, string) {}

// Cache is the caching proxy. Create it with New, then call Install and
// Activate before serving.
type Cache struct {
	origin    *url.URL
	transport http.RoundTripper
	storage   Storage
	rec       Recorder
	log       *slog.Logger
	proxy     *httputil.ReverseProxy
	api       http.Handler

	staticCache string
	apiCache    string

	wg sync.WaitGroup
}

// New creates a Cache proxying to origin through transport.
// A nil recorder disables lookup metrics.
func New(origin *url.URL, transport http.RoundTripper, storage Storage, version string, rec Recorder, log *slog.Logger) *Cache {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	proxy := httputil.NewSingleHostReverseProxy(origin)
	proxy.Transport = transport
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Warn("proxy request", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}
	return &Cache{
		origin:      origin,
		transport:   transport,
		storage:     storage,
		rec:         rec,
		log:         log,
		proxy:       proxy,
		staticCache: StaticCachePrefix + version,
		apiCache:    APICachePrefix + version,
	}
}

// CacheNames returns the current static and API cache names.
func (c *Cache) CacheNames() (static, api string) {
	return c.staticCache, c.apiCache
}

// Install fetches PrecacheRoutes into the static cache. Routes that fail
// to load are logged and skipped.
func (c *Cache) Install(ctx context.Context) error {
	var stored int
	for _, route := range PrecacheRoutes {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.origin.JoinPath(route).String(), nil)
		if err != nil {
			return fmt.Errorf("create precache request: %w", err)
		}
		entry, err := c.roundTrip(req)
		if err != nil {
			c.log.Warn("precache route", "route", route, "error", err)
			continue
		}
		if !cacheable(entry) {
			c.log.Warn("precache route", "route", route, "status", entry.Status)
			continue
		}
		if err := c.storage.Put(ctx, c.staticCache, route, entry); err != nil {
			return fmt.Errorf("store precache %s: %w", route, err)
		}
		stored++
	}
	c.log.Info("edge cache installed", "cache", c.staticCache, "routes", stored)
	return nil
}

// Activate deletes every cache other than the current static and API caches.
func (c *Cache) Activate(ctx context.Context) error {
	names, err := c.storage.Caches(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, name := range names {
		if name == c.staticCache || name == c.apiCache {
			continue
		}
		if err := c.storage.DeleteCache(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
		c.log.Info("deleted stale cache", "cache", name)
	}
	return nil
}

// Wait blocks until background revalidations finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

// Wrap puts the cache in front of a local API handler. Allow-listed reads
// go through the API cache with api as their upstream; every other /api
// request is handed to api unchanged. The rest still goes to the origin.
// Call it once, before serving.
func (c *Cache) Wrap(api http.Handler) http.Handler {
	c.api = api
	return c
}

func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	apiPath := hasPathPrefix(r.URL.Path, "/api")
	switch {
	case r.Method == http.MethodGet && allowListed(r.URL.Path):
		c.serveAPI(w, r)
	case apiPath && c.api != nil:
		c.api.ServeHTTP(w, r)
	case r.Method != http.MethodGet, apiPath:
		c.proxy.ServeHTTP(w, r)
	case isNavigation(r):
		c.serveNavigation(w, r)
	case isStatic(r):
		c.serveStatic(w, r)
	default:
		c.proxy.ServeHTTP(w, r)
	}
}

// serveNavigation is network first, falling back to the cached page, the
// cached offline page and finally an inline offline document.
func (c *Cache) serveNavigation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := r.URL.Path

	entry, err := c.fetch(r)
	if errors.Is(err, errTooLarge) {
		c.passThrough(w, r)
		return
	}
	if err == nil {
		if cacheable(entry) {
			c.put(ctx, c.staticCache, key, entry)
		}
		c.rec.CacheLookup("navigation", metrics.LookupMiss)
		writeEntry(w, entry, "MISS")
		return
	}
	c.log.Warn("navigation fetch failed", "path", key, "error", err)

	if cached, ok := c.get(ctx, c.staticCache, key); ok {
		c.rec.CacheLookup("navigation", metrics.LookupHit)
		writeEntry(w, cached, "HIT")
		return
	}
	c.rec.CacheLookup("navigation", metrics.LookupFallback)
	if offline, ok := c.get(ctx, c.staticCache, OfflinePath); ok {
		writeEntry(w, offline, "FALLBACK")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Edge-Cache", "FALLBACK")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, offlineHTML)
}

// serveStatic is stale-while-revalidate without an error fallback.
func (c *Cache) serveStatic(w http.ResponseWriter, r *http.Request) {
	key := CacheKey(r.URL)
	if cached, ok := c.get(r.Context(), c.staticCache, key); ok {
		c.rec.CacheLookup("static", metrics.LookupHit)
		c.revalidate(r, "static", c.staticCache, key)
		writeEntry(w, cached, "HIT")
		return
	}

	c.rec.CacheLookup("static", metrics.LookupMiss)
	entry, err := c.fetch(r)
	if errors.Is(err, errTooLarge) {
		c.passThrough(w, r)
		return
	}
	if err != nil {
		c.log.Warn("static fetch failed", "path", r.URL.Path, "error", err)
		http.Error(w, "asset unavailable", http.StatusBadGateway)
		return
	}
	if cacheable(entry) {
		c.put(r.Context(), c.staticCache, key, entry)
	}
	writeEntry(w, entry, "MISS")
}

// serveAPI is stale-while-revalidate with a JSON 503 when both cache and
// network fail. Keys include the caller identity.
func (c *Cache) serveAPI(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-User-ID") + " " + CacheKey(r.URL)
	if cached, ok := c.get(r.Context(), c.apiCache, key); ok {
		c.rec.CacheLookup("api", metrics.LookupHit)
		c.revalidate(r, "api", c.apiCache, key)
		writeEntry(w, cached, "HIT")
		return
	}

	c.rec.CacheLookup("api", metrics.LookupMiss)
	entry, err := c.fetch(r)
	if errors.Is(err, errTooLarge) {
		c.passThrough(w, r)
		return
	}
	if err != nil {
		c.log.Warn("api fetch failed", "path", r.URL.Path, "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Edge-Cache", "OFFLINE")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"You are offline and this data is not cached yet.","offline":true}`)
		return
	}
	if cacheable(entry) {
		c.put(r.Context(), c.apiCache, key, entry)
	}
	writeEntry(w, entry, "MISS")
}

// passThrough streams a response that is too large to cache.
func (c *Cache) passThrough(w http.ResponseWriter, r *http.Request) {
	c.log.Info("serving uncached", "path", r.URL.Path, "reason", errTooLarge)
	w.Header().Set("X-Edge-Cache", "BYPASS")
	if c.api != nil && hasPathPrefix(r.URL.Path, "/api") {
		c.api.ServeHTTP(w, r)
		return
	}
	c.proxy.ServeHTTP(w, r)
}

// revalidate refreshes key in the background. The response does not wait.
func (c *Cache) revalidate(r *http.Request, kind, cache, key string) {
	ctx := context.WithoutCancel(r.Context())
	req := r.Clone(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		entry, err := c.fetch(req)
		if err != nil {
			c.log.Debug("revalidate failed", "cache", cache, "key", key, "error", err)
			return
		}
		if !cacheable(entry) {
			return
		}
		c.put(ctx, cache, key, entry)
		c.rec.CacheLookup(kind, metrics.LookupRevalidate)
	}()
}

func (c *Cache) fetch(r *http.Request) (*Entry, error) {
	if c.api != nil && hasPathPrefix(r.URL.Path, "/api") {
		return c.fetchLocal(r)
	}
	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.URL.Scheme = c.origin.Scheme
	out.URL.Host = c.origin.Host
	out.Host = c.origin.Host
	out.Header.Del("Accept-Encoding")
	return c.roundTrip(out)
}

// fetchLocal runs the request through the local API handler. A 5xx answer
// means the API cannot reach its data and is treated like a network failure.
func (c *Cache) fetchLocal(r *http.Request) (*Entry, error) {
	out := r.Clone(r.Context())
	out.Header.Del("Accept-Encoding")
	rec := &bufferedResponse{header: make(http.Header)}
	c.api.ServeHTTP(rec, out)
	r.Pattern = out.Pattern
	if err := r.Context().Err(); err != nil {
		return nil, fmt.Errorf("api %s: %w", r.URL.Path, err)
	}
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if rec.status >= 500 {
		return nil, fmt.Errorf("api %s: status %d", r.URL.Path, rec.status)
	}
	header := rec.header.Clone()
	header.Del("Set-Cookie")
	header.Del("Content-Length")
	return &Entry{Status: rec.status, Header: header, Body: rec.body.Bytes(), StoredAt: time.Now()}, nil
}

// errTooLarge marks origin bodies that exceed maxBodySize.
var errTooLarge = errors.New("response body too large to cache")

func (c *Cache) roundTrip(req *http.Request) (*Entry, error) {
	resp, err := c.transport.RoundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("origin %s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read origin body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, fmt.Errorf("origin %s: %w", req.URL.Path, errTooLarge)
	}
	header := resp.Header.Clone()
	header.Del("Set-Cookie")
	header.Del("Content-Length")
	return &Entry{Status: resp.StatusCode, Header: header, Body: body, StoredAt: time.Now()}, nil
}

func (c *Cache) get(ctx context.Context, cache, key string) (*Entry, bool) {
	e, ok, err := c.storage.Get(ctx, cache, key)
	if err != nil {
		c.log.Warn("edge cache read", "cache", cache, "key", key, "error", err)
		return nil, false
	}
	return e, ok
}

func (c *Cache) put(ctx context.Context, cache, key string, e *Entry) {
	if err := c.storage.Put(ctx, cache, key, e); err != nil {
		c.log.Warn("edge cache write", "cache", cache, "key", key, "error", err)
	}
}

// cacheable reports whether a response is a successful non-redirect.
func cacheable(e *Entry) bool {
	return e.Status >= 200 && e.Status < 300
}

func writeEntry(w http.ResponseWriter, e *Entry, state string) {
	for k, v := range e.Header {
		w.Header()[k] = slices.Clone(v)
	}
	w.Header().Set("X-Edge-Cache", state)
	w.WriteHeader(e.Status)
	_, _ = io.Copy(w, bytes.NewReader(e.Body))
}

// CacheKey returns path and query with tracking parameters removed.
func CacheKey(u *url.URL) string {
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	if enc := q.Encode(); enc != "" {
		return u.Path + "?" + enc
	}
	return u.Path
}

func allowListed(p string) bool {
	return slices.ContainsFunc(APIPrefixes, func(prefix string) bool { return hasPathPrefix(p, prefix) })
}

func hasPathPrefix(p, prefix string) bool {
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isStatic(r *http.Request) bool {
	if slices.Contains(staticDests, r.Header.Get("Sec-Fetch-Dest")) {
		return true
	}
	return slices.Contains(staticExts, strings.ToLower(path.Ext(r.URL.Path)))
}

type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}
