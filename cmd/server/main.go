package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fresherjobs/internal/api"
	"fresherjobs/internal/bot"
	"fresherjobs/internal/config"
	"fresherjobs/internal/edgecache"
	"fresherjobs/internal/funnel"
	"fresherjobs/internal/importer"
	"fresherjobs/internal/metrics"
	"fresherjobs/internal/scheduler"
	"fresherjobs/internal/storage"
)

// version names the edge cache generation; set with -ldflags "-X main.version=...".
var version = "v1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
	}

	m := metrics.New(log)
	tracker := funnel.NewTracker(funnelStore(rdb), log)

	var edge *edgecache.Cache
	if cfg.OriginURL != "" {
		edge, err = newEdgeCache(ctx, cfg, rdb, m, log.With("component", "edgecache"))
		if err != nil {
			log.Error("create edge cache", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newHandler(api.New(store, tracker, log.With("component", "api")), edge, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var wg sync.WaitGroup
	if cfg.TelegramBotToken != "" {
		startBot(ctx, &wg, cfg, store, tracker, m, log)
	} else {
		log.Info("TELEGRAM_BOT_TOKEN not set, admin bot disabled")
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown http server", "error", err)
		}
	}()

	log.Info("starting server", "addr", cfg.HTTPAddr, "edge_cache", edge != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("serve http", "error", err)
		cancel()
	}

	wg.Wait()
	if edge != nil {
		edge.Wait()
	}
	log.Info("server stopped")
}

// newHandler builds the server's handler chain. With an edge cache the API
// sits behind it, so allow-listed reads are cached and everything outside
// /api is proxied to the origin.
func newHandler(srv *api.Server, edge *edgecache.Cache, m *metrics.Metrics) http.Handler {
	apiMux := http.NewServeMux()
	srv.RegisterRoutes(apiMux)

	var app http.Handler = apiMux
	if edge != nil {
		app = edge.Wrap(apiMux)
	}

	root := http.NewServeMux()
	root.Handle("GET /metrics", m.Handler())
	root.Handle("/", app)
	return m.Middleware(api.Compress(root))
}

func funnelStore(rdb *redis.Client) funnel.Store {
	if rdb == nil {
		return funnel.NewMemoryStore()
	}
	return funnel.NewRedisStore(rdb, "fresherjobs:funnel:")
}

func newEdgeCache(ctx context.Context, cfg *config.Config, rdb *redis.Client, m *metrics.Metrics, log *slog.Logger) (*edgecache.Cache, error) {
	origin, err := url.Parse(cfg.OriginURL)
	if err != nil {
		return nil, err
	}
	var st edgecache.Storage = edgecache.NewMemoryStorage()
	if rdb != nil {
		st = edgecache.NewRedisStorage(rdb, "fresherjobs:edge:")
	}
	v := version
	if cfg.EdgeCacheVersion != "" {
		v = cfg.EdgeCacheVersion
	}

	edge := edgecache.New(origin, http.DefaultTransport, st, v, m, log)
	if err := edge.Install(ctx); err != nil {
		return nil, err
	}
	if err := edge.Activate(ctx); err != nil {
		return nil, err
	}
	return edge, nil
}

func startBot(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, store storage.Storage,
	tracker *funnel.Tracker, m *metrics.Metrics, log *slog.Logger) {
	im := importer.New(http.DefaultClient)

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, im, tracker, log.With("component", "bot"))
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}
	sched := scheduler.New(store, im, b, cfg.AdminChatID, m, log.With("component", "scheduler"))
	b.SetChecker(sched)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()

	if cfg.BroadcastChatID != 0 {
		digest := scheduler.NewDigest(store, b, cfg.BroadcastChatID, log.With("component", "digest"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := digest.Run(ctx, cfg.DigestCron); err != nil {
				log.Error("run digest", "error", err)
			}
		}()
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
