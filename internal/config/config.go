// Package config handles server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the server configuration.
type Config struct {
	HTTPAddr         string
	DatabasePath     string
	LogLevel         string
	RedisURL         string
	OriginURL        string
	EdgeCacheVersion string
	TelegramBotToken string
	AdminIDs         []int64
	AdminChatID      int64
	BroadcastChatID  int64
	DigestCron       string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPAddr:         envOr("HTTP_ADDR", ":8080"),
		DatabasePath:     envOr("DATABASE_PATH", "./data/fresherjobs.db"),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		RedisURL:         os.Getenv("REDIS_URL"),
		OriginURL:        os.Getenv("ORIGIN_URL"),
		EdgeCacheVersion: os.Getenv("EDGE_CACHE_VERSION"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DigestCron:       envOr("DIGEST_CRON", "0 9 * * *"),
	}

	if raw := os.Getenv("ADMIN_TELEGRAM_IDS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ADMIN_TELEGRAM_IDS: %w", s, err)
			}
			cfg.AdminIDs = append(cfg.AdminIDs, uid)
		}
	}

	var err error
	if cfg.AdminChatID, err = envInt("ADMIN_CHAT_ID"); err != nil {
		return nil, err
	}
	if cfg.BroadcastChatID, err = envInt("BROADCAST_CHAT_ID"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsAdmin checks whether a Telegram user ID is in the admin allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsAdmin(userID int64) bool {
	if len(c.AdminIDs) == 0 {
		return true
	}
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
