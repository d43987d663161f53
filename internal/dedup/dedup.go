// Package dedup suppresses re-normalization of identical page content seen
// within a bounded recent window. The check is best effort: when the backing
// store is unavailable the pipeline processes the content again rather than
// dropping it.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"seer/internal/config"
)

const keyPrefix = "seer:dedup:"

// Deduper tracks content hashes within the configured window. With a Redis
// address configured the window is shared across instances via SET NX + TTL;
// otherwise an in-process map serves a single instance.
type Deduper struct {
	window time.Duration
	client *redis.Client

	mu   sync.Mutex
	seen map[string]time.Time
}

// New creates a deduper from configuration.
func New(cfg config.DedupConfig) *Deduper {
	d := &Deduper{
		window: cfg.Window,
		seen:   make(map[string]time.Time),
	}
	if d.window <= 0 {
		d.window = 24 * time.Hour
	}
	if cfg.RedisAddr != "" {
		d.client = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
	}
	return d
}

// ContentHash returns the dedup key for a page: sha256 over source URL and
// raw text, so the same article republished at another URL is still
// processed.
func ContentHash(sourceURL, content string) string {
	h := sha256.New()
	h.Write([]byte(sourceURL))
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}

// AlreadySeen atomically records the content hash and reports whether it was
// present within the window. Errors talking to Redis are logged and treated
// as unseen.
func (d *Deduper) AlreadySeen(ctx context.Context, sourceURL, content string) bool {
	hash := ContentHash(sourceURL, content)

	if d.client != nil {
		set, err := d.client.SetNX(ctx, keyPrefix+hash, 1, d.window).Result()
		if err != nil {
			slog.Warn("dedup check failed, processing content anyway", "error", err)
			return false
		}
		return !set
	}

	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seen[hash]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seen[hash] = now
	d.prune(now)
	return false
}

// prune drops expired entries. Caller holds d.mu.
func (d *Deduper) prune(now time.Time) {
	if len(d.seen) < 4096 {
		return
	}
	for k, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, k)
		}
	}
}

// Close releases the Redis connection if one was configured.
func (d *Deduper) Close() error {
	if d.client != nil {
		return d.client.Close()
	}
	return nil
}
