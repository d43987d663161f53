package dedup

import (
	"context"
	"testing"
	"time"

	"seer/internal/config"
)

func TestAlreadySeenInMemory(t *testing.T) {
	d := New(config.DedupConfig{Window: time.Hour})
	defer d.Close()
	ctx := context.Background()

	if d.AlreadySeen(ctx, "https://feed.example/a", "body text") {
		t.Error("first sighting reported as seen")
	}
	if !d.AlreadySeen(ctx, "https://feed.example/a", "body text") {
		t.Error("second sighting not reported as seen")
	}

	// Same text under a different URL is distinct content.
	if d.AlreadySeen(ctx, "https://feed.example/b", "body text") {
		t.Error("different source URL must not collide")
	}
	// Different text under the same URL is distinct content.
	if d.AlreadySeen(ctx, "https://feed.example/a", "updated body") {
		t.Error("changed content must not collide")
	}
}

func TestAlreadySeenWindowExpiry(t *testing.T) {
	d := New(config.DedupConfig{Window: 20 * time.Millisecond})
	defer d.Close()
	ctx := context.Background()

	if d.AlreadySeen(ctx, "https://x", "c") {
		t.Error("first sighting reported as seen")
	}
	time.Sleep(30 * time.Millisecond)
	if d.AlreadySeen(ctx, "https://x", "c") {
		t.Error("sighting outside window reported as seen")
	}
}

func TestContentHashStable(t *testing.T) {
	a := ContentHash("https://x", "body")
	b := ContentHash("https://x", "body")
	if a != b {
		t.Error("hash not deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
	if a == ContentHash("https://y", "body") {
		t.Error("url not part of hash")
	}
}
