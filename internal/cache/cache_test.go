package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedis(Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedis_GetSet(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatal("expected miss for unknown key")
	}

	c.Set(ctx, UserData(3), `{"fid":3}`, UserDataTTL)
	v, ok := c.Get(ctx, UserData(3))
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if v != `{"fid":3}` {
		t.Errorf("got %q", v)
	}
	if ttl := mr.TTL(UserData(3)); ttl != UserDataTTL {
		t.Errorf("expected TTL %s, got %s", UserDataTTL, ttl)
	}

	mr.FastForward(UserDataTTL + time.Second)
	if _, ok := c.Get(ctx, UserData(3)); ok {
		t.Error("entry should expire after its TTL")
	}
}

func TestRedis_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	c.Set(ctx, Username("dwr"), "3", UsernameTTL)
	if ttl := mr.TTL(Username("dwr")); ttl != 0 {
		t.Errorf("expected no TTL, got %s", ttl)
	}

	mr.FastForward(365 * 24 * time.Hour)
	v, ok := c.Get(ctx, Username("dwr"))
	if !ok || v != "3" {
		t.Fatalf("expected 3 after a year, got %q (hit=%v)", v, ok)
	}
}

func TestRedis_OutageIsMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedis(t)

	c.Set(ctx, "k", "v", 0)
	mr.Close()

	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("expected miss while Redis is down")
	}
	// writes are dropped without panicking
	c.Set(ctx, "k", "v2", time.Minute)
}

func TestRedis_WithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewRedisWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.Set(ctx, "short", "a", time.Minute)
	m.Set(ctx, "forever", "b", 0)

	if v, ok := m.Get(ctx, "short"); !ok || v != "a" {
		t.Fatalf("expected a, got %q (hit=%v)", v, ok)
	}

	now = now.Add(time.Minute)
	if _, ok := m.Get(ctx, "short"); ok {
		t.Error("short entry should have expired")
	}
	if _, ok := m.Get(ctx, "forever"); !ok {
		t.Error("zero TTL entry should not expire")
	}

	m.Cleanup()
	if n := m.Len(); n != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", n)
	}
}

type snapshot struct {
	FID      int64  `json:"fid"`
	Username string `json:"username"`
}

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	want := snapshot{FID: 3, Username: "dwr"}
	SetJSON(ctx, m, UserData(3), want, UserDataTTL)

	got, ok := GetJSON[snapshot](ctx, m, UserData(3))
	if !ok {
		t.Fatal("expected hit")
	}
	if *got != want {
		t.Errorf("got %+v, want %+v", *got, want)
	}

	m.Set(ctx, "broken", "{not json", 0)
	if _, ok := GetJSON[snapshot](ctx, m, "broken"); ok {
		t.Error("undecodable entry should be a miss")
	}
}

func TestKeys(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{UserData(42), "user_data:42"},
		{Username("alice"), "username:alice"},
		{Followers(42, 150), "followers:42_150"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}

	k1 := ExternalImage("https://example.com/a.png")
	k2 := ExternalImage("https://example.com/a.png?v=2")
	if k1 == k2 {
		t.Error("different URLs should produce different keys")
	}
	if len(k1) != len("external_image:")+64 {
		t.Errorf("unexpected key length %d", len(k1))
	}
	if LinkPreview("https://example.com") == ExternalImage("https://example.com") {
		t.Error("preview and image keys should not collide")
	}
}
