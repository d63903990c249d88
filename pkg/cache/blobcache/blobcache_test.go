package blobcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if err := c.Set(ctx, "dev1", "interfaces", `[{"name":"Gi0/1"}]`, false, now, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	blob, ok, err := c.Get(ctx, "dev1", "interfaces")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if blob.JSONPayload != `[{"name":"Gi0/1"}]` {
		t.Errorf("JSONPayload = %q", blob.JSONPayload)
	}
	if !blob.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", blob.UpdatedAt, now)
	}
	if blob.ParseFailed {
		t.Error("ParseFailed = true, want false")
	}
}

func TestCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok, err := c.Get(context.Background(), "dev1", "interfaces")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false on miss")
	}
}

func TestCache_Set_ExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	if err := c.Set(ctx, "dev1", "interfaces", "[]", false, now, time.Second); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "dev1", "interfaces")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true after TTL expired")
	}
}

func TestCache_ParseFailedFlag(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "dev1", "interfaces", "", true, time.Now(), time.Minute)
	blob, ok, err := c.Get(ctx, "dev1", "interfaces")
	if err != nil || !ok {
		t.Fatalf("Get() ok=%v err=%v", ok, err)
	}
	if !blob.ParseFailed {
		t.Error("ParseFailed = false, want true")
	}
}

func TestCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "dev1", "interfaces", "[]", false, time.Now(), time.Minute)
	if err := c.Invalidate(ctx, "dev1", "interfaces"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	_, ok, _ := c.Get(ctx, "dev1", "interfaces")
	if ok {
		t.Error("Get() ok = true after Invalidate")
	}
}

func TestCache_DistinctKeysPerDeviceAndCommand(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	c.Set(ctx, "dev1", "interfaces", "a", false, now, time.Minute)
	c.Set(ctx, "dev1", "ip-arp", "b", false, now, time.Minute)
	c.Set(ctx, "dev2", "interfaces", "c", false, now, time.Minute)

	blob, _, _ := c.Get(ctx, "dev1", "interfaces")
	if blob.JSONPayload != "a" {
		t.Errorf("dev1/interfaces = %q", blob.JSONPayload)
	}
	blob, _, _ = c.Get(ctx, "dev1", "ip-arp")
	if blob.JSONPayload != "b" {
		t.Errorf("dev1/ip-arp = %q", blob.JSONPayload)
	}
	blob, _, _ = c.Get(ctx, "dev2", "interfaces")
	if blob.JSONPayload != "c" {
		t.Errorf("dev2/interfaces = %q", blob.JSONPayload)
	}
}
