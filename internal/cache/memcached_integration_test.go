//go:build integration
// +build integration

package cache

import (
	"context"
	"testing"
	"time"
)

// TestMemcachedCache_GetSet_Integration verifies that MemcachedCache successfully
// stores and retrieves values when memcached server is available.
func TestMemcachedCache_GetSet_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "current:50.4501:30.5234", []byte(`{"t":12.5}`), time.Minute); err != nil {
		t.Skipf("Set failed (memcached may not be running): %v", err)
	}

	got, ok, err := c.Get(ctx, "current:50.4501:30.5234")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if string(got) != `{"t":12.5}` {
		t.Errorf("Get() = %s", got)
	}

	if err := c.Delete(ctx, "current:50.4501:30.5234"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "current:50.4501:30.5234"); ok {
		t.Error("Get() after Delete ok = true")
	}
}

// TestMemcachedCache_Get_Miss_Integration verifies that MemcachedCache returns
// ok=false when requested key does not exist in memcached.
func TestMemcachedCache_Get_Miss_Integration(t *testing.T) {
	c, err := NewMemcachedCache("localhost:11211", 500*time.Millisecond, 2)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	defer c.Close()

	if err := c.Ping(); err != nil {
		t.Skipf("memcached not reachable: %v", err)
	}
	_, ok, err := c.Get(context.Background(), "nonexistent-key-12345")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}
