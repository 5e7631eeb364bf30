package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kargig/divemap-sub000/internal/models"
)

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(0)

	val := models.WindSample{Speed: 5.5, Direction: 180, Gusts: 8.2}
	if err := c.Set(ctx, "37.7,24.0", val, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "37.7,24.0")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.Speed != val.Speed || got.Direction != val.Direction {
		t.Errorf("Get() = %+v, want %+v", got, val)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when the
// requested key does not exist.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache(0)

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false for expired
// entries and removes them on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(0)

	if err := c.Set(ctx, "37.7,24.0", models.WindSample{Speed: 5.5}, time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	time.Sleep(2 * time.Millisecond)

	_, ok, err := c.Get(ctx, "37.7,24.0")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after expired entry removal", c.Len())
	}
}

// TestInMemoryCache_GetBatch verifies that GetBatch returns only present,
// unexpired keys.
func TestInMemoryCache_GetBatch(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(0)

	_ = c.Set(ctx, "a", models.WindSample{Speed: 1}, time.Minute)
	_ = c.Set(ctx, "b", models.WindSample{Speed: 2}, time.Minute)

	got, err := c.GetBatch(ctx, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetBatch() len = %d, want 2", len(got))
	}
	if got["a"].Speed != 1 || got["b"].Speed != 2 {
		t.Errorf("GetBatch() = %+v", got)
	}
}

// TestInMemoryCache_Eviction_Overflow verifies that inserting 600 entries
// against a cap of 500 results in a post-cleanup size at or under the cap.
func TestInMemoryCache_Eviction_Overflow(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(500)

	for i := 0; i < 600; i++ {
		key := fmt.Sprintf("entry-%03d", i)
		if err := c.Set(ctx, key, models.WindSample{Speed: float64(i)}, time.Hour); err != nil {
			t.Fatalf("Set(%q) error = %v", key, err)
		}
	}
	if got := c.Len(); got > 500 {
		t.Errorf("Len() = %d after 600 inserts, want <= 500", got)
	}
}

// TestInMemoryCache_Eviction_ExpiredFirst verifies that the cleanup pass
// removes expired entries before evicting live ones.
func TestInMemoryCache_Eviction_ExpiredFirst(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(10)

	for i := 0; i < 5; i++ {
		_ = c.Set(ctx, fmt.Sprintf("stale-%d", i), models.WindSample{}, time.Millisecond)
	}
	time.Sleep(2 * time.Millisecond)
	for i := 0; i < 6; i++ {
		_ = c.Set(ctx, fmt.Sprintf("live-%d", i), models.WindSample{Speed: float64(i)}, time.Hour)
	}

	for i := 0; i < 6; i++ {
		key := fmt.Sprintf("live-%d", i)
		if _, ok, _ := c.Get(ctx, key); !ok {
			t.Errorf("live entry %q evicted while expired entries existed", key)
		}
	}
}
