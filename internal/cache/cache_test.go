package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	cache := NewLRUCache(100)
	scope := "merchant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, scope, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, scope, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, scope, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for miss, got %v", val)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		_ = cache.Set(ctx, scope, "key2", []byte("first"), time.Minute)
		_ = cache.Set(ctx, scope, "key2", []byte("second"), time.Minute)

		val, _ := cache.Get(ctx, scope, "key2")
		if string(val) != "second" {
			t.Errorf("expected 'second', got '%s'", string(val))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, scope, "to-delete", []byte("value"), time.Minute)
		if err := cache.Delete(ctx, scope, "to-delete"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, scope, "to-delete")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_ = c.Set(ctx, scope, "expiring", []byte("value"), time.Minute)

		now = now.Add(30 * time.Second)
		if val, _ := c.Get(ctx, scope, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		now = now.Add(time.Minute)
		if val, _ := c.Get(ctx, scope, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expected expired entry to be removed, size %d", size)
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)

		_ = small.Set(ctx, scope, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, scope, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, scope, "c", []byte("3"), time.Minute)

		_, _ = small.Get(ctx, scope, "a")

		_ = small.Set(ctx, scope, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, scope, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, scope, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("ScopeIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "merchant-a", "risk-config", []byte("a"), time.Minute)
		_ = cache.Set(ctx, "merchant-b", "risk-config", []byte("b"), time.Minute)

		valA, _ := cache.Get(ctx, "merchant-a", "risk-config")
		valB, _ := cache.Get(ctx, "merchant-b", "risk-config")

		if string(valA) != "a" {
			t.Errorf("expected 'a', got '%s'", string(valA))
		}
		if string(valB) != "b" {
			t.Errorf("expected 'b', got '%s'", string(valB))
		}
	})

	t.Run("RequiresScope", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}
		if _, err := cache.Get(ctx, "", "key"); !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}
		if _, err := cache.IncrementCounter(ctx, "", "key", time.Minute); !errors.Is(err, ErrScopeRequired) {
			t.Errorf("expected ErrScopeRequired, got %v", err)
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }
		window := time.Minute

		for want := int64(1); want <= 3; want++ {
			got, err := c.IncrementCounter(ctx, "ratelimit", "10.0.0.1", window)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		other, _ := c.IncrementCounter(ctx, "ratelimit", "10.0.0.2", window)
		if other != 1 {
			t.Errorf("expected independent counter, got %d", other)
		}

		now = now.Add(window + time.Second)
		reset, _ := c.IncrementCounter(ctx, "ratelimit", "10.0.0.1", window)
		if reset != 1 {
			t.Errorf("expected count 1 after window reset, got %d", reset)
		}
	})

	t.Run("CounterSweep", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		c := NewLRUCache(10)
		c.now = func() time.Time { return now }

		_, _ = c.IncrementCounter(ctx, "ratelimit", "stale", time.Second)
		now = now.Add(time.Minute)
		for i := 0; i < counterSweepEvery; i++ {
			_, _ = c.IncrementCounter(ctx, "ratelimit", "live", time.Hour)
		}

		if _, ok := c.counters[makeKey("ratelimit", "counter:stale")]; ok {
			t.Error("expected stale counter to be swept")
		}
	})

	t.Run("JSONHelpers", func(t *testing.T) {
		cfg := domain.DefaultMerchantRiskConfig("merchant-json")
		if err := SetJSON(ctx, cache, "merchant-json", "risk-config", cfg, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		var got domain.MerchantRiskConfig
		hit, err := GetJSON(ctx, cache, "merchant-json", "risk-config", &got)
		if err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if !hit {
			t.Fatal("expected cache hit")
		}
		if !got.DailyLimit.Equal(cfg.DailyLimit) || got.MerchantID != "merchant-json" {
			t.Errorf("unexpected config: %+v", got)
		}

		hit, err = GetJSON(ctx, cache, "merchant-json", "absent", &got)
		if err != nil || hit {
			t.Errorf("expected miss, got hit=%v err=%v", hit, err)
		}
	})

	t.Run("JSONDecodeError", func(t *testing.T) {
		_ = cache.Set(ctx, scope, "garbage", []byte("{not json"), time.Minute)

		var got domain.MerchantRiskConfig
		if _, err := GetJSON(ctx, cache, scope, "garbage", &got); err == nil {
			t.Error("expected decode error")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, scope, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, scope, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, scope, "k", []byte("v"), time.Minute)

		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := testCache.Get(ctx, scope, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
