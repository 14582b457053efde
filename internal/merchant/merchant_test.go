package merchant

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *repository.SQLRepository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-merchant-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() {
		os.Remove(tmpPath)
		os.Remove(tmpPath + "-wal")
		os.Remove(tmpPath + "-shm")
	})

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// countingStore counts store reads so cache hits are observable.
type countingStore struct {
	domain.ConfigStore
	mu    sync.Mutex
	reads int
	err   error
}

func (s *countingStore) GetOrCreateMerchantConfig(ctx context.Context, merchantID string) (*domain.MerchantRiskConfig, error) {
	s.mu.Lock()
	s.reads++
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.ConfigStore.GetOrCreateMerchantConfig(ctx, merchantID)
}

// brokenCache fails every call.
type brokenCache struct{ domain.Cache }

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string, string) ([]byte, error) { return nil, errCacheDown }
func (brokenCache) Set(context.Context, string, string, []byte, time.Duration) error {
	return errCacheDown
}
func (brokenCache) Delete(context.Context, string, string) error { return errCacheDown }

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesDefaults", func(t *testing.T) {
		a := NewAccessor(newTestStore(t), nil, nil, 0)

		cfg, err := a.GetConfig(ctx, "merchant-001")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if cfg.MerchantID != "merchant-001" {
			t.Errorf("expected merchant-001, got %s", cfg.MerchantID)
		}
		if cfg.HighRiskThreshold != 85 || cfg.CriticalRiskThreshold != 95 {
			t.Errorf("unexpected thresholds: %d/%d", cfg.HighRiskThreshold, cfg.CriticalRiskThreshold)
		}
		if !cfg.MaxTransactionAmount.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("expected max amount 1000, got %s", cfg.MaxTransactionAmount)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		a := NewAccessor(newTestStore(t), nil, nil, 0)

		first, err := a.GetConfig(ctx, "merchant-002")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		second, err := a.GetConfig(ctx, "merchant-002")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if !first.CreatedAt.Equal(second.CreatedAt) {
			t.Errorf("expected the same row, created %v vs %v", first.CreatedAt, second.CreatedAt)
		}
	})

	t.Run("ServedFromCache", func(t *testing.T) {
		store := &countingStore{ConfigStore: newTestStore(t)}
		a := NewAccessor(store, cache.NewLRUCache(100), nil, time.Minute)

		for i := 0; i < 3; i++ {
			cfg, err := a.GetConfig(ctx, "merchant-003")
			if err != nil {
				t.Fatalf("GetConfig failed: %v", err)
			}
			if cfg.DailyLimit.String() != "5000" {
				t.Errorf("expected daily limit 5000, got %s", cfg.DailyLimit)
			}
		}
		if store.reads != 1 {
			t.Errorf("expected 1 store read, got %d", store.reads)
		}
	})

	t.Run("CacheFailureBypassed", func(t *testing.T) {
		a := NewAccessor(newTestStore(t), brokenCache{}, nil, time.Minute)

		cfg, err := a.GetConfig(ctx, "merchant-004")
		if err != nil {
			t.Fatalf("expected cache failure to be bypassed, got %v", err)
		}
		if cfg.MerchantID != "merchant-004" {
			t.Errorf("unexpected merchant %s", cfg.MerchantID)
		}
	})

	t.Run("StoreFailureIsDependencyError", func(t *testing.T) {
		store := &countingStore{ConfigStore: newTestStore(t), err: errors.New("db down")}
		a := NewAccessor(store, nil, nil, 0)

		_, err := a.GetConfig(ctx, "merchant-005")
		if !errors.Is(err, domain.ErrDependency) {
			t.Errorf("expected ErrDependency, got %v", err)
		}
	})
}

func TestUpdateConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("AppliesPatchAndRefreshesCache", func(t *testing.T) {
		store := newTestStore(t)
		c := cache.NewLRUCache(100)
		a := NewAccessor(store, c, nil, time.Minute)

		if _, err := a.GetConfig(ctx, "merchant-010"); err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}

		limit := decimal.NewFromInt(250)
		updated, err := a.UpdateConfig(ctx, "merchant-010", &domain.MerchantRiskConfigPatch{
			MaxTransactionAmount: &limit,
			HighRiskThreshold:    intPtr(80),
			AutoBlockHighRisk:    boolPtr(false),
		})
		if err != nil {
			t.Fatalf("UpdateConfig failed: %v", err)
		}
		if !updated.MaxTransactionAmount.Equal(limit) || updated.HighRiskThreshold != 80 || updated.AutoBlockHighRisk {
			t.Errorf("patch not applied: %+v", updated)
		}
		if updated.MaxTransactionsPerHour != 10 {
			t.Errorf("untouched field changed: %d", updated.MaxTransactionsPerHour)
		}

		got, err := a.GetConfig(ctx, "merchant-010")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if got.HighRiskThreshold != 80 {
			t.Errorf("expected cached config to be refreshed, got %d", got.HighRiskThreshold)
		}

		stored, err := store.GetOrCreateMerchantConfig(ctx, "merchant-010")
		if err != nil {
			t.Fatalf("store read failed: %v", err)
		}
		if !stored.MaxTransactionAmount.Equal(limit) {
			t.Errorf("expected stored max amount 250, got %s", stored.MaxTransactionAmount)
		}
	})

	t.Run("RejectsInvalidPatch", func(t *testing.T) {
		a := NewAccessor(newTestStore(t), nil, nil, 0)

		_, err := a.UpdateConfig(ctx, "merchant-011", &domain.MerchantRiskConfigPatch{
			CriticalRiskThreshold: intPtr(150),
		})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("PublishesEvent", func(t *testing.T) {
		b := bus.NewChannelBus(10)
		defer b.Close()

		events := make(chan domain.MerchantRiskConfig, 1)
		_, err := b.Subscribe(ctx, "merchant-012", domain.TopicConfigUpdated, func(_ context.Context, msg *domain.Message) error {
			var cfg domain.MerchantRiskConfig
			if err := json.Unmarshal(msg.Payload, &cfg); err != nil {
				return err
			}
			events <- cfg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		a := NewAccessor(newTestStore(t), nil, b, 0)
		if _, err := a.UpdateConfig(ctx, "merchant-012", &domain.MerchantRiskConfigPatch{
			MaxFailedAttemptsPerHour: intPtr(2),
		}); err != nil {
			t.Fatalf("UpdateConfig failed: %v", err)
		}

		select {
		case cfg := <-events:
			if cfg.MaxFailedAttemptsPerHour != 2 {
				t.Errorf("expected 2 in event, got %d", cfg.MaxFailedAttemptsPerHour)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for config event")
		}
	})
}
