// Package merchant serves per-merchant risk configs through the cache.
package merchant

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	configKey        = "risk-config"
	defaultConfigTTL = 60 * time.Second
)

// Accessor reads and updates merchant risk configs. Cache and bus are
// optional; their failures are logged and never fail a call.
type Accessor struct {
	store domain.ConfigStore
	cache domain.Cache
	bus   domain.EventBus
	ttl   time.Duration
}

// NewAccessor creates an accessor. A zero ttl uses 60s.
func NewAccessor(store domain.ConfigStore, c domain.Cache, b domain.EventBus, ttl time.Duration) *Accessor {
	if ttl <= 0 {
		ttl = defaultConfigTTL
	}
	return &Accessor{store: store, cache: c, bus: b, ttl: ttl}
}

// GetConfig returns the merchant's config, creating the defaults on first use.
func (a *Accessor) GetConfig(ctx context.Context, merchantID string) (*domain.MerchantRiskConfig, error) {
	if cfg := a.cached(ctx, merchantID); cfg != nil {
		return cfg, nil
	}

	cfg, err := a.store.GetOrCreateMerchantConfig(ctx, merchantID)
	if err != nil {
		return nil, domain.NewDependencyError("get merchant config", err)
	}

	a.fill(ctx, cfg)
	return cfg, nil
}

// UpdateConfig applies patch to the merchant's config and stores it.
func (a *Accessor) UpdateConfig(ctx context.Context, merchantID string, patch *domain.MerchantRiskConfigPatch) (*domain.MerchantRiskConfig, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	cfg, err := a.store.GetOrCreateMerchantConfig(ctx, merchantID)
	if err != nil {
		return nil, domain.NewDependencyError("get merchant config", err)
	}

	patch.Apply(cfg)

	if err := a.store.SaveMerchantConfig(ctx, cfg); err != nil {
		return nil, domain.NewDependencyError("save merchant config", err)
	}

	a.invalidate(ctx, merchantID)
	a.fill(ctx, cfg)

	if a.bus != nil {
		if err := bus.PublishJSON(ctx, a.bus, merchantID, domain.TopicConfigUpdated, cfg); err != nil {
			slog.Warn("failed to publish config update", "merchant_id", merchantID, "error", err)
		}
	}

	slog.Info("merchant risk config updated", "merchant_id", merchantID)
	return cfg, nil
}

func (a *Accessor) cached(ctx context.Context, merchantID string) *domain.MerchantRiskConfig {
	if a.cache == nil {
		return nil
	}

	var cfg domain.MerchantRiskConfig
	hit, err := cache.GetJSON(ctx, a.cache, merchantID, configKey, &cfg)
	if err != nil {
		slog.Warn("config cache read failed", "merchant_id", merchantID, "error", err)
		return nil
	}
	if !hit {
		return nil
	}
	return &cfg
}

func (a *Accessor) fill(ctx context.Context, cfg *domain.MerchantRiskConfig) {
	if a.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, a.cache, cfg.MerchantID, configKey, cfg, a.ttl); err != nil {
		slog.Warn("config cache write failed", "merchant_id", cfg.MerchantID, "error", err)
	}
}

func (a *Accessor) invalidate(ctx context.Context, merchantID string) {
	if a.cache == nil {
		return
	}
	if err := a.cache.Delete(ctx, merchantID, configKey); err != nil {
		slog.Warn("config cache invalidation failed", "merchant_id", merchantID, "error", err)
	}
}
