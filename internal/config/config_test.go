package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "APP_ENV", "DEFAULT_TENANT_ID", "DEFAULT_BRANCH_ID", "PROMOTION_CACHE_TTL_SECONDS", "MAX_DISCOUNT_PERCENT", "DISABLE_PROMOTIONS", "REDIS_DB"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "atelier", cfg.TenantID)
	assert.Empty(t, cfg.BranchID)
	assert.Equal(t, 30, cfg.PromotionCacheTTLSeconds)
	assert.False(t, cfg.DisablePromotions)
	assert.Zero(t, cfg.MaxDiscountPercent)
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("PROMOTION_CACHE_TTL_SECONDS", "-4")
	t.Setenv("MAX_DISCOUNT_PERCENT", "250")

	cfg := Load()
	assert.Equal(t, 30, cfg.PromotionCacheTTLSeconds)
	assert.Zero(t, cfg.MaxDiscountPercent)
}

func TestLoadReadsOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_BRANCH_ID", " centro ")
	t.Setenv("DISABLE_PROMOTIONS", "true")
	t.Setenv("MAX_DISCOUNT_PERCENT", "35")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "centro", cfg.BranchID)
	assert.True(t, cfg.DisablePromotions)
	assert.InDelta(t, 35.0, cfg.MaxDiscountPercent, 1e-9)
}
