package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelierpos/internal/domain"
)

func TestNoopPromotionCacheAlwaysMisses(t *testing.T) {
	var c PromotionCache = NoopPromotionCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "atelier", []domain.Promotion{{ID: "p"}}, time.Minute))
	got, ok, err := c.Get(ctx, "atelier")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, "atelier"))
}

func TestRedisPromotionCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c := NewRedisPromotionCache(addr, os.Getenv("REDIS_PASSWORD"), 0)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	tenant := "cache-test-" + time.Now().Format("150405.000000000")
	defer c.Invalidate(context.Background(), tenant)

	_, ok, err := c.Get(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, ok)

	promos := []domain.Promotion{{
		ID:        "promo-rent10",
		TenantID:  tenant,
		Name:      "Rental 10%",
		Type:      domain.PromotionStandard,
		Discount:  domain.Percentage(10),
		Scope:     domain.GlobalScope(),
		AppliesTo: []domain.OperationType{domain.OperationRental},
		Active:    true,
	}}
	require.NoError(t, c.Set(ctx, tenant, promos, time.Minute))

	got, ok, err := c.Get(ctx, tenant)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "promo-rent10", got[0].ID)
	assert.Equal(t, domain.Percentage(10), got[0].Discount)

	require.NoError(t, c.Invalidate(ctx, tenant))
	_, ok, err = c.Get(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, ok)
}
