package cache

import (
	"context"
	"time"

	"atelierpos/internal/domain"
)

// PromotionCache keeps the active promotion list of a tenant between
// requests. A miss is reported with ok=false and a nil error.
type PromotionCache interface {
	Get(ctx context.Context, tenantID string) ([]domain.Promotion, bool, error)
	Set(ctx context.Context, tenantID string, promotions []domain.Promotion, ttl time.Duration) error
	Invalidate(ctx context.Context, tenantID string) error
}

type NoopPromotionCache struct{}

func (NoopPromotionCache) Get(_ context.Context, _ string) ([]domain.Promotion, bool, error) {
	return nil, false, nil
}

func (NoopPromotionCache) Set(_ context.Context, _ string, _ []domain.Promotion, _ time.Duration) error {
	return nil
}

func (NoopPromotionCache) Invalidate(_ context.Context, _ string) error {
	return nil
}

func promotionKey(tenantID string) string {
	return "promotions:" + tenantID
}
