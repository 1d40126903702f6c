package store

import (
	"context"
	"errors"
	"time"

	"atelierpos/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransaction = errors.New("invalid transaction")
)

// Filter narrows inventory queries. Empty fields match everything.
type Filter struct {
	TenantID  string
	ProductID string
	BranchID  string
	Size      string
	Color     string
}

func (f Filter) Matches(tenantID, productID, branchID string, variant domain.Variant) bool {
	if f.TenantID != "" && f.TenantID != tenantID {
		return false
	}
	if f.ProductID != "" && f.ProductID != productID {
		return false
	}
	if f.BranchID != "" && f.BranchID != branchID {
		return false
	}
	if f.Size != "" && f.Size != variant.Size {
		return false
	}
	if f.Color != "" && f.Color != variant.Color {
		return false
	}
	return true
}

type CatalogReader interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
}

type InventoryReader interface {
	ListUnits(ctx context.Context, filter Filter) ([]domain.StockUnit, error)
	ListLots(ctx context.Context, filter Filter) ([]domain.StockLot, error)
	ListCommitments(ctx context.Context, filter Filter) ([]domain.Commitment, error)
}

// InventoryWriter is only used by explicit commit flows, never by pricing.
type InventoryWriter interface {
	SetUnitStatus(ctx context.Context, unitID string, status domain.UnitStatus) error
	AdjustLotQuantity(ctx context.Context, lotID string, delta int) error
	CreateCommitment(ctx context.Context, commitment domain.Commitment) (*domain.Commitment, error)
	ReleaseCommitment(ctx context.Context, commitmentID string) error
}

type PromotionSource interface {
	ListActivePromotions(ctx context.Context, tenantID string, now time.Time) ([]domain.Promotion, error)
}

type PromotionWriter interface {
	CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error)
}

type Repository interface {
	CatalogReader
	InventoryReader
	InventoryWriter
	PromotionSource
	PromotionWriter
}
