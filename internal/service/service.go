// Package service coordinates the repositories, the promotion cache and the
// pure pricing, bundle, availability and allocation engines.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"atelierpos/internal/allocation"
	"atelierpos/internal/availability"
	"atelierpos/internal/bundle"
	"atelierpos/internal/cache"
	"atelierpos/internal/domain"
	"atelierpos/internal/pricing"
	"atelierpos/internal/store"
)

var (
	ErrCartNotFound       = errors.New("cart not found")
	ErrPromotionNotFound  = errors.New("promotion not found")
	ErrNotBundlePromotion = errors.New("promotion is not a bundle")
	ErrAllocationFailed   = errors.New("allocation failed")
	ErrInvalidRequest     = errors.New("invalid request")
)

type Options struct {
	TenantID string
	BranchID string
	Cache    cache.PromotionCache
	CacheTTL time.Duration
	Rules    pricing.BusinessRules
	Logger   *zap.Logger
	Now      func() time.Time
}

type Service struct {
	repo      store.Repository
	cache     cache.PromotionCache
	cacheTTL  time.Duration
	rules     pricing.BusinessRules
	logger    *zap.Logger
	now       func() time.Time
	tenantID  string
	branchID  string
	pricing   *pricing.Engine
	checker   *availability.Checker
	bundles   *bundle.Engine
	allocator *allocation.Allocator
	committer *allocation.Committer

	mu    sync.Mutex
	carts map[string]*cartSession
}

func New(repo store.Repository, opts Options) *Service {
	if opts.TenantID == "" {
		opts.TenantID = "atelier"
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopPromotionCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	pricingEngine := pricing.NewEngine()
	checker := availability.NewChecker()
	return &Service{
		repo:      repo,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		rules:     opts.Rules,
		logger:    opts.Logger,
		now:       opts.Now,
		tenantID:  opts.TenantID,
		branchID:  opts.BranchID,
		pricing:   pricingEngine,
		checker:   checker,
		bundles:   bundle.NewEngine(pricingEngine, checker),
		allocator: allocation.NewAllocator(),
		committer: allocation.NewCommitter(repo, opts.Logger),
		carts:     make(map[string]*cartSession),
	}
}

func (s *Service) TenantID() string {
	return s.tenantID
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, s.tenantID)
}

// ActivePromotions returns the tenant's active promotions, read through the
// cache. Cache failures fall back to the repository.
func (s *Service) ActivePromotions(ctx context.Context) ([]domain.Promotion, error) {
	if s.rules.DisablePromotions {
		return nil, nil
	}
	if cached, ok, err := s.cache.Get(ctx, s.tenantID); err != nil {
		s.logger.Warn("promotion cache read failed", zap.String("tenant_id", s.tenantID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	promos, err := s.repo.ListActivePromotions(ctx, s.tenantID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	if err := s.cache.Set(ctx, s.tenantID, promos, s.cacheTTL); err != nil {
		s.logger.Warn("promotion cache write failed", zap.String("tenant_id", s.tenantID), zap.Error(err))
	}
	return promos, nil
}

// InvalidatePromotions drops the cached promotion list, for use after
// promotions were edited.
func (s *Service) InvalidatePromotions(ctx context.Context) error {
	return s.cache.Invalidate(ctx, s.tenantID)
}

// CreatePromotion stores a promotion for the tenant and drops the cached
// list so carts see it on their next evaluation. A missing type defaults to
// standard, a missing scope to global, and a standard promotion without
// operations applies to both.
func (s *Service) CreatePromotion(ctx context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	promo.TenantID = s.tenantID
	promo.Name = strings.TrimSpace(promo.Name)
	if promo.Type == "" {
		promo.Type = domain.PromotionStandard
	}
	if promo.Scope.Kind == "" {
		promo.Scope = domain.GlobalScope()
	}
	if len(promo.AppliesTo) == 0 {
		promo.AppliesTo = []domain.OperationType{domain.OperationSale, domain.OperationRental}
	}
	if err := validatePromotion(promo); err != nil {
		return nil, err
	}

	created, err := s.repo.CreatePromotion(ctx, promo)
	if err != nil {
		return nil, fmt.Errorf("create promotion: %w", err)
	}
	if err := s.InvalidatePromotions(ctx); err != nil {
		s.logger.Warn("promotion cache invalidate failed", zap.String("tenant_id", s.tenantID), zap.Error(err))
	}
	s.logger.Info("promotion created",
		zap.String("promotion_id", created.ID),
		zap.String("type", string(created.Type)),
	)
	return created, nil
}

func validatePromotion(promo domain.Promotion) error {
	if promo.Name == "" || !promo.Discount.Valid() {
		return ErrInvalidRequest
	}
	for _, op := range promo.AppliesTo {
		if !op.Valid() {
			return fmt.Errorf("unsupported operation %q: %w", op, ErrInvalidRequest)
		}
	}
	switch promo.Type {
	case domain.PromotionStandard:
		switch promo.Scope.Kind {
		case domain.ScopeGlobal:
		case domain.ScopeCategory, domain.ScopeProduct:
			if len(promo.Scope.TargetIDs) == 0 {
				return fmt.Errorf("scope %s needs targets: %w", promo.Scope.Kind, ErrInvalidRequest)
			}
		default:
			return fmt.Errorf("unknown scope %q: %w", promo.Scope.Kind, ErrInvalidRequest)
		}
	case domain.PromotionBundle:
		if _, ok := domain.BundleFromPromotion(promo); !ok {
			return fmt.Errorf("bundle needs items with positive quantities: %w", ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("unknown promotion type %q: %w", promo.Type, ErrInvalidRequest)
	}
	if promo.StartsAt != nil && promo.EndsAt != nil && promo.EndsAt.Before(*promo.StartsAt) {
		return fmt.Errorf("promotion ends before it starts: %w", ErrInvalidRequest)
	}
	return nil
}

func (s *Service) findBundle(ctx context.Context, promotionID string) (domain.BundleDefinition, error) {
	promos, err := s.ActivePromotions(ctx)
	if err != nil {
		return domain.BundleDefinition{}, err
	}
	for _, promo := range promos {
		if promo.ID != promotionID {
			continue
		}
		def, ok := domain.BundleFromPromotion(promo)
		if !ok {
			return domain.BundleDefinition{}, ErrNotBundlePromotion
		}
		return def, nil
	}
	return domain.BundleDefinition{}, ErrPromotionNotFound
}

// loadSnapshot reads units, lots and active commitments matching filter.
func (s *Service) loadSnapshot(ctx context.Context, filter store.Filter) (domain.Snapshot, error) {
	filter.TenantID = s.tenantID
	units, err := s.repo.ListUnits(ctx, filter)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list units: %w", err)
	}
	lots, err := s.repo.ListLots(ctx, filter)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list lots: %w", err)
	}
	commitments, err := s.repo.ListCommitments(ctx, filter)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list commitments: %w", err)
	}
	return domain.Snapshot{Units: units, Lots: lots, Commitments: commitments}, nil
}

// product loads a product and hides products of other tenants.
func (s *Service) product(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, ErrInvalidRequest
	}
	p, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	if p.TenantID != "" && p.TenantID != s.tenantID {
		return domain.Product{}, store.ErrNotFound
	}
	return *p, nil
}
