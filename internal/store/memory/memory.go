package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"atelierpos/internal/domain"
	"atelierpos/internal/store"
	"atelierpos/internal/xid"
)

type Store struct {
	mu          sync.RWMutex
	products    map[string]domain.Product
	units       map[string]domain.StockUnit
	lots        map[string]domain.StockLot
	commitments map[string]domain.Commitment
	promotions  map[string]domain.Promotion
}

func New() *Store {
	return &Store{
		products:    make(map[string]domain.Product),
		units:       make(map[string]domain.StockUnit),
		lots:        make(map[string]domain.StockLot),
		commitments: make(map[string]domain.Commitment),
		promotions:  make(map[string]domain.Promotion),
	}
}

// NewSeeded builds a demo catalogue for one tenant with two branches.
func NewSeeded(tenantID string) *Store {
	if tenantID == "" {
		tenantID = "atelier"
	}
	s := New()
	created := time.Date(2026, time.January, 1, 9, 0, 0, 0, time.UTC)

	products := []domain.Product{
		{ID: "gown-aurora", TenantID: tenantID, Name: "Aurora Evening Gown", CategoryID: "gowns", IsSerial: true, PriceSell: 420, PriceRent: 50, RentUnit: domain.RentPerDay, CanSell: true, CanRent: true},
		{ID: "tux-classic", TenantID: tenantID, Name: "Classic Tuxedo", CategoryID: "suits", IsSerial: true, PriceSell: 380, PriceRent: 120, RentUnit: domain.RentPerEvent, CanSell: true, CanRent: true},
		{ID: "bowtie-silk", TenantID: tenantID, Name: "Silk Bow Tie", CategoryID: "accessories", PriceSell: 25, PriceRent: 6, RentUnit: domain.RentPerEvent, CanSell: true, CanRent: true},
		{ID: "clutch-pearl", TenantID: tenantID, Name: "Pearl Clutch", CategoryID: "accessories", PriceSell: 60, PriceRent: 12, RentUnit: domain.RentPerDay, CanSell: true, CanRent: true},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	black := domain.Variant{Size: "M", Color: "black"}
	for i, branch := range []string{"centro", "centro", "norte"} {
		unit := domain.StockUnit{
			ID:        fmt.Sprintf("unit-gown-%d", i+1),
			Code:      fmt.Sprintf("GWN-%03d", i+1),
			TenantID:  tenantID,
			ProductID: "gown-aurora",
			Variant:   black,
			BranchID:  branch,
			Status:    domain.UnitAvailable,
			IsForSale: true,
			IsForRent: true,
		}
		s.units[unit.ID] = unit
	}
	for i := range 2 {
		unit := domain.StockUnit{
			ID:        fmt.Sprintf("unit-tux-%d", i+1),
			Code:      fmt.Sprintf("TUX-%03d", i+1),
			TenantID:  tenantID,
			ProductID: "tux-classic",
			Variant:   domain.Variant{Size: "L", Color: "black"},
			BranchID:  "centro",
			Status:    domain.UnitAvailable,
			IsForRent: true,
		}
		s.units[unit.ID] = unit
	}

	lots := []domain.StockLot{
		{ID: "lot-bowtie-1", TenantID: tenantID, ProductID: "bowtie-silk", Variant: domain.Variant{Size: "U", Color: "black"}, BranchID: "centro", Quantity: 12, IsForSale: true, IsForRent: true, CreatedAt: created},
		{ID: "lot-bowtie-2", TenantID: tenantID, ProductID: "bowtie-silk", Variant: domain.Variant{Size: "U", Color: "black"}, BranchID: "centro", Quantity: 30, IsForSale: true, IsForRent: true, CreatedAt: created.AddDate(0, 1, 0)},
		{ID: "lot-clutch-1", TenantID: tenantID, ProductID: "clutch-pearl", Variant: domain.Variant{Size: "U", Color: "ivory"}, BranchID: "centro", Quantity: 8, IsForSale: true, IsForRent: true, CreatedAt: created},
	}
	for _, lot := range lots {
		s.lots[lot.ID] = lot
	}

	s.promotions["promo-rent10"] = domain.Promotion{
		ID:        "promo-rent10",
		TenantID:  tenantID,
		Name:      "Rental week 10%",
		Type:      domain.PromotionStandard,
		Discount:  domain.Percentage(10),
		Scope:     domain.CategoryScope("gowns", "suits"),
		AppliesTo: []domain.OperationType{domain.OperationRental},
		Active:    true,
		CreatedAt: created,
	}
	s.promotions["promo-gala"] = domain.Promotion{
		ID:       "promo-gala",
		TenantID: tenantID,
		Name:     "Gala look",
		Type:     domain.PromotionBundle,
		Discount: domain.FixedAmount(100),
		BundleItems: []domain.BundleItem{
			{ProductID: "gown-aurora", Quantity: 1},
			{ProductID: "clutch-pearl", Quantity: 1},
		},
		AppliesTo: []domain.OperationType{domain.OperationSale, domain.OperationRental},
		Active:    true,
		CreatedAt: created.Add(time.Minute),
	}

	return s
}

func (s *Store) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	dup := product
	return &dup, nil
}

func (s *Store) ListProducts(_ context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if tenantID != "" && p.TenantID != tenantID {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CategoryID == b.CategoryID {
			return strings.Compare(a.Name, b.Name)
		}
		return strings.Compare(a.CategoryID, b.CategoryID)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.PriceSell < 0 || product.PriceRent < 0 {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrInvalidTransaction
	}
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) CreateUnit(_ context.Context, unit domain.StockUnit) (*domain.StockUnit, error) {
	if unit.ProductID == "" {
		return nil, store.ErrInvalidTransaction
	}
	if unit.ID == "" {
		unit.ID = xid.New("unit")
	}
	if unit.Status == "" {
		unit.Status = domain.UnitAvailable
	}
	if !unit.Status.Valid() {
		return nil, store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[unit.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	s.units[unit.ID] = unit
	created := unit
	return &created, nil
}

func (s *Store) CreateLot(_ context.Context, lot domain.StockLot) (*domain.StockLot, error) {
	if lot.ProductID == "" || lot.Quantity < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if lot.ID == "" {
		lot.ID = xid.New("lot")
	}
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[lot.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	s.lots[lot.ID] = lot
	created := lot
	return &created, nil
}

func (s *Store) CreatePromotion(_ context.Context, promo domain.Promotion) (*domain.Promotion, error) {
	if promo.TenantID == "" || !promo.Discount.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if promo.ID == "" {
		promo.ID = xid.New("promo")
	}
	if promo.CreatedAt.IsZero() {
		promo.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.promotions[promo.ID] = promo
	created := promo
	return &created, nil
}

func (s *Store) ListUnits(_ context.Context, filter store.Filter) ([]domain.StockUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := make([]domain.StockUnit, 0, len(s.units))
	for _, unit := range s.units {
		if filter.Matches(unit.TenantID, unit.ProductID, unit.BranchID, unit.Variant) {
			units = append(units, unit)
		}
	}
	slices.SortFunc(units, func(a, b domain.StockUnit) int {
		return strings.Compare(a.ID, b.ID)
	})
	return units, nil
}

func (s *Store) ListLots(_ context.Context, filter store.Filter) ([]domain.StockLot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lots := make([]domain.StockLot, 0, len(s.lots))
	for _, lot := range s.lots {
		if filter.Matches(lot.TenantID, lot.ProductID, lot.BranchID, lot.Variant) {
			lots = append(lots, lot)
		}
	}
	slices.SortFunc(lots, compareLotFIFO)
	return lots, nil
}

func (s *Store) ListCommitments(_ context.Context, filter store.Filter) ([]domain.Commitment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commitments := make([]domain.Commitment, 0, len(s.commitments))
	for _, c := range s.commitments {
		if !c.Active {
			continue
		}
		if filter.Matches(c.TenantID, c.ProductID, c.BranchID, c.Variant) {
			c.UnitIDs = slices.Clone(c.UnitIDs)
			commitments = append(commitments, c)
		}
	}
	slices.SortFunc(commitments, func(a, b domain.Commitment) int {
		if c := a.Range.Start.Compare(b.Range.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return commitments, nil
}

func (s *Store) SetUnitStatus(_ context.Context, unitID string, status domain.UnitStatus) error {
	if !status.Valid() {
		return store.ErrInvalidTransaction
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unit, ok := s.units[unitID]
	if !ok {
		return store.ErrNotFound
	}
	unit.Status = status
	s.units[unitID] = unit
	return nil
}

func (s *Store) AdjustLotQuantity(_ context.Context, lotID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lot, ok := s.lots[lotID]
	if !ok {
		return store.ErrNotFound
	}
	if lot.Quantity+delta < 0 {
		return fmt.Errorf("lot %s has %d, cannot apply %d: %w", lotID, lot.Quantity, delta, store.ErrInsufficientStock)
	}
	lot.Quantity += delta
	s.lots[lotID] = lot
	return nil
}

func (s *Store) CreateCommitment(_ context.Context, commitment domain.Commitment) (*domain.Commitment, error) {
	if commitment.ProductID == "" || commitment.Quantity < 1 || !commitment.Range.Valid() {
		return nil, store.ErrInvalidTransaction
	}
	if commitment.ID == "" {
		commitment.ID = xid.New("cmt")
	}
	if commitment.Kind == "" {
		commitment.Kind = domain.CommitmentReservation
	}
	commitment.Active = true
	commitment.UnitIDs = slices.Clone(commitment.UnitIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.commitments[commitment.ID] = commitment
	created := commitment
	return &created, nil
}

// ReleaseCommitment deactivates a commitment, as a return or cancellation does.
func (s *Store) ReleaseCommitment(_ context.Context, commitmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commitments[commitmentID]
	if !ok {
		return store.ErrNotFound
	}
	c.Active = false
	s.commitments[commitmentID] = c
	return nil
}

func (s *Store) ListActivePromotions(_ context.Context, tenantID string, now time.Time) ([]domain.Promotion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	promos := make([]domain.Promotion, 0, len(s.promotions))
	for _, p := range s.promotions {
		if p.TenantID != tenantID || !p.ActiveAt(now) {
			continue
		}
		promos = append(promos, clonePromotion(p))
	}
	slices.SortFunc(promos, func(a, b domain.Promotion) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return promos, nil
}

func compareLotFIFO(a domain.StockLot, b domain.StockLot) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func clonePromotion(src domain.Promotion) domain.Promotion {
	dup := src
	dup.AppliesTo = slices.Clone(src.AppliesTo)
	dup.BundleItems = slices.Clone(src.BundleItems)
	dup.Scope.TargetIDs = slices.Clone(src.Scope.TargetIDs)
	return dup
}

var _ store.Repository = (*Store)(nil)
