package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"atelierpos/internal/cart"
	"atelierpos/internal/domain"
	"atelierpos/internal/store"
	"atelierpos/internal/xid"
)

type cartSession struct {
	mu   sync.Mutex
	cart *cart.Cart
}

type CreateCartRequest struct {
	BranchID string           `json:"branch_id,omitempty"`
	Range    domain.DateRange `json:"range"`
}

type AddItemRequest struct {
	ProductID      string               `json:"product_id"`
	Operation      domain.OperationType `json:"operation"`
	Quantity       int                  `json:"quantity"`
	Variant        domain.Variant       `json:"variant"`
	SelectedCodes  []string             `json:"selected_codes,omitempty"`
	DiscountReason string               `json:"discount_reason,omitempty"`
}

type BundleResult struct {
	Cart        domain.CartView          `json:"cart"`
	Eligibility domain.BundleEligibility `json:"eligibility"`
}

func (s *Service) CreateCart(ctx context.Context, req CreateCartRequest) (domain.CartView, error) {
	branchID := req.BranchID
	if branchID == "" {
		branchID = s.branchID
	}
	c := cart.New(xid.New("cart"), cart.Options{
		TenantID: s.tenantID,
		BranchID: branchID,
		Pricing:  s.pricing,
		Bundles:  s.bundles,
		Rules:    s.rules,
	})
	if !req.Range.IsZero() {
		if err := c.SetGlobalDates(req.Range); err != nil {
			return domain.CartView{}, err
		}
	}

	s.mu.Lock()
	s.carts[c.ID()] = &cartSession{cart: c}
	s.mu.Unlock()

	s.logger.Debug("cart created", zap.String("cart_id", c.ID()), zap.String("branch_id", branchID))
	return c.View(), nil
}

func (s *Service) GetCart(_ context.Context, cartID string) (domain.CartView, error) {
	sess, err := s.session(cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart.View(), nil
}

// DeleteCart forgets a cart session, as checkout or abandonment does.
func (s *Service) DeleteCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.carts[cartID]; !ok {
		return ErrCartNotFound
	}
	delete(s.carts, cartID)
	return nil
}

func (s *Service) AddCartItem(ctx context.Context, cartID string, req AddItemRequest) (domain.CartView, error) {
	product, err := s.product(ctx, req.ProductID)
	if err != nil {
		return domain.CartView{}, err
	}
	return s.mutateCart(ctx, cartID, func(c *cart.Cart) error {
		_, err := c.AddItem(cart.AddRequest{
			Product:        product,
			Operation:      req.Operation,
			Quantity:       req.Quantity,
			Variant:        req.Variant,
			SelectedCodes:  req.SelectedCodes,
			DiscountReason: req.DiscountReason,
		})
		return err
	})
}

func (s *Service) UpdateCartItem(ctx context.Context, cartID string, lineID string, quantity int) (domain.CartView, error) {
	return s.mutateCart(ctx, cartID, func(c *cart.Cart) error {
		return c.UpdateQuantity(lineID, quantity)
	})
}

func (s *Service) RemoveCartItem(ctx context.Context, cartID string, lineID string) (domain.CartView, error) {
	return s.mutateCart(ctx, cartID, func(c *cart.Cart) error {
		return c.RemoveItem(lineID)
	})
}

func (s *Service) SetCartDates(ctx context.Context, cartID string, r domain.DateRange) (domain.CartView, error) {
	return s.mutateCart(ctx, cartID, func(c *cart.Cart) error {
		return c.SetGlobalDates(r)
	})
}

func (s *Service) ApplyBundle(ctx context.Context, cartID string, promotionID string) (BundleResult, error) {
	def, err := s.findBundle(ctx, promotionID)
	if err != nil {
		return BundleResult{}, err
	}

	var eligibility domain.BundleEligibility
	view, err := s.mutateCart(ctx, cartID, func(c *cart.Cart) error {
		eligibility = c.ApplyBundleDefinition(def)
		return nil
	})
	if err != nil {
		return BundleResult{}, err
	}
	if !eligibility.Eligible {
		s.logger.Info("bundle not applied",
			zap.String("cart_id", cartID),
			zap.String("promotion_id", promotionID),
			zap.String("reason", eligibility.Reason),
		)
	}
	return BundleResult{Cart: view, Eligibility: eligibility}, nil
}

func (s *Service) BundleEligibility(ctx context.Context, cartID string, promotionID string) (domain.BundleEligibility, error) {
	def, err := s.findBundle(ctx, promotionID)
	if err != nil {
		return domain.BundleEligibility{}, err
	}
	sess, err := s.session(cartID)
	if err != nil {
		return domain.BundleEligibility{}, err
	}
	if err := s.refresh(ctx, sess); err != nil {
		return domain.BundleEligibility{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart.BundleEligibility(def), nil
}

func (s *Service) ClearCartBundles(ctx context.Context, cartID string) (domain.CartView, error) {
	return s.mutateCart(ctx, cartID, func(c *cart.Cart) error {
		c.ClearBundleAssignments()
		return nil
	})
}

func (s *Service) session(cartID string) (*cartSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.carts[cartID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return sess, nil
}

// refresh hands the cart the current promotions and a tenant-wide inventory
// snapshot before it is evaluated.
func (s *Service) refresh(ctx context.Context, sess *cartSession) error {
	promos, err := s.ActivePromotions(ctx)
	if err != nil {
		return err
	}
	snapshot, err := s.loadSnapshot(ctx, store.Filter{})
	if err != nil {
		return err
	}

	sess.mu.Lock()
	sess.cart.Refresh(promos, snapshot)
	sess.mu.Unlock()
	return nil
}

func (s *Service) mutateCart(ctx context.Context, cartID string, fn func(c *cart.Cart) error) (domain.CartView, error) {
	sess, err := s.session(cartID)
	if err != nil {
		return domain.CartView{}, err
	}
	if err := s.refresh(ctx, sess); err != nil {
		return domain.CartView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := fn(sess.cart); err != nil {
		return domain.CartView{}, err
	}
	return sess.cart.View(), nil
}
