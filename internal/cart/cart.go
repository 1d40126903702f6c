// Package cart holds the cart aggregate: line items, the global rental date
// range and the ordered list of applied bundles. A Cart is not safe for
// concurrent use; callers serialize access per session.
package cart

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"atelierpos/internal/bundle"
	"atelierpos/internal/domain"
	"atelierpos/internal/pricing"
	"atelierpos/internal/xid"
)

var (
	ErrLineNotFound         = errors.New("cart line not found")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrUnsupportedOperation = errors.New("operation not supported for product")
	ErrVariantRequired      = errors.New("size and color are required")
	ErrInvalidRange         = errors.New("invalid date range")
	ErrDuplicateUnit        = errors.New("unit already selected")
	ErrTooManyUnits         = errors.New("more units selected than quantity")
	ErrTenantMismatch       = errors.New("product belongs to another tenant")
)

type Options struct {
	TenantID   string
	BranchID   string
	Pricing    *pricing.Engine
	Bundles    *bundle.Engine
	Promotions []domain.Promotion
	Rules      pricing.BusinessRules
	Snapshot   domain.Snapshot
}

type Cart struct {
	id         string
	tenantID   string
	branchID   string
	lines      []domain.CartLine
	dates      domain.DateRange
	active     []domain.BundleDefinition
	promotions []domain.Promotion
	rules      pricing.BusinessRules
	snapshot   domain.Snapshot
	pricing    *pricing.Engine
	bundles    *bundle.Engine
}

func New(id string, opts Options) *Cart {
	if id == "" {
		id = xid.New("cart")
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.NewEngine()
	}
	if opts.Bundles == nil {
		opts.Bundles = bundle.NewEngine(opts.Pricing, nil)
	}
	return &Cart{
		id:         id,
		tenantID:   opts.TenantID,
		branchID:   opts.BranchID,
		promotions: opts.Promotions,
		rules:      opts.Rules,
		snapshot:   opts.Snapshot,
		pricing:    opts.Pricing,
		bundles:    opts.Bundles,
	}
}

func (c *Cart) ID() string {
	return c.id
}

func (c *Cart) TenantID() string {
	return c.tenantID
}

func (c *Cart) BranchID() string {
	return c.branchID
}

func (c *Cart) Dates() domain.DateRange {
	return c.dates
}

func (c *Cart) Lines() []domain.CartLine {
	return domain.CloneLines(c.lines)
}

// ActiveBundles lists applied bundle definition ids in application order.
func (c *Cart) ActiveBundles() []string {
	ids := make([]string, len(c.active))
	for i, def := range c.active {
		ids[i] = def.ID
	}
	return ids
}

// Refresh swaps the promotions and inventory snapshot the cart prices
// against. It does not re-price existing lines on its own.
func (c *Cart) Refresh(promotions []domain.Promotion, snapshot domain.Snapshot) {
	c.promotions = promotions
	c.snapshot = snapshot
}

type AddRequest struct {
	Product        domain.Product       `json:"product"`
	Operation      domain.OperationType `json:"operation"`
	Quantity       int                  `json:"quantity"`
	Variant        domain.Variant       `json:"variant"`
	SelectedCodes  []string             `json:"selected_codes,omitempty"`
	DiscountReason string               `json:"discount_reason,omitempty"`
}

// AddItem prices the item and merges it into a matching line or appends a
// new one. It returns the id of the line holding the item.
func (c *Cart) AddItem(req AddRequest) (string, error) {
	if req.Quantity < 1 {
		return "", ErrInvalidQuantity
	}
	if !req.Operation.Valid() || !req.Product.Supports(req.Operation) {
		return "", fmt.Errorf("%s %s: %w", req.Product.ID, req.Operation, ErrUnsupportedOperation)
	}
	if !req.Variant.Complete() {
		return "", ErrVariantRequired
	}
	if req.Product.TenantID != "" && req.Product.TenantID != c.tenantID {
		return "", ErrTenantMismatch
	}
	if len(req.SelectedCodes) > req.Quantity {
		return "", ErrTooManyUnits
	}
	if err := c.checkCodes(req.Product.ID, req.SelectedCodes); err != nil {
		return "", err
	}

	listPrice := req.Product.ListPrice(req.Operation)
	priced := c.pricing.Apply(pricing.Input{
		Product:              req.Product,
		Operation:            req.Operation,
		ListPrice:            listPrice,
		Promotions:           c.promotions,
		Rules:                c.rules,
		ManualDiscountReason: req.DiscountReason,
	})

	line := domain.CartLine{
		CartID:             xid.New("line"),
		TenantID:           c.tenantID,
		BranchID:           c.branchID,
		Product:            req.Product,
		Operation:          req.Operation,
		Quantity:           req.Quantity,
		UnitPrice:          priced.PriceAtMoment,
		ListPrice:          priced.ListPrice,
		DiscountAmount:     priced.DiscountAmount,
		DiscountReason:     priced.DiscountReason,
		AppliedPromotionID: priced.PromotionID,
		Variant:            req.Variant,
		SelectedCodes:      slices.Clone(req.SelectedCodes),
	}

	days := c.dates.Days()
	lines := domain.CloneLines(c.lines)
	lineID := line.CartID
	if idx := slices.IndexFunc(lines, func(l domain.CartLine) bool { return bundle.SameKey(l, line) }); idx >= 0 {
		target := &lines[idx]
		if len(target.SelectedCodes)+len(line.SelectedCodes) > target.Quantity+line.Quantity {
			return "", ErrTooManyUnits
		}
		target.Quantity += line.Quantity
		target.SelectedCodes = append(target.SelectedCodes, line.SelectedCodes...)
		target.Recalculate(days)
		lineID = target.CartID
	} else {
		line.Recalculate(days)
		lines = append(lines, line)
	}

	c.commit(c.reevaluate(lines, c.active))
	return c.resolveLineID(lineID, line), nil
}

// UpdateQuantity sets a line quantity. Selected serial codes beyond the new
// quantity are released from the line.
func (c *Cart) UpdateQuantity(cartID string, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	lines := domain.CloneLines(c.lines)
	idx := slices.IndexFunc(lines, func(l domain.CartLine) bool { return l.CartID == cartID })
	if idx < 0 {
		return ErrLineNotFound
	}

	line := &lines[idx]
	line.Quantity = quantity
	if len(line.SelectedCodes) > quantity {
		line.SelectedCodes = line.SelectedCodes[:quantity]
	}
	line.Recalculate(c.dates.Days())

	c.commit(c.reevaluate(lines, c.active))
	return nil
}

// RemoveItem drops a line. Remaining lines lose their bundle markers and the
// active bundles are recomputed, since the removed line may have been part
// of one.
func (c *Cart) RemoveItem(cartID string) error {
	idx := slices.IndexFunc(c.lines, func(l domain.CartLine) bool { return l.CartID == cartID })
	if idx < 0 {
		return ErrLineNotFound
	}
	lines := domain.CloneLines(c.lines)
	lines = slices.Delete(lines, idx, idx+1)

	c.commit(c.reevaluate(lines, c.active))
	return nil
}

// SetGlobalDates changes the rental range of the whole cart. A zero range
// clears it.
func (c *Cart) SetGlobalDates(r domain.DateRange) error {
	if !r.IsZero() && !r.Valid() {
		return ErrInvalidRange
	}
	if !r.IsZero() {
		r = domain.NewDateRange(r.Start, r.End)
	}

	c.dates = r
	lines := domain.CloneLines(c.lines)
	for i := range lines {
		lines[i].Recalculate(r.Days())
	}
	c.commit(c.reevaluate(lines, c.active))
	return nil
}

// ApplyBundleDefinition recomputes the already active bundles from a clean
// cart and then applies def. The definition joins the active list only when
// the cart is eligible for it.
func (c *Cart) ApplyBundleDefinition(def domain.BundleDefinition) domain.BundleEligibility {
	others := slices.DeleteFunc(slices.Clone(c.active), func(d domain.BundleDefinition) bool { return d.ID == def.ID })
	lines, active := c.reevaluate(domain.CloneLines(c.lines), others)

	result, eligibility := c.bundles.Apply(lines, def, c.bundleContext())
	if eligibility.Eligible {
		lines = result
		active = append(active, def)
	}
	c.commit(lines, active)
	return eligibility
}

// BundleEligibility evaluates def against the cart without applying it.
func (c *Cart) BundleEligibility(def domain.BundleDefinition) domain.BundleEligibility {
	others := slices.DeleteFunc(slices.Clone(c.active), func(d domain.BundleDefinition) bool { return d.ID == def.ID })
	lines, _ := c.reevaluate(domain.CloneLines(c.lines), others)
	return c.bundles.Detect(lines, def, c.bundleContext())
}

// ClearBundleAssignments strips every bundle and forgets the active list.
func (c *Cart) ClearBundleAssignments() {
	c.commit(c.bundles.Strip(c.lines, c.bundleContext()), nil)
}

// Reevaluate recomputes all active bundles from a clean base cart.
func (c *Cart) Reevaluate() {
	c.commit(c.reevaluate(domain.CloneLines(c.lines), c.active))
}

// Total sums the cart in decimal and rounds to cents.
func (c *Cart) Total() domain.CartTotals {
	days := c.dates.Days()
	list := decimal.Zero
	total := decimal.Zero
	items := 0
	for _, line := range c.lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		m := decimal.NewFromFloat(line.Multiplier(days))
		list = list.Add(decimal.NewFromFloat(line.ListPrice).Mul(qty).Mul(m))
		total = total.Add(decimal.NewFromFloat(line.Subtotal))
		items += line.Quantity
	}
	list = list.Round(2)
	total = total.Round(2)
	discount := decimal.Max(list.Sub(total), decimal.Zero)
	return domain.CartTotals{
		Items:    items,
		List:     list.InexactFloat64(),
		Discount: discount.InexactFloat64(),
		Total:    total.InexactFloat64(),
	}
}

func (c *Cart) View() domain.CartView {
	return domain.CartView{
		ID:            c.id,
		TenantID:      c.tenantID,
		BranchID:      c.branchID,
		Range:         c.dates,
		Days:          c.dates.Days(),
		Lines:         c.Lines(),
		ActiveBundles: c.ActiveBundles(),
		Totals:        c.Total(),
	}
}

// reevaluate strips every marker and re-applies the given definitions in
// order. Definitions the cart no longer qualifies for are dropped.
func (c *Cart) reevaluate(lines []domain.CartLine, defs []domain.BundleDefinition) ([]domain.CartLine, []domain.BundleDefinition) {
	ctx := c.bundleContext()
	base := c.bundles.Strip(lines, ctx)
	active := make([]domain.BundleDefinition, 0, len(defs))
	for _, def := range defs {
		result, eligibility := c.bundles.Apply(base, def, ctx)
		if !eligibility.Eligible {
			continue
		}
		base = result
		active = append(active, def)
	}
	return base, active
}

func (c *Cart) commit(lines []domain.CartLine, active []domain.BundleDefinition) {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	c.lines = lines
	c.active = active
}

func (c *Cart) bundleContext() bundle.Context {
	return bundle.Context{
		TenantID:   c.tenantID,
		BranchID:   c.branchID,
		Range:      c.dates,
		Snapshot:   c.snapshot,
		Promotions: c.promotions,
		Rules:      c.rules,
	}
}

func (c *Cart) checkCodes(productID string, codes []string) error {
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if _, dup := seen[code]; dup {
			return fmt.Errorf("%s: %w", code, ErrDuplicateUnit)
		}
		seen[code] = struct{}{}
	}
	for _, line := range c.lines {
		if line.Product.ID != productID {
			continue
		}
		for _, code := range line.SelectedCodes {
			if _, dup := seen[code]; dup {
				return fmt.Errorf("%s: %w", code, ErrDuplicateUnit)
			}
		}
	}
	return nil
}

// resolveLineID finds the line that holds the added item after bundles were
// recomputed, falling back to the first line with the same product setup.
func (c *Cart) resolveLineID(lineID string, added domain.CartLine) string {
	for _, line := range c.lines {
		if line.CartID == lineID {
			return lineID
		}
	}
	for _, line := range c.lines {
		if line.Product.ID == added.Product.ID && line.Operation == added.Operation && line.Variant == added.Variant {
			return line.CartID
		}
	}
	return lineID
}
