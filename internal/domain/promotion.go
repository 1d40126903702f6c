package domain

import (
	"slices"
	"time"
)

type DiscountKind string

const (
	DiscountPercentage DiscountKind = "percentage"
	DiscountFixed      DiscountKind = "fixed"
)

// Discount is either Percentage(Value) or FixedAmount(Value). For standard
// promotions a fixed value is an amount off; for bundles it is the final
// price of one bundle instance.
type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value float64      `json:"value"`
}

func Percentage(value float64) Discount {
	return Discount{Kind: DiscountPercentage, Value: value}
}

func FixedAmount(value float64) Discount {
	return Discount{Kind: DiscountFixed, Value: value}
}

func (d Discount) Valid() bool {
	switch d.Kind {
	case DiscountPercentage:
		return d.Value >= 0 && d.Value <= 100
	case DiscountFixed:
		return d.Value >= 0
	default:
		return false
	}
}

// AmountOff is the discount this promotion takes from listPrice, before the
// zero floor is applied.
func (d Discount) AmountOff(listPrice float64) float64 {
	switch d.Kind {
	case DiscountPercentage:
		return listPrice * d.Value / 100
	case DiscountFixed:
		return d.Value
	default:
		return 0
	}
}

// Apply returns the discounted price floored at zero.
func (d Discount) Apply(listPrice float64) float64 {
	return max(listPrice-d.AmountOff(listPrice), 0)
}

type ScopeKind string

const (
	ScopeGlobal   ScopeKind = "global"
	ScopeCategory ScopeKind = "category"
	ScopeProduct  ScopeKind = "product_specific"
)

type Scope struct {
	Kind      ScopeKind `json:"kind"`
	TargetIDs []string  `json:"target_ids,omitempty"`
}

func GlobalScope() Scope {
	return Scope{Kind: ScopeGlobal}
}

func CategoryScope(ids ...string) Scope {
	return Scope{Kind: ScopeCategory, TargetIDs: ids}
}

func ProductScope(ids ...string) Scope {
	return Scope{Kind: ScopeProduct, TargetIDs: ids}
}

func (s Scope) Matches(p Product) bool {
	switch s.Kind {
	case ScopeGlobal:
		return true
	case ScopeCategory:
		return p.CategoryID != "" && slices.Contains(s.TargetIDs, p.CategoryID)
	case ScopeProduct:
		return slices.Contains(s.TargetIDs, p.ID)
	default:
		return false
	}
}

type PromotionType string

const (
	PromotionStandard PromotionType = "standard"
	PromotionBundle   PromotionType = "bundle"
)

type BundleItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Promotion struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenant_id"`
	Name        string          `json:"name"`
	Type        PromotionType   `json:"type"`
	Discount    Discount        `json:"discount"`
	Scope       Scope           `json:"scope"`
	AppliesTo   []OperationType `json:"applies_to"`
	BundleItems []BundleItem    `json:"bundle_items,omitempty"`
	StartsAt    *time.Time      `json:"starts_at,omitempty"`
	EndsAt      *time.Time      `json:"ends_at,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p Promotion) AppliesToOperation(op OperationType) bool {
	return slices.Contains(p.AppliesTo, op)
}

// ActiveAt reports whether the promotion is switched on and inside its
// optional date window.
func (p Promotion) ActiveAt(now time.Time) bool {
	if !p.Active {
		return false
	}
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

type BundleDefinition struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Name      string          `json:"name"`
	Items     []BundleItem    `json:"items"`
	Discount  Discount        `json:"discount"`
	AppliesTo []OperationType `json:"applies_to"`
}

func (d BundleDefinition) AppliesToOperation(op OperationType) bool {
	return slices.Contains(d.AppliesTo, op)
}

func (d BundleDefinition) RequiredQuantity(productID string) int {
	for _, item := range d.Items {
		if item.ProductID == productID {
			return item.Quantity
		}
	}
	return 0
}

// BundleFromPromotion derives the bundle definition carried by a bundle
// promotion. Duplicate product entries are summed.
func BundleFromPromotion(p Promotion) (BundleDefinition, bool) {
	if p.Type != PromotionBundle || len(p.BundleItems) == 0 || !p.Discount.Valid() {
		return BundleDefinition{}, false
	}

	items := make([]BundleItem, 0, len(p.BundleItems))
	index := make(map[string]int, len(p.BundleItems))
	for _, item := range p.BundleItems {
		if item.ProductID == "" || item.Quantity < 1 {
			return BundleDefinition{}, false
		}
		if i, ok := index[item.ProductID]; ok {
			items[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(items)
		items = append(items, item)
	}

	appliesTo := slices.Clone(p.AppliesTo)
	if len(appliesTo) == 0 {
		appliesTo = []OperationType{OperationSale, OperationRental}
	}

	return BundleDefinition{
		ID:        p.ID,
		TenantID:  p.TenantID,
		Name:      p.Name,
		Items:     items,
		Discount:  p.Discount,
		AppliesTo: appliesTo,
	}, true
}

type MissingProduct struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	InCart    int    `json:"in_cart"`
}

type AvailabilityIssue struct {
	ProductID      string  `json:"product_id"`
	Variant        Variant `json:"variant"`
	Required       int     `json:"required"`
	AvailableCount int     `json:"available_count"`
	Reason         string  `json:"reason,omitempty"`
}

const (
	EligibilityTenantScope   = "tenant_scope"
	EligibilityMissing       = "missing_products"
	EligibilityAvailability  = "availability"
	EligibilityInvalidBundle = "invalid_bundle"
)

type BundleEligibility struct {
	Eligible           bool                `json:"eligible"`
	PossibleCount      int                 `json:"possible_count"`
	MissingProducts    []MissingProduct    `json:"missing_products,omitempty"`
	AvailabilityIssues []AvailabilityIssue `json:"availability_issues,omitempty"`
	Reason             string              `json:"reason,omitempty"`
}
