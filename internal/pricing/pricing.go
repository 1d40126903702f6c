// Package pricing resolves the effective unit price of a cart line.
package pricing

import "atelierpos/internal/domain"

// BusinessRules are tenant-level switches on automatic discounting. The zero
// value allows promotions without a cap.
type BusinessRules struct {
	DisablePromotions  bool    `json:"disable_promotions"`
	MaxDiscountPercent float64 `json:"max_discount_percent"`
}

// ExplicitBundle carries a price already computed by the bundle engine.
type ExplicitBundle struct {
	BundleID      string
	PromotionID   string
	PriceAtMoment float64
	Reason        string
}

type Input struct {
	Product              domain.Product
	Operation            domain.OperationType
	ListPrice            float64
	Promotions           []domain.Promotion
	Rules                BusinessRules
	ExplicitBundle       *ExplicitBundle
	ManualDiscountReason string
}

type Output struct {
	ListPrice      float64 `json:"list_price"`
	PriceAtMoment  float64 `json:"price_at_moment"`
	DiscountAmount float64 `json:"discount_amount"`
	DiscountReason string  `json:"discount_reason,omitempty"`
	PromotionID    string  `json:"promotion_id,omitempty"`
	BundleID       string  `json:"bundle_id,omitempty"`
}

type Engine struct{}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) Apply(in Input) Output {
	if in.ExplicitBundle != nil {
		price := max(in.ExplicitBundle.PriceAtMoment, 0)
		return Output{
			ListPrice:      in.ListPrice,
			PriceAtMoment:  price,
			DiscountAmount: max(in.ListPrice-price, 0),
			DiscountReason: in.ExplicitBundle.Reason,
			PromotionID:    in.ExplicitBundle.PromotionID,
			BundleID:       in.ExplicitBundle.BundleID,
		}
	}

	out := Output{
		ListPrice:      in.ListPrice,
		PriceAtMoment:  in.ListPrice,
		DiscountReason: in.ManualDiscountReason,
	}
	if in.Rules.DisablePromotions {
		return out
	}

	best, ok := BestPromotion(in.Product, in.Operation, in.ListPrice, in.Promotions)
	if !ok {
		return out
	}

	price := best.Discount.Apply(in.ListPrice)
	if limit := in.Rules.MaxDiscountPercent; limit > 0 {
		price = max(price, in.ListPrice-in.ListPrice*limit/100)
	}
	if price >= in.ListPrice {
		return out
	}

	out.PriceAtMoment = price
	out.DiscountAmount = in.ListPrice - price
	out.DiscountReason = best.Name
	out.PromotionID = best.ID
	return out
}

// BestPromotion picks the standard promotion giving the lowest final price.
// Ties keep the first promotion encountered.
func BestPromotion(product domain.Product, op domain.OperationType, listPrice float64, promotions []domain.Promotion) (domain.Promotion, bool) {
	var best domain.Promotion
	bestPrice := listPrice
	found := false
	for _, promo := range promotions {
		if promo.Type == domain.PromotionBundle || !promo.Discount.Valid() {
			continue
		}
		if !promo.AppliesToOperation(op) || !promo.Scope.Matches(product) {
			continue
		}
		price := promo.Discount.Apply(listPrice)
		if !found || price < bestPrice {
			best, bestPrice, found = promo, price, true
		}
	}
	return best, found
}
