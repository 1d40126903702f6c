package domain

import "slices"

type CartLine struct {
	CartID             string        `json:"cart_id"`
	TenantID           string        `json:"tenant_id"`
	BranchID           string        `json:"branch_id"`
	Product            Product       `json:"product"`
	Operation          OperationType `json:"operation"`
	Quantity           int           `json:"quantity"`
	UnitPrice          float64       `json:"unit_price"`
	ListPrice          float64       `json:"list_price"`
	DiscountAmount     float64       `json:"discount_amount"`
	DiscountReason     string        `json:"discount_reason,omitempty"`
	BundleID           string        `json:"bundle_id,omitempty"`
	BundleDefinitionID string        `json:"bundle_definition_id,omitempty"`
	AppliedPromotionID string        `json:"applied_promotion_id,omitempty"`
	Variant            Variant       `json:"variant"`
	SelectedCodes      []string      `json:"selected_codes,omitempty"`
	Subtotal           float64       `json:"subtotal"`
}

// Multiplier is the rental day multiplier of the line for a given day count.
func (l CartLine) Multiplier(days int) float64 {
	return RentalMultiplier(l.Product, l.Operation, days)
}

// Recalculate restores the subtotal invariant for the given day count.
func (l *CartLine) Recalculate(days int) {
	l.Subtotal = l.UnitPrice * float64(l.Quantity) * l.Multiplier(days)
}

func (l CartLine) Clone() CartLine {
	dup := l
	dup.SelectedCodes = slices.Clone(l.SelectedCodes)
	return dup
}

func CloneLines(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	for i, line := range lines {
		out[i] = line.Clone()
	}
	return out
}

type CartTotals struct {
	Items    int     `json:"items"`
	List     float64 `json:"list"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

type CartView struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenant_id"`
	BranchID      string     `json:"branch_id"`
	Range         DateRange  `json:"range"`
	Days          int        `json:"days"`
	Lines         []CartLine `json:"lines"`
	ActiveBundles []string   `json:"active_bundles"`
	Totals        CartTotals `json:"totals"`
}
