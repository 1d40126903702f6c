package bundle

import (
	"slices"

	"atelierpos/internal/domain"
	"atelierpos/internal/pricing"
)

// Apply rewrites the cart for the bundle. When the cart is not eligible it
// returns a clean, unbundled copy of the cart along with the reason. The
// input slice is never modified.
func (e *Engine) Apply(lines []domain.CartLine, def domain.BundleDefinition, ctx Context) ([]domain.CartLine, domain.BundleEligibility) {
	det := e.detect(lines, def, ctx)
	if !det.eligibility.Eligible {
		return e.Strip(lines, ctx), det.eligibility
	}

	days := ctx.Range.Days()
	bundleID := e.newID()
	need := make(map[string]int, len(def.Items))
	for _, item := range def.Items {
		need[item.ProductID] = item.Quantity * det.eligibility.PossibleCount
	}
	budget := make(map[variantKey]int, len(det.rentalBudget))
	for key, qty := range det.rentalBudget {
		budget[key] = qty
	}

	isCandidate := make(map[int]bool, len(det.candidates))
	for _, i := range det.candidates {
		isCandidate[i] = true
	}

	usedIDs := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		usedIDs[line.CartID] = struct{}{}
	}

	out := make([]domain.CartLine, 0, len(lines)+len(def.Items))
	var consumed []int
	for i, line := range lines {
		line = line.Clone()
		take := 0
		if isCandidate[i] {
			take = min(line.Quantity, need[line.Product.ID])
			if line.Operation == domain.OperationRental {
				key := variantKey{productID: line.Product.ID, variant: line.Variant}
				take = min(take, budget[key])
				budget[key] -= take
			}
		}
		if take < 1 {
			out = append(out, line)
			continue
		}
		need[line.Product.ID] -= take

		if take == line.Quantity {
			consumed = append(consumed, len(out))
			out = append(out, line)
			continue
		}

		restID := remainderID(line.CartID, usedIDs, e.newLine)
		usedIDs[restID] = struct{}{}
		part, rest := splitLine(line, take, restID)
		rest.Recalculate(days)
		consumed = append(consumed, len(out))
		out = append(out, part, rest)
	}

	factors := groupFactors(out, consumed, def, det.eligibility.PossibleCount, days)
	reason := "Bundle: " + def.Name
	if def.Name == "" {
		reason = "Bundle " + def.ID
	}
	for _, idx := range consumed {
		line := &out[idx]
		m := line.Multiplier(days)
		unit := (line.ListPrice * m * factors[line.Operation]) / m
		priced := e.pricing.Apply(pricing.Input{
			Product:   line.Product,
			Operation: line.Operation,
			ListPrice: line.ListPrice,
			Rules:     ctx.Rules,
			ExplicitBundle: &pricing.ExplicitBundle{
				BundleID:      bundleID,
				PromotionID:   def.ID,
				PriceAtMoment: unit,
				Reason:        reason,
			},
		})
		applyPrice(line, priced)
		line.BundleDefinitionID = def.ID
		line.Recalculate(days)
	}

	return out, det.eligibility
}

// groupFactors computes the price factor per operation group. Percentage
// bundles discount each group on its own; fixed bundles share one global
// factor so the bundle price holds across sale and rental lines together.
func groupFactors(lines []domain.CartLine, consumed []int, def domain.BundleDefinition, possible int, days int) map[domain.OperationType]float64 {
	totals := make(map[domain.OperationType]float64, 2)
	for _, idx := range consumed {
		line := lines[idx]
		totals[line.Operation] += line.ListPrice * float64(line.Quantity) * line.Multiplier(days)
	}

	factors := make(map[domain.OperationType]float64, len(totals))
	switch def.Discount.Kind {
	case domain.DiscountPercentage:
		for op, total := range totals {
			factors[op] = 1
			if total > 0 {
				factors[op] = (total - total*def.Discount.Value/100) / total
			}
		}
	case domain.DiscountFixed:
		global := 0.0
		for _, total := range totals {
			global += total
		}
		factor := 1.0
		if global > 0 {
			factor = def.Discount.Value * float64(possible) / global
		}
		for op := range totals {
			factors[op] = factor
		}
	default:
		for op := range totals {
			factors[op] = 1
		}
	}
	return factors
}

// Strip removes every bundle marker, re-prices formerly bundled lines with
// the standard promotions and merges split siblings back together, giving
// the clean base cart bundles are recomputed from.
func (e *Engine) Strip(lines []domain.CartLine, ctx Context) []domain.CartLine {
	days := ctx.Range.Days()
	out := make([]domain.CartLine, 0, len(lines))
	for _, line := range lines {
		line = line.Clone()
		if line.BundleID != "" {
			priced := e.pricing.Apply(pricing.Input{
				Product:    line.Product,
				Operation:  line.Operation,
				ListPrice:  line.ListPrice,
				Promotions: ctx.Promotions,
				Rules:      ctx.Rules,
			})
			applyPrice(&line, priced)
			line.BundleID = ""
			line.BundleDefinitionID = ""
		}
		line.Recalculate(days)

		if idx := slices.IndexFunc(out, func(o domain.CartLine) bool { return SameKey(o, line) }); idx >= 0 {
			merged := &out[idx]
			merged.Quantity += line.Quantity
			merged.SelectedCodes = appendUnique(merged.SelectedCodes, line.SelectedCodes...)
			merged.Recalculate(days)
			continue
		}
		out = append(out, line)
	}
	return out
}

// SameKey is the merge rule shared with the cart: lines collapse only when
// product, operation, variant, bundle, promotion and unit price all match.
func SameKey(a domain.CartLine, b domain.CartLine) bool {
	return a.Product.ID == b.Product.ID &&
		a.Operation == b.Operation &&
		a.Variant == b.Variant &&
		a.BundleID == b.BundleID &&
		a.AppliedPromotionID == b.AppliedPromotionID &&
		a.UnitPrice == b.UnitPrice &&
		a.TenantID == b.TenantID &&
		a.BranchID == b.BranchID
}

// remainderID derives the id of a split remainder from its origin so that
// re-applying bundles to the same cart yields the same line ids.
func remainderID(cartID string, used map[string]struct{}, fallback func() string) string {
	id := cartID + "-r"
	if _, taken := used[id]; taken || cartID == "" {
		return fallback()
	}
	return id
}

// splitLine cuts take units off line. The consumed part keeps the original
// cart id; the remainder takes newCartID.
func splitLine(line domain.CartLine, take int, newCartID string) (domain.CartLine, domain.CartLine) {
	part := line.Clone()
	rest := line.Clone()
	rest.CartID = newCartID
	part.Quantity = take
	rest.Quantity = line.Quantity - take

	codes := line.SelectedCodes
	cut := min(take, len(codes))
	part.SelectedCodes = slices.Clone(codes[:cut])
	rest.SelectedCodes = slices.Clone(codes[cut:])
	if len(part.SelectedCodes) == 0 {
		part.SelectedCodes = nil
	}
	if len(rest.SelectedCodes) == 0 {
		rest.SelectedCodes = nil
	}
	return part, rest
}

func applyPrice(line *domain.CartLine, priced pricing.Output) {
	line.ListPrice = priced.ListPrice
	line.UnitPrice = priced.PriceAtMoment
	line.DiscountAmount = priced.DiscountAmount
	line.DiscountReason = priced.DiscountReason
	line.AppliedPromotionID = priced.PromotionID
	line.BundleID = priced.BundleID
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
