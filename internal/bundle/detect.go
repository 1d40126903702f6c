// Package bundle detects multi-product bundle promotions in a cart and
// rewrites the cart lines so the bundle price is prorated across them.
package bundle

import (
	"slices"

	"atelierpos/internal/availability"
	"atelierpos/internal/domain"
	"atelierpos/internal/pricing"
	"atelierpos/internal/xid"
)

// Context is the environment a bundle is evaluated in.
type Context struct {
	TenantID   string
	BranchID   string
	Range      domain.DateRange
	Snapshot   domain.Snapshot
	Promotions []domain.Promotion
	Rules      pricing.BusinessRules
}

type Engine struct {
	pricing *pricing.Engine
	checker *availability.Checker
	newID   func() string
	newLine func() string
}

func NewEngine(pricingEngine *pricing.Engine, checker *availability.Checker) *Engine {
	if pricingEngine == nil {
		pricingEngine = pricing.NewEngine()
	}
	if checker == nil {
		checker = availability.NewChecker()
	}
	return &Engine{
		pricing: pricingEngine,
		checker: checker,
		newID:   func() string { return xid.New("bundle") },
		newLine: func() string { return xid.New("line") },
	}
}

type variantKey struct {
	productID string
	variant   domain.Variant
}

// detection is the eligibility plus what Apply needs to consume lines.
type detection struct {
	eligibility domain.BundleEligibility
	candidates  []int
	// rentalBudget caps how many rental units per variant may be consumed.
	rentalBudget map[variantKey]int
}

// Detect reports whether the cart can carry the bundle and how many times.
func (e *Engine) Detect(lines []domain.CartLine, def domain.BundleDefinition, ctx Context) domain.BundleEligibility {
	return e.detect(lines, def, ctx).eligibility
}

func (e *Engine) detect(lines []domain.CartLine, def domain.BundleDefinition, ctx Context) detection {
	if len(def.Items) == 0 {
		return detection{eligibility: domain.BundleEligibility{Reason: domain.EligibilityInvalidBundle}}
	}
	if def.TenantID != "" && def.TenantID != ctx.TenantID {
		return detection{eligibility: domain.BundleEligibility{Reason: domain.EligibilityTenantScope}}
	}
	for _, line := range lines {
		if line.TenantID != ctx.TenantID {
			return detection{eligibility: domain.BundleEligibility{Reason: domain.EligibilityTenantScope}}
		}
	}

	inCart := make(map[string]int, len(def.Items))
	rentalInCart := make(map[variantKey]int)
	// held counts rental quantity already consumed by earlier bundles; it
	// draws on the same stock as the candidates.
	held := make(map[variantKey]int)
	var rentalKeys []variantKey
	candidates := make([]int, 0, len(lines))
	for i, line := range lines {
		if line.BundleID != "" {
			if line.Operation == domain.OperationRental && e.atBranch(line, ctx) {
				held[variantKey{productID: line.Product.ID, variant: line.Variant}] += line.Quantity
			}
			continue
		}
		if def.RequiredQuantity(line.Product.ID) == 0 {
			continue
		}
		if !def.AppliesToOperation(line.Operation) || !e.atBranch(line, ctx) {
			continue
		}
		candidates = append(candidates, i)
		inCart[line.Product.ID] += line.Quantity
		if line.Operation == domain.OperationRental {
			key := variantKey{productID: line.Product.ID, variant: line.Variant}
			if _, seen := rentalInCart[key]; !seen {
				rentalKeys = append(rentalKeys, key)
			}
			rentalInCart[key] += line.Quantity
		}
	}

	var missing []domain.MissingProduct
	for _, item := range def.Items {
		if inCart[item.ProductID] < item.Quantity {
			missing = append(missing, domain.MissingProduct{
				ProductID: item.ProductID,
				Required:  item.Quantity,
				InCart:    inCart[item.ProductID],
			})
		}
	}
	if len(missing) > 0 {
		return detection{eligibility: domain.BundleEligibility{
			MissingProducts: missing,
			Reason:          domain.EligibilityMissing,
		}}
	}

	possible := -1
	for _, item := range def.Items {
		count := inCart[item.ProductID] / item.Quantity
		if possible < 0 || count < possible {
			possible = count
		}
	}

	det := detection{candidates: candidates, rentalBudget: make(map[variantKey]int, len(rentalKeys))}
	if len(rentalKeys) > 0 {
		shortfall := make(map[string]int)
		for _, key := range rentalKeys {
			want := rentalInCart[key]
			res := e.checker.Check(ctx.Snapshot, availability.Query{
				ProductID: key.productID,
				Variant:   key.variant,
				BranchID:  ctx.BranchID,
				Range:     ctx.Range,
				Operation: domain.OperationRental,
				Quantity:  want + held[key],
			})
			free := max(res.AvailableCount-held[key], 0)
			usable := min(want, free)
			det.rentalBudget[key] = usable
			if usable < want {
				shortfall[key.productID] += want - usable
				det.eligibility.AvailabilityIssues = append(det.eligibility.AvailabilityIssues, domain.AvailabilityIssue{
					ProductID:      key.productID,
					Variant:        key.variant,
					Required:       want,
					AvailableCount: free,
					Reason:         res.Reason,
				})
			}
		}
		for _, item := range def.Items {
			if short := shortfall[item.ProductID]; short > 0 {
				possible = min(possible, (inCart[item.ProductID]-short)/item.Quantity)
			}
		}
	}

	det.eligibility.PossibleCount = max(possible, 0)
	det.eligibility.Eligible = det.eligibility.PossibleCount > 0
	if !det.eligibility.Eligible {
		det.eligibility.Reason = domain.EligibilityAvailability
	}
	return det
}

// atBranch requires every selected physical unit of the line to sit at the
// evaluated branch. Lines without selected units always pass.
func (e *Engine) atBranch(line domain.CartLine, ctx Context) bool {
	if ctx.BranchID == "" {
		return true
	}
	if line.BranchID != "" && line.BranchID != ctx.BranchID {
		return false
	}
	for _, code := range line.SelectedCodes {
		idx := slices.IndexFunc(ctx.Snapshot.Units, func(u domain.StockUnit) bool {
			return u.Code == code && u.ProductID == line.Product.ID
		})
		if idx < 0 || ctx.Snapshot.Units[idx].BranchID != ctx.BranchID {
			return false
		}
	}
	return true
}
