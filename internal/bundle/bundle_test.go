package bundle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelierpos/internal/domain"
	"atelierpos/internal/pricing"
)

const tenant = "atelier"

var (
	gold  = domain.Variant{Size: "U", Color: "gold"}
	black = domain.Variant{Size: "M", Color: "black"}

	productX = domain.Product{ID: "X", TenantID: tenant, CategoryID: "accessories", PriceSell: 60, CanSell: true}
	productY = domain.Product{ID: "Y", TenantID: tenant, CategoryID: "gowns", IsSerial: true, PriceRent: 80, RentUnit: domain.RentPerDay, CanRent: true}

	fixedBundle = domain.BundleDefinition{
		ID:        "gala",
		TenantID:  tenant,
		Name:      "Gala",
		Items:     []domain.BundleItem{{ProductID: "X", Quantity: 1}, {ProductID: "Y", Quantity: 1}},
		Discount:  domain.FixedAmount(100),
		AppliesTo: []domain.OperationType{domain.OperationSale, domain.OperationRental},
	}
)

func threeDays() domain.DateRange {
	return domain.NewDateRange(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC))
}

func yUnits(n int, branch string) []domain.StockUnit {
	units := make([]domain.StockUnit, n)
	for i := range units {
		units[i] = domain.StockUnit{
			ID: "y" + string(rune('1'+i)), Code: "Y-" + string(rune('1'+i)), TenantID: tenant, ProductID: "Y",
			Variant: black, BranchID: branch, Status: domain.UnitAvailable, IsForRent: true,
		}
	}
	return units
}

func testContext(units int) Context {
	return Context{
		TenantID: tenant,
		BranchID: "centro",
		Range:    threeDays(),
		Snapshot: domain.Snapshot{Units: yUnits(units, "centro")},
	}
}

func newLine(id string, p domain.Product, op domain.OperationType, qty int, v domain.Variant, days int) domain.CartLine {
	l := domain.CartLine{
		CartID: id, TenantID: tenant, BranchID: "centro", Product: p, Operation: op,
		Quantity: qty, UnitPrice: p.ListPrice(op), ListPrice: p.ListPrice(op), Variant: v,
	}
	l.Recalculate(days)
	return l
}

func scenarioCart(xQty, yQty int) []domain.CartLine {
	days := threeDays().Days()
	return []domain.CartLine{
		newLine("x", productX, domain.OperationSale, xQty, gold, days),
		newLine("y", productY, domain.OperationRental, yQty, black, days),
	}
}

func sumQuantities(lines []domain.CartLine) map[string]int {
	out := map[string]int{}
	for _, l := range lines {
		out[l.Product.ID] += l.Quantity
	}
	return out
}

func bundledTotal(lines []domain.CartLine) float64 {
	total := 0.0
	for _, l := range lines {
		if l.BundleID != "" {
			total += l.Subtotal
		}
	}
	return total
}

func TestFixedBundleSplitsAcrossOperations(t *testing.T) {
	engine := NewEngine(pricing.NewEngine(), nil)
	lines := scenarioCart(2, 1)

	out, elig := engine.Apply(lines, fixedBundle, testContext(1))

	require.True(t, elig.Eligible)
	assert.Equal(t, 1, elig.PossibleCount)
	require.Len(t, out, 3)

	x, rest, y := out[0], out[1], out[2]
	assert.Equal(t, "x", x.CartID, "the consumed part keeps the original id")
	assert.Equal(t, 1, x.Quantity)
	assert.InDelta(t, 20.0, x.Subtotal, 1e-6)
	assert.NotEmpty(t, x.BundleID)
	assert.Equal(t, "gala", x.BundleDefinitionID)
	assert.Equal(t, "Bundle: Gala", x.DiscountReason)

	assert.Equal(t, "x-r", rest.CartID, "the remainder id derives from the original")
	assert.Equal(t, 1, rest.Quantity)
	assert.Empty(t, rest.BundleID)
	assert.InDelta(t, 60.0, rest.Subtotal, 1e-6)

	assert.Equal(t, 1, y.Quantity)
	assert.InDelta(t, 80.0, y.Subtotal, 1e-6)
	assert.InDelta(t, 80.0/3, y.UnitPrice, 1e-6)
	assert.Equal(t, x.BundleID, y.BundleID, "one bundle id per application")

	assert.InDelta(t, 100.0, bundledTotal(out), 1e-6)
	assert.Equal(t, sumQuantities(lines), sumQuantities(out))
	assert.Equal(t, 2, lines[0].Quantity, "input lines are untouched")
}

func TestFixedBundleScalesWithPossibleCount(t *testing.T) {
	engine := NewEngine(nil, nil)
	out, elig := engine.Apply(scenarioCart(2, 2), fixedBundle, testContext(2))

	require.True(t, elig.Eligible)
	assert.Equal(t, 2, elig.PossibleCount)
	assert.InDelta(t, 200.0, bundledTotal(out), 1e-6)
	assert.Len(t, out, 2, "everything is consumed, nothing splits")
}

func TestPercentageBundleDiscountsEachGroup(t *testing.T) {
	clutch := domain.Product{ID: "clutch", TenantID: tenant, PriceRent: 12, RentUnit: domain.RentPerDay, CanRent: true}
	ivory := domain.Variant{Size: "U", Color: "ivory"}
	def := domain.BundleDefinition{
		ID: "duo", TenantID: tenant, Name: "Duo",
		Items:     []domain.BundleItem{{ProductID: "Y", Quantity: 1}, {ProductID: "clutch", Quantity: 1}},
		Discount:  domain.Percentage(20),
		AppliesTo: []domain.OperationType{domain.OperationRental},
	}
	ctx := testContext(1)
	ctx.Snapshot.Lots = []domain.StockLot{{ID: "l1", TenantID: tenant, ProductID: "clutch", Variant: ivory, BranchID: "centro", Quantity: 3, IsForRent: true}}
	days := ctx.Range.Days()
	lines := []domain.CartLine{
		newLine("y", productY, domain.OperationRental, 1, black, days),
		newLine("c", clutch, domain.OperationRental, 1, ivory, days),
	}

	out, elig := NewEngine(nil, nil).Apply(lines, def, ctx)

	require.True(t, elig.Eligible)
	assert.InDelta(t, 64.0, out[0].UnitPrice, 1e-6)
	assert.InDelta(t, 192.0, out[0].Subtotal, 1e-6)
	assert.InDelta(t, 9.6, out[1].UnitPrice, 1e-6)
	assert.InDelta(t, 16.0, out[0].DiscountAmount, 1e-6)
	assert.Equal(t, "Bundle: Duo", out[1].DiscountReason)
}

func TestDetectMissingProducts(t *testing.T) {
	lines := scenarioCart(2, 1)[:1]

	out, elig := NewEngine(nil, nil).Apply(lines, fixedBundle, testContext(1))

	assert.False(t, elig.Eligible)
	assert.Equal(t, domain.EligibilityMissing, elig.Reason)
	require.Len(t, elig.MissingProducts, 1)
	assert.Equal(t, domain.MissingProduct{ProductID: "Y", Required: 1, InCart: 0}, elig.MissingProducts[0])
	assert.Equal(t, lines, out)
}

func TestDetectTenantScope(t *testing.T) {
	engine := NewEngine(nil, nil)

	foreign := fixedBundle
	foreign.TenantID = "other"
	elig := engine.Detect(scenarioCart(1, 1), foreign, testContext(1))
	assert.False(t, elig.Eligible)
	assert.Equal(t, domain.EligibilityTenantScope, elig.Reason)

	lines := scenarioCart(1, 1)
	lines[1].TenantID = "other"
	elig = engine.Detect(lines, fixedBundle, testContext(1))
	assert.Equal(t, domain.EligibilityTenantScope, elig.Reason)
}

func TestDetectInvalidBundle(t *testing.T) {
	elig := NewEngine(nil, nil).Detect(scenarioCart(1, 1), domain.BundleDefinition{ID: "empty", TenantID: tenant}, testContext(1))
	assert.Equal(t, domain.EligibilityInvalidBundle, elig.Reason)
}

func TestDetectFiltersByOperation(t *testing.T) {
	saleOnly := fixedBundle
	saleOnly.AppliesTo = []domain.OperationType{domain.OperationSale}

	elig := NewEngine(nil, nil).Detect(scenarioCart(1, 1), saleOnly, testContext(1))
	assert.False(t, elig.Eligible)
	assert.Equal(t, domain.EligibilityMissing, elig.Reason)
}

func TestDetectFiltersByBranch(t *testing.T) {
	ctx := testContext(0)
	ctx.Snapshot.Units = append(yUnits(1, "norte"), ctx.Snapshot.Units...)

	lines := scenarioCart(1, 1)
	lines[1].SelectedCodes = []string{"Y-1"}

	elig := NewEngine(nil, nil).Detect(lines, fixedBundle, ctx)
	assert.False(t, elig.Eligible, "the selected unit sits at another branch")
	assert.Equal(t, domain.EligibilityMissing, elig.Reason)
}

func TestDetectCapsByRentalAvailability(t *testing.T) {
	engine := NewEngine(nil, nil)

	elig := engine.Detect(scenarioCart(2, 2), fixedBundle, testContext(1))
	require.True(t, elig.Eligible)
	assert.Equal(t, 1, elig.PossibleCount)
	require.Len(t, elig.AvailabilityIssues, 1)
	assert.Equal(t, "Y", elig.AvailabilityIssues[0].ProductID)
	assert.Equal(t, 2, elig.AvailabilityIssues[0].Required)
	assert.Equal(t, 1, elig.AvailabilityIssues[0].AvailableCount)

	elig = engine.Detect(scenarioCart(2, 1), fixedBundle, testContext(0))
	assert.False(t, elig.Eligible)
	assert.Zero(t, elig.PossibleCount)
	assert.Equal(t, domain.EligibilityAvailability, elig.Reason)
}

func TestApplyConsumesOnlyAvailableRentals(t *testing.T) {
	lines := scenarioCart(2, 2)
	out, elig := NewEngine(nil, nil).Apply(lines, fixedBundle, testContext(1))

	require.True(t, elig.Eligible)
	bundledY := 0
	for _, l := range out {
		if l.Product.ID == "Y" && l.BundleID != "" {
			bundledY += l.Quantity
		}
	}
	assert.Equal(t, 1, bundledY)
	assert.Equal(t, sumQuantities(lines), sumQuantities(out))
	assert.InDelta(t, 100.0, bundledTotal(out), 1e-6)
}

func TestApplySkipsAlreadyBundledLines(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx := testContext(2)

	once, elig := engine.Apply(scenarioCart(1, 1), fixedBundle, ctx)
	require.True(t, elig.Eligible)

	elig = engine.Detect(once, fixedBundle, ctx)
	assert.False(t, elig.Eligible, "consumed lines cannot feed a second instance")
}

func TestRemainderIDAvoidsCollisions(t *testing.T) {
	engine := NewEngine(nil, nil)
	engine.newLine = func() string { return "fresh" }
	lines := scenarioCart(2, 1)
	lines = append(lines, newLine("x-r", productX, domain.OperationSale, 1, domain.Variant{Size: "U", Color: "silver"}, threeDays().Days()))

	out, elig := engine.Apply(lines, fixedBundle, testContext(1))
	require.True(t, elig.Eligible)
	ids := make([]string, 0, len(out))
	for _, l := range out {
		ids = append(ids, l.CartID)
	}
	assert.Equal(t, []string{"x", "fresh", "y", "x-r"}, ids)
}

func TestSecondBundleSeesRentalsHeldByTheFirst(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx := testContext(1)
	days := threeDays().Days()

	productZ := domain.Product{ID: "Z", TenantID: tenant, CategoryID: "accessories", PriceSell: 40, CanSell: true}
	second := domain.BundleDefinition{
		ID:        "soiree",
		TenantID:  tenant,
		Name:      "Soiree",
		Items:     []domain.BundleItem{{ProductID: "Z", Quantity: 1}, {ProductID: "Y", Quantity: 1}},
		Discount:  domain.Percentage(10),
		AppliesTo: []domain.OperationType{domain.OperationSale, domain.OperationRental},
	}
	lines := []domain.CartLine{
		newLine("x", productX, domain.OperationSale, 1, gold, days),
		newLine("y", productY, domain.OperationRental, 2, black, days),
		newLine("z", productZ, domain.OperationSale, 1, gold, days),
	}

	first, elig := engine.Apply(lines, fixedBundle, ctx)
	require.True(t, elig.Eligible)
	assert.Equal(t, 1, elig.PossibleCount)

	elig = engine.Detect(first, second, ctx)
	assert.False(t, elig.Eligible, "the only Y unit already belongs to the first bundle")
	assert.Equal(t, domain.EligibilityAvailability, elig.Reason)
	require.Len(t, elig.AvailabilityIssues, 1)
	assert.Equal(t, "Y", elig.AvailabilityIssues[0].ProductID)
	assert.Equal(t, 1, elig.AvailabilityIssues[0].Required)
	assert.Zero(t, elig.AvailabilityIssues[0].AvailableCount)

	roomy := testContext(2)
	elig = engine.Detect(first, second, roomy)
	assert.True(t, elig.Eligible, "a second unit frees the rental for the next bundle")
}

func TestStripRestoresBaseCart(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx := testContext(1)
	lines := scenarioCart(2, 1)

	out, _ := engine.Apply(lines, fixedBundle, ctx)
	base := engine.Strip(out, ctx)

	require.Len(t, base, 2)
	assert.Equal(t, "x", base[0].CartID)
	assert.Equal(t, 2, base[0].Quantity)
	assert.InDelta(t, 60.0, base[0].UnitPrice, 1e-9)
	assert.InDelta(t, 120.0, base[0].Subtotal, 1e-9)
	for _, l := range base {
		assert.Empty(t, l.BundleID)
		assert.Empty(t, l.BundleDefinitionID)
		assert.Zero(t, l.DiscountAmount)
	}
}

func TestStripRepricesWithStandardPromotions(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx := testContext(1)
	ctx.Promotions = []domain.Promotion{{
		ID: "rent10", Name: "Rental 10%", Type: domain.PromotionStandard,
		Discount: domain.Percentage(10), Scope: domain.CategoryScope("gowns"),
		AppliesTo: []domain.OperationType{domain.OperationRental}, Active: true,
	}}

	out, _ := engine.Apply(scenarioCart(1, 1), fixedBundle, ctx)
	base := engine.Strip(out, ctx)

	assert.Equal(t, "rent10", base[1].AppliedPromotionID)
	assert.InDelta(t, 72.0, base[1].UnitPrice, 1e-9)
	assert.InDelta(t, 216.0, base[1].Subtotal, 1e-9)
}

func TestReapplyIsIdempotent(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx := testContext(2)

	first, _ := engine.Apply(engine.Strip(scenarioCart(3, 2), ctx), fixedBundle, ctx)
	second, _ := engine.Apply(engine.Strip(first, ctx), fixedBundle, ctx)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].CartID, second[i].CartID, "line ids survive re-evaluation")
		assert.Equal(t, first[i].Product.ID, second[i].Product.ID)
		assert.Equal(t, first[i].Quantity, second[i].Quantity)
		assert.InDelta(t, first[i].UnitPrice, second[i].UnitPrice, 1e-9)
		assert.Equal(t, first[i].BundleID == "", second[i].BundleID == "")
	}
}

func TestSameKey(t *testing.T) {
	a := scenarioCart(1, 1)[0]
	b := a.Clone()
	b.CartID = "other"
	assert.True(t, SameKey(a, b))

	b.UnitPrice = 59
	assert.False(t, SameKey(a, b))

	c := a.Clone()
	c.Variant = black
	assert.False(t, SameKey(a, c))
}
