// Package allocation picks the physical units or lot quantities that satisfy
// a requested quantity. Allocation is a preview; Committer is the only code
// that turns a plan into inventory mutations.
package allocation

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"atelierpos/internal/availability"
	"atelierpos/internal/domain"
)

type ItemKind string

const (
	ItemUnit ItemKind = "unit"
	ItemLot  ItemKind = "lot"
)

type Item struct {
	StockID     string            `json:"stock_id"`
	Code        string            `json:"code,omitempty"`
	Kind        ItemKind          `json:"kind"`
	BranchID    string            `json:"branch_id"`
	Quantity    int               `json:"quantity"`
	PriorStatus domain.UnitStatus `json:"prior_status,omitempty"`
}

type Request struct {
	Product       domain.Product
	Quantity      int
	Operation     domain.OperationType
	BranchID      string
	Variant       domain.Variant
	ManualUnitIDs []string
	// Range bounds a rental. When set, each branch can only give what its
	// overlapping commitments leave free.
	Range domain.DateRange
}

type Result struct {
	Success   bool   `json:"success"`
	Partial   bool   `json:"partial,omitempty"`
	Items     []Item `json:"items"`
	Allocated int    `json:"allocated"`
	Error     string `json:"error,omitempty"`
	Warning   string `json:"warning,omitempty"`
}

func (r Result) Total() int {
	total := 0
	for _, item := range r.Items {
		total += item.Quantity
	}
	return total
}

type Allocator struct{}

func NewAllocator() *Allocator {
	return &Allocator{}
}

// Allocate validates manual serial assignments or consumes bulk lots in FIFO
// order at the requested branch. It fails without partial output.
func (a *Allocator) Allocate(snapshot domain.Snapshot, req Request) Result {
	if err := validateRequest(req); err != "" {
		return Result{Error: err}
	}

	units, lots := candidates(snapshot, req, req.BranchID)
	budget := newRentalBudget(snapshot, req)
	available := totalAvailable(req.Product, units, lots, budget)
	if available < req.Quantity {
		return Result{Error: fmt.Sprintf("insufficient stock: requested %d, available %d", req.Quantity, available)}
	}

	if req.Product.IsSerial {
		return allocateManualUnits(units, req, budget)
	}

	slices.SortFunc(lots, func(x, y domain.StockLot) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})

	items := consumeLots(lots, req.Quantity, budget)
	return Result{Success: true, Items: items, Allocated: req.Quantity}
}

// AutoAllocate is used for reservations. Candidates from every branch are
// ranked current branch first; bulk lots prefer the largest buckets so the
// assignment touches fewer lots. A shortfall yields a partial plan with a
// warning instead of an error.
func (a *Allocator) AutoAllocate(snapshot domain.Snapshot, req Request) Result {
	if err := validateRequest(req); err != "" {
		return Result{Error: err}
	}

	units, lots := candidates(snapshot, req, "")
	budget := newRentalBudget(snapshot, req)
	branchRank := func(branchID string) int {
		if branchID == req.BranchID {
			return 0
		}
		return 1
	}

	var items []Item
	if req.Product.IsSerial {
		slices.SortFunc(units, func(x, y domain.StockUnit) int {
			return cmp.Or(
				cmp.Compare(branchRank(x.BranchID), branchRank(y.BranchID)),
				strings.Compare(x.BranchID, y.BranchID),
				strings.Compare(x.Code, y.Code),
				strings.Compare(x.ID, y.ID),
			)
		})
		used := make(map[string]struct{}, req.Quantity)
		for range req.Quantity {
			for _, unit := range units {
				if _, taken := used[unit.ID]; taken {
					continue
				}
				if budget.take(unit.BranchID, 1) < 1 {
					continue
				}
				used[unit.ID] = struct{}{}
				items = append(items, unitItem(unit))
				break
			}
		}
	} else {
		slices.SortFunc(lots, func(x, y domain.StockLot) int {
			return cmp.Or(
				cmp.Compare(branchRank(x.BranchID), branchRank(y.BranchID)),
				strings.Compare(x.BranchID, y.BranchID),
				cmp.Compare(y.Quantity, x.Quantity),
				x.CreatedAt.Compare(y.CreatedAt),
				strings.Compare(x.ID, y.ID),
			)
		})
		items = consumeLots(lots, req.Quantity, budget)
	}

	res := Result{Items: items}
	res.Allocated = res.Total()
	if res.Allocated < req.Quantity {
		res.Partial = true
		res.Warning = fmt.Sprintf("only %d of %d units could be assigned", res.Allocated, req.Quantity)
		return res
	}
	res.Success = true
	return res
}

func validateRequest(req Request) string {
	if req.Product.ID == "" {
		return "product is required"
	}
	if req.Quantity < 1 {
		return "quantity must be at least 1"
	}
	if !req.Operation.Valid() {
		return fmt.Sprintf("unsupported operation %q", req.Operation)
	}
	if !req.Variant.Complete() {
		return "size and color are required"
	}
	return ""
}

func allocateManualUnits(units []domain.StockUnit, req Request, budget *rentalBudget) Result {
	if len(req.ManualUnitIDs) != req.Quantity {
		return Result{Error: fmt.Sprintf("missing serial assignment: expected %d unit ids, got %d", req.Quantity, len(req.ManualUnitIDs))}
	}

	byID := make(map[string]domain.StockUnit, len(units))
	for _, unit := range units {
		byID[unit.ID] = unit
	}

	seen := make(map[string]struct{}, len(req.ManualUnitIDs))
	items := make([]Item, 0, len(req.ManualUnitIDs))
	for _, id := range req.ManualUnitIDs {
		if _, dup := seen[id]; dup {
			return Result{Error: fmt.Sprintf("unit %s assigned more than once", id)}
		}
		seen[id] = struct{}{}

		unit, ok := byID[id]
		if !ok {
			return Result{Error: fmt.Sprintf("unit %s not available", id)}
		}
		if budget.take(unit.BranchID, 1) < 1 {
			return Result{Error: fmt.Sprintf("unit %s not available: branch %s is fully booked for the dates", id, unit.BranchID)}
		}
		items = append(items, unitItem(unit))
	}
	return Result{Success: true, Items: items, Allocated: len(items)}
}

func consumeLots(lots []domain.StockLot, quantity int, budget *rentalBudget) []Item {
	remaining := quantity
	items := make([]Item, 0, len(lots))
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := budget.take(lot.BranchID, min(remaining, lot.Quantity))
		if take < 1 {
			continue
		}
		items = append(items, Item{
			StockID:  lot.ID,
			Kind:     ItemLot,
			BranchID: lot.BranchID,
			Quantity: take,
		})
		remaining -= take
	}
	return items
}

func candidates(snapshot domain.Snapshot, req Request, branchID string) ([]domain.StockUnit, []domain.StockLot) {
	var units []domain.StockUnit
	var lots []domain.StockLot
	held := heldUnits(snapshot, req)
	for _, unit := range snapshot.Units {
		if unit.ProductID != req.Product.ID || unit.Variant != req.Variant {
			continue
		}
		if branchID != "" && unit.BranchID != branchID {
			continue
		}
		if unit.Status != domain.UnitAvailable || !unit.Eligible(req.Operation) {
			continue
		}
		if _, ok := held[unit.ID]; ok {
			continue
		}
		units = append(units, unit)
	}
	for _, lot := range snapshot.Lots {
		if lot.ProductID != req.Product.ID || lot.Variant != req.Variant {
			continue
		}
		if branchID != "" && lot.BranchID != branchID {
			continue
		}
		if lot.Quantity < 1 || !lot.Eligible(req.Operation) {
			continue
		}
		lots = append(lots, lot)
	}
	return units, lots
}

// heldUnits lists units named by active commitments. Rentals with dates only
// avoid the commitments overlapping them; everything else avoids them all.
func heldUnits(snapshot domain.Snapshot, req Request) map[string]struct{} {
	dated := req.Operation == domain.OperationRental && req.Range.Valid()
	held := map[string]struct{}{}
	for _, c := range snapshot.Commitments {
		if !c.Active || c.ProductID != req.Product.ID || len(c.UnitIDs) == 0 {
			continue
		}
		if dated && !c.Range.Overlaps(req.Range) {
			continue
		}
		for _, id := range c.UnitIDs {
			held[id] = struct{}{}
		}
	}
	return held
}

func totalAvailable(product domain.Product, units []domain.StockUnit, lots []domain.StockLot, budget *rentalBudget) int {
	supply := map[string]int{}
	if product.IsSerial {
		for _, unit := range units {
			supply[unit.BranchID]++
		}
	} else {
		for _, lot := range lots {
			supply[lot.BranchID] += lot.Quantity
		}
	}
	total := 0
	for branchID, n := range supply {
		total += min(n, budget.left(branchID))
	}
	return total
}

// rentalBudget tracks how much each branch can still hand out for a dated
// rental: its capacity minus the commitments overlapping the range. A nil
// budget never limits.
type rentalBudget struct {
	snapshot domain.Snapshot
	req      Request
	free     map[string]int
}

func newRentalBudget(snapshot domain.Snapshot, req Request) *rentalBudget {
	if req.Operation != domain.OperationRental || !req.Range.Valid() {
		return nil
	}
	return &rentalBudget{snapshot: snapshot, req: req, free: map[string]int{}}
}

func (b *rentalBudget) left(branchID string) int {
	if b == nil {
		return math.MaxInt
	}
	n, ok := b.free[branchID]
	if !ok {
		capacity := availability.Capacity(b.snapshot, b.req.Product.ID, b.req.Variant, branchID, b.req.Operation)
		occupied := availability.Occupied(b.snapshot, b.req.Product.ID, b.req.Variant, branchID, b.req.Range)
		n = max(capacity-occupied, 0)
		b.free[branchID] = n
	}
	return n
}

// take reserves up to qty from the branch and reports how much it got.
func (b *rentalBudget) take(branchID string, qty int) int {
	qty = min(qty, b.left(branchID))
	if b != nil {
		b.free[branchID] -= qty
	}
	return qty
}

func unitItem(unit domain.StockUnit) Item {
	return Item{
		StockID:     unit.ID,
		Code:        unit.Code,
		Kind:        ItemUnit,
		BranchID:    unit.BranchID,
		Quantity:    1,
		PriorStatus: unit.Status,
	}
}
