// Package availability answers how many units of a product variant are free
// for a date range. It reads an inventory snapshot and never mutates it.
package availability

import (
	"time"

	"atelierpos/internal/domain"
)

const ReasonVariantRequired = "variant_required"

type Query struct {
	ProductID string
	Variant   domain.Variant
	// BranchID scopes capacity and commitments to one branch when set.
	BranchID  string
	Range     domain.DateRange
	Operation domain.OperationType
	Quantity  int
}

type Result struct {
	Available      bool   `json:"available"`
	AvailableCount int    `json:"available_count"`
	TotalCapacity  int    `json:"total_capacity"`
	Occupied       int    `json:"occupied"`
	Reason         string `json:"reason,omitempty"`
}

type DayAvailability struct {
	Date           time.Time `json:"date"`
	AvailableCount int       `json:"available_count"`
	Occupied       int       `json:"occupied"`
}

type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

func (c *Checker) Check(snapshot domain.Snapshot, q Query) Result {
	if !q.Variant.Complete() {
		return Result{Available: false, Reason: ReasonVariantRequired}
	}

	capacity := Capacity(snapshot, q.ProductID, q.Variant, q.BranchID, q.Operation)
	occupied := Occupied(snapshot, q.ProductID, q.Variant, q.BranchID, q.Range)
	count := max(capacity-occupied, 0)

	res := Result{
		Available:      count >= q.Quantity,
		AvailableCount: count,
		TotalCapacity:  capacity,
		Occupied:       occupied,
	}
	if !res.Available {
		res.Reason = "insufficient_stock"
	}
	return res
}

// Calendar reports the free count for every day of the range, the per-day
// view used by the availability heatmap.
func (c *Checker) Calendar(snapshot domain.Snapshot, productID string, variant domain.Variant, branchID string, op domain.OperationType, r domain.DateRange) []DayAvailability {
	if !variant.Complete() || !r.Valid() {
		return nil
	}

	capacity := Capacity(snapshot, productID, variant, branchID, op)
	days := make([]DayAvailability, 0, r.Days()+1)
	r.EachDay(func(day time.Time) {
		occupied := Occupied(snapshot, productID, variant, branchID, domain.DateRange{Start: day, End: day})
		days = append(days, DayAvailability{
			Date:           day,
			AvailableCount: max(capacity-occupied, 0),
			Occupied:       occupied,
		})
	})
	return days
}

// Capacity sums the physical units still in the pool and the lot quantities
// eligible for the operation.
func Capacity(snapshot domain.Snapshot, productID string, variant domain.Variant, branchID string, op domain.OperationType) int {
	total := 0
	for _, unit := range snapshot.Units {
		if unit.ProductID != productID || unit.Variant != variant {
			continue
		}
		if branchID != "" && unit.BranchID != branchID {
			continue
		}
		if !unit.Status.InPool() || !unit.Eligible(op) {
			continue
		}
		total++
	}
	for _, lot := range snapshot.Lots {
		if lot.ProductID != productID || lot.Variant != variant {
			continue
		}
		if branchID != "" && lot.BranchID != branchID {
			continue
		}
		if !lot.Eligible(op) || lot.Quantity < 1 {
			continue
		}
		total += lot.Quantity
	}
	return total
}

// Occupied sums active commitments for the variant overlapping r.
func Occupied(snapshot domain.Snapshot, productID string, variant domain.Variant, branchID string, r domain.DateRange) int {
	total := 0
	for _, c := range snapshot.Commitments {
		if !c.Active || c.ProductID != productID || c.Variant != variant {
			continue
		}
		if branchID != "" && c.BranchID != branchID {
			continue
		}
		if c.Range.Overlaps(r) {
			total += max(c.Quantity, 0)
		}
	}
	return total
}
