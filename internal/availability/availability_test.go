package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelierpos/internal/domain"
)

var black = domain.Variant{Size: "M", Color: "black"}

func jan(d int) time.Time {
	return time.Date(2026, time.January, d, 0, 0, 0, 0, time.UTC)
}

func gownSnapshot() domain.Snapshot {
	units := make([]domain.StockUnit, 0, 3)
	for _, id := range []string{"u1", "u2", "u3"} {
		units = append(units, domain.StockUnit{
			ID: id, Code: id, ProductID: "A", Variant: black, BranchID: "centro",
			Status: domain.UnitAvailable, IsForRent: true, IsForSale: true,
		})
	}
	return domain.Snapshot{
		Units: units,
		Commitments: []domain.Commitment{{
			ID: "c1", ProductID: "A", Variant: black, BranchID: "centro",
			Range: domain.NewDateRange(jan(10), jan(12)), Quantity: 1, Active: true,
		}},
	}
}

func TestCheckOverlappingCommitment(t *testing.T) {
	res := NewChecker().Check(gownSnapshot(), Query{
		ProductID: "A",
		Variant:   black,
		Range:     domain.NewDateRange(jan(11), jan(13)),
		Operation: domain.OperationRental,
		Quantity:  2,
	})

	assert.Equal(t, 3, res.TotalCapacity)
	assert.Equal(t, 1, res.Occupied)
	assert.Equal(t, 2, res.AvailableCount)
	assert.True(t, res.Available, "two free units cover a request for two")
	assert.Empty(t, res.Reason)
}

func TestCheckInsufficient(t *testing.T) {
	res := NewChecker().Check(gownSnapshot(), Query{
		ProductID: "A",
		Variant:   black,
		Range:     domain.NewDateRange(jan(12), jan(12)),
		Operation: domain.OperationRental,
		Quantity:  3,
	})

	assert.False(t, res.Available)
	assert.Equal(t, 2, res.AvailableCount)
	assert.Equal(t, "insufficient_stock", res.Reason)
}

func TestCheckRequiresVariant(t *testing.T) {
	res := NewChecker().Check(gownSnapshot(), Query{
		ProductID: "A",
		Variant:   domain.Variant{Size: "M"},
		Range:     domain.NewDateRange(jan(11), jan(13)),
		Operation: domain.OperationRental,
		Quantity:  1,
	})

	assert.False(t, res.Available)
	assert.Zero(t, res.AvailableCount)
	assert.Equal(t, ReasonVariantRequired, res.Reason)
}

func TestCheckIgnoresInactiveAndOtherVariants(t *testing.T) {
	snap := gownSnapshot()
	snap.Commitments = append(snap.Commitments,
		domain.Commitment{ProductID: "A", Variant: black, Range: domain.NewDateRange(jan(11), jan(11)), Quantity: 2, Active: false},
		domain.Commitment{ProductID: "A", Variant: domain.Variant{Size: "S", Color: "black"}, Range: domain.NewDateRange(jan(11), jan(11)), Quantity: 2, Active: true},
	)
	snap.Units = append(snap.Units,
		domain.StockUnit{ID: "u4", ProductID: "A", Variant: black, Status: domain.UnitSold, IsForRent: true},
		domain.StockUnit{ID: "u5", ProductID: "A", Variant: black, Status: domain.UnitAvailable, IsForSale: true},
	)

	res := NewChecker().Check(snap, Query{ProductID: "A", Variant: black, Range: domain.NewDateRange(jan(11), jan(11)), Operation: domain.OperationRental, Quantity: 1})
	assert.Equal(t, 3, res.TotalCapacity, "sold and sale-only units are outside the rental pool")
	assert.Equal(t, 1, res.Occupied)
}

func TestCheckBranchScope(t *testing.T) {
	snap := gownSnapshot()
	snap.Units[2].BranchID = "norte"

	checker := NewChecker()
	q := Query{ProductID: "A", Variant: black, Range: domain.NewDateRange(jan(11), jan(11)), Operation: domain.OperationRental, Quantity: 1}

	q.BranchID = "norte"
	res := checker.Check(snap, q)
	assert.Equal(t, 1, res.TotalCapacity)
	assert.Zero(t, res.Occupied, "the commitment belongs to centro")
	assert.Equal(t, 1, res.AvailableCount)

	q.BranchID = ""
	res = checker.Check(snap, q)
	assert.Equal(t, 3, res.TotalCapacity)
	assert.Equal(t, 2, res.AvailableCount)
}

func TestCheckCountsLots(t *testing.T) {
	ivory := domain.Variant{Size: "U", Color: "ivory"}
	snap := domain.Snapshot{
		Lots: []domain.StockLot{
			{ID: "l1", ProductID: "clutch", Variant: ivory, Quantity: 5, IsForRent: true},
			{ID: "l2", ProductID: "clutch", Variant: ivory, Quantity: 3, IsForSale: true},
		},
		Commitments: []domain.Commitment{
			{ProductID: "clutch", Variant: ivory, Range: domain.NewDateRange(jan(5), jan(6)), Quantity: 4, Active: true},
		},
	}
	res := NewChecker().Check(snap, Query{ProductID: "clutch", Variant: ivory, Range: domain.NewDateRange(jan(6), jan(8)), Operation: domain.OperationRental, Quantity: 1})

	assert.Equal(t, 5, res.TotalCapacity)
	assert.Equal(t, 1, res.AvailableCount)
}

func TestCheckNeverNegative(t *testing.T) {
	snap := gownSnapshot()
	snap.Commitments[0].Quantity = 10

	res := NewChecker().Check(snap, Query{ProductID: "A", Variant: black, Range: domain.NewDateRange(jan(10), jan(10)), Operation: domain.OperationRental, Quantity: 1})
	assert.Zero(t, res.AvailableCount)
	assert.False(t, res.Available)
}

func TestAvailabilityMonotonicInCommitments(t *testing.T) {
	checker := NewChecker()
	snap := gownSnapshot()
	q := Query{ProductID: "A", Variant: black, Range: domain.NewDateRange(jan(9), jan(15)), Operation: domain.OperationRental, Quantity: 1}

	prev := checker.Check(snap, q).AvailableCount
	for i := range 4 {
		snap.Commitments = append(snap.Commitments, domain.Commitment{
			ProductID: "A", Variant: black, Range: domain.NewDateRange(jan(9+i), jan(9+i)), Quantity: 1, Active: true,
		})
		next := checker.Check(snap, q).AvailableCount
		assert.LessOrEqual(t, next, prev)
		prev = next
	}
}

func TestCalendar(t *testing.T) {
	days := NewChecker().Calendar(gownSnapshot(), "A", black, "", domain.OperationRental, domain.NewDateRange(jan(9), jan(13)))
	require.Len(t, days, 5)

	counts := make([]int, len(days))
	for i, d := range days {
		counts[i] = d.AvailableCount
	}
	assert.Equal(t, []int{3, 2, 2, 2, 3}, counts)
	assert.Equal(t, jan(9), days[0].Date)

	assert.Nil(t, NewChecker().Calendar(gownSnapshot(), "A", domain.Variant{}, "", domain.OperationRental, domain.NewDateRange(jan(9), jan(13))))
}
