package domain

import "time"

type OperationType string

const (
	OperationSale   OperationType = "sale"
	OperationRental OperationType = "rental"
)

func (o OperationType) Valid() bool {
	return o == OperationSale || o == OperationRental
}

type RentalUnit string

const (
	RentPerEvent RentalUnit = "per_event"
	RentPerDay   RentalUnit = "per_day"
)

type Product struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Name       string     `json:"name"`
	CategoryID string     `json:"category_id"`
	IsSerial   bool       `json:"is_serial"`
	PriceSell  float64    `json:"price_sell"`
	PriceRent  float64    `json:"price_rent"`
	RentUnit   RentalUnit `json:"rent_unit"`
	CanSell    bool       `json:"can_sell"`
	CanRent    bool       `json:"can_rent"`
}

// ListPrice is the catalogue price for one unit under the given operation.
func (p Product) ListPrice(op OperationType) float64 {
	if op == OperationRental {
		return p.PriceRent
	}
	return p.PriceSell
}

func (p Product) Supports(op OperationType) bool {
	switch op {
	case OperationSale:
		return p.CanSell
	case OperationRental:
		return p.CanRent
	default:
		return false
	}
}

// RentalMultiplier is 1 for sales and per-event rentals, and the billed day
// count for per-day rentals.
func RentalMultiplier(p Product, op OperationType, days int) float64 {
	if op != OperationRental || p.RentUnit != RentPerDay {
		return 1
	}
	return float64(max(days, 1))
}

type Variant struct {
	Size  string `json:"size"`
	Color string `json:"color"`
}

func (v Variant) Complete() bool {
	return v.Size != "" && v.Color != ""
}

type UnitStatus string

const (
	UnitAvailable   UnitStatus = "available"
	UnitReserved    UnitStatus = "reserved"
	UnitRented      UnitStatus = "rented"
	UnitSold        UnitStatus = "sold"
	UnitMaintenance UnitStatus = "maintenance"
	UnitLaundry     UnitStatus = "laundry"
	UnitRetired     UnitStatus = "retired"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case UnitAvailable, UnitReserved, UnitRented, UnitSold, UnitMaintenance, UnitLaundry, UnitRetired:
		return true
	default:
		return false
	}
}

// InPool reports whether a unit with this status still counts towards the
// physical capacity used for date-range availability. Reserved and rented
// units are returned to the pool outside their commitment window.
func (s UnitStatus) InPool() bool {
	switch s {
	case UnitAvailable, UnitReserved, UnitRented, UnitLaundry:
		return true
	default:
		return false
	}
}

// StockUnit is one physical garment of a serialized product.
type StockUnit struct {
	ID        string     `json:"id"`
	Code      string     `json:"code"`
	TenantID  string     `json:"tenant_id"`
	ProductID string     `json:"product_id"`
	Variant   Variant    `json:"variant"`
	BranchID  string     `json:"branch_id"`
	Status    UnitStatus `json:"status"`
	IsForSale bool       `json:"is_for_sale"`
	IsForRent bool       `json:"is_for_rent"`
}

func (u StockUnit) Eligible(op OperationType) bool {
	return eligible(op, u.IsForSale, u.IsForRent)
}

// StockLot is a quantity bucket of a bulk product variant at a branch.
type StockLot struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	ProductID string    `json:"product_id"`
	Variant   Variant   `json:"variant"`
	BranchID  string    `json:"branch_id"`
	Quantity  int       `json:"quantity"`
	IsForSale bool      `json:"is_for_sale"`
	IsForRent bool      `json:"is_for_rent"`
	CreatedAt time.Time `json:"created_at"`
}

func (l StockLot) Eligible(op OperationType) bool {
	return eligible(op, l.IsForSale, l.IsForRent)
}

func eligible(op OperationType, forSale bool, forRent bool) bool {
	switch op {
	case OperationSale:
		return forSale
	case OperationRental:
		return forRent
	default:
		return false
	}
}

type CommitmentKind string

const (
	CommitmentReservation CommitmentKind = "reservation"
	CommitmentRental      CommitmentKind = "rental"
)

// Commitment is a reservation or rental occupying stock for a date range.
// It only feeds availability math and never owns stock. UnitIDs names the
// serialized units it holds; lot-backed commitments leave it empty.
type Commitment struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Kind      CommitmentKind `json:"kind"`
	ProductID string         `json:"product_id"`
	Variant   Variant        `json:"variant"`
	BranchID  string         `json:"branch_id"`
	Range     DateRange      `json:"range"`
	Quantity  int            `json:"quantity"`
	UnitIDs   []string       `json:"unit_ids,omitempty"`
	Active    bool           `json:"active"`
}

// Snapshot is the read-only inventory view handed to the pricing, bundle,
// availability and allocation engines.
type Snapshot struct {
	Units       []StockUnit  `json:"units"`
	Lots        []StockLot   `json:"lots"`
	Commitments []Commitment `json:"commitments"`
}

func (s Snapshot) UnitByID(id string) (StockUnit, bool) {
	for _, unit := range s.Units {
		if unit.ID == id {
			return unit, true
		}
	}
	return StockUnit{}, false
}

func (s Snapshot) LotByID(id string) (StockLot, bool) {
	for _, lot := range s.Lots {
		if lot.ID == id {
			return lot, true
		}
	}
	return StockLot{}, false
}
