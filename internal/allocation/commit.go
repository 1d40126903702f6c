package allocation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"atelierpos/internal/domain"
	"atelierpos/internal/store"
)

// Plan is a confirmed allocation ready to be committed.
type Plan struct {
	TenantID  string               `json:"tenant_id"`
	ProductID string               `json:"product_id"`
	Variant   domain.Variant       `json:"variant"`
	BranchID  string               `json:"branch_id"`
	Operation domain.OperationType `json:"operation"`
	// Range is required for rentals; the commit records a commitment for it.
	Range domain.DateRange `json:"range"`
	Items []Item           `json:"items"`
}

func (p Plan) Quantity() int {
	total := 0
	for _, item := range p.Items {
		total += item.Quantity
	}
	return total
}

type Receipt struct {
	Units       []string          `json:"units,omitempty"`
	Lots        map[string]int    `json:"lots,omitempty"`
	Commitments []string          `json:"commitments,omitempty"`
	Status      domain.UnitStatus `json:"status,omitempty"`
}

type Committer struct {
	writer store.InventoryWriter
	logger *zap.Logger
}

func NewCommitter(writer store.InventoryWriter, logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{writer: writer, logger: logger}
}

// Commit applies a plan. Sales mark units sold and draw lots down. Rentals
// leave units and lots untouched and record one date-range commitment per
// branch the items come from; the commitments alone take the stock out of
// the free pool for those dates. Any failure rolls back the mutations
// already applied.
func (c *Committer) Commit(ctx context.Context, plan Plan) (Receipt, error) {
	if err := validatePlan(plan); err != nil {
		return Receipt{}, err
	}

	var undo []func() error
	rollback := func(cause error) error {
		for i := len(undo) - 1; i >= 0; i-- {
			if err := undo[i](); err != nil {
				c.logger.Error("allocation rollback step failed", zap.String("product_id", plan.ProductID), zap.Error(err))
				cause = errors.Join(cause, err)
			}
		}
		return cause
	}

	if plan.Operation == domain.OperationRental {
		receipt := Receipt{Lots: map[string]int{}}
		for _, item := range plan.Items {
			if item.Kind == ItemUnit {
				receipt.Units = append(receipt.Units, item.StockID)
			} else {
				receipt.Lots[item.StockID] += item.Quantity
			}
		}
		for _, held := range groupByBranch(plan) {
			commitment, err := c.writer.CreateCommitment(ctx, held)
			if err != nil {
				return Receipt{}, rollback(fmt.Errorf("record commitment at %s: %w", held.BranchID, err))
			}
			id := commitment.ID
			undo = append(undo, func() error {
				return c.writer.ReleaseCommitment(ctx, id)
			})
			receipt.Commitments = append(receipt.Commitments, id)
		}
		c.logCommit(plan, receipt)
		return receipt, nil
	}

	receipt := Receipt{Status: domain.UnitSold, Lots: map[string]int{}}
	for _, item := range plan.Items {
		switch item.Kind {
		case ItemUnit:
			if err := c.writer.SetUnitStatus(ctx, item.StockID, domain.UnitSold); err != nil {
				return Receipt{}, rollback(fmt.Errorf("set unit %s %s: %w", item.StockID, domain.UnitSold, err))
			}
			unitID, prior := item.StockID, item.PriorStatus
			undo = append(undo, func() error {
				return c.writer.SetUnitStatus(ctx, unitID, prior)
			})
			receipt.Units = append(receipt.Units, unitID)
		case ItemLot:
			if err := c.writer.AdjustLotQuantity(ctx, item.StockID, -item.Quantity); err != nil {
				return Receipt{}, rollback(fmt.Errorf("draw lot %s by %d: %w", item.StockID, item.Quantity, err))
			}
			lotID, qty := item.StockID, item.Quantity
			undo = append(undo, func() error {
				return c.writer.AdjustLotQuantity(ctx, lotID, qty)
			})
			receipt.Lots[lotID] += qty
		}
	}
	c.logCommit(plan, receipt)
	return receipt, nil
}

func (c *Committer) logCommit(plan Plan, receipt Receipt) {
	c.logger.Info("allocation committed",
		zap.String("product_id", plan.ProductID),
		zap.String("operation", string(plan.Operation)),
		zap.Int("quantity", plan.Quantity()),
		zap.Strings("commitments", receipt.Commitments),
	)
}

// groupByBranch builds one commitment per source branch, in the order the
// branches first appear in the plan. Items without a branch count against
// the plan's branch.
func groupByBranch(plan Plan) []domain.Commitment {
	var out []domain.Commitment
	index := map[string]int{}
	for _, item := range plan.Items {
		branchID := item.BranchID
		if branchID == "" {
			branchID = plan.BranchID
		}
		i, ok := index[branchID]
		if !ok {
			i = len(out)
			index[branchID] = i
			out = append(out, domain.Commitment{
				TenantID:  plan.TenantID,
				Kind:      domain.CommitmentReservation,
				ProductID: plan.ProductID,
				Variant:   plan.Variant,
				BranchID:  branchID,
				Range:     plan.Range,
			})
		}
		out[i].Quantity += item.Quantity
		if item.Kind == ItemUnit {
			out[i].UnitIDs = append(out[i].UnitIDs, item.StockID)
		}
	}
	return out
}

func validatePlan(plan Plan) error {
	if plan.ProductID == "" || !plan.Operation.Valid() || len(plan.Items) == 0 {
		return store.ErrInvalidTransaction
	}
	if plan.Operation == domain.OperationRental && !plan.Range.Valid() {
		return fmt.Errorf("rental commit needs a date range: %w", store.ErrInvalidTransaction)
	}
	seen := make(map[string]struct{}, len(plan.Items))
	for _, item := range plan.Items {
		if item.StockID == "" || item.Quantity < 1 {
			return store.ErrInvalidTransaction
		}
		if item.Kind == ItemUnit {
			if item.Quantity != 1 {
				return store.ErrInvalidTransaction
			}
			if _, dup := seen[item.StockID]; dup {
				return fmt.Errorf("unit %s listed twice: %w", item.StockID, store.ErrInvalidTransaction)
			}
			seen[item.StockID] = struct{}{}
			if item.PriorStatus == "" {
				return fmt.Errorf("unit %s has no prior status: %w", item.StockID, store.ErrInvalidTransaction)
			}
		} else if item.Kind != ItemLot {
			return store.ErrInvalidTransaction
		}
	}
	return nil
}
