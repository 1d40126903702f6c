package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"atelierpos/internal/allocation"
	"atelierpos/internal/availability"
	"atelierpos/internal/domain"
	"atelierpos/internal/store"
)

type AvailabilityRequest struct {
	ProductID string               `json:"product_id"`
	Variant   domain.Variant       `json:"variant"`
	BranchID  string               `json:"branch_id,omitempty"`
	Range     domain.DateRange     `json:"range"`
	Operation domain.OperationType `json:"operation"`
	Quantity  int                  `json:"quantity"`
}

func (s *Service) CheckAvailability(ctx context.Context, req AvailabilityRequest) (availability.Result, error) {
	if req.Quantity < 1 {
		req.Quantity = 1
	}
	if req.Operation == "" {
		req.Operation = domain.OperationRental
	}
	if !req.Operation.Valid() || (!req.Range.IsZero() && !req.Range.Valid()) {
		return availability.Result{}, ErrInvalidRequest
	}
	if _, err := s.product(ctx, req.ProductID); err != nil {
		return availability.Result{}, err
	}

	snapshot, err := s.loadSnapshot(ctx, store.Filter{ProductID: req.ProductID})
	if err != nil {
		return availability.Result{}, err
	}
	return s.checker.Check(snapshot, availability.Query{
		ProductID: req.ProductID,
		Variant:   req.Variant,
		BranchID:  req.BranchID,
		Range:     req.Range,
		Operation: req.Operation,
		Quantity:  req.Quantity,
	}), nil
}

// Calendar returns the per-day free count for a variant. An empty variant
// yields no days, mirroring the variant requirement of Check.
func (s *Service) Calendar(ctx context.Context, req AvailabilityRequest) ([]availability.DayAvailability, error) {
	if !req.Range.Valid() {
		return nil, ErrInvalidRequest
	}
	if req.Range.Days() > 366 {
		return nil, fmt.Errorf("calendar spans more than a year: %w", ErrInvalidRequest)
	}
	if req.Operation == "" {
		req.Operation = domain.OperationRental
	}
	if _, err := s.product(ctx, req.ProductID); err != nil {
		return nil, err
	}

	snapshot, err := s.loadSnapshot(ctx, store.Filter{ProductID: req.ProductID})
	if err != nil {
		return nil, err
	}
	days := s.checker.Calendar(snapshot, req.ProductID, req.Variant, req.BranchID, req.Operation, req.Range)
	if days == nil {
		days = []availability.DayAvailability{}
	}
	return days, nil
}

type AllocationRequest struct {
	ProductID string               `json:"product_id"`
	Variant   domain.Variant       `json:"variant"`
	BranchID  string               `json:"branch_id,omitempty"`
	Operation domain.OperationType `json:"operation"`
	Quantity  int                  `json:"quantity"`
	UnitIDs   []string             `json:"unit_ids,omitempty"`
	// Auto searches every branch and tolerates a partial assignment.
	Auto  bool             `json:"auto,omitempty"`
	Range domain.DateRange `json:"range"`
}

// PreviewAllocation picks stock without touching inventory. Rentals with a
// date range only draw on what overlapping commitments leave free.
func (s *Service) PreviewAllocation(ctx context.Context, req AllocationRequest) (allocation.Result, error) {
	product, err := s.product(ctx, req.ProductID)
	if err != nil {
		return allocation.Result{}, err
	}
	if req.BranchID == "" {
		req.BranchID = s.branchID
	}

	snapshot, err := s.loadSnapshot(ctx, store.Filter{ProductID: product.ID})
	if err != nil {
		return allocation.Result{}, err
	}

	allocReq := allocation.Request{
		Product:       product,
		Quantity:      req.Quantity,
		Operation:     req.Operation,
		BranchID:      req.BranchID,
		Variant:       req.Variant,
		ManualUnitIDs: req.UnitIDs,
		Range:         req.Range,
	}
	if req.Auto {
		return s.allocator.AutoAllocate(snapshot, allocReq), nil
	}
	return s.allocator.Allocate(snapshot, allocReq), nil
}

type CommitResult struct {
	Allocation allocation.Result  `json:"allocation"`
	Receipt    allocation.Receipt `json:"receipt"`
}

// CommitAllocation re-runs the preview against fresh inventory and applies
// it. Partial automatic assignments are committed for what was found.
func (s *Service) CommitAllocation(ctx context.Context, req AllocationRequest) (CommitResult, error) {
	res, err := s.PreviewAllocation(ctx, req)
	if err != nil {
		return CommitResult{}, err
	}
	if !res.Success && !res.Partial {
		return CommitResult{Allocation: res}, fmt.Errorf("%s: %w", res.Error, ErrAllocationFailed)
	}
	if len(res.Items) == 0 {
		return CommitResult{Allocation: res}, fmt.Errorf("nothing to commit: %w", ErrAllocationFailed)
	}

	branchID := req.BranchID
	if branchID == "" {
		branchID = s.branchID
	}
	if branchID == "" {
		branchID = res.Items[0].BranchID
	}

	receipt, err := s.committer.Commit(ctx, allocation.Plan{
		TenantID:  s.tenantID,
		ProductID: req.ProductID,
		Variant:   req.Variant,
		BranchID:  branchID,
		Operation: req.Operation,
		Range:     req.Range,
		Items:     res.Items,
	})
	if err != nil {
		s.logger.Error("allocation commit failed",
			zap.String("product_id", req.ProductID),
			zap.String("operation", string(req.Operation)),
			zap.Error(err),
		)
		return CommitResult{Allocation: res}, err
	}
	return CommitResult{Allocation: res, Receipt: receipt}, nil
}

// ReleaseCommitment ends a reservation or rental, on return or cancellation,
// and gives its stock back to the free pool for those dates.
func (s *Service) ReleaseCommitment(ctx context.Context, commitmentID string) error {
	commitments, err := s.repo.ListCommitments(ctx, store.Filter{TenantID: s.tenantID})
	if err != nil {
		return fmt.Errorf("list commitments: %w", err)
	}
	found := false
	for _, c := range commitments {
		if c.ID == commitmentID {
			found = true
			break
		}
	}
	if !found {
		return store.ErrNotFound
	}
	if err := s.repo.ReleaseCommitment(ctx, commitmentID); err != nil {
		return err
	}
	s.logger.Info("commitment released", zap.String("commitment_id", commitmentID))
	return nil
}
