package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"atelierpos/internal/domain"
	"atelierpos/internal/service"
)

const dateLayout = "2006-01-02"

// rangeBody accepts plain dates ("2026-06-10") or RFC 3339 timestamps.
type rangeBody struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (b rangeBody) parse() (domain.DateRange, error) {
	if strings.TrimSpace(b.Start) == "" && strings.TrimSpace(b.End) == "" {
		return domain.DateRange{}, nil
	}
	start, err := parseDay(b.Start)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("start: %w", err)
	}
	end, err := parseDay(b.End)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("end: %w", err)
	}
	r := domain.NewDateRange(start, end)
	if !r.Valid() {
		return domain.DateRange{}, fmt.Errorf("end before start: %w", service.ErrInvalidRequest)
	}
	return r, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", raw, service.ErrInvalidRequest)
	}
	return t, nil
}

type availabilityBody struct {
	ProductID string               `json:"product_id"`
	Size      string               `json:"size"`
	Color     string               `json:"color"`
	BranchID  string               `json:"branch_id"`
	Operation domain.OperationType `json:"operation"`
	Quantity  int                  `json:"quantity"`
	Range     rangeBody            `json:"range"`
}

func (b availabilityBody) request() (service.AvailabilityRequest, error) {
	r, err := b.Range.parse()
	if err != nil {
		return service.AvailabilityRequest{}, err
	}
	return service.AvailabilityRequest{
		ProductID: strings.TrimSpace(b.ProductID),
		Variant:   domain.Variant{Size: strings.TrimSpace(b.Size), Color: strings.TrimSpace(b.Color)},
		BranchID:  strings.TrimSpace(b.BranchID),
		Range:     r,
		Operation: b.Operation,
		Quantity:  b.Quantity,
	}, nil
}

func (a *API) handleAvailabilityCheck(w http.ResponseWriter, r *http.Request) {
	var body availabilityBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.request()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.service.CheckAvailability(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAvailabilityCalendar(w http.ResponseWriter, r *http.Request) {
	var body availabilityBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.request()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	days, err := a.service.Calendar(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days})
}

type allocationBody struct {
	availabilityBody
	UnitIDs []string `json:"unit_ids"`
	Auto    bool     `json:"auto"`
}

func (b allocationBody) request() (service.AllocationRequest, error) {
	base, err := b.availabilityBody.request()
	if err != nil {
		return service.AllocationRequest{}, err
	}
	return service.AllocationRequest{
		ProductID: base.ProductID,
		Variant:   base.Variant,
		BranchID:  base.BranchID,
		Operation: base.Operation,
		Quantity:  base.Quantity,
		UnitIDs:   trimmed(b.UnitIDs),
		Auto:      b.Auto,
		Range:     base.Range,
	}, nil
}

func (a *API) handleAllocationPreview(w http.ResponseWriter, r *http.Request) {
	var body allocationBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.request()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.service.PreviewAllocation(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleAllocationCommit(w http.ResponseWriter, r *http.Request) {
	var body allocationBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := body.request()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := a.service.CommitAllocation(r.Context(), req)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleReleaseCommitment ends a reservation when the stock comes back or
// the booking is cancelled.
func (a *API) handleReleaseCommitment(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ReleaseCommitment(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
