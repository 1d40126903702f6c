package httpapi

import (
	"net/http"
	"strings"

	"atelierpos/internal/domain"
	"atelierpos/internal/service"
)

type createCartBody struct {
	BranchID string    `json:"branch_id"`
	Range    rangeBody `json:"range"`
}

func (a *API) handleCreateCart(w http.ResponseWriter, r *http.Request) {
	var body createCartBody
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &body); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	dates, err := body.Range.parse()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.CreateCart(r.Context(), service.CreateCartRequest{
		BranchID: strings.TrimSpace(body.BranchID),
		Range:    dates,
	})
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.GetCart(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteCart(r.Context(), r.PathValue("id")); err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addItemBody struct {
	ProductID      string               `json:"product_id"`
	Operation      domain.OperationType `json:"operation"`
	Quantity       int                  `json:"quantity"`
	Size           string               `json:"size"`
	Color          string               `json:"color"`
	SelectedCodes  []string             `json:"selected_codes"`
	DiscountReason string               `json:"discount_reason"`
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var body addItemBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}

	view, err := a.service.AddCartItem(r.Context(), r.PathValue("id"), service.AddItemRequest{
		ProductID:      strings.TrimSpace(body.ProductID),
		Operation:      body.Operation,
		Quantity:       body.Quantity,
		Variant:        domain.Variant{Size: strings.TrimSpace(body.Size), Color: strings.TrimSpace(body.Color)},
		SelectedCodes:  trimmed(body.SelectedCodes),
		DiscountReason: strings.TrimSpace(body.DiscountReason),
	})
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.UpdateCartItem(r.Context(), r.PathValue("id"), r.PathValue("line"), body.Quantity)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.RemoveCartItem(r.Context(), r.PathValue("id"), r.PathValue("line"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleSetDates(w http.ResponseWriter, r *http.Request) {
	var body rangeBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	dates, err := body.parse()
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	view, err := a.service.SetCartDates(r.Context(), r.PathValue("id"), dates)
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleApplyBundle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PromotionID string `json:"promotion_id"`
	}
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(body.PromotionID) == "" {
		a.writeError(w, http.StatusBadRequest, service.ErrInvalidRequest)
		return
	}

	res, err := a.service.ApplyBundle(r.Context(), r.PathValue("id"), strings.TrimSpace(body.PromotionID))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleClearBundles(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.ClearCartBundles(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleBundleEligibility(w http.ResponseWriter, r *http.Request) {
	eligibility, err := a.service.BundleEligibility(r.Context(), r.PathValue("id"), r.PathValue("promotion"))
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}
