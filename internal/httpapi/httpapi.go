package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"atelierpos/internal/cart"
	"atelierpos/internal/domain"
	"atelierpos/internal/service"
	"atelierpos/internal/store"
)

type API struct {
	service       *service.Service
	logger        *zap.Logger
	allowedOrigin string
}

func New(svc *service.Service, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		logger:        logger,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", a.handleHealth)

	mux.HandleFunc("GET /api/v1/products", a.handleProducts)
	mux.HandleFunc("GET /api/v1/promotions", a.handlePromotions)
	mux.HandleFunc("POST /api/v1/promotions", a.handleCreatePromotion)

	mux.HandleFunc("POST /api/v1/availability/check", a.handleAvailabilityCheck)
	mux.HandleFunc("POST /api/v1/availability/calendar", a.handleAvailabilityCalendar)

	mux.HandleFunc("POST /api/v1/allocations/preview", a.handleAllocationPreview)
	mux.HandleFunc("POST /api/v1/allocations/commit", a.handleAllocationCommit)
	mux.HandleFunc("DELETE /api/v1/commitments/{id}", a.handleReleaseCommitment)

	mux.HandleFunc("POST /api/v1/carts", a.handleCreateCart)
	mux.HandleFunc("GET /api/v1/carts/{id}", a.handleGetCart)
	mux.HandleFunc("DELETE /api/v1/carts/{id}", a.handleDeleteCart)
	mux.HandleFunc("POST /api/v1/carts/{id}/items", a.handleAddItem)
	mux.HandleFunc("PATCH /api/v1/carts/{id}/items/{line}", a.handleUpdateItem)
	mux.HandleFunc("DELETE /api/v1/carts/{id}/items/{line}", a.handleRemoveItem)
	mux.HandleFunc("PUT /api/v1/carts/{id}/dates", a.handleSetDates)
	mux.HandleFunc("POST /api/v1/carts/{id}/bundles", a.handleApplyBundle)
	mux.HandleFunc("DELETE /api/v1/carts/{id}/bundles", a.handleClearBundles)
	mux.HandleFunc("GET /api/v1/carts/{id}/bundles/{promotion}/eligibility", a.handleBundleEligibility)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.ListProducts(r.Context())
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handlePromotions(w http.ResponseWriter, r *http.Request) {
	promos, err := a.service.ActivePromotions(r.Context())
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"promotions": promos})
}

type promotionBody struct {
	Name        string                 `json:"name"`
	Type        domain.PromotionType   `json:"type"`
	Discount    domain.Discount        `json:"discount"`
	Scope       domain.Scope           `json:"scope"`
	AppliesTo   []domain.OperationType `json:"applies_to"`
	BundleItems []domain.BundleItem    `json:"bundle_items"`
	StartsAt    *time.Time             `json:"starts_at"`
	EndsAt      *time.Time             `json:"ends_at"`
	Active      *bool                  `json:"active"`
}

func (b promotionBody) promotion() domain.Promotion {
	active := true
	if b.Active != nil {
		active = *b.Active
	}
	return domain.Promotion{
		Name:        b.Name,
		Type:        b.Type,
		Discount:    b.Discount,
		Scope:       domain.Scope{Kind: b.Scope.Kind, TargetIDs: trimmed(b.Scope.TargetIDs)},
		AppliesTo:   b.AppliesTo,
		BundleItems: b.BundleItems,
		StartsAt:    b.StartsAt,
		EndsAt:      b.EndsAt,
		Active:      active,
	}
}

func (a *API) handleCreatePromotion(w http.ResponseWriter, r *http.Request) {
	var body promotionBody
	if err := decodeJSON(r, &body); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	promo, err := a.service.CreatePromotion(r.Context(), body.promotion())
	if err != nil {
		a.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, promo)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(startedAt)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// statusFor maps domain and store errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, service.ErrCartNotFound),
		errors.Is(err, service.ErrPromotionNotFound),
		errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, service.ErrAllocationFailed),
		errors.Is(err, cart.ErrDuplicateUnit):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidTransaction),
		errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrNotBundlePromotion),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrUnsupportedOperation),
		errors.Is(err, cart.ErrVariantRequired),
		errors.Is(err, cart.ErrInvalidRange),
		errors.Is(err, cart.ErrTooManyUnits),
		errors.Is(err, cart.ErrTenantMismatch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
