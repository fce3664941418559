package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/mensalize/billing-api/internal/types"
)

// handlers is the thin HTTP layer. It decodes, validates, delegates to
// the domain services and translates typed errors into status codes.
type handlers struct {
	deps     *Dependencies
	validate *validator.Validate
	logger   *slog.Logger
}

func newHandlers(deps *Dependencies) *handlers {
	return &handlers{
		deps:     deps,
		validate: validator.New(),
		logger:   deps.Logger.With(slog.String("component", "http")),
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, types.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		respondJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody decodes and validates a JSON request body into dst.
func (h *handlers) decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %v: %w", err, types.ErrBadRequest)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %v: %w", err, types.ErrBadRequest)
	}
	return nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, types.ErrBadRequest)
	}
	return id, nil
}

// --- users ---

func (h *handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var params types.CreateUserParams
	if err := h.decodeBody(r, &params); err != nil {
		h.respondError(w, r, err)
		return
	}
	u, err := h.deps.UserSvc.Register(r.Context(), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, u)
}

func (h *handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.deps.UserSvc.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, users)
}

func (h *handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	u, err := h.deps.UserSvc.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var params types.UpdateUserParams
	if err := h.decodeBody(r, &params); err != nil {
		h.respondError(w, r, err)
		return
	}
	u, err := h.deps.UserSvc.Update(r.Context(), id, params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (h *handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.deps.UserSvc.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// --- plans ---

func (h *handlers) createPlan(w http.ResponseWriter, r *http.Request) {
	var params types.CreatePlanParams
	if err := h.decodeBody(r, &params); err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := h.deps.PlanSvc.Create(r.Context(), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *handlers) listPlans(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	plans, err := h.deps.PlanSvc.List(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

func (h *handlers) getPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "planID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := h.deps.PlanSvc.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *handlers) updatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "planID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var params types.UpdatePlanParams
	if err := h.decodeBody(r, &params); err != nil {
		h.respondError(w, r, err)
		return
	}
	p, err := h.deps.PlanSvc.Update(r.Context(), id, params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *handlers) retirePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "planID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.deps.PlanSvc.Retire(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// --- subscriptions ---

func (h *handlers) createSubscription(w http.ResponseWriter, r *http.Request) {
	var params types.CreateSubscriptionParams
	if err := h.decodeBody(r, &params); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.deps.Provisioning.CreateWithSchedule(r.Context(), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *handlers) getSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "subscriptionID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.deps.Provisioning.GetWithCharges(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *handlers) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "subscriptionID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	sub, err := h.deps.Provisioning.Cancel(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (h *handlers) listUserSubscriptions(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	subs, err := h.deps.Provisioning.ListByUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, subs)
}

// --- charges ---

func (h *handlers) listUserCharges(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var filter types.ChargeFilter
	if s := r.URL.Query().Get("status"); s != "" {
		status := types.ChargeStatus(s)
		if !status.Valid() {
			h.respondError(w, r, fmt.Errorf("invalid status %q: %w", s, types.ErrBadRequest))
			return
		}
		filter.Status = status
	}
	if s := r.URL.Query().Get("due_from"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("invalid due_from, want YYYY-MM-DD: %w", types.ErrBadRequest))
			return
		}
		filter.DueFrom = t
	}
	if s := r.URL.Query().Get("due_until"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("invalid due_until, want YYYY-MM-DD: %w", types.ErrBadRequest))
			return
		}
		filter.DueUntil = t
	}

	charges, err := h.deps.ChargeRepo.ListByUser(r.Context(), id, filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, charges)
}

// --- payments and ledger ---

func (h *handlers) reconcilePayment(w http.ResponseWriter, r *http.Request) {
	var params types.ReconcileParams
	if err := h.decodeBody(r, &params); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.deps.Reconcile.Reconcile(r.Context(), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *handlers) listUserPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var from, until time.Time
	if s := r.URL.Query().Get("from"); s != "" {
		from, err = time.Parse("2006-01-02", s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("invalid from, want YYYY-MM-DD: %w", types.ErrBadRequest))
			return
		}
	}
	if s := r.URL.Query().Get("until"); s != "" {
		until, err = time.Parse("2006-01-02", s)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("invalid until, want YYYY-MM-DD: %w", types.ErrBadRequest))
			return
		}
	}

	var payments []*types.Payment
	if from.IsZero() && until.IsZero() {
		payments, err = h.deps.PayRepo.ListByUser(r.Context(), id)
	} else {
		payments, err = h.deps.PayRepo.ListByDateRange(r.Context(), id, from, until)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, payments)
}

func (h *handlers) listUserLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	entries, err := h.deps.LedgerRepo.ListByUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (h *handlers) getUserBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "userID")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	balance, err := h.deps.LedgerRepo.GetBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

// --- dashboard ---

func (h *handlers) dashboardSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.deps.DashboardSvc.GetSnapshot(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

func (h *handlers) dashboardOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.deps.DashboardSvc.Overview(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, overview)
}

func (h *handlers) dashboardBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.deps.DashboardSvc.ActiveSubscriberBalances(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, balances)
}

func (h *handlers) dashboardOutstanding(w http.ResponseWriter, r *http.Request) {
	charges, err := h.deps.DashboardSvc.OutstandingCharges(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, charges)
}

func (h *handlers) dashboardInvalidate(w http.ResponseWriter, r *http.Request) {
	h.deps.DashboardSvc.InvalidateAll()
	respondJSON(w, http.StatusNoContent, nil)
}

// --- auth ---

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// logout blacklists the presented token until its natural expiry.
// Repeated logouts with the same token succeed.
func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		h.respondError(w, r, fmt.Errorf("missing bearer token: %w", types.ErrUnauthenticated))
		return
	}
	if err := h.deps.Blacklist.Blacklist(r.Context(), token); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// blacklistCheck rejects requests carrying a token that was logged out.
// Requests without a token pass through; full credential verification
// is out of scope here.
func (h *handlers) blacklistCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token != "" {
			revoked, err := h.deps.Blacklist.IsBlacklisted(r.Context(), token)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			if revoked {
				h.respondError(w, r, fmt.Errorf("token has been revoked: %w", types.ErrUnauthenticated))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
