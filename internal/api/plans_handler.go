package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/auth"
	"github.com/dmphub/dmphub/internal/metrics"
	"github.com/dmphub/dmphub/internal/plan"
	"github.com/go-chi/chi/v5"
)

// plansHandler groups plan-related HTTP handlers.
type plansHandler struct {
	ingestor *plan.Ingestor
	store    *plan.Store
	metrics  *metrics.Metrics
}

func newPlansHandler(ingestor *plan.Ingestor, store *plan.Store, m *metrics.Metrics) *plansHandler {
	return &plansHandler{ingestor: ingestor, store: store, metrics: m}
}

// CreatePlan handles POST /api/v1/plans. The body is a DMP document; a
// submission whose external id is already known is rejected as a duplicate.
func (h *plansHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}

	p, err := h.ingestor.Ingest(r.Context(), body, caller)
	if err != nil {
		var parseErr *plan.ParseError
		var provErr *account.ProvisioningError
		switch {
		case errors.Is(err, plan.ErrPlanExists):
			h.metrics.IncIngest("duplicate")
			writeError(w, http.StatusConflict, "plan_exists", plan.ErrPlanExists.Error())
		case errors.As(err, &parseErr):
			h.metrics.IncIngest("parse_error")
			writeError(w, http.StatusBadRequest, "invalid_document", parseErr.Msg)
		case errors.As(err, &provErr):
			h.metrics.IncIngest("error")
			slog.Error("contributor provisioning failed",
				"email", provErr.Email,
				"error", provErr,
				"request_id", RequestIDFromContext(r.Context()),
			)
			writeError(w, http.StatusInternalServerError, "provisioning_error", "failed to provision contributor account")
		default:
			h.metrics.IncIngest("error")
			slog.Error("plan ingestion failed", "error", err,
				"request_id", RequestIDFromContext(r.Context()))
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to ingest plan")
		}
		return
	}

	h.metrics.IncIngest("accepted")
	auditLog(r, "create", "plan", p.ID, "external_id", p.ExternalID)

	writeJSON(w, http.StatusCreated, p)
}

// GetPlan handles GET /api/v1/plans/{id}. A plan the caller may not open is
// reported as not found, the same as a plan that does not exist.
func (h *plansHandler) GetPlan(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "plan id is required")
		return
	}

	p, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, plan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get plan")
		return
	}

	if !plan.CanView(p, caller) {
		writeError(w, http.StatusNotFound, "not_found", "plan not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// ListPlans handles GET /api/v1/plans, scoped to what the caller may see.
func (h *plansHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	plans, err := h.store.ListVisible(r.Context(), caller)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list plans")
		return
	}

	if plans == nil {
		plans = []*plan.Plan{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"plans": plans,
	})
}
