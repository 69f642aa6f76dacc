package api

import (
	"net/http"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/auth"
	"github.com/dmphub/dmphub/internal/metrics"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	store   *account.Store
	metrics *metrics.Metrics
}

func newAuthHandler(store *account.Store, m *metrics.Metrics) *authHandler {
	return &authHandler{store: store, metrics: m}
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email and password are required")
		return
	}

	u, err := h.store.GetByEmail(r.Context(), req.Email)
	if err != nil || !u.Active || !account.CheckPassword(u, req.Password) {
		h.metrics.IncAuthFailure("session")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	token, _, err := h.store.CreateSession(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	h.metrics.IncAuthSuccess("session")

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user": map[string]interface{}{
			"id":        u.ID,
			"email":     u.Email,
			"name":      u.Name(),
			"org_id":    u.OrgID,
			"privilege": u.Privilege,
		},
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	uc := auth.UserFromContext(r.Context())
	if uc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	u := uc.User
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        u.ID,
		"email":     u.Email,
		"name":      u.Name(),
		"org_id":    u.OrgID,
		"privilege": u.Privilege,
	})
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r)
	if token == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	_ = h.store.DeleteSession(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}
