package api

import (
	"errors"
	"net/http"

	"github.com/dmphub/dmphub/internal/apiclient"
	"github.com/dmphub/dmphub/internal/auth"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// clientsHandler groups API client management handlers (admin only).
type clientsHandler struct {
	store *apiclient.Store
}

func newClientsHandler(store *apiclient.Store) *clientsHandler {
	return &clientsHandler{store: store}
}

// createClientRequest is the JSON body for registering an API client.
type createClientRequest struct {
	Name      string `json:"name"`
	OrgID     string `json:"org_id"`
	RateLimit int    `json:"rate_limit"`
}

// CreateClient handles POST /api/v1/admin/api-clients.
// The plaintext key appears in the response once and is never stored.
func (h *clientsHandler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req createClientRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "name is required")
		return
	}

	orgID := req.OrgID
	if orgID == "" {
		if uc := auth.UserFromContext(r.Context()); uc != nil {
			orgID = uc.User.OrgID
		}
	}
	if orgID == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "org_id is required")
		return
	}

	apiKey, plaintext, err := auth.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to generate api key")
		return
	}

	c, err := h.store.Create(r.Context(), apiclient.CreateClientInput{
		Name:         req.Name,
		APIKeyHash:   apiKey.Hash,
		APIKeyPrefix: apiKey.Prefix,
		OrgID:        orgID,
		RateLimit:    req.RateLimit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create api client")
		return
	}

	auditLog(r, "create", "api_client", c.ID, "name", c.Name)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":             c.ID,
		"name":           c.Name,
		"api_key_prefix": c.APIKeyPrefix,
		"api_key":        plaintext,
		"org_id":         c.OrgID,
		"rate_limit":     c.RateLimit,
		"created_at":     c.CreatedAt,
	})
}

// ListClients handles GET /api/v1/admin/api-clients.
func (h *clientsHandler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list api clients")
		return
	}

	if clients == nil {
		clients = []*apiclient.Client{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"api_clients": clients,
	})
}

// DeleteClient handles DELETE /api/v1/admin/api-clients/{id}.
func (h *clientsHandler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_id", "api client id is required")
		return
	}

	if _, err := h.store.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "not_found", "api client not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to get api client")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to delete api client")
		return
	}

	auditLog(r, "delete", "api_client", id)

	w.WriteHeader(http.StatusNoContent)
}
