package api

import (
	"encoding/csv"
	"net/http"
	"strconv"

	"github.com/dmphub/dmphub/internal/account"
)

// usersHandler groups user management HTTP handlers (admin only).
type usersHandler struct {
	store *account.Store
}

func newUsersHandler(store *account.Store) *usersHandler {
	return &usersHandler{store: store}
}

// CreateUser handles POST /api/v1/admin/users.
func (h *usersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req account.CreateUserInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "email is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "password is required")
		return
	}
	switch req.Privilege {
	case "", account.PrivilegeMember, account.PrivilegeOrgAdmin:
	default:
		writeError(w, http.StatusUnprocessableEntity, "validation_error", "privilege must be org_admin or member")
		return
	}

	u, err := h.store.Create(r.Context(), req)
	if err != nil {
		if account.IsUniqueViolation(err) {
			writeError(w, http.StatusConflict, "email_taken", "a user with this email already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create user")
		return
	}

	auditLog(r, "create", "user", u.ID, "email", u.Email)

	writeJSON(w, http.StatusCreated, u)
}

// ListUsers handles GET /api/v1/admin/users.
func (h *usersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list users")
		return
	}

	if users == nil {
		users = []*account.User{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users": users,
	})
}

// exportHeader matches the columns organisation admins expect in the
// downloaded spreadsheet.
var exportHeader = []string{"Name", "E-Mail", "Created Date", "Last Activity", "Plans", "Current Privileges", "Active"}

// ExportUsers handles GET /api/v1/admin/users/export, streaming a CSV of all
// users with their plan counts.
func (h *usersHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	rows, err := h.store.ListWithPlanCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to export users")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="users.csv"`)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(exportHeader)
	for _, row := range rows {
		u := row.User
		active := "No"
		if u.Active {
			active = "Yes"
		}
		_ = cw.Write([]string{
			u.Name(),
			u.Email,
			u.CreatedAt.Format("02-01-2006"),
			u.UpdatedAt.Format("02-01-2006"),
			strconv.Itoa(row.PlanCount),
			privilegeLabel(u.Privilege),
			active,
		})
	}
	cw.Flush()
}

// privilegeLabel maps a stored privilege to its export display label.
// Ordinary members appear with an empty privilege column.
func privilegeLabel(privilege string) string {
	switch privilege {
	case account.PrivilegeSuperAdmin:
		return "Super Admin"
	case account.PrivilegeOrgAdmin:
		return "Organisational Admin"
	default:
		return ""
	}
}
