package account

import "time"

// Privilege levels for users. Org admins see every plan belonging to their
// organisation in listings; super admins are provisioned manually.
const (
	PrivilegeMember     = "member"
	PrivilegeOrgAdmin   = "org_admin"
	PrivilegeSuperAdmin = "super_admin"
)

// Org represents an organisation that users and plans belong to.
type Org struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// User represents a registered user account. Users provisioned during
// contributor reconciliation start with Active=false until they accept the
// invitation and set a password.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Firstname     string    `json:"firstname"`
	Surname       string    `json:"surname"`
	OrgID         string    `json:"org_id"`
	Active        bool      `json:"active"`
	Privilege     string    `json:"privilege"`
	PasswordHash  string    `json:"-"`
	InvitedByKind string    `json:"-"` // "user" or "api_client", empty for signups
	InvitedByID   string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsOrgAdmin returns true if the user can administer their organisation.
func (u *User) IsOrgAdmin() bool {
	return u.Privilege == PrivilegeOrgAdmin || u.Privilege == PrivilegeSuperAdmin
}

// Name returns the user's display name.
func (u *User) Name() string {
	if u.Firstname == "" {
		return u.Surname
	}
	return u.Firstname + " " + u.Surname
}

// Identifier is an external-namespace (scheme, value) key owned by a user,
// e.g. an ORCID. The (scheme, value) pair is unique across all users and is
// the strongest signal for cross-system identity matching.
type Identifier struct {
	ID     string `json:"id"`
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
	UserID string `json:"user_id"`
}

// CreateUserInput holds the fields required to create an active user account.
type CreateUserInput struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Firstname string `json:"firstname"`
	Surname   string `json:"surname"`
	OrgID     string `json:"org_id"`
	Privilege string `json:"privilege"`
}

// InviteUserInput holds the fields for provisioning an inactive user during
// contributor reconciliation.
type InviteUserInput struct {
	Email         string
	Firstname     string
	Surname       string
	OrgID         string
	InvitedByKind string
	InvitedByID   string
}

// InvitedBy records which caller triggered the provisioning of a user.
type InvitedBy struct {
	Kind string // "user" or "api_client"
	ID   string
}

// Session represents an active user session.
type Session struct {
	TokenHash string    `json:"-"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportRow is a user row joined with its plan count, used by the admin CSV
// export.
type ExportRow struct {
	User      *User
	PlanCount int
}
