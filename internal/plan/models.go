package plan

import "time"

// Plan represents a persisted Data Management Plan record.
type Plan struct {
	ID                      string `json:"id"`
	Title                   string `json:"title"`
	ExternalScheme          string `json:"external_scheme,omitempty"`
	ExternalID              string `json:"external_id,omitempty"`
	OrgID                   string `json:"org_id,omitempty"`
	APIClientID             string `json:"api_client_id,omitempty"`
	PubliclyVisible         bool   `json:"publicly_visible"`
	OrganisationallyVisible bool   `json:"organisationally_visible"`
	// OwnerOrgID is the organisation of the plan's creator role holder,
	// populated by store reads for the visibility check.
	OwnerOrgID string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Role links a user to a plan with capability flags. At most one role per
// plan carries Creator=true.
type Role struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	PlanID        string    `json:"plan_id"`
	Creator       bool      `json:"creator"`
	Administrator bool      `json:"administrator"`
	Editor        bool      `json:"editor"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreatePlanInput holds the fields for the parser's find-or-create.
type CreatePlanInput struct {
	Title                   string
	ExternalScheme          string
	ExternalID              string
	OrgID                   string
	PubliclyVisible         bool
	OrganisationallyVisible bool
}

// CreateRoleInput holds the fields for attaching a role to a plan.
type CreateRoleInput struct {
	UserID        string
	PlanID        string
	Creator       bool
	Administrator bool
	Editor        bool
}
