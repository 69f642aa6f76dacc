package plan

import "github.com/dmphub/dmphub/internal/auth"

// CanView reports whether the caller may open a single plan.
//
// This check is deliberately narrower than the listing scope in
// Store.ListVisible: there is no admin carve-out and no
// organisationally-visible branch. A plan can appear in an org admin's list
// without being openable through this check; the asymmetry is modelled
// behavior, not an oversight.
func CanView(p *Plan, caller auth.Caller) bool {
	switch c := caller.(type) {
	case auth.UserCaller:
		return (p.OrgID != "" && p.OrgID == c.User.OrgID) ||
			(p.OwnerOrgID != "" && p.OwnerOrgID == c.User.OrgID)
	case auth.ClientCaller:
		return p.APIClientID == c.Client.ID || p.PubliclyVisible
	default:
		return false
	}
}
