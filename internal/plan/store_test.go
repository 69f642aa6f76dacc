package plan

import (
	"strings"
	"testing"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/apiclient"
	"github.com/dmphub/dmphub/internal/auth"
)

func TestVisibleWhereBranches(t *testing.T) {
	tests := []struct {
		name         string
		caller       auth.Caller
		wantArgs     []any
		wantContains []string
		wantAbsent   []string
	}{
		{
			name:     "api client sees public plus own submissions",
			caller:   auth.ClientCaller{Client: &apiclient.Client{ID: "c1"}},
			wantArgs: []any{"c1"},
			wantContains: []string{
				"p.publicly_visible",
				"p.api_client_id = $1",
			},
			wantAbsent: []string{"roles", "organisationally_visible"},
		},
		{
			name: "ordinary user sees public, own roles and org-visible",
			caller: auth.UserCaller{User: &account.User{
				ID: "u1", OrgID: "o1", Privilege: account.PrivilegeMember,
			}},
			wantArgs: []any{"u1", "o1"},
			wantContains: []string{
				"p.publicly_visible",
				"SELECT plan_id FROM roles WHERE user_id = $1",
				"p.organisationally_visible AND p.org_id = $2",
			},
			wantAbsent: []string{"JOIN users"},
		},
		{
			name: "org admin sees public plus everything its org owns",
			caller: auth.UserCaller{User: &account.User{
				ID: "u2", OrgID: "o1", Privilege: account.PrivilegeOrgAdmin,
			}},
			wantArgs: []any{"o1"},
			wantContains: []string{
				"p.publicly_visible",
				"JOIN users u ON u.id = r.user_id",
				"u.org_id = $1",
			},
			// The admin scope keys on the role holders' org, not the
			// organisationally_visible flag.
			wantAbsent: []string{"organisationally_visible"},
		},
		{
			name: "super admin takes the org-wide branch",
			caller: auth.UserCaller{User: &account.User{
				ID: "u3", OrgID: "o2", Privilege: account.PrivilegeSuperAdmin,
			}},
			wantArgs:     []any{"o2"},
			wantContains: []string{"JOIN users u ON u.id = r.user_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, ok := visibleWhere(tt.caller)
			if !ok {
				t.Fatal("expected a query for this caller")
			}

			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("args[%d] = %v, want %v", i, args[i], tt.wantArgs[i])
				}
			}

			for _, frag := range tt.wantContains {
				if !strings.Contains(where, frag) {
					t.Errorf("where clause missing %q:\n%s", frag, where)
				}
			}
			for _, frag := range tt.wantAbsent {
				if strings.Contains(where, frag) {
					t.Errorf("where clause unexpectedly contains %q:\n%s", frag, where)
				}
			}
		})
	}
}

func TestVisibleWhereUnknownCallerSeesNothing(t *testing.T) {
	if _, _, ok := visibleWhere(nil); ok {
		t.Error("expected no query for a nil caller")
	}
}

// Every caller branch starts from the public base case: a publicly visible
// plan appears in all listings regardless of who asks.
func TestVisibleWherePublicBaseCase(t *testing.T) {
	callers := []auth.Caller{
		auth.ClientCaller{Client: &apiclient.Client{ID: "c1"}},
		auth.UserCaller{User: &account.User{ID: "u1", OrgID: "o1", Privilege: account.PrivilegeMember}},
		auth.UserCaller{User: &account.User{ID: "u2", OrgID: "o1", Privilege: account.PrivilegeOrgAdmin}},
	}

	for _, caller := range callers {
		where, _, ok := visibleWhere(caller)
		if !ok {
			t.Fatalf("expected a query for %T", caller)
		}
		if !strings.Contains(where, "p.publicly_visible") {
			t.Errorf("%T: public base case missing from where clause:\n%s", caller, where)
		}
	}
}
