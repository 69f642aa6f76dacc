package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// RoleDataCuration is the contribution-role tag that marks a contributor as
// the primary contact and owner candidate for a plan.
const RoleDataCuration = "data_curation"

// Contributor is a person named inside a submitted document, not yet mapped
// to an account. Contributors are ephemeral: they exist only for the duration
// of an ingestion.
type Contributor struct {
	Name        string
	Email       string
	OrgID       string
	Identifiers []SchemeValue
	Roles       []string
}

// SchemeValue is an unpersisted (scheme, value) identifier pair carried by a
// contributor.
type SchemeValue struct {
	Scheme string
	Value  string
}

// IsDataCuration returns true if the contributor carries the data_curation
// contribution-role tag.
func (c *Contributor) IsDataCuration() bool {
	for _, r := range c.Roles {
		if r == RoleDataCuration {
			return true
		}
	}
	return false
}

// ProvisioningError indicates that provisioning a new user for a contributor
// failed. It is not retried automatically: a retry could mask a genuine
// duplicate-account race, so callers retry the whole ingestion instead.
type ProvisioningError struct {
	Email string
	Err   error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning user %q: %v", e.Email, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Directory is the subset of account storage the resolver depends on.
type Directory interface {
	GetByIdentifier(ctx context.Context, scheme, value string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	CreateInvited(ctx context.Context, in InviteUserInput) (*User, error)
	AddIdentifier(ctx context.Context, userID, scheme, value string) (*Identifier, error)
}

// Resolver maps document contributors to existing or newly-provisioned user
// accounts. Resolution is idempotent: resolving the same contributor identity
// twice yields the same user, never a duplicate account.
type Resolver struct {
	dir Directory

	// OnProvision, when set, is called once for every newly provisioned
	// account. Used for instrumentation.
	OnProvision func()
}

// NewResolver creates a resolver backed by the given directory.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve finds the user account for a contributor, provisioning an invited
// account when no identifier or email match exists. Matching order: any
// identifier (scheme, value) pair, first match wins; then exact email.
func (r *Resolver) Resolve(ctx context.Context, c *Contributor, invitedBy InvitedBy) (*User, error) {
	for _, sv := range c.Identifiers {
		u, err := r.dir.GetByIdentifier(ctx, sv.Scheme, sv.Value)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
	}

	u, err := r.dir.GetByEmail(ctx, c.Email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return r.provision(ctx, c, invitedBy)
}

// provision creates an invited user for the contributor and copies the
// contributor's identifiers onto it. A unique-violation on the insert means a
// concurrent ingestion provisioned the same account first; resolution falls
// back to a lookup, and only an unresolvable failure surfaces as a
// ProvisioningError.
func (r *Resolver) provision(ctx context.Context, c *Contributor, invitedBy InvitedBy) (*User, error) {
	firstname, surname := SplitName(c.Name)

	u, err := r.dir.CreateInvited(ctx, InviteUserInput{
		Email:         c.Email,
		Firstname:     firstname,
		Surname:       surname,
		OrgID:         c.OrgID,
		InvitedByKind: invitedBy.Kind,
		InvitedByID:   invitedBy.ID,
	})
	if err != nil {
		if IsUniqueViolation(err) {
			if existing, lookupErr := r.dir.GetByEmail(ctx, c.Email); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, &ProvisioningError{Email: c.Email, Err: err}
	}

	for _, sv := range c.Identifiers {
		if _, err := r.dir.AddIdentifier(ctx, u.ID, sv.Scheme, sv.Value); err != nil {
			return nil, &ProvisioningError{Email: c.Email, Err: err}
		}
	}

	if r.OnProvision != nil {
		r.OnProvision()
	}

	return u, nil
}

// SplitName splits a contributor name on whitespace. With more than one token
// the first becomes the firstname and the last the surname (middle tokens are
// dropped); a single token, or an empty name, maps entirely to the surname.
func SplitName(name string) (firstname, surname string) {
	tokens := strings.Fields(name)
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return "", tokens[0]
	default:
		return tokens[0], tokens[len(tokens)-1]
	}
}
