package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/auth"
)

// duplicateTolerance absorbs the parser's internal timestamping and
// transaction latency when deciding whether a returned plan pre-existed the
// request. A plan created more than this long before the request started is
// treated as a duplicate even though the parser "succeeded".
const duplicateTolerance = time.Minute

// Parser is the external document parser collaborator. Deserialize performs
// its own find-or-create so that concurrent duplicate submissions collapse
// onto one persisted plan.
type Parser interface {
	Deserialize(ctx context.Context, document []byte) (*Plan, []*account.Contributor, error)
	// ExternalID extracts the document's DMP ID without persisting anything.
	ExternalID(document []byte) (scheme, value string, ok bool)
}

// PlanWriter is the subset of plan storage the coordinator depends on.
type PlanWriter interface {
	ExternalIDExists(ctx context.Context, scheme, value string) (bool, error)
	SetAPIClient(ctx context.Context, planID, clientID string) error
	CreateRole(ctx context.Context, in CreateRoleInput) (*Role, error)
}

// ContributorResolver maps document contributors to user accounts.
// Satisfied by *account.Resolver.
type ContributorResolver interface {
	Resolve(ctx context.Context, c *account.Contributor, invitedBy account.InvitedBy) (*account.User, error)
}

// Ingestor coordinates plan ingestion: duplicate-submission detection,
// parser invocation and role assignment.
type Ingestor struct {
	parser   Parser
	store    PlanWriter
	resolver ContributorResolver
	now      func() time.Time // injectable clock for testing
}

// NewIngestor creates an ingestion coordinator.
func NewIngestor(parser Parser, store PlanWriter, resolver ContributorResolver) *Ingestor {
	return &Ingestor{
		parser:   parser,
		store:    store,
		resolver: resolver,
		now:      time.Now,
	}
}

// Ingest creates a plan from a submitted document on behalf of the caller.
// It returns ErrPlanExists for duplicate submissions and *ParseError for
// malformed documents; parser side effects are never rolled back.
func (i *Ingestor) Ingest(ctx context.Context, document []byte, caller auth.Caller) (*Plan, error) {
	// A DMP ID that already resolves to a persisted plan fails fast, before
	// the parser runs.
	if scheme, value, ok := i.parser.ExternalID(document); ok {
		exists, err := i.store.ExternalIDExists(ctx, scheme, value)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrPlanExists
		}
	}

	t0 := i.now()

	p, contributors, err := i.parser.Deserialize(ctx, document)
	if err != nil {
		return nil, err
	}

	// The parser find-or-creates, so a "successful" parse may have returned
	// a record that pre-existed this request. Anything created before the
	// tolerance window is a duplicate; anything within it is a true new
	// creation or a benign race.
	if p.CreatedAt.Before(t0.Add(-duplicateTolerance)) {
		return nil, ErrPlanExists
	}

	if c, ok := caller.(auth.ClientCaller); ok {
		if err := i.store.SetAPIClient(ctx, p.ID, c.Client.ID); err != nil {
			return nil, err
		}
		p.APIClientID = c.Client.ID
	}

	if err := i.assignRoles(ctx, p, contributors, caller); err != nil {
		return nil, err
	}

	return p, nil
}

// assignRoles attaches a role for every data_curation contributor. The first
// one in document order is the canonical owner and its role carries the
// creator and administrator flags; later data_curation contributors get a
// plain role. Contributors without the tag are handled elsewhere.
func (i *Ingestor) assignRoles(ctx context.Context, p *Plan, contributors []*account.Contributor, caller auth.Caller) error {
	ownerAssigned := false
	for _, c := range contributors {
		if !c.IsDataCuration() {
			continue
		}

		u, err := i.resolver.Resolve(ctx, c, caller.InvitedBy())
		if err != nil {
			return fmt.Errorf("resolving contributor %q: %w", c.Email, err)
		}

		isOwner := !ownerAssigned
		ownerAssigned = true

		_, err = i.store.CreateRole(ctx, CreateRoleInput{
			UserID:        u.ID,
			PlanID:        p.ID,
			Creator:       isOwner,
			Administrator: isOwner,
		})
		if err != nil {
			// The same person can appear twice in malformed input; an
			// existing (user, plan) role is not an ingestion failure.
			if account.IsUniqueViolation(err) {
				slog.Warn("role already attached", "plan_id", p.ID, "user_id", u.ID)
				continue
			}
			return fmt.Errorf("attaching role: %w", err)
		}
	}
	return nil
}
