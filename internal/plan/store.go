package plan

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmphub/dmphub/internal/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for plans and roles.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new plan store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// planColumns selects a plan joined with its creator's organisation. The
// owner org feeds the single-item visibility check.
const planColumns = `p.id, p.title, p.dmp_external_scheme, p.dmp_external_id,
	p.org_id, p.api_client_id, p.publicly_visible, p.organisationally_visible,
	p.created_at, p.updated_at, owner.org_id`

const planFrom = ` FROM plans p
	LEFT JOIN roles cr ON cr.plan_id = p.id AND cr.creator
	LEFT JOIN users owner ON owner.id = cr.user_id`

// scanPlan scans a plan row produced by planColumns.
func scanPlan(scan func(dest ...any) error) (*Plan, error) {
	p := &Plan{}
	var extScheme, extID, orgID, clientID, ownerOrgID *string
	err := scan(&p.ID, &p.Title, &extScheme, &extID, &orgID, &clientID,
		&p.PubliclyVisible, &p.OrganisationallyVisible,
		&p.CreatedAt, &p.UpdatedAt, &ownerOrgID)
	if err != nil {
		return nil, err
	}
	if extScheme != nil {
		p.ExternalScheme = *extScheme
	}
	if extID != nil {
		p.ExternalID = *extID
	}
	if orgID != nil {
		p.OrgID = *orgID
	}
	if clientID != nil {
		p.APIClientID = *clientID
	}
	if ownerOrgID != nil {
		p.OwnerOrgID = *ownerOrgID
	}
	return p, nil
}

// nullable returns a *string that is nil for the empty string, for inserting
// into nullable columns guarded by unique constraints.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// FindOrCreate inserts a plan, collapsing concurrent submissions of the same
// external DMP ID onto one record via the unique constraint on
// plans.dmp_external_id. When the row already exists the persisted record is
// returned with its original created_at, which the ingestion coordinator uses
// to detect duplicates.
func (s *Store) FindOrCreate(ctx context.Context, in CreatePlanInput) (*Plan, error) {
	p, err := scanPlan(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO plans (title, dmp_external_scheme, dmp_external_id, org_id,
			                    publicly_visible, organisationally_visible)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (dmp_external_id) DO NOTHING
			 RETURNING id, title, dmp_external_scheme, dmp_external_id, org_id,
			           api_client_id, publicly_visible, organisationally_visible,
			           created_at, updated_at, NULL`,
			in.Title, nullable(in.ExternalScheme), nullable(in.ExternalID),
			nullable(in.OrgID), in.PubliclyVisible, in.OrganisationallyVisible,
		).Scan(dest...)
	})
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || in.ExternalID == "" {
		return nil, fmt.Errorf("creating plan: %w", err)
	}

	// Conflict: the external ID is already persisted, fetch that record.
	p, err = scanPlan(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+planColumns+planFrom+` WHERE p.dmp_external_id = $1`,
			in.ExternalID,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("fetching existing plan: %w", err)
	}
	return p, nil
}

// GetByID retrieves a plan by primary key. Returns ErrNotFound when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Plan, error) {
	p, err := scanPlan(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+planColumns+planFrom+` WHERE p.id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting plan by id: %w", err)
	}
	return p, nil
}

// ExternalIDExists reports whether a plan identifier with the given scheme
// and value is already persisted.
func (s *Store) ExternalIDExists(ctx context.Context, scheme, value string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM plans
		   WHERE dmp_external_id = $1 AND ($2 = '' OR dmp_external_scheme = $2)
		 )`,
		value, scheme,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking external plan id: %w", err)
	}
	return exists, nil
}

// SetAPIClient stamps the submitting API client on a plan.
func (s *Store) SetAPIClient(ctx context.Context, planID, clientID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE plans SET api_client_id = $1, updated_at = now() WHERE id = $2`,
		clientID, planID)
	if err != nil {
		return fmt.Errorf("setting api client on plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateRole attaches a role to a plan. The unique constraint on
// (user_id, plan_id) makes repeated attachment fail; callers that can treat
// an existing role as success should check with account.IsUniqueViolation.
func (s *Store) CreateRole(ctx context.Context, in CreateRoleInput) (*Role, error) {
	r := &Role{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO roles (user_id, plan_id, creator, administrator, editor)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, user_id, plan_id, creator, administrator, editor, created_at`,
		in.UserID, in.PlanID, in.Creator, in.Administrator, in.Editor,
	).Scan(&r.ID, &r.UserID, &r.PlanID, &r.Creator, &r.Administrator, &r.Editor, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRoles returns all roles attached to a plan.
func (s *Store) ListRoles(ctx context.Context, planID string) ([]*Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, plan_id, creator, administrator, editor, created_at
		 FROM roles WHERE plan_id = $1 ORDER BY created_at`,
		planID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		r := &Role{}
		err := rows.Scan(&r.ID, &r.UserID, &r.PlanID, &r.Creator, &r.Administrator, &r.Editor, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning role row: %w", err)
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

// ListVisible returns the plans visible to the caller in listings. The scope
// is deliberately broader than the single-item check in Policy.CanView:
//   - everyone sees publicly visible plans
//   - an API client additionally sees the plans it submitted
//   - an ordinary user additionally sees plans they hold a role on, and
//     organisationally-visible plans of their organisation
//   - an org admin additionally sees every plan owned by a user of their
//     organisation, regardless of the organisationally-visible flag
func (s *Store) ListVisible(ctx context.Context, caller auth.Caller) ([]*Plan, error) {
	where, args, ok := visibleWhere(caller)
	if !ok {
		return []*Plan{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+planFrom+` WHERE `+where+
			` ORDER BY p.created_at DESC, p.id DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("listing visible plans: %w", err)
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning plan row: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// visibleWhere selects the WHERE clause and arguments scoping a listing to
// the caller. Split from ListVisible so the branch selection is testable
// without a database. ok is false for unrecognised callers, which see
// nothing.
func visibleWhere(caller auth.Caller) (where string, args []any, ok bool) {
	switch c := caller.(type) {
	case auth.ClientCaller:
		return `(p.publicly_visible OR p.api_client_id = $1)`,
			[]any{c.Client.ID}, true
	case auth.UserCaller:
		if c.User.IsOrgAdmin() {
			return `(p.publicly_visible
			   OR p.id IN (SELECT r.plan_id FROM roles r
			               JOIN users u ON u.id = r.user_id
			               WHERE u.org_id = $1))`,
				[]any{c.User.OrgID}, true
		}
		return `(p.publicly_visible
		   OR p.id IN (SELECT plan_id FROM roles WHERE user_id = $1)
		   OR (p.organisationally_visible AND p.org_id = $2))`,
			[]any{c.User.ID, c.User.OrgID}, true
	default:
		return "", nil, false
	}
}
