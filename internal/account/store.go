package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Store provides database operations for orgs, users, identifiers and sessions.
type Store struct {
	pool            *pgxpool.Pool
	sessionDuration time.Duration
}

// NewStore creates a new account store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, sessionDuration time.Duration) *Store {
	return &Store{pool: pool, sessionDuration: sessionDuration}
}

// userColumns is the full list of columns used in SELECT statements.
const userColumns = `id, email, firstname, surname, org_id, active, privilege,
	password_hash, invited_by_kind, invited_by_id, created_at, updated_at`

// scanUser scans a user row. Provisioned users may have no org and no
// invitation attribution, so those columns are nullable.
func scanUser(scan func(dest ...any) error) (*User, error) {
	u := &User{}
	var orgID, invitedByKind, invitedByID *string
	err := scan(&u.ID, &u.Email, &u.Firstname, &u.Surname, &orgID, &u.Active,
		&u.Privilege, &u.PasswordHash, &invitedByKind, &invitedByID,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if orgID != nil {
		u.OrgID = *orgID
	}
	if invitedByKind != nil {
		u.InvitedByKind = *invitedByKind
	}
	if invitedByID != nil {
		u.InvitedByID = *invitedByID
	}
	return u, nil
}

// IsUniqueViolation reports whether err is a Postgres unique constraint
// violation. Used to detect concurrent provisioning of the same account.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateOrg inserts a new organisation.
func (s *Store) CreateOrg(ctx context.Context, name string) (*Org, error) {
	o := &Org{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO orgs (name) VALUES ($1) RETURNING id, name, created_at`,
		name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating org: %w", err)
	}
	return o, nil
}

// FindOrCreateOrg inserts an organisation by name, returning the existing
// record when the name is already taken. Uniqueness on orgs.name makes
// concurrent creation collapse onto one record.
func (s *Store) FindOrCreateOrg(ctx context.Context, name string) (*Org, error) {
	o := &Org{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO orgs (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id, name, created_at`,
		name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("creating org: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM orgs WHERE name = $1`, name,
	).Scan(&o.ID, &o.Name, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("fetching org by name: %w", err)
	}
	return o, nil
}

// Create inserts a new active user with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, in CreateUserInput) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	privilege := in.Privilege
	if privilege == "" {
		privilege = PrivilegeMember
	}

	var orgID *string
	if in.OrgID != "" {
		orgID = &in.OrgID
	}

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (email, firstname, surname, org_id, active, privilege, password_hash)
			 VALUES ($1, $2, $3, $4, true, $5, $6)
			 RETURNING `+userColumns,
			in.Email, in.Firstname, in.Surname, orgID, privilege, string(hash),
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// CreateInvited inserts a new inactive user provisioned during contributor
// reconciliation. The caller that triggered provisioning is recorded for the
// audit trail. The insert relies on the unique constraint on users.email; the
// raw error is returned unwrapped so callers can detect the violation.
func (s *Store) CreateInvited(ctx context.Context, in InviteUserInput) (*User, error) {
	var orgID *string
	if in.OrgID != "" {
		orgID = &in.OrgID
	}
	return scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`INSERT INTO users (email, firstname, surname, org_id, active, privilege,
			                    password_hash, invited_by_kind, invited_by_id)
			 VALUES ($1, $2, $3, $4, false, $5, '', $6, $7)
			 RETURNING `+userColumns,
			in.Email, in.Firstname, in.Surname, orgID, PrivilegeMember,
			in.InvitedByKind, in.InvitedByID,
		).Scan(dest...)
	})
}

// GetByID retrieves a user by primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by id: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by email: %w", err)
	}
	return u, nil
}

// GetByIdentifier retrieves the user owning the given (scheme, value) pair.
func (s *Store) GetByIdentifier(ctx context.Context, scheme, value string) (*User, error) {
	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT u.id, u.email, u.firstname, u.surname, u.org_id, u.active,
			        u.privilege, u.password_hash, u.invited_by_kind, u.invited_by_id,
			        u.created_at, u.updated_at
			 FROM identifiers i JOIN users u ON i.user_id = u.id
			 WHERE i.scheme = $1 AND i.value = $2`,
			scheme, value,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting user by identifier: %w", err)
	}
	return u, nil
}

// AddIdentifier attaches a new identifier to the given user.
func (s *Store) AddIdentifier(ctx context.Context, userID, scheme, value string) (*Identifier, error) {
	id := &Identifier{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO identifiers (scheme, value, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, scheme, value, user_id`,
		scheme, value, userID,
	).Scan(&id.ID, &id.Scheme, &id.Value, &id.UserID)
	if err != nil {
		return nil, fmt.Errorf("adding identifier: %w", err)
	}
	return id, nil
}

// ListIdentifiers returns all identifiers owned by the given user.
func (s *Store) ListIdentifiers(ctx context.Context, userID string) ([]*Identifier, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, scheme, value, user_id FROM identifiers WHERE user_id = $1 ORDER BY scheme`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing identifiers: %w", err)
	}
	defer rows.Close()

	var ids []*Identifier
	for rows.Next() {
		id := &Identifier{}
		if err := rows.Scan(&id.ID, &id.Scheme, &id.Value, &id.UserID); err != nil {
			return nil, fmt.Errorf("scanning identifier row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns all users ordered by created_at DESC.
func (s *Store) List(ctx context.Context) ([]*User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListWithPlanCounts returns all users joined with the number of plans each
// holds a role on, ordered by created_at DESC. Used by the CSV export.
func (s *Store) ListWithPlanCounts(ctx context.Context) ([]*ExportRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.firstname, u.surname, u.org_id, u.active,
		        u.privilege, u.password_hash, u.invited_by_kind, u.invited_by_id,
		        u.created_at, u.updated_at, count(r.id)
		 FROM users u LEFT JOIN roles r ON r.user_id = u.id
		 GROUP BY u.id
		 ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing users with plan counts: %w", err)
	}
	defer rows.Close()

	var out []*ExportRow
	for rows.Next() {
		var count int
		u, err := scanUser(func(dest ...any) error {
			dest = append(dest, &count)
			return rows.Scan(dest...)
		})
		if err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		out = append(out, &ExportRow{User: u, PlanCount: count})
	}
	return out, rows.Err()
}

// CheckPassword verifies a plaintext password against the user's stored hash.
// Inactive (invited) users have no password and always fail.
func CheckPassword(u *User, password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// CreateSession creates a new session for the given user. It returns the
// opaque plaintext token (to be sent to the client) and the stored session.
func (s *Store) CreateSession(ctx context.Context, userID string) (string, *Session, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, fmt.Errorf("generating session token: %w", err)
	}
	plaintext := hex.EncodeToString(b)
	tokenHash := hashToken(plaintext)

	now := time.Now()
	expiresAt := now.Add(s.sessionDuration)

	sess := &Session{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING token_hash, user_id, created_at, expires_at`,
		tokenHash, userID, now, expiresAt,
	).Scan(&sess.TokenHash, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating session: %w", err)
	}

	return plaintext, sess, nil
}

// GetSessionUser looks up a session by its plaintext token and returns the
// associated user. Returns an error if the session is expired or not found.
func (s *Store) GetSessionUser(ctx context.Context, plaintext string) (*User, error) {
	tokenHash := hashToken(plaintext)

	u, err := scanUser(func(dest ...any) error {
		return s.pool.QueryRow(ctx,
			`SELECT u.id, u.email, u.firstname, u.surname, u.org_id, u.active,
			        u.privilege, u.password_hash, u.invited_by_kind, u.invited_by_id,
			        u.created_at, u.updated_at
			 FROM sessions s JOIN users u ON s.user_id = u.id
			 WHERE s.token_hash = $1 AND s.expires_at > now()`,
			tokenHash,
		).Scan(dest...)
	})
	if err != nil {
		return nil, fmt.Errorf("getting session user: %w", err)
	}
	return u, nil
}

// DeleteSession removes a session by its plaintext token.
func (s *Store) DeleteSession(ctx context.Context, plaintext string) error {
	tokenHash := hashToken(plaintext)
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// CleanExpiredSessions deletes all sessions that have expired.
func (s *Store) CleanExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("cleaning expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func hashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
