package apiclient

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for API clients.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new API client store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const clientColumns = `id, name, api_key_hash, api_key_prefix, org_id, rate_limit, created_at`

// Create inserts a new API client and returns the created record.
func (s *Store) Create(ctx context.Context, in CreateClientInput) (*Client, error) {
	c := &Client{}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO api_clients (name, api_key_hash, api_key_prefix, org_id, rate_limit)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+clientColumns,
		in.Name, in.APIKeyHash, in.APIKeyPrefix, in.OrgID, in.RateLimit,
	).Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.OrgID, &c.RateLimit, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}
	return c, nil
}

// GetByID retrieves an API client by its primary key.
func (s *Store) GetByID(ctx context.Context, id string) (*Client, error) {
	c := &Client{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM api_clients WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.OrgID, &c.RateLimit, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting api client by id: %w", err)
	}
	return c, nil
}

// GetByKeyHash retrieves an API client by its key hash, used for authentication.
func (s *Store) GetByKeyHash(ctx context.Context, hash string) (*Client, error) {
	c := &Client{}
	err := s.pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM api_clients WHERE api_key_hash = $1`, hash,
	).Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.OrgID, &c.RateLimit, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("getting api client by key hash: %w", err)
	}
	return c, nil
}

// List returns all API clients ordered by created_at DESC.
func (s *Store) List(ctx context.Context) ([]*Client, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+clientColumns+` FROM api_clients ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing api clients: %w", err)
	}
	defer rows.Close()

	var clients []*Client
	for rows.Next() {
		c := &Client{}
		err := rows.Scan(&c.ID, &c.Name, &c.APIKeyHash, &c.APIKeyPrefix, &c.OrgID, &c.RateLimit, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning api client row: %w", err)
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

// Delete removes an API client by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM api_clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting api client: %w", err)
	}
	return nil
}
