package apiclient

import "time"

// Client represents a registered API client: a machine credential distinct
// from a user account. Plans submitted by a client carry its id.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKeyHash   string    `json:"-"`
	APIKeyPrefix string    `json:"api_key_prefix"`
	OrgID        string    `json:"org_id"`
	RateLimit    int       `json:"rate_limit"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateClientInput holds the fields required to register a new API client.
type CreateClientInput struct {
	Name         string `json:"name"`
	APIKeyHash   string `json:"api_key_hash"`
	APIKeyPrefix string `json:"api_key_prefix"`
	OrgID        string `json:"org_id"`
	RateLimit    int    `json:"rate_limit"`
}
