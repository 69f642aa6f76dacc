package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/apiclient"
)

// keyPrefix marks API client keys so the middleware can tell them apart from
// session tokens without a second lookup.
const keyPrefix = "dmph_"

// APIKey holds the hashed key and a short prefix for identification.
type APIKey struct {
	Hash   string
	Prefix string // first 12 characters of the plaintext key
}

// Caller is the authenticated actor making a request: either a user account
// or an API client. It is a sealed variant; visibility and ingestion logic
// dispatch on the concrete case with a type switch. Callers are resolved once
// by middleware and passed explicitly, never read from ambient state.
type Caller interface {
	isCaller()
	// InvitedBy identifies the caller for invitation audit trails.
	InvitedBy() account.InvitedBy
}

// UserCaller is a request made by a signed-in user.
type UserCaller struct {
	User *account.User
}

func (UserCaller) isCaller() {}

func (c UserCaller) InvitedBy() account.InvitedBy {
	return account.InvitedBy{Kind: "user", ID: c.User.ID}
}

// ClientCaller is a request made with an API client credential.
type ClientCaller struct {
	Client *apiclient.Client
}

func (ClientCaller) isCaller() {}

func (c ClientCaller) InvitedBy() account.InvitedBy {
	return account.InvitedBy{Kind: "api_client", ID: c.Client.ID}
}

// ClientLookup is the interface for retrieving API clients by key hash.
// Satisfied by *apiclient.Store.
type ClientLookup interface {
	GetByKeyHash(ctx context.Context, hash string) (*apiclient.Client, error)
}

// SessionLookup is the interface for resolving session tokens to users.
// Satisfied by *account.Store.
type SessionLookup interface {
	GetSessionUser(ctx context.Context, token string) (*account.User, error)
}

// Service resolves bearer credentials to callers.
type Service struct {
	clients  ClientLookup
	sessions SessionLookup

	// OnAuthResult, if set, is called once per resolution attempt with the
	// credential type ("api_key" or "session") and whether it succeeded.
	// Used for instrumentation.
	OnAuthResult func(authType string, success bool)
}

// NewService creates a new authentication service.
func NewService(clients ClientLookup, sessions SessionLookup) *Service {
	return &Service{clients: clients, sessions: sessions}
}

// ResolveCaller maps a bearer token to a Caller. Tokens carrying the API key
// prefix authenticate as a client; anything else is treated as a session
// token.
func (s *Service) ResolveCaller(ctx context.Context, token string) (Caller, error) {
	if strings.HasPrefix(token, keyPrefix) {
		client, err := s.clients.GetByKeyHash(ctx, HashKey(token))
		s.recordAuthResult("api_key", err == nil)
		if err != nil {
			return nil, err
		}
		return ClientCaller{Client: client}, nil
	}

	user, err := s.sessions.GetSessionUser(ctx, token)
	s.recordAuthResult("session", err == nil)
	if err != nil {
		return nil, err
	}
	return UserCaller{User: user}, nil
}

func (s *Service) recordAuthResult(authType string, success bool) {
	if s.OnAuthResult != nil {
		s.OnAuthResult(authType, success)
	}
}

// GenerateAPIKey creates a new API key with the "dmph_" prefix followed by
// 32 URL-safe random characters. It returns the APIKey struct (containing the
// hash and prefix) and the full plaintext key.
func GenerateAPIKey() (APIKey, string, error) {
	b := make([]byte, 24) // 24 bytes -> 32 base64url chars
	if _, err := rand.Read(b); err != nil {
		return APIKey{}, "", fmt.Errorf("generating random bytes: %w", err)
	}

	random := base64.RawURLEncoding.EncodeToString(b)
	plaintext := keyPrefix + random

	key := APIKey{
		Hash:   HashKey(plaintext),
		Prefix: plaintext[:12],
	}

	return key, plaintext, nil
}

// HashKey returns the hex-encoded SHA-256 hash of the given plaintext key.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
