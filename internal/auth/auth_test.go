package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dmphub/dmphub/internal/account"
	"github.com/dmphub/dmphub/internal/apiclient"
)

// --- mock lookups ---

type mockClientLookup struct {
	clients map[string]*apiclient.Client
}

func (m *mockClientLookup) GetByKeyHash(ctx context.Context, hash string) (*apiclient.Client, error) {
	c, ok := m.clients[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

type mockSessionLookup struct {
	sessions map[string]*account.User
}

func (m *mockSessionLookup) GetSessionUser(ctx context.Context, token string) (*account.User, error) {
	u, ok := m.sessions[token]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

// --- GenerateAPIKey tests ---

func TestGenerateAPIKey_PrefixAndLength(t *testing.T) {
	key, plaintext, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}

	if !strings.HasPrefix(plaintext, "dmph_") {
		t.Errorf("plaintext key should start with 'dmph_', got %q", plaintext)
	}

	// "dmph_" (5) + 32 random chars = 37
	if len(plaintext) != 37 {
		t.Errorf("expected plaintext length 37, got %d", len(plaintext))
	}

	if key.Prefix != plaintext[:12] {
		t.Errorf("expected prefix %q, got %q", plaintext[:12], key.Prefix)
	}

	if key.Hash == "" {
		t.Error("expected non-empty hash")
	}
}

func TestGenerateAPIKey_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		_, plaintext, err := GenerateAPIKey()
		if err != nil {
			t.Fatalf("GenerateAPIKey() error: %v", err)
		}
		if seen[plaintext] {
			t.Fatalf("duplicate key generated: %s", plaintext)
		}
		seen[plaintext] = true
	}
}

// --- HashKey tests ---

func TestHashKey_Deterministic(t *testing.T) {
	key := "dmph_testkey1234567890abcdefghijklmn"
	h1 := HashKey(key)
	h2 := HashKey(key)
	if h1 != h2 {
		t.Errorf("HashKey should be deterministic: %q != %q", h1, h2)
	}
}

func TestHashKey_Length(t *testing.T) {
	h := HashKey("anything")
	// SHA-256 produces 64 hex characters
	if len(h) != 64 {
		t.Errorf("expected hash length 64, got %d", len(h))
	}
}

// --- ResolveCaller tests ---

func TestResolveCaller_ClientKey(t *testing.T) {
	plaintext := "dmph_validkey1234567890abcdefghijklm"
	client := &apiclient.Client{ID: "c1", Name: "harvester"}
	svc := NewService(
		&mockClientLookup{clients: map[string]*apiclient.Client{HashKey(plaintext): client}},
		&mockSessionLookup{},
	)

	caller, err := svc.ResolveCaller(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("ResolveCaller() error: %v", err)
	}

	cc, ok := caller.(ClientCaller)
	if !ok {
		t.Fatalf("expected ClientCaller, got %T", caller)
	}
	if cc.Client.ID != "c1" {
		t.Errorf("expected client c1, got %q", cc.Client.ID)
	}
}

func TestResolveCaller_SessionToken(t *testing.T) {
	user := &account.User{ID: "u1", Email: "jane@example.edu"}
	svc := NewService(
		&mockClientLookup{},
		&mockSessionLookup{sessions: map[string]*account.User{"sessiontoken": user}},
	)

	caller, err := svc.ResolveCaller(context.Background(), "sessiontoken")
	if err != nil {
		t.Fatalf("ResolveCaller() error: %v", err)
	}

	uc, ok := caller.(UserCaller)
	if !ok {
		t.Fatalf("expected UserCaller, got %T", caller)
	}
	if uc.User.ID != "u1" {
		t.Errorf("expected user u1, got %q", uc.User.ID)
	}
}

func TestResolveCaller_PrefixedKeyNeverHitsSessions(t *testing.T) {
	// A token with the key prefix must not fall through to session lookup,
	// even when no client matches.
	svc := NewService(
		&mockClientLookup{},
		&mockSessionLookup{sessions: map[string]*account.User{"dmph_sneaky": {ID: "u1"}}},
	)

	if _, err := svc.ResolveCaller(context.Background(), "dmph_sneaky"); err == nil {
		t.Fatal("expected error for unknown client key")
	}
}

// --- InvitedBy attribution ---

func TestCallerInvitedBy(t *testing.T) {
	uc := UserCaller{User: &account.User{ID: "u1"}}
	if got := uc.InvitedBy(); got.Kind != "user" || got.ID != "u1" {
		t.Errorf("unexpected user attribution: %+v", got)
	}

	cc := ClientCaller{Client: &apiclient.Client{ID: "c1"}}
	if got := cc.InvitedBy(); got.Kind != "api_client" || got.ID != "c1" {
		t.Errorf("unexpected client attribution: %+v", got)
	}
}

// --- Context helpers ---

func TestCallerContext_RoundTrip(t *testing.T) {
	caller := ClientCaller{Client: &apiclient.Client{ID: "c1"}}
	ctx := ContextWithCaller(context.Background(), caller)

	got := CallerFromContext(ctx)
	cc, ok := got.(ClientCaller)
	if !ok {
		t.Fatalf("expected ClientCaller, got %T", got)
	}
	if cc.Client.ID != "c1" {
		t.Errorf("expected client c1, got %q", cc.Client.ID)
	}
}

func TestCallerFromContext_Empty(t *testing.T) {
	if got := CallerFromContext(context.Background()); got != nil {
		t.Errorf("expected nil from empty context, got %+v", got)
	}
}

func TestUserFromContext_ClientCaller(t *testing.T) {
	ctx := ContextWithCaller(context.Background(), ClientCaller{Client: &apiclient.Client{ID: "c1"}})
	if got := UserFromContext(ctx); got != nil {
		t.Errorf("expected nil user for client caller, got %+v", got)
	}
}

// --- CallerAuthMiddleware tests ---

func TestCallerAuthMiddleware(t *testing.T) {
	plaintext := "dmph_validkey1234567890abcdefghijklm"
	client := &apiclient.Client{ID: "c1", Name: "harvester"}
	svc := NewService(
		&mockClientLookup{clients: map[string]*apiclient.Client{HashKey(plaintext): client}},
		&mockSessionLookup{sessions: map[string]*account.User{"goodsession": {ID: "u1"}}},
	)

	var gotCaller Caller
	handler := CallerAuthMiddleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCaller = CallerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid client key", "Bearer " + plaintext, http.StatusOK},
		{"valid session", "Bearer goodsession", http.StatusOK},
		{"unknown key", "Bearer dmph_wrongkey", http.StatusUnauthorized},
		{"unknown session", "Bearer badsession", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"malformed header", "Basic abc", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCaller = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusOK && gotCaller == nil {
				t.Error("expected caller in context")
			}
			if tt.wantStatus != http.StatusOK {
				var resp struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("invalid error body: %v", err)
				}
				if resp.Error.Code != "unauthorized" {
					t.Errorf("expected code 'unauthorized', got %q", resp.Error.Code)
				}
			}
		})
	}
}

// --- AdminSessionMiddleware tests ---

func TestAdminSessionMiddleware(t *testing.T) {
	sessions := &mockSessionLookup{sessions: map[string]*account.User{
		"adminsession":  {ID: "u1", Privilege: account.PrivilegeOrgAdmin},
		"supersession":  {ID: "u2", Privilege: account.PrivilegeSuperAdmin},
		"membersession": {ID: "u3", Privilege: account.PrivilegeMember},
	}}

	handler := AdminSessionMiddleware(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		token      string
		wantStatus int
	}{
		{"org admin", "adminsession", http.StatusOK},
		{"super admin", "supersession", http.StatusOK},
		{"plain member", "membersession", http.StatusForbidden},
		{"unknown session", "nosuchsession", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestResolveCallerOnAuthResultHook(t *testing.T) {
	_, plaintext, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey() error: %v", err)
	}
	client := &apiclient.Client{ID: "c1", Name: "harvester"}
	user := &account.User{ID: "u1", Email: "a@b.edu"}

	svc := NewService(
		&mockClientLookup{clients: map[string]*apiclient.Client{HashKey(plaintext): client}},
		&mockSessionLookup{sessions: map[string]*account.User{"sessiontoken": user}},
	)

	type result struct {
		authType string
		success  bool
	}
	var results []result
	svc.OnAuthResult = func(authType string, success bool) {
		results = append(results, result{authType, success})
	}

	tests := []struct {
		name  string
		token string
		want  result
	}{
		{"valid api key", plaintext, result{"api_key", true}},
		{"unknown api key", "dmph_wrongwrongwrongwrongwrongwrong", result{"api_key", false}},
		{"valid session", "sessiontoken", result{"session", true}},
		{"unknown session", "expiredtoken", result{"session", false}},
	}

	for _, tt := range tests {
		results = nil
		_, _ = svc.ResolveCaller(context.Background(), tt.token)
		if len(results) != 1 {
			t.Fatalf("%s: hook fired %d times, want 1", tt.name, len(results))
		}
		if results[0] != tt.want {
			t.Errorf("%s: hook got %+v, want %+v", tt.name, results[0], tt.want)
		}
	}
}

func TestResolveCallerNilHookIsIgnored(t *testing.T) {
	svc := NewService(&mockClientLookup{}, &mockSessionLookup{})
	if _, err := svc.ResolveCaller(context.Background(), "nosuchtoken"); err == nil {
		t.Error("expected an error for an unknown token")
	}
}
