package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey int

const callerContextKey contextKey = iota

// ContextWithCaller returns a new context carrying the given caller.
func ContextWithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// CallerFromContext extracts the caller from the context, or nil if not present.
func CallerFromContext(ctx context.Context) Caller {
	caller, _ := ctx.Value(callerContextKey).(Caller)
	return caller
}

// UserFromContext extracts the user from the context when the caller is a
// user, or nil otherwise.
func UserFromContext(ctx context.Context) *UserCaller {
	if c, ok := CallerFromContext(ctx).(UserCaller); ok {
		return &c
	}
	return nil
}

// CallerAuthMiddleware returns middleware that authenticates requests using a
// bearer credential: an API client key or a user session token. On success
// the resolved caller is injected into the request context.
func CallerAuthMiddleware(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			caller, err := svc.ResolveCaller(r.Context(), token)
			if err != nil || caller == nil {
				writeUnauthorized(w, "invalid credentials")
				return
			}

			ctx := ContextWithCaller(r.Context(), caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminSessionMiddleware validates the session token and requires an
// org-admin (or super-admin) user.
func AdminSessionMiddleware(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			user, err := sessions.GetSessionUser(r.Context(), token)
			if err != nil || user == nil {
				writeUnauthorized(w, "invalid or expired session")
				return
			}
			if !user.IsOrgAdmin() {
				writeForbidden(w, "admin access required")
				return
			}

			ctx := ContextWithCaller(r.Context(), UserCaller{User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractBearerToken extracts the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) string {
	return extractBearerToken(r)
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}

func writeForbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "forbidden",
			Message: message,
		},
	})
}
