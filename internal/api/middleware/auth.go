package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/finetunehub/internal/api/response"
	"github.com/kiranshivaraju/finetunehub/internal/token"
)

// Verifier checks a bearer token and returns its claims.
type Verifier interface {
	Verify(tokenString string) (*token.Claims, error)
}

// Auth provides bearer-token authentication middleware.
type Auth struct {
	verifier Verifier
}

// NewAuth creates a new Auth middleware.
func NewAuth(v Verifier) *Auth {
	return &Auth{verifier: v}
}

// Authenticate validates the Bearer token and sets the miner's ID and
// username in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}

		claims, err := a.verifier.Verify(raw)
		if err != nil {
			slog.Debug("rejected bearer token", "path", r.URL.Path, "error", err)
			response.Error(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := SetMiner(r.Context(), claims.MinerID, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
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
	return strings.TrimSpace(parts[1])
}
