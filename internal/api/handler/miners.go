package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/finetunehub/internal/api/response"
	"github.com/kiranshivaraju/finetunehub/internal/listener"
	"github.com/kiranshivaraju/finetunehub/internal/miner"
	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// MinerService defines the miner account operations the handlers depend on.
type MinerService interface {
	Register(ctx context.Context, req miner.RegisterRequest) (*miner.Credentials, error)
	Authenticate(ctx context.Context, username, password string) (*models.Miner, error)
}

// TokenIssuer signs bearer tokens for authenticated miners.
type TokenIssuer interface {
	Issue(username string, minerID uuid.UUID) (string, error)
}

// Presence records that a miner is online.
type Presence interface {
	MarkMinerListening(ctx context.Context, minerID uuid.UUID, ttl time.Duration) error
}

type loginResponse struct {
	Token   string    `json:"token"`
	UserID  string    `json:"userId"`
	MinerID uuid.UUID `json:"minerId"`
}

// NewLoginHandler returns an http.HandlerFunc for POST /login.
func NewLoginHandler(svc MinerService, issuer TokenIssuer, presence Presence) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		// An unreadable body carries no credentials.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusUnauthorized, "Authentication failed.")
			return
		}

		m, err := svc.Authenticate(r.Context(), req.Username, req.Password)
		if errors.Is(err, miner.ErrNoSuchUser) || errors.Is(err, miner.ErrInvalidCredentials) {
			response.Error(w, http.StatusUnauthorized, "Authentication failed.")
			return
		}
		if err != nil {
			slog.Error("login failed", "username", req.Username, "error", err)
			response.Error(w, http.StatusInternalServerError, "Login failed due to server error.")
			return
		}

		if err := presence.MarkMinerListening(r.Context(), m.ID, listener.PresenceTTL); err != nil {
			slog.Warn("failed to record miner presence", "miner_id", m.ID, "error", err)
		}

		signed, err := issuer.Issue(m.Username, m.ID)
		if err != nil {
			slog.Error("failed to issue token", "miner_id", m.ID, "error", err)
			response.Error(w, http.StatusInternalServerError, "Login failed due to server error.")
			return
		}

		response.JSON(w, loginResponse{Token: signed, UserID: m.Username, MinerID: m.ID})
	}
}

// NewRegisterMinerHandler returns an http.HandlerFunc for POST /register-miner.
// The generated password is only ever returned here.
func NewRegisterMinerHandler(svc MinerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req miner.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Username) == "" {
			response.Error(w, http.StatusBadRequest, "Username is required.")
			return
		}

		creds, err := svc.Register(r.Context(), req)
		if err != nil {
			slog.Error("failed to register miner", "username", req.Username, "error", err)
			response.Error(w, http.StatusInternalServerError, "Failed to register miner.")
			return
		}
		response.JSON(w, creds)
	}
}
