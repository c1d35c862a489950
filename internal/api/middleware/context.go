package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	minerIDKey  contextKey = "miner_id"
	usernameKey contextKey = "username"
)

// SetMiner stores the authenticated miner's identity in ctx.
func SetMiner(ctx context.Context, minerID uuid.UUID, username string) context.Context {
	ctx = context.WithValue(ctx, minerIDKey, minerID)
	return context.WithValue(ctx, usernameKey, username)
}

func GetMinerID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(minerIDKey).(uuid.UUID)
	return id, ok
}

func GetUsername(r *http.Request) (string, bool) {
	name, ok := r.Context().Value(usernameKey).(string)
	return name, ok
}
