package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/finetunehub/internal/api/middleware"
	"github.com/kiranshivaraju/finetunehub/internal/api/response"
)

// Listeners starts job consumers for miners.
type Listeners interface {
	Start(ctx context.Context, minerID uuid.UUID) bool
}

// NewStartListeningHandler returns an http.HandlerFunc for POST /start-listening.
// Calling it again while already listening is acknowledged the same way.
func NewStartListeningHandler(l Listeners) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		minerID, ok := mw.GetMinerID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "Missing miner identity")
			return
		}

		l.Start(r.Context(), minerID)
		response.Message(w, http.StatusOK, "Started listening for jobs...")
	}
}
