package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s:status", jobID)
}

func RateLimitKey(minerID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", minerID)
}

func MinerListeningKey(minerID uuid.UUID) string {
	return fmt.Sprintf("miner:%s:listening", minerID)
}
