package cache

import (
	"fmt"

	"github.com/google/uuid"
)

func ArtifactKey(userID string, jobID uuid.UUID) string {
	return fmt.Sprintf("artifact:%s:%s", userID, jobID)
}

// MarkerKey is the reserved per-user key progress markers live under.
func MarkerKey(userID string) string {
	return fmt.Sprintf("marker:%s", userID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
