package pkg

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID returns a short random identifier clients can type in to join a room.
func GenerateSessionID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func GeneratePlayerID() string {
	return uuid.NewString()
}

func IsPlayerID(id string) bool {
	return uuid.Validate(id) == nil
}
