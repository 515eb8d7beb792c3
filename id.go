package bridge

import "github.com/google/uuid"

// NewID returns a time-ordered unique identifier (UUIDv7) for sessions and
// connections. It falls back to a random UUID if the clock source fails.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
