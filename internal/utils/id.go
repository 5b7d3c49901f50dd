package utils

import "github.com/google/uuid"

// NewID returns a unique identifier for messages, channels and connections.
func NewID() string {
	return uuid.NewString()
}
