package utils

import (
	"strings"

	"github.com/google/uuid"
)

const displayNamePrefix = "guest-"

// NewID returns a random connection identifier.
func NewID() string {
	return uuid.NewString()
}

// DisplayName derives a short human-readable name from an identifier.
func DisplayName(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	if short == "" {
		short = "anon"
	}
	return displayNamePrefix + short
}
