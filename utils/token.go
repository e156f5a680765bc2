package utils

import (
	"strings"

	"github.com/google/uuid"
)

// RequestID returns a fresh time-ordered request id.
func RequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
