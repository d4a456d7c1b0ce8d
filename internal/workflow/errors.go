package workflow

import (
	"fmt"

	"github.com/google/uuid"
)

// ValidationError reports a request that cannot be processed as sent,
// including a stage run before the data it depends on exists.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// parseSessionID parses a session reference sent by a client
func parseSessionID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, &ValidationError{Field: "session_id", Message: "required"}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "session_id", Message: "must be a valid UUID"}
	}
	return id, nil
}
