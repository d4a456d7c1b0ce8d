package types

import (
	"time"

	"github.com/google/uuid"
)

// AccessToken is a participation code handed out to study participants.
type AccessToken struct {
	Token       string     `json:"token"`
	Used        bool       `json:"used"`
	Invalidated bool       `json:"invalidated"`
	CreatedAt   time.Time  `json:"created_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	SessionID   *uuid.UUID `json:"session_id,omitempty"`
}

// Usable reports whether the token may still be used to enter the study.
func (t *AccessToken) Usable() bool {
	return !t.Used && !t.Invalidated
}

// ProgressEvent is an append-only log entry used for observability.
type ProgressEvent struct {
	EventName string     `json:"event_name"`
	Timestamp time.Time  `json:"timestamp"`
	SessionID *uuid.UUID `json:"session_id,omitempty"`
}
