package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/letterlab/internal/types"
)

// PromptRepository persists versioned prompt templates.
// At most one prompt per type is active at any time.
type PromptRepository interface {
	// ActivePrompt returns the active prompt of a type or a NotFoundError
	ActivePrompt(ctx context.Context, promptType types.PromptType) (*types.Prompt, error)
	// CreatePromptVersion inserts version max+1 as the only active prompt of its type
	CreatePromptVersion(ctx context.Context, promptType types.PromptType, content, modifiedBy string) (*types.Prompt, error)
	// PromptHistory returns every version of a type, newest first
	PromptHistory(ctx context.Context, promptType types.PromptType) ([]types.Prompt, error)
	// RevertPrompt makes an existing version the only active prompt of its type
	RevertPrompt(ctx context.Context, promptType types.PromptType, version int) (*types.Prompt, error)
}

// SessionRepository persists participant sessions and their bullet iterations
type SessionRepository interface {
	CreateSession(ctx context.Context, session *types.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error)
	ListSessions(ctx context.Context) ([]types.Session, error)
	SetControlProfile(ctx context.Context, id uuid.UUID, profile types.Profile) error
	SetAlignedProfile(ctx context.Context, id uuid.UUID, profile types.Profile) error

	// InitBulletSlots stores the initial slots of a session. It reports false,
	// leaving the session untouched, when slots already exist.
	InitBulletSlots(ctx context.Context, id uuid.UUID, slots []types.BulletSlot) (bool, error)
	// AppendIteration stores it as the next iteration of a slot and returns its number
	AppendIteration(ctx context.Context, id uuid.UUID, bulletIndex int, it types.Iteration) (int, error)
	// SaveIteration upserts an iteration by number and optionally marks it final
	SaveIteration(ctx context.Context, id uuid.UUID, bulletIndex int, it types.Iteration, final bool) error

	SaveControlProfileResponses(ctx context.Context, id uuid.UUID, responses types.ControlProfileResponses) error
	// MergeFeedback merges fields into the feedback map and marks the session completed
	MergeFeedback(ctx context.Context, id uuid.UUID, fields map[string]any) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	CountCompleted(ctx context.Context) (int, error)
}

// TokenRepository persists access tokens
type TokenRepository interface {
	// InsertTokens stores new tokens, skipping any code that already exists, and
	// returns the ones actually stored
	InsertTokens(ctx context.Context, tokens []types.AccessToken) ([]types.AccessToken, error)
	GetToken(ctx context.Context, token string) (*types.AccessToken, error)
	ListTokens(ctx context.Context) ([]types.AccessToken, error)
	InvalidateToken(ctx context.Context, token string) error
	// MarkTokenUsed links an unused token to a session. It reports false when
	// the token was already used or invalidated.
	MarkTokenUsed(ctx context.Context, token string, sessionID uuid.UUID, at time.Time) (bool, error)
}

// ProgressRepository persists the append-only progress log
type ProgressRepository interface {
	AppendProgress(ctx context.Context, event types.ProgressEvent) error
	ListProgress(ctx context.Context) ([]types.ProgressEvent, error)
}

// Store is the full storage surface used by the server
type Store interface {
	PromptRepository
	SessionRepository
	TokenRepository
	ProgressRepository
	Ping(ctx context.Context) error
	Close()
}

var _ Store = (*DB)(nil)
