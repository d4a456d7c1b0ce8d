// Package workflow sequences the generation steps of a participant session:
// render the active prompt, call the model with retries, parse and persist.
package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/llm"
	"github.com/jonathan/letterlab/internal/prompts"
	"github.com/jonathan/letterlab/internal/tokens"
	"github.com/jonathan/letterlab/internal/types"
)

// Deps are the collaborators of a Service
type Deps struct {
	Sessions db.SessionRepository
	Progress db.ProgressRepository
	Prompts  *prompts.Store
	Tokens   *tokens.Service
	LLM      llm.Client
	Retry    llm.RetryPolicy
	Logger   *zap.Logger
}

// Service runs the participant-facing workflow
type Service struct {
	sessions db.SessionRepository
	progress db.ProgressRepository
	prompts  *prompts.Store
	tokens   *tokens.Service
	llm      llm.Client
	retry    llm.RetryPolicy
	logger   *zap.Logger

	// collapses concurrent bullet generation for the same session
	bullets singleflight.Group

	now func() time.Time
}

// New creates a workflow service
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := deps.Retry
	if retry.MaxAttempts == 0 {
		retry = llm.DefaultRetryPolicy()
	}
	if retry.Logger == nil {
		retry.Logger = logger
	}
	return &Service{
		sessions: deps.Sessions,
		progress: deps.Progress,
		prompts:  deps.Prompts,
		tokens:   deps.Tokens,
		llm:      deps.LLM,
		retry:    retry,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// loadSession parses a client session reference and loads the session
func (s *Service) loadSession(ctx context.Context, raw string) (*types.Session, error) {
	id, err := parseSessionID(raw)
	if err != nil {
		return nil, err
	}
	return s.sessions.GetSession(ctx, id)
}

// generateText renders a prompt and retries generation until validate accepts the text
func (s *Service) generateText(ctx context.Context, prompt string, validate func(string) bool) (string, error) {
	return llm.Retry(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.llm.Generate(ctx, prompt)
	}, validate)
}

func newProfile(text string, p *types.Prompt, at time.Time) types.Profile {
	return types.Profile{
		Text:          text,
		PromptType:    string(p.PromptType),
		PromptVersion: p.Version,
		GeneratedAt:   at,
	}
}
