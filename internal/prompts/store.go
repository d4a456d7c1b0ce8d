package prompts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/types"
)

// SystemAuthor is recorded as modifiedBy on seeded prompts.
const SystemAuthor = "system"

// MissingPromptError is returned when a generation step has no active template.
// Generation fails rather than falling back to a built-in template.
type MissingPromptError struct {
	PromptType types.PromptType
}

func (e *MissingPromptError) Error() string {
	return fmt.Sprintf("no active prompt of type %q", e.PromptType)
}

// ValidationError is returned for an unknown prompt type or unusable content.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Store is the prompt service used by the workflow and the admin API
type Store struct {
	repo   db.PromptRepository
	logger *zap.Logger
}

// NewStore creates a prompt service over a repository
func NewStore(repo db.PromptRepository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger}
}

// ParseType validates a prompt type string
func ParseType(s string) (types.PromptType, error) {
	pt := types.PromptType(s)
	if !pt.Valid() {
		return "", &ValidationError{Field: "prompt_type", Message: fmt.Sprintf("invalid prompt type %q", s)}
	}
	return pt, nil
}

// GetActive returns the active prompt of a type
func (s *Store) GetActive(ctx context.Context, pt types.PromptType) (*types.Prompt, error) {
	p, err := s.repo.ActivePrompt(ctx, pt)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &MissingPromptError{PromptType: pt}
		}
		return nil, err
	}
	return p, nil
}

// Create stores content as the next active version of a type
func (s *Store) Create(ctx context.Context, pt types.PromptType, content, modifiedBy string) (*types.Prompt, error) {
	if !pt.Valid() {
		return nil, &ValidationError{Field: "prompt_type", Message: fmt.Sprintf("invalid prompt type %q", pt)}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &ValidationError{Field: "content", Message: "must not be empty"}
	}
	p, err := s.repo.CreatePromptVersion(ctx, pt, content, modifiedBy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("prompt version created",
		zap.String("prompt_type", string(pt)),
		zap.Int("version", p.Version),
		zap.String("modified_by", modifiedBy))
	return p, nil
}

// Update is Create: every edit is a new version
func (s *Store) Update(ctx context.Context, pt types.PromptType, content, modifiedBy string) (*types.Prompt, error) {
	return s.Create(ctx, pt, content, modifiedBy)
}

// History returns every version of a type, newest first
func (s *Store) History(ctx context.Context, pt types.PromptType) ([]types.Prompt, error) {
	return s.repo.PromptHistory(ctx, pt)
}

// Revert reactivates an earlier version
func (s *Store) Revert(ctx context.Context, pt types.PromptType, version int) (*types.Prompt, error) {
	p, err := s.repo.RevertPrompt(ctx, pt, version)
	if err != nil {
		return nil, err
	}
	s.logger.Info("prompt reverted", zap.String("prompt_type", string(pt)), zap.Int("version", version))
	return p, nil
}

// ListActive returns the active prompt of every type that has one
func (s *Store) ListActive(ctx context.Context) ([]types.Prompt, error) {
	active := make([]types.Prompt, 0, len(types.PromptTypes()))
	for _, pt := range types.PromptTypes() {
		p, err := s.repo.ActivePrompt(ctx, pt)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				continue
			}
			return nil, err
		}
		active = append(active, *p)
	}
	return active, nil
}

// Seed creates version 1 from the embedded defaults for every type without an active prompt.
// It returns the types that were seeded.
func (s *Store) Seed(ctx context.Context) ([]types.PromptType, error) {
	defaults, err := Defaults()
	if err != nil {
		return nil, err
	}

	var seeded []types.PromptType
	for _, pt := range types.PromptTypes() {
		_, err := s.repo.ActivePrompt(ctx, pt)
		if err == nil {
			continue
		}
		if !errors.Is(err, db.ErrNotFound) {
			return seeded, err
		}

		content, ok := defaults[pt]
		if !ok {
			return seeded, fmt.Errorf("no default template for prompt type %q", pt)
		}
		if _, err := s.repo.CreatePromptVersion(ctx, pt, content, SystemAuthor); err != nil {
			return seeded, fmt.Errorf("failed to seed %s prompt: %w", pt, err)
		}
		seeded = append(seeded, pt)
	}

	if len(seeded) > 0 {
		s.logger.Info("seeded default prompts", zap.Int("count", len(seeded)))
	}
	return seeded, nil
}

// Render loads the active prompt of a type and fills in its placeholders
func (s *Store) Render(ctx context.Context, pt types.PromptType, data map[string]string) (string, *types.Prompt, error) {
	p, err := s.GetActive(ctx, pt)
	if err != nil {
		return "", nil, err
	}
	return Format(p.Content, data), p, nil
}
