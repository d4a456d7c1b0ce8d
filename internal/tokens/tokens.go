// Package tokens issues and checks the short participation codes that gate the study.
package tokens

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/types"
)

const (
	// CodeLength is the number of characters in a participation code
	CodeLength = 8
	// MaxBatch bounds a single Create call
	MaxBatch = 500

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// AuthError is returned when a code cannot be used to enter the study
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Service wraps the token repository
type Service struct {
	repo   db.TokenRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a token service
func NewService(repo db.TokenRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// NewCode returns a random uppercase alphanumeric code
func NewCode() (string, error) {
	var sb strings.Builder
	size := big.NewInt(int64(len(alphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		sb.WriteByte(alphabet[n.Int64()])
	}
	return sb.String(), nil
}

// Normalize trims and upper-cases a code as typed by a participant
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create issues count new unused tokens
func (s *Service) Create(ctx context.Context, count int) ([]types.AccessToken, error) {
	if count < 1 {
		count = 1
	}
	if count > MaxBatch {
		return nil, fmt.Errorf("cannot create more than %d tokens at once", MaxBatch)
	}

	created := make([]types.AccessToken, 0, count)
	// Collisions are skipped by the repository; retry a bounded number of rounds
	for round := 0; round < 5 && len(created) < count; round++ {
		batch := make([]types.AccessToken, 0, count-len(created))
		for len(batch) < cap(batch) {
			code, err := NewCode()
			if err != nil {
				return nil, err
			}
			batch = append(batch, types.AccessToken{Token: code, CreatedAt: s.now()})
		}
		stored, err := s.repo.InsertTokens(ctx, batch)
		if err != nil {
			return nil, err
		}
		created = append(created, stored...)
	}
	if len(created) < count {
		return created, fmt.Errorf("created %d of %d tokens", len(created), count)
	}

	s.logger.Info("access tokens created", zap.Int("count", len(created)))
	return created, nil
}

// Validate checks that a code exists and is still usable. It does not consume it.
func (s *Service) Validate(ctx context.Context, code string) (*types.AccessToken, error) {
	code = Normalize(code)
	if code == "" {
		return nil, &AuthError{Message: "Access denied. Token required."}
	}

	tok, err := s.repo.GetToken(ctx, code)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &AuthError{Message: "Invalid or already used token."}
		}
		return nil, err
	}
	if !tok.Usable() {
		return nil, &AuthError{Message: "Invalid or already used token."}
	}
	return tok, nil
}

// CheckActive reports whether a code presented on a later request is still allowed.
// Used codes remain active for the session they started; invalidated codes do not.
func (s *Service) CheckActive(ctx context.Context, code string) (*types.AccessToken, error) {
	tok, err := s.repo.GetToken(ctx, Normalize(code))
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, &AuthError{Message: "Access denied. Token required."}
		}
		return nil, err
	}
	if tok.Invalidated {
		return nil, &AuthError{Message: "Token has been invalidated."}
	}
	return tok, nil
}

// Consume marks a code used and links it to the session it created.
// It reports false when the code had already been consumed.
func (s *Service) Consume(ctx context.Context, code string, sessionID uuid.UUID) (bool, error) {
	linked, err := s.repo.MarkTokenUsed(ctx, Normalize(code), sessionID, s.now())
	if err != nil {
		return false, err
	}
	if !linked {
		s.logger.Warn("access token already consumed", zap.String("session_id", sessionID.String()))
	}
	return linked, nil
}

// Invalidate revokes a code
func (s *Service) Invalidate(ctx context.Context, code string) error {
	if err := s.repo.InvalidateToken(ctx, Normalize(code)); err != nil {
		return err
	}
	s.logger.Info("access token invalidated")
	return nil
}

// List returns every token
func (s *Service) List(ctx context.Context) ([]types.AccessToken, error) {
	return s.repo.ListTokens(ctx)
}
