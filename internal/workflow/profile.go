package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/llm"
	"github.com/jonathan/letterlab/internal/tokens"
	"github.com/jonathan/letterlab/internal/types"
)

// GenerateControlProfile produces the AI-only profile from a resume and job description.
// An empty or malformed session_id starts a new session, which is linked to the
// caller's access token. The session is created only after generation succeeds.
// A code that already started a session cannot start another.
func (s *Service) GenerateControlProfile(ctx context.Context, req types.GenerateProfileRequest, accessToken string) (*types.ProfileResponse, error) {
	var existing *types.Session
	if id, err := uuid.Parse(req.SessionID); err == nil {
		existing, err = s.sessions.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	linkToken := existing == nil && accessToken != "" && s.tokens != nil
	if linkToken {
		if _, err := s.tokens.Validate(ctx, accessToken); err != nil {
			return nil, err
		}
	}

	prompt, p, err := s.prompts.Render(ctx, types.PromptControl, map[string]string{
		"Resume":         req.Resume,
		"JobDescription": req.JobDescription,
	})
	if err != nil {
		return nil, err
	}

	text, err := s.generateText(ctx, prompt, llm.ProfileText)
	if err != nil {
		s.logger.Error("control profile generation failed", zap.Error(err))
		return nil, err
	}
	profile := newProfile(text, p, s.now())

	if existing != nil {
		if err := s.sessions.SetControlProfile(ctx, existing.ID, profile); err != nil {
			return nil, err
		}
		s.logger.Info("control profile regenerated", zap.String("session_id", existing.ID.String()))
		return &types.ProfileResponse{Success: true, ProfileText: text, SessionID: existing.ID.String()}, nil
	}

	sess := &types.Session{
		ID:               uuid.New(),
		Resume:           req.Resume,
		JobDesc:          req.JobDescription,
		ControlProfile:   &profile,
		BulletIterations: []types.BulletSlot{},
		AccessToken:      accessToken,
		CreatedAt:        s.now(),
		UpdatedAt:        s.now(),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	if linkToken {
		linked, err := s.tokens.Consume(ctx, accessToken, sess.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to link access token: %w", err)
		}
		if !linked {
			// Another request consumed the code first; the new session stays unlinked
			return nil, &tokens.AuthError{Message: "Invalid or already used token."}
		}
	}

	s.logger.Info("session created", zap.String("session_id", sess.ID.String()))
	return &types.ProfileResponse{Success: true, ProfileText: text, SessionID: sess.ID.String()}, nil
}

// GenerateAlignedProfile synthesises a second profile from the refined bullets
func (s *Service) GenerateAlignedProfile(ctx context.Context, req types.SessionRequest) (*types.ProfileResponse, error) {
	sess, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !sess.HasBullets() {
		return nil, &ValidationError{Field: "bulletIterations", Message: "bullets must be generated first"}
	}

	bulletData, err := json.MarshalIndent(sess.BulletIterations, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal bullet data: %w", err)
	}

	prompt, p, err := s.prompts.Render(ctx, types.PromptFinalSynthesis, map[string]string{
		"Resume":         sess.Resume,
		"JobDescription": sess.JobDesc,
		"BulletData":     string(bulletData),
	})
	if err != nil {
		return nil, err
	}

	text, err := s.generateText(ctx, prompt, llm.ProfileText)
	if err != nil {
		s.logger.Error("aligned profile generation failed", zap.String("session_id", sess.ID.String()), zap.Error(err))
		return nil, err
	}
	if err := s.sessions.SetAlignedProfile(ctx, sess.ID, newProfile(text, p, s.now())); err != nil {
		return nil, err
	}

	return &types.ProfileResponse{Success: true, ProfileText: text, SessionID: sess.ID.String()}, nil
}
