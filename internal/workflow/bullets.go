package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jonathan/letterlab/internal/llm"
	"github.com/jonathan/letterlab/internal/parsing"
	"github.com/jonathan/letterlab/internal/types"
)

// historyWindow is how many past iterations the regeneration prompt sees
const historyWindow = 3

// sharedGenerationTimeout bounds a bullet generation shared by concurrent callers
const sharedGenerationTimeout = 5 * time.Minute

// GenerateBullets produces the initial three bullets of a session. When the
// session already has bullets they are returned without calling the model.
// Concurrent calls for one session share a single generation that outlives any
// one caller; each caller still returns early when its own ctx is done.
func (s *Service) GenerateBullets(ctx context.Context, req types.GenerateBulletsRequest) (*types.BulletsResponse, error) {
	id, err := parseSessionID(req.SessionID)
	if err != nil {
		return nil, err
	}

	ch := s.bullets.DoChan(id.String(), func() (any, error) {
		sharedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedGenerationTimeout)
		defer cancel()
		return s.generateBullets(sharedCtx, req)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		s.logger.Debug("bullet generation shared", zap.String("session_id", id.String()))
	}
	resp := *res.Val.(*types.BulletsResponse)
	resp.Bullets = append([]types.Bullet(nil), resp.Bullets...)
	return &resp, nil
}

func (s *Service) generateBullets(ctx context.Context, req types.GenerateBulletsRequest) (*types.BulletsResponse, error) {
	sess, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.HasBullets() {
		return bulletsResponse(sess), nil
	}

	resume := firstNonEmpty(req.Resume, sess.Resume)
	jobDesc := firstNonEmpty(req.JobDescription, sess.JobDesc)
	if resume == "" || jobDesc == "" {
		return nil, &ValidationError{Field: "resume", Message: "resume and job description are required"}
	}

	prompt, p, err := s.prompts.Render(ctx, types.PromptBSEGeneration, map[string]string{
		"Resume":         resume,
		"JobDescription": jobDesc,
	})
	if err != nil {
		return nil, err
	}

	// A response that does not parse into three bullets counts as a failed attempt
	bullets, err := llm.Retry(ctx, s.retry, func(ctx context.Context) ([]types.Bullet, error) {
		raw, err := s.llm.Generate(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return parsing.ParseBullets(raw)
	}, func(b []types.Bullet) bool { return len(b) == types.BulletSlotCount })
	if err != nil {
		s.logger.Error("bullet generation failed", zap.String("session_id", sess.ID.String()), zap.Error(err))
		return nil, err
	}

	now := s.now()
	version := p.Version
	slots := make([]types.BulletSlot, 0, len(bullets))
	for _, b := range bullets {
		slots = append(slots, types.BulletSlot{
			BulletIndex: b.Index,
			Iterations: []types.Iteration{{
				IterationNumber: 1,
				BulletText:      b.Text,
				Rationale:       b.Rationale,
				Timestamp:       now,
				PromptVersion:   &version,
				PromptType:      string(p.PromptType),
			}},
		})
	}

	created, err := s.sessions.InitBulletSlots(ctx, sess.ID, slots)
	if err != nil {
		return nil, err
	}
	if !created {
		// Another request stored bullets first; theirs win
		sess, err = s.sessions.GetSession(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		return bulletsResponse(sess), nil
	}

	s.logger.Info("bullets generated", zap.String("session_id", sess.ID.String()), zap.Int("prompt_version", version))
	return &types.BulletsResponse{Success: true, Bullets: bullets, SessionID: sess.ID.String()}, nil
}

// bulletsResponse reports the latest iteration of each stored slot
func bulletsResponse(sess *types.Session) *types.BulletsResponse {
	bullets := make([]types.Bullet, 0, len(sess.BulletIterations))
	for i := range sess.BulletIterations {
		slot := &sess.BulletIterations[i]
		latest := slot.Latest()
		if latest == nil {
			continue
		}
		bullets = append(bullets, types.Bullet{Index: slot.BulletIndex, Text: latest.BulletText, Rationale: latest.Rationale})
	}
	return &types.BulletsResponse{Success: true, Bullets: bullets, SessionID: sess.ID.String()}
}

// RegenerateBullet rewrites one bullet from the participant's rating and feedback
// and stores the result as the next iteration of its slot.
func (s *Service) RegenerateBullet(ctx context.Context, req types.RegenerateBulletRequest) (*types.RegenerateResponse, error) {
	if req.BulletIndex == nil || *req.BulletIndex < 0 || *req.BulletIndex >= types.BulletSlotCount {
		return nil, &ValidationError{Field: "bullet_index", Message: "must be between 0 and 2"}
	}
	if req.UserRating == nil || *req.UserRating < 1 || *req.UserRating > 7 {
		return nil, &ValidationError{Field: "user_rating", Message: "must be between 1 and 7"}
	}
	if req.CurrentBullet == nil || req.CurrentBullet.Text == "" || req.CurrentBullet.Rationale == "" {
		return nil, &ValidationError{Field: "current_bullet", Message: "text and rationale are required"}
	}

	sess, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	index := *req.BulletIndex

	history := req.IterationHistory
	if len(history) == 0 {
		history = storedHistory(sess.Slot(index))
	}

	prompt, p, err := s.prompts.Render(ctx, types.PromptRegeneration, map[string]string{
		"Rating":           strconv.Itoa(*req.UserRating),
		"Feedback":         firstNonEmpty(strings.TrimSpace(req.UserFeedback), "No specific feedback provided."),
		"BulletText":       req.CurrentBullet.Text,
		"Rationale":        req.CurrentBullet.Rationale,
		"IterationHistory": FormatHistory(history),
	})
	if err != nil {
		return nil, err
	}

	bullet, err := llm.Retry(ctx, s.retry, func(ctx context.Context) (types.BulletContent, error) {
		raw, err := s.llm.Generate(ctx, prompt)
		if err != nil {
			return types.BulletContent{}, err
		}
		return parsing.ParseRegeneratedBullet(raw)
	}, func(b types.BulletContent) bool { return b.Text != "" && b.Rationale != "" })
	if err != nil {
		s.logger.Error("bullet regeneration failed",
			zap.String("session_id", sess.ID.String()),
			zap.Int("bullet_index", index),
			zap.Error(err))
		return nil, err
	}

	version := p.Version
	number, err := s.sessions.AppendIteration(ctx, sess.ID, index, types.Iteration{
		BulletText:    bullet.Text,
		Rationale:     bullet.Rationale,
		Timestamp:     s.now(),
		PromptVersion: &version,
		PromptType:    string(p.PromptType),
	})
	if err != nil {
		return nil, err
	}

	return &types.RegenerateResponse{Success: true, Bullet: bullet, IterationNumber: number}, nil
}

// storedHistory converts a slot's iterations into prompt history entries
func storedHistory(slot *types.BulletSlot) []types.HistoryEntry {
	if slot == nil {
		return nil
	}
	history := make([]types.HistoryEntry, 0, len(slot.Iterations))
	for _, it := range slot.Iterations {
		history = append(history, types.HistoryEntry{
			IterationNumber: it.IterationNumber,
			Text:            it.BulletText,
			Rationale:       it.Rationale,
			Rating:          it.UserRating,
			Feedback:        it.UserFeedback,
		})
	}
	return history
}

// FormatHistory renders the last three history entries for the regeneration prompt
func FormatHistory(history []types.HistoryEntry) string {
	if len(history) == 0 {
		return "No previous iterations."
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var sb strings.Builder
	for i, h := range history {
		number := h.IterationNumber
		if number == 0 {
			number = i + 1
		}
		fmt.Fprintf(&sb, "Iteration %d: %s\n", number, h.Text)
		if h.Rationale != "" {
			fmt.Fprintf(&sb, "  Rationale: %s\n", h.Rationale)
		}
		if h.Rating != nil {
			fmt.Fprintf(&sb, "  Rating: %d/7\n", *h.Rating)
		}
		if h.Feedback != "" {
			fmt.Fprintf(&sb, "  Feedback: %s\n", h.Feedback)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// SaveIteration records the participant's rating and feedback for an iteration,
// optionally marking it as the slot's final version.
func (s *Service) SaveIteration(ctx context.Context, req types.SaveIterationRequest) error {
	id, err := parseSessionID(req.SessionID)
	if err != nil {
		return err
	}
	if req.BulletIndex == nil || *req.BulletIndex < 0 || *req.BulletIndex >= types.BulletSlotCount {
		return &ValidationError{Field: "bullet_index", Message: "must be between 0 and 2"}
	}
	if req.IterationNumber == nil || *req.IterationNumber < 1 {
		return &ValidationError{Field: "iteration_number", Message: "must be at least 1"}
	}

	it := types.Iteration{
		IterationNumber: *req.IterationNumber,
		BulletText:      req.BulletText,
		Rationale:       req.Rationale,
		UserRating:      req.UserRating,
		UserFeedback:    req.UserFeedback,
		Timestamp:       s.now(),
	}
	if err := s.sessions.SaveIteration(ctx, id, *req.BulletIndex, it, req.IsFinal); err != nil {
		return err
	}

	s.logger.Debug("iteration saved",
		zap.String("session_id", id.String()),
		zap.Int("bullet_index", *req.BulletIndex),
		zap.Int("iteration", *req.IterationNumber),
		zap.Bool("final", req.IsFinal))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
