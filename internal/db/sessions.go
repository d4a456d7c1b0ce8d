package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/letterlab/internal/types"
)

// -----------------------------------------------------------------------------
// Session Methods
// -----------------------------------------------------------------------------

const sessionColumns = `id, resume, job_desc, initial_cover_letter, final_cover_letter, role_name,
	control_profile, aligned_profile, control_profile_responses, feedback,
	access_token, completed, created_at, updated_at`

// marshalNullable encodes v as JSON, or nil for a nil pointer/map so the column stays NULL
func marshalNullable(v any) ([]byte, error) {
	switch x := v.(type) {
	case *types.Profile:
		if x == nil {
			return nil, nil
		}
	case *types.ControlProfileResponses:
		if x == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

func scanSession(row pgx.Row) (*types.Session, error) {
	var s types.Session
	var controlJSON, alignedJSON, responsesJSON, feedbackJSON []byte
	if err := row.Scan(&s.ID, &s.Resume, &s.JobDesc, &s.InitialCoverLetter, &s.FinalCoverLetter, &s.RoleName,
		&controlJSON, &alignedJSON, &responsesJSON, &feedbackJSON,
		&s.AccessToken, &s.Completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	if controlJSON != nil {
		s.ControlProfile = &types.Profile{}
		if err := json.Unmarshal(controlJSON, s.ControlProfile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal control profile: %w", err)
		}
	}
	if alignedJSON != nil {
		s.AlignedProfile = &types.Profile{}
		if err := json.Unmarshal(alignedJSON, s.AlignedProfile); err != nil {
			return nil, fmt.Errorf("failed to unmarshal aligned profile: %w", err)
		}
	}
	if responsesJSON != nil {
		s.ControlProfileResponses = &types.ControlProfileResponses{}
		if err := json.Unmarshal(responsesJSON, s.ControlProfileResponses); err != nil {
			return nil, fmt.Errorf("failed to unmarshal control profile responses: %w", err)
		}
	}
	if len(feedbackJSON) > 0 {
		if err := json.Unmarshal(feedbackJSON, &s.Feedback); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feedback: %w", err)
		}
	}
	s.BulletIterations = []types.BulletSlot{}
	return &s, nil
}

// CreateSession inserts a new session row
func (db *DB) CreateSession(ctx context.Context, s *types.Session) error {
	controlJSON, err := marshalNullable(s.ControlProfile)
	if err != nil {
		return fmt.Errorf("failed to marshal control profile: %w", err)
	}
	alignedJSON, err := marshalNullable(s.AlignedProfile)
	if err != nil {
		return fmt.Errorf("failed to marshal aligned profile: %w", err)
	}

	feedback := s.Feedback
	if feedback == nil {
		feedback = map[string]any{}
	}
	feedbackJSON, err := json.Marshal(feedback)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO sessions (id, resume, job_desc, initial_cover_letter, final_cover_letter, role_name,
		                       control_profile, aligned_profile, feedback, access_token, completed, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)`,
		s.ID, s.Resume, s.JobDesc, s.InitialCoverLetter, s.FinalCoverLetter, s.RoleName,
		controlJSON, alignedJSON, feedbackJSON, s.AccessToken, s.Completed, s.CreatedAt,
	)
	if err != nil {
		return &StorageError{Op: "create session", Cause: err}
	}
	return nil
}

// GetSession loads a session with all of its bullet slots
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*types.Session, error) {
	s, err := scanSession(db.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "session", ID: id.String()}
		}
		return nil, &StorageError{Op: "get session", Cause: err}
	}

	slots, err := db.loadSlots(ctx, &id)
	if err != nil {
		return nil, err
	}
	if got, ok := slots[id]; ok {
		s.BulletIterations = got
	}
	return s, nil
}

// ListSessions loads every session, oldest first
func (db *DB) ListSessions(ctx context.Context) ([]types.Session, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at`)
	if err != nil {
		return nil, &StorageError{Op: "list sessions", Cause: err}
	}
	defer rows.Close()

	sessions := []types.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan session", Cause: err}
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list sessions", Cause: err}
	}

	slots, err := db.loadSlots(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		if got, ok := slots[sessions[i].ID]; ok {
			sessions[i].BulletIterations = got
		}
	}
	return sessions, nil
}

// loadSlots returns slots with their iterations grouped by session. A nil id loads all sessions.
func (db *DB) loadSlots(ctx context.Context, id *uuid.UUID) (map[uuid.UUID][]types.BulletSlot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT s.session_id, s.bullet_index, s.final_iteration,
		        i.iteration_number, i.bullet_text, i.rationale, i.user_rating, i.user_feedback,
		        i.prompt_version, i.prompt_type, i.created_at
		 FROM bullet_slots s
		 LEFT JOIN bullet_iterations i ON i.session_id = s.session_id AND i.bullet_index = s.bullet_index
		 WHERE $1::uuid IS NULL OR s.session_id = $1
		 ORDER BY s.session_id, s.bullet_index, i.iteration_number`,
		id,
	)
	if err != nil {
		return nil, &StorageError{Op: "load bullet slots", Cause: err}
	}
	defer rows.Close()

	result := make(map[uuid.UUID][]types.BulletSlot)
	for rows.Next() {
		var (
			sessionID      uuid.UUID
			bulletIndex    int
			finalIteration *int
			number         *int
			text           *string
			rationale      *string
			rating         *int
			feedback       *string
			promptVersion  *int
			promptType     *string
			createdAt      *time.Time
		)
		if err := rows.Scan(&sessionID, &bulletIndex, &finalIteration,
			&number, &text, &rationale, &rating, &feedback, &promptVersion, &promptType, &createdAt); err != nil {
			return nil, &StorageError{Op: "scan bullet slot", Cause: err}
		}

		slots := result[sessionID]
		if len(slots) == 0 || slots[len(slots)-1].BulletIndex != bulletIndex {
			slots = append(slots, types.BulletSlot{BulletIndex: bulletIndex, Iterations: []types.Iteration{}, FinalIteration: finalIteration})
		}
		if number != nil {
			slot := &slots[len(slots)-1]
			slot.Iterations = append(slot.Iterations, types.Iteration{
				IterationNumber: *number,
				BulletText:      deref(text),
				Rationale:       deref(rationale),
				UserRating:      rating,
				UserFeedback:    deref(feedback),
				Timestamp:       derefTime(createdAt),
				PromptVersion:   promptVersion,
				PromptType:      deref(promptType),
			})
		}
		result[sessionID] = slots
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "load bullet slots", Cause: err}
	}
	return result, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// updateSessionField sets one jsonb column and reports a missing session as not found
func (db *DB) updateSessionField(ctx context.Context, op, column string, id uuid.UUID, value any) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", column, err)
	}
	tag, err := db.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE sessions SET %s = $2, updated_at = NOW() WHERE id = $1`, column),
		id, valueJSON,
	)
	if err != nil {
		return &StorageError{Op: op, Cause: err}
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "session", ID: id.String()}
	}
	return nil
}

// SetControlProfile stores the generated control profile
func (db *DB) SetControlProfile(ctx context.Context, id uuid.UUID, profile types.Profile) error {
	return db.updateSessionField(ctx, "set control profile", "control_profile", id, profile)
}

// SetAlignedProfile stores the generated aligned profile
func (db *DB) SetAlignedProfile(ctx context.Context, id uuid.UUID, profile types.Profile) error {
	return db.updateSessionField(ctx, "set aligned profile", "aligned_profile", id, profile)
}

// SaveControlProfileResponses stores the participant's survey answers
func (db *DB) SaveControlProfileResponses(ctx context.Context, id uuid.UUID, responses types.ControlProfileResponses) error {
	return db.updateSessionField(ctx, "save control profile responses", "control_profile_responses", id, responses)
}

// MergeFeedback merges fields into the feedback map and marks the session completed
func (db *DB) MergeFeedback(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal feedback: %w", err)
	}
	tag, err := db.pool.Exec(ctx,
		`UPDATE sessions SET feedback = feedback || $2::jsonb, completed = TRUE, updated_at = NOW() WHERE id = $1`,
		id, fieldsJSON,
	)
	if err != nil {
		return &StorageError{Op: "merge feedback", Cause: err}
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "session", ID: id.String()}
	}
	return nil
}

// MarkCompleted flags a session as completed
func (db *DB) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE sessions SET completed = TRUE, updated_at = NOW() WHERE id = $1`, id,
	)
	if err != nil {
		return &StorageError{Op: "mark session completed", Cause: err}
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "session", ID: id.String()}
	}
	return nil
}

// CountCompleted returns the number of completed sessions
func (db *DB) CountCompleted(ctx context.Context) (int, error) {
	var n int
	if err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE completed`).Scan(&n); err != nil {
		return 0, &StorageError{Op: "count completed sessions", Cause: err}
	}
	return n, nil
}
