package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/letterlab/internal/types"
)

// -----------------------------------------------------------------------------
// Bullet Iteration Methods
// -----------------------------------------------------------------------------

// lockSession takes a row lock on the session for the rest of tx
func lockSession(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	err := tx.QueryRow(ctx, `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Resource: "session", ID: id.String()}
		}
		return &StorageError{Op: "lock session", Cause: err}
	}
	return nil
}

func insertIteration(ctx context.Context, tx pgx.Tx, id uuid.UUID, bulletIndex int, it types.Iteration) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO bullet_iterations (session_id, bullet_index, iteration_number, bullet_text, rationale,
		                                user_rating, user_feedback, prompt_version, prompt_type, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id, bullet_index, iteration_number) DO UPDATE SET
		     bullet_text = EXCLUDED.bullet_text,
		     rationale = EXCLUDED.rationale,
		     user_rating = EXCLUDED.user_rating,
		     user_feedback = EXCLUDED.user_feedback,
		     prompt_version = COALESCE(EXCLUDED.prompt_version, bullet_iterations.prompt_version),
		     prompt_type = CASE WHEN EXCLUDED.prompt_type = '' THEN bullet_iterations.prompt_type ELSE EXCLUDED.prompt_type END,
		     created_at = EXCLUDED.created_at`,
		id, bulletIndex, it.IterationNumber, it.BulletText, it.Rationale,
		it.UserRating, it.UserFeedback, it.PromptVersion, it.PromptType, it.Timestamp,
	)
	if err != nil {
		return &StorageError{Op: "save bullet iteration", Cause: err}
	}
	return nil
}

func ensureSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID, bulletIndex int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO bullet_slots (session_id, bullet_index) VALUES ($1, $2)
		 ON CONFLICT (session_id, bullet_index) DO NOTHING`,
		id, bulletIndex,
	)
	if err != nil {
		return &StorageError{Op: "create bullet slot", Cause: err}
	}
	return nil
}

func touchSession(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	if _, err := tx.Exec(ctx, `UPDATE sessions SET updated_at = NOW() WHERE id = $1`, id); err != nil {
		return &StorageError{Op: "touch session", Cause: err}
	}
	return nil
}

// InitBulletSlots stores the initial slots in one transaction unless the session already has slots
func (db *DB) InitBulletSlots(ctx context.Context, id uuid.UUID, slots []types.BulletSlot) (bool, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return false, &StorageError{Op: "init bullet slots", Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSession(ctx, tx, id); err != nil {
		return false, err
	}

	var existing int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM bullet_slots WHERE session_id = $1`, id).Scan(&existing); err != nil {
		return false, &StorageError{Op: "count bullet slots", Cause: err}
	}
	if existing > 0 {
		return false, nil
	}

	for _, slot := range slots {
		if err := ensureSlot(ctx, tx, id, slot.BulletIndex); err != nil {
			return false, err
		}
		for _, it := range slot.Iterations {
			if err := insertIteration(ctx, tx, id, slot.BulletIndex, it); err != nil {
				return false, err
			}
		}
	}
	if err := touchSession(ctx, tx, id); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, &StorageError{Op: "commit bullet slots", Cause: err}
	}
	return true, nil
}

// AppendIteration stores it as iteration max+1 of the slot
func (db *DB) AppendIteration(ctx context.Context, id uuid.UUID, bulletIndex int, it types.Iteration) (int, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, &StorageError{Op: "append iteration", Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSession(ctx, tx, id); err != nil {
		return 0, err
	}
	if err := ensureSlot(ctx, tx, id, bulletIndex); err != nil {
		return 0, err
	}

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(iteration_number), 0) + 1 FROM bullet_iterations
		 WHERE session_id = $1 AND bullet_index = $2`,
		id, bulletIndex,
	).Scan(&next); err != nil {
		return 0, &StorageError{Op: "next iteration number", Cause: err}
	}

	it.IterationNumber = next
	if err := insertIteration(ctx, tx, id, bulletIndex, it); err != nil {
		return 0, err
	}
	if err := touchSession(ctx, tx, id); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &StorageError{Op: "commit iteration", Cause: err}
	}
	return next, nil
}

// SaveIteration upserts an iteration by number and, when final is set, points the slot at it
func (db *DB) SaveIteration(ctx context.Context, id uuid.UUID, bulletIndex int, it types.Iteration, final bool) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "save iteration", Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockSession(ctx, tx, id); err != nil {
		return err
	}
	if err := ensureSlot(ctx, tx, id, bulletIndex); err != nil {
		return err
	}
	if err := insertIteration(ctx, tx, id, bulletIndex, it); err != nil {
		return err
	}

	if final {
		tag, err := tx.Exec(ctx,
			`UPDATE bullet_slots SET final_iteration = $3
			 WHERE session_id = $1 AND bullet_index = $2
			   AND EXISTS (SELECT 1 FROM bullet_iterations
			               WHERE session_id = $1 AND bullet_index = $2 AND iteration_number = $3)`,
			id, bulletIndex, it.IterationNumber,
		)
		if err != nil {
			return &StorageError{Op: "set final iteration", Cause: err}
		}
		if tag.RowsAffected() == 0 {
			return &NotFoundError{Resource: "bullet iteration", ID: fmt.Sprintf("%d/%d", bulletIndex, it.IterationNumber)}
		}
	}
	if err := touchSession(ctx, tx, id); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "commit iteration", Cause: err}
	}
	return nil
}
