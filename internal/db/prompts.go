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
// Prompt Methods
// -----------------------------------------------------------------------------

const promptColumns = `id, prompt_type, content, version, created_at, modified_by, is_active`

func scanPrompt(row pgx.Row) (*types.Prompt, error) {
	var p types.Prompt
	var promptType string
	if err := row.Scan(&p.ID, &promptType, &p.Content, &p.Version, &p.CreatedAt, &p.ModifiedBy, &p.IsActive); err != nil {
		return nil, err
	}
	p.PromptType = types.PromptType(promptType)
	return &p, nil
}

// ActivePrompt returns the active prompt of a type
func (db *DB) ActivePrompt(ctx context.Context, promptType types.PromptType) (*types.Prompt, error) {
	p, err := scanPrompt(db.pool.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE prompt_type = $1 AND is_active`,
		string(promptType),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "active prompt", ID: string(promptType)}
		}
		return nil, &StorageError{Op: "get active prompt", Cause: err}
	}
	return p, nil
}

// lockPromptType serializes version changes of one prompt type for the rest of tx
func lockPromptType(ctx context.Context, tx pgx.Tx, promptType types.PromptType) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "prompts:"+string(promptType))
	return err
}

// CreatePromptVersion inserts the next version of a prompt type and makes it the only active one
func (db *DB) CreatePromptVersion(ctx context.Context, promptType types.PromptType, content, modifiedBy string) (*types.Prompt, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, &StorageError{Op: "create prompt", Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockPromptType(ctx, tx, promptType); err != nil {
		return nil, &StorageError{Op: "lock prompt type", Cause: err}
	}

	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM prompts WHERE prompt_type = $1`,
		string(promptType),
	).Scan(&next); err != nil {
		return nil, &StorageError{Op: "next prompt version", Cause: err}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE prompts SET is_active = FALSE WHERE prompt_type = $1 AND is_active`,
		string(promptType),
	); err != nil {
		return nil, &StorageError{Op: "deactivate prompts", Cause: err}
	}

	p, err := scanPrompt(tx.QueryRow(ctx,
		`INSERT INTO prompts (id, prompt_type, content, version, modified_by, is_active)
		 VALUES ($1, $2, $3, $4, $5, TRUE)
		 RETURNING `+promptColumns,
		uuid.New(), string(promptType), content, next, modifiedBy,
	))
	if err != nil {
		return nil, &StorageError{Op: "insert prompt", Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &StorageError{Op: "commit prompt", Cause: err}
	}
	return p, nil
}

// PromptHistory returns every version of a prompt type, newest first
func (db *DB) PromptHistory(ctx context.Context, promptType types.PromptType) ([]types.Prompt, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE prompt_type = $1 ORDER BY version DESC`,
		string(promptType),
	)
	if err != nil {
		return nil, &StorageError{Op: "list prompt history", Cause: err}
	}
	defer rows.Close()

	history := []types.Prompt{}
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan prompt", Cause: err}
		}
		history = append(history, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list prompt history", Cause: err}
	}
	return history, nil
}

// RevertPrompt reactivates an existing version. An unknown version leaves every row unchanged.
func (db *DB) RevertPrompt(ctx context.Context, promptType types.PromptType, version int) (*types.Prompt, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, &StorageError{Op: "revert prompt", Cause: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockPromptType(ctx, tx, promptType); err != nil {
		return nil, &StorageError{Op: "lock prompt type", Cause: err}
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM prompts WHERE prompt_type = $1 AND version = $2)`,
		string(promptType), version,
	).Scan(&exists); err != nil {
		return nil, &StorageError{Op: "find prompt version", Cause: err}
	}
	if !exists {
		return nil, &NotFoundError{Resource: "prompt version", ID: fmt.Sprintf("%s@%d", promptType, version)}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE prompts SET is_active = FALSE WHERE prompt_type = $1 AND is_active`,
		string(promptType),
	); err != nil {
		return nil, &StorageError{Op: "deactivate prompts", Cause: err}
	}

	p, err := scanPrompt(tx.QueryRow(ctx,
		`UPDATE prompts SET is_active = TRUE WHERE prompt_type = $1 AND version = $2
		 RETURNING `+promptColumns,
		string(promptType), version,
	))
	if err != nil {
		return nil, &StorageError{Op: "activate prompt", Cause: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &StorageError{Op: "commit prompt revert", Cause: err}
	}
	return p, nil
}
