package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/letterlab/internal/types"
)

// -----------------------------------------------------------------------------
// Access Token Methods
// -----------------------------------------------------------------------------

const tokenColumns = `token, used, invalidated, created_at, used_at, session_id`

func scanToken(row pgx.Row) (*types.AccessToken, error) {
	var t types.AccessToken
	if err := row.Scan(&t.Token, &t.Used, &t.Invalidated, &t.CreatedAt, &t.UsedAt, &t.SessionID); err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTokens stores new tokens and skips codes that already exist
func (db *DB) InsertTokens(ctx context.Context, tokens []types.AccessToken) ([]types.AccessToken, error) {
	batch := &pgx.Batch{}
	for _, t := range tokens {
		batch.Queue(
			`INSERT INTO access_tokens (token, used, invalidated, created_at)
			 VALUES ($1, FALSE, FALSE, $2)
			 ON CONFLICT (token) DO NOTHING`,
			t.Token, t.CreatedAt,
		)
	}

	results := db.pool.SendBatch(ctx, batch)
	defer results.Close()

	stored := make([]types.AccessToken, 0, len(tokens))
	for _, t := range tokens {
		tag, err := results.Exec()
		if err != nil {
			return nil, &StorageError{Op: "insert access token", Cause: err}
		}
		if tag.RowsAffected() == 1 {
			stored = append(stored, t)
		}
	}
	return stored, nil
}

// GetToken returns one access token
func (db *DB) GetToken(ctx context.Context, token string) (*types.AccessToken, error) {
	t, err := scanToken(db.pool.QueryRow(ctx,
		`SELECT `+tokenColumns+` FROM access_tokens WHERE token = $1`, token,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Resource: "access token"}
		}
		return nil, &StorageError{Op: "get access token", Cause: err}
	}
	return t, nil
}

// ListTokens returns every access token, newest first
func (db *DB) ListTokens(ctx context.Context) ([]types.AccessToken, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+tokenColumns+` FROM access_tokens ORDER BY created_at DESC, token`)
	if err != nil {
		return nil, &StorageError{Op: "list access tokens", Cause: err}
	}
	defer rows.Close()

	tokens := []types.AccessToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, &StorageError{Op: "scan access token", Cause: err}
		}
		tokens = append(tokens, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list access tokens", Cause: err}
	}
	return tokens, nil
}

// InvalidateToken revokes a token
func (db *DB) InvalidateToken(ctx context.Context, token string) error {
	tag, err := db.pool.Exec(ctx, `UPDATE access_tokens SET invalidated = TRUE WHERE token = $1`, token)
	if err != nil {
		return &StorageError{Op: "invalidate access token", Cause: err}
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Resource: "access token"}
	}
	return nil
}

// MarkTokenUsed consumes an unused token and links it to a session
func (db *DB) MarkTokenUsed(ctx context.Context, token string, sessionID uuid.UUID, at time.Time) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`UPDATE access_tokens SET used = TRUE, used_at = $2, session_id = $3
		 WHERE token = $1 AND NOT used AND NOT invalidated`,
		token, at, sessionID,
	)
	if err != nil {
		return false, &StorageError{Op: "mark access token used", Cause: err}
	}
	return tag.RowsAffected() == 1, nil
}
