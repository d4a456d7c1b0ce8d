package db

import (
	"context"

	"github.com/jonathan/letterlab/internal/types"
)

// AppendProgress appends one event to the progress log
func (db *DB) AppendProgress(ctx context.Context, event types.ProgressEvent) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO progress_events (event_name, session_id, created_at) VALUES ($1, $2, $3)`,
		event.EventName, event.SessionID, event.Timestamp,
	)
	if err != nil {
		return &StorageError{Op: "append progress event", Cause: err}
	}
	return nil
}

// ListProgress returns the progress log in insertion order
func (db *DB) ListProgress(ctx context.Context) ([]types.ProgressEvent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT event_name, session_id, created_at FROM progress_events ORDER BY id`,
	)
	if err != nil {
		return nil, &StorageError{Op: "list progress events", Cause: err}
	}
	defer rows.Close()

	events := []types.ProgressEvent{}
	for rows.Next() {
		var e types.ProgressEvent
		if err := rows.Scan(&e.EventName, &e.SessionID, &e.Timestamp); err != nil {
			return nil, &StorageError{Op: "scan progress event", Cause: err}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list progress events", Cause: err}
	}
	return events, nil
}
