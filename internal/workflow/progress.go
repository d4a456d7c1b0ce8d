package workflow

import (
	"context"

	"github.com/jonathan/letterlab/internal/types"
)

// LogProgress appends a client-reported event to the progress log
func (s *Service) LogProgress(ctx context.Context, req types.LogProgressRequest) error {
	event := types.ProgressEvent{EventName: req.EventName, Timestamp: s.now()}
	if req.SessionID != "" {
		id, err := parseSessionID(req.SessionID)
		if err != nil {
			return err
		}
		event.SessionID = &id
	}
	return s.progress.AppendProgress(ctx, event)
}

// ProgressLog returns every logged event and the number of completed sessions
func (s *Service) ProgressLog(ctx context.Context) (*types.ProgressLog, error) {
	events, err := s.progress.ListProgress(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := s.sessions.CountCompleted(ctx)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []types.ProgressEvent{}
	}
	return &types.ProgressLog{Events: events, Completed: completed}, nil
}
