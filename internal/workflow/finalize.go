package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/types"
)

// Preference outcomes recorded at finalize time
const (
	PreferenceControl = "control"
	PreferenceAligned = "aligned"
	PreferenceTie     = "tie"
)

// Logical draft roles a draftMapping resolves to
const (
	roleInitial = "initial"
	roleFinal   = "final"
)

// Preference decides which profile a participant rated higher. Ratings are keyed
// by presented draft (draft1, draft2) and mapping resolves each draft to its
// logical role. A strictly higher initial rating is "control", a strictly higher
// final rating is "aligned" and equal ratings are "tie".
func Preference(ratings map[string]int, mapping map[string]string) (string, error) {
	byRole := map[string]int{}
	for draft, rating := range ratings {
		role, ok := mapping[draft]
		if !ok {
			continue
		}
		if role != roleInitial && role != roleFinal {
			return "", &ValidationError{Field: "draftMapping", Message: fmt.Sprintf("unknown role %q for %s", role, draft)}
		}
		if _, dup := byRole[role]; dup {
			return "", &ValidationError{Field: "draftMapping", Message: fmt.Sprintf("role %q is mapped more than once", role)}
		}
		byRole[role] = rating
	}

	initial, okInitial := byRole[roleInitial]
	final, okFinal := byRole[roleFinal]
	if !okInitial || !okFinal {
		return "", &ValidationError{Field: "draftMapping", Message: "ratings for both initial and final drafts are required"}
	}

	switch {
	case initial > final:
		return PreferenceControl, nil
	case final > initial:
		return PreferenceAligned, nil
	default:
		return PreferenceTie, nil
	}
}

// SubmitFinalData stores the participant's final ratings together with any extra
// fields of the request and marks the session completed.
func (s *Service) SubmitFinalData(ctx context.Context, req types.FinalDataRequest, extra map[string]any) (*types.FinalDataResponse, error) {
	id, err := parseSessionID(firstNonEmpty(req.DocumentID, req.SessionID))
	if err != nil {
		return nil, err
	}

	finalPreference, err := Preference(req.ContentRepresentationRating, req.DraftMapping)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(extra)+6)
	for k, v := range extra {
		switch k {
		case "document_id", "session_id":
			continue
		}
		fields[k] = v
	}
	fields["contentRepresentationRating"] = req.ContentRepresentationRating
	fields["draftMapping"] = req.DraftMapping
	fields["textFeedback"] = req.TextFeedback
	fields["finalPreference"] = finalPreference
	fields["submittedAt"] = s.now()

	resp := &types.FinalDataResponse{Success: true, FinalPreference: finalPreference}
	if len(req.StyleRepresentationRating) > 0 {
		stylePreference, err := Preference(req.StyleRepresentationRating, req.DraftMapping)
		if err != nil {
			return nil, err
		}
		fields["styleRepresentationRating"] = req.StyleRepresentationRating
		fields["stylePreference"] = stylePreference
		resp.StylePreference = stylePreference
	}

	if err := s.sessions.MergeFeedback(ctx, id, fields); err != nil {
		return nil, err
	}

	s.logger.Info("session finalized",
		zap.String("session_id", id.String()),
		zap.String("final_preference", finalPreference))
	return resp, nil
}

// SaveControlProfileResponses stores the survey answers about the control profile
func (s *Service) SaveControlProfileResponses(ctx context.Context, req types.ControlProfileResponsesRequest) error {
	id, err := parseSessionID(req.SessionID)
	if err != nil {
		return err
	}
	if len(req.LikertResponses) == 0 {
		return &ValidationError{Field: "likert_responses", Message: "required"}
	}
	for question, v := range req.LikertResponses {
		if v < 1 || v > 7 {
			return &ValidationError{Field: "likert_responses", Message: fmt.Sprintf("%s must be between 1 and 7", question)}
		}
	}

	open := req.OpenResponses
	if open == nil {
		open = map[string]string{}
	}
	return s.sessions.SaveControlProfileResponses(ctx, id, types.ControlProfileResponses{
		LikertResponses: req.LikertResponses,
		OpenResponses:   open,
		SubmittedAt:     s.now(),
	})
}

// MarkSessionCompleted flags a session as completed without final data
func (s *Service) MarkSessionCompleted(ctx context.Context, req types.SessionRequest) error {
	id, err := parseSessionID(req.SessionID)
	if err != nil {
		return err
	}
	if err := s.sessions.MarkCompleted(ctx, id); err != nil {
		return err
	}
	s.logger.Info("session marked completed", zap.String("session_id", id.String()))
	return nil
}
