package types

// ValidateTokenRequest is the body of POST /lab/validate-token.
type ValidateTokenRequest struct {
	Token string `json:"token" validate:"required,max=64"`
}

// GenerateProfileRequest is the body of POST /lab/generate-control-profile.
// An empty or malformed session_id starts a new session.
type GenerateProfileRequest struct {
	SessionID      string `json:"session_id"`
	Resume         string `json:"resume" validate:"required"`
	JobDescription string `json:"job_description" validate:"required"`
}

// GenerateBulletsRequest is the body of POST /lab/generate-bse-bullets.
// Resume and job description fall back to the values stored on the session.
type GenerateBulletsRequest struct {
	SessionID      string `json:"session_id" validate:"required"`
	Resume         string `json:"resume"`
	JobDescription string `json:"job_description"`
}

// CurrentBullet is the bullet a participant is asking to have revised.
type CurrentBullet struct {
	Text      string `json:"text" validate:"required"`
	Rationale string `json:"rationale" validate:"required"`
}

// RegenerateBulletRequest is the body of POST /lab/regenerate-bullet.
type RegenerateBulletRequest struct {
	SessionID        string         `json:"session_id" validate:"required"`
	BulletIndex      *int           `json:"bullet_index" validate:"required,min=0,max=2"`
	CurrentBullet    *CurrentBullet `json:"current_bullet" validate:"required"`
	UserRating       *int           `json:"user_rating" validate:"required,min=1,max=7"`
	UserFeedback     string         `json:"user_feedback"`
	IterationHistory []HistoryEntry `json:"iteration_history"`
}

// SaveIterationRequest is the body of POST /lab/save-iteration-data.
type SaveIterationRequest struct {
	SessionID       string `json:"session_id" validate:"required"`
	BulletIndex     *int   `json:"bullet_index" validate:"required,min=0,max=2"`
	IterationNumber *int   `json:"iteration_number" validate:"required,min=1"`
	BulletText      string `json:"bullet_text" validate:"required"`
	Rationale       string `json:"rationale"`
	UserRating      *int   `json:"user_rating" validate:"omitempty,min=1,max=7"`
	UserFeedback    string `json:"user_feedback"`
	IsFinal         bool   `json:"is_final"`
}

// SessionRequest is the body of endpoints that only need a session reference.
type SessionRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// ControlProfileResponsesRequest is the body of POST /lab/save-control-profile-responses.
type ControlProfileResponsesRequest struct {
	SessionID       string            `json:"session_id" validate:"required"`
	LikertResponses map[string]int    `json:"likert_responses" validate:"required,min=1,dive,min=1,max=7"`
	OpenResponses   map[string]string `json:"open_responses"`
}

// LogProgressRequest is the body of POST /lab/log-progress.
type LogProgressRequest struct {
	EventName string `json:"event_name" validate:"required,max=100"`
	SessionID string `json:"session_id"`
}

// FinalDataRequest is the typed part of POST /lab/submit-final-data.
// Any additional fields in the body are kept as free-form feedback.
type FinalDataRequest struct {
	DocumentID                  string            `json:"document_id" validate:"required_without=SessionID"`
	SessionID                   string            `json:"session_id"`
	ContentRepresentationRating map[string]int    `json:"contentRepresentationRating" validate:"required"`
	StyleRepresentationRating   map[string]int    `json:"styleRepresentationRating"`
	TextFeedback                string            `json:"textFeedback"`
	DraftMapping                map[string]string `json:"draftMapping" validate:"required"`
}

// AdminLoginRequest is the body of POST /api/admin/login.
type AdminLoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CreateTokensRequest is the body of POST /api/admin/tokens/create.
type CreateTokensRequest struct {
	Count int `json:"count" validate:"omitempty,min=1,max=500"`
}

// InvalidateTokenRequest is the body of POST /api/admin/tokens/invalidate.
type InvalidateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// PromptContentRequest is the body of PUT /api/admin/prompts/{type}.
type PromptContentRequest struct {
	Content string `json:"content" validate:"required"`
}

// CreatePromptRequest is the body of POST /api/admin/prompts.
type CreatePromptRequest struct {
	PromptType PromptType `json:"prompt_type" validate:"required"`
	Content    string     `json:"content" validate:"required"`
}

// RevertPromptRequest is the body of POST /api/admin/prompts/{type}/revert.
type RevertPromptRequest struct {
	Version int `json:"version" validate:"required,min=1"`
}
