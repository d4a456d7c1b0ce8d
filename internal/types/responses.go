package types

// ProfileResponse is returned by both profile generation steps.
type ProfileResponse struct {
	Success     bool   `json:"success"`
	ProfileText string `json:"profile_text"`
	SessionID   string `json:"session_id"`
}

// BulletsResponse carries the latest version of every bullet slot.
type BulletsResponse struct {
	Success   bool     `json:"success"`
	Bullets   []Bullet `json:"bullets"`
	SessionID string   `json:"session_id"`
}

// RegenerateResponse is the result of one bullet rewrite.
type RegenerateResponse struct {
	Success         bool          `json:"success"`
	Bullet          BulletContent `json:"bullet"`
	IterationNumber int           `json:"iteration_number"`
}

// FinalDataResponse reports the preferences computed at finalize time.
type FinalDataResponse struct {
	Success         bool   `json:"success"`
	FinalPreference string `json:"finalPreference"`
	StylePreference string `json:"stylePreference,omitempty"`
}

// ProgressLog is the admin view of participant progress.
type ProgressLog struct {
	Events    []ProgressEvent `json:"events"`
	Completed int             `json:"completed"`
}
