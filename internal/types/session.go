// Package types provides type definitions for structured data used throughout the letter lab backend.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// BulletSlotCount is the number of belief categories a session carries bullets for
// (mastery, vicarious experience, verbal persuasion).
const BulletSlotCount = 3

// Session is one participant's generation run.
type Session struct {
	ID                      uuid.UUID                `json:"id"`
	Resume                  string                   `json:"resume"`
	JobDesc                 string                   `json:"job_desc"`
	InitialCoverLetter      string                   `json:"initial_cover_letter,omitempty"`
	FinalCoverLetter        string                   `json:"final_cover_letter,omitempty"`
	RoleName                string                   `json:"role_name,omitempty"`
	ControlProfile          *Profile                 `json:"controlProfile,omitempty"`
	AlignedProfile          *Profile                 `json:"alignedProfile,omitempty"`
	BulletIterations        []BulletSlot             `json:"bulletIterations"`
	ControlProfileResponses *ControlProfileResponses `json:"controlProfileResponses,omitempty"`
	Feedback                map[string]any           `json:"feedback,omitempty"`
	AccessToken             string                   `json:"accessToken,omitempty"`
	Completed               bool                     `json:"completed"`
	CreatedAt               time.Time                `json:"createdAt"`
	UpdatedAt               time.Time                `json:"updatedAt"`
}

// Profile is a generated professional-summary text together with the prompt that produced it.
type Profile struct {
	Text          string    `json:"text"`
	PromptType    string    `json:"promptType"`
	PromptVersion int       `json:"promptVersion"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// BulletSlot holds the evolving iterations of one bullet position.
type BulletSlot struct {
	BulletIndex    int         `json:"bulletIndex"`
	Iterations     []Iteration `json:"iterations"`
	FinalIteration *int        `json:"finalIteration"`
}

// Latest returns the iteration with the highest number, or nil for an empty slot.
func (s *BulletSlot) Latest() *Iteration {
	var latest *Iteration
	for i := range s.Iterations {
		if latest == nil || s.Iterations[i].IterationNumber > latest.IterationNumber {
			latest = &s.Iterations[i]
		}
	}
	return latest
}

// Iteration is one generated or user-revised version of a bullet.
type Iteration struct {
	IterationNumber int       `json:"iterationNumber"`
	BulletText      string    `json:"bulletText"`
	Rationale       string    `json:"rationale"`
	UserRating      *int      `json:"userRating"`
	UserFeedback    string    `json:"userFeedback"`
	Timestamp       time.Time `json:"timestamp"`
	PromptVersion   *int      `json:"promptVersion"`
	PromptType      string    `json:"promptType,omitempty"`
}

// ControlProfileResponses are the participant's survey answers about the control profile.
type ControlProfileResponses struct {
	LikertResponses map[string]int    `json:"likert_responses"`
	OpenResponses   map[string]string `json:"open_responses"`
	SubmittedAt     time.Time         `json:"submitted_at"`
}

// HasBullets reports whether any slot carries at least one iteration.
func (s *Session) HasBullets() bool {
	for _, slot := range s.BulletIterations {
		if len(slot.Iterations) > 0 {
			return true
		}
	}
	return false
}

// Slot returns the slot with the given index, or nil.
func (s *Session) Slot(index int) *BulletSlot {
	for i := range s.BulletIterations {
		if s.BulletIterations[i].BulletIndex == index {
			return &s.BulletIterations[i]
		}
	}
	return nil
}
