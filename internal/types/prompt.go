package types

import (
	"time"

	"github.com/google/uuid"
)

// PromptType identifies which versioned template a generation step consumes.
type PromptType string

// Prompt types used by the workflow.
const (
	PromptControl        PromptType = "control"
	PromptBSEGeneration  PromptType = "bse_generation"
	PromptRegeneration   PromptType = "regeneration"
	PromptFinalSynthesis PromptType = "final_synthesis"
)

// PromptTypes lists every known prompt type in workflow order.
func PromptTypes() []PromptType {
	return []PromptType{PromptControl, PromptBSEGeneration, PromptRegeneration, PromptFinalSynthesis}
}

// Valid reports whether t is one of the known prompt types.
func (t PromptType) Valid() bool {
	for _, known := range PromptTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Prompt is one version of a prompt template.
type Prompt struct {
	ID         uuid.UUID  `json:"id"`
	PromptType PromptType `json:"promptType"`
	Content    string     `json:"content"`
	Version    int        `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	ModifiedBy string     `json:"modifiedBy"`
	IsActive   bool       `json:"isActive"`
}
