// Package prompts manages the versioned prompt templates each generation step consumes.
// Default templates are stored as JSON and embedded at compile time; they seed the
// store on startup, after which the store is the only source of truth.
package prompts

import (
	"embed"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jonathan/letterlab/internal/types"
)

//go:embed *.json
var promptFiles embed.FS

const defaultsFile = "defaults.json"

// Defaults returns the embedded default template of every prompt type.
func Defaults() (map[types.PromptType]string, error) {
	data, err := promptFiles.ReadFile(defaultsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt file %s: %w", defaultsFile, err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prompt file %s: %w", defaultsFile, err)
	}

	defaults := make(map[types.PromptType]string, len(raw))
	for key, content := range raw {
		pt := types.PromptType(key)
		if !pt.Valid() {
			return nil, fmt.Errorf("unknown prompt type %q in %s", key, defaultsFile)
		}
		defaults[pt] = content
	}
	return defaults, nil
}

var placeholder = regexp.MustCompile(`\{\{\.(\w+)\}\}`)

// Format replaces template placeholders in the form {{.Key}} with values from data.
// Substitution is a single pass, so placeholder-like text inside a value is kept
// verbatim. Placeholders without a value are left in place.
func Format(template string, data map[string]string) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholder.FindStringSubmatch(match)[1]
		if value, ok := data[key]; ok {
			return value
		}
		return match
	})
}
