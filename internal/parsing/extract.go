package parsing

import (
	"encoding/json"
	"regexp"
	"strings"
)

var jsonFence = regexp.MustCompile("(?is)```json[ \\t]*\\r?\\n?(.*?)```")

// ExtractJSONBlock returns the raw contents of the first ```json fenced block in text.
// Commentary before and after the fence is ignored.
func ExtractJSONBlock(text string) (string, error) {
	m := jsonFence.FindStringSubmatch(text)
	if m == nil {
		return "", &ParseError{Message: "no fenced json block found"}
	}
	block := strings.TrimSpace(m[1])
	if !json.Valid([]byte(block)) {
		return "", &ParseError{Message: "fenced block is not valid JSON"}
	}
	return block, nil
}

// ExtractJSON locates the first ```json fenced block in text and parses it.
func ExtractJSON(text string) (any, error) {
	block, err := ExtractJSONBlock(text)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return nil, &ParseError{Message: "failed to unmarshal fenced block", Cause: err}
	}
	return v, nil
}
