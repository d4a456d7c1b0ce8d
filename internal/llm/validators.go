package llm

import (
	"strings"
	"unicode/utf8"
)

// BulletKeys accepts a map whose keys all start with "BP_".
func BulletKeys(m map[string]string) bool {
	return keysWithPrefix(m, "BP_")
}

// RationaleKeys accepts a map whose keys all start with "R_".
func RationaleKeys(m map[string]string) bool {
	return keysWithPrefix(m, "R_")
}

// ProfileText accepts profile output longer than 20 characters after trimming.
func ProfileText(s string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(s)) > 20
}

// RoleName accepts a role title of 2 to 50 characters after trimming.
func RoleName(s string) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= 2 && n <= 50
}

func keysWithPrefix(m map[string]string, prefix string) bool {
	if m == nil {
		return false
	}
	for k := range m {
		if !strings.HasPrefix(k, prefix) {
			return false
		}
	}
	return true
}
