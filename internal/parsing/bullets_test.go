package parsing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fenced(body string) string {
	return "Here are your bullets:\n```json\n" + body + "\n```\nLet me know if you need changes."
}

func TestParseBullets_ThreeBullets(t *testing.T) {
	raw := fenced(`{"bullets":[
		{"text":"Led a migration","rationale":"mastery"},
		{"text":"Mentored peers","rationale":"vicarious"},
		{"text":"Praised by VP","rationale":"persuasion"}
	]}`)

	bullets, err := ParseBullets(raw)
	require.NoError(t, err)
	require.Len(t, bullets, 3)
	for i, b := range bullets {
		assert.Equal(t, i, b.Index)
	}
	assert.Equal(t, "Led a migration", bullets[0].Text)
	assert.Equal(t, "persuasion", bullets[2].Rationale)
}

func TestParseBullets_WrongCount(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "two bullets",
			body:    `{"bullets":[{"text":"a","rationale":"b"},{"text":"c","rationale":"d"}]}`,
			wantMsg: "Expected 3 bullets, got 2",
		},
		{
			name:    "empty list",
			body:    `{"bullets":[]}`,
			wantMsg: "Expected 3 bullets, got 0",
		},
		{
			name:    "one malformed in first three",
			body:    `{"bullets":[{"text":"a","rationale":"b"},{"text":"","rationale":"d"},{"text":"e","rationale":"f"},{"text":"g","rationale":"h"}]}`,
			wantMsg: "Expected 3 bullets, got 2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBullets(fenced(tt.body))
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Message, tt.wantMsg)
		})
	}
}

func TestParseBullets_MoreThanThreeTakesFirst(t *testing.T) {
	raw := fenced(`{"bullets":[
		{"text":"1","rationale":"r1"},
		{"text":"2","rationale":"r2"},
		{"text":"3","rationale":"r3"},
		{"text":"4","rationale":"r4"}
	]}`)

	bullets, err := ParseBullets(raw)
	require.NoError(t, err)
	require.Len(t, bullets, 3)
	assert.Equal(t, "3", bullets[2].Text)
}

func TestParseBullets_SchemaViolation(t *testing.T) {
	_, err := ParseBullets(fenced(`{"bullets":"not a list"}`))
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParseBullets_NoFence(t *testing.T) {
	_, err := ParseBullets(`{"bullets":[]}`)
	require.Error(t, err)
}

func TestParseBullets_KeyedShape(t *testing.T) {
	raw := fenced(`{
		"bullet_points":{"BP_2":"second","BP_1":"first","BP_3":"third"},
		"rationales":{"R_1":"why one","R_2":"why two","R_3":"why three"}
	}`)

	bullets, err := ParseBullets(raw)
	require.NoError(t, err)
	require.Len(t, bullets, 3)
	assert.Equal(t, "first", bullets[0].Text)
	assert.Equal(t, "why one", bullets[0].Rationale)
	assert.Equal(t, "third", bullets[2].Text)
}

func TestParseBullets_KeyedShapeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad bullet key", `{"bullet_points":{"X_1":"a"},"rationales":{"R_1":"b"}}`},
		{"bad rationale key", `{"bullet_points":{"BP_1":"a"},"rationales":{"BP_1":"b"}}`},
		{"unnumbered key", `{"bullet_points":{"BP_x":"a"},"rationales":{"R_x":"b"}}`},
		{"missing rationale", `{"bullet_points":{"BP_1":"a","BP_2":"b","BP_3":"c"},"rationales":{"R_1":"x","R_2":"y"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBullets(fenced(tt.body))
			require.Error(t, err)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
		})
	}
}

func TestParseRegeneratedBullet(t *testing.T) {
	got, err := ParseRegeneratedBullet(fenced(`{"bullet":{"text":" Shipped v2 ","rationale":"mastery"}}`))
	require.NoError(t, err)
	assert.Equal(t, "Shipped v2", got.Text)
	assert.Equal(t, "mastery", got.Rationale)
}

func TestParseRegeneratedBullet_Invalid(t *testing.T) {
	tests := []string{
		fenced(`{"text":"flat"}`),
		fenced(`{"bullet":{"text":"   ","rationale":"r"}}`),
		"no json here",
	}
	for _, raw := range tests {
		_, err := ParseRegeneratedBullet(raw)
		assert.Error(t, err, raw)
	}
}
