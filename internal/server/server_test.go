package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/letterlab/internal/config"
	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/db/memory"
	"github.com/jonathan/letterlab/internal/llm"
	"github.com/jonathan/letterlab/internal/prompts"
	"github.com/jonathan/letterlab/internal/server/ratelimit"
	"github.com/jonathan/letterlab/internal/tokens"
	"github.com/jonathan/letterlab/internal/workflow"
)

const (
	testSecret        = "0123456789abcdef0123456789abcdef"
	testAdminPassword = "correct horse battery staple"

	profileReply = "Platform engineer with a decade of turning fragile systems into dependable products."
	bulletsReply = "```json\n" + `{"bullets":[
		{"text":"Led the migration of 40 services","rationale":"mastery"},
		{"text":"Learned incident response from senior SREs","rationale":"vicarious"},
		{"text":"Recognized by the CTO for reliability work","rationale":"persuasion"}]}` + "\n```"
	regeneratedReply = "```json\n" + `{"bullet":{"text":"Cut deploy time by 60% across 40 services","rationale":"more concrete"}}` + "\n```"
)

// scriptedLLM picks a reply by the kind of prompt it receives
type scriptedLLM struct{}

func (scriptedLLM) Generate(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "3 bullet points"):
		return bulletsReply, nil
	case strings.Contains(prompt, "rated this bullet"):
		return regeneratedReply, nil
	default:
		return profileReply, nil
	}
}

func (scriptedLLM) Close() error { return nil }

type testEnv struct {
	server  *Server
	handler http.Handler
	store   *memory.Store
	tokens  *tokens.Service
}

func newTestEnv(t *testing.T, limits *ratelimit.Config) *testEnv {
	t.Helper()
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	t.Setenv("ADMIN_PASSWORD", testAdminPassword)

	store := memory.New()
	promptStore := prompts.NewStore(store, nil)
	_, err := promptStore.Seed(context.Background())
	require.NoError(t, err)

	tokenSvc := tokens.NewService(store, nil)
	wf := workflow.New(workflow.Deps{
		Sessions: store,
		Progress: store,
		Prompts:  promptStore,
		Tokens:   tokenSvc,
		LLM:      scriptedLLM{},
		Retry:    llm.RetryPolicy{MaxAttempts: 2, Delay: time.Millisecond},
	})

	admin, err := config.NewAdminCredentials("admin", &config.PasswordConfig{BcryptCost: 4})
	require.NoError(t, err)

	if limits == nil {
		limits = &ratelimit.Config{Enabled: false}
	}

	s := New(Deps{
		Store:    store,
		Workflow: wf,
		Prompts:  promptStore,
		Tokens:   tokenSvc,
		JWT:      NewJWTService(&config.JWTConfig{Secret: testSecret, ParticipantHours: 2, AdminHours: 1}),
		Admin:    admin,
		Limiter:  ratelimit.NewLimiter(limits),
	}, Options{AllowedOrigins: []string{"http://localhost:5173"}})

	return &testEnv{server: s, handler: s.Handler(), store: store, tokens: tokenSvc}
}

// do sends a JSON request with an optional bearer token
func (e *testEnv) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// participant creates an access code and exchanges it for a session token
func (e *testEnv) participant(t *testing.T) (code, bearer string) {
	t.Helper()
	created, err := e.tokens.Create(context.Background(), 1)
	require.NoError(t, err)
	code = created[0].Token

	rec := e.do(t, http.MethodPost, "/lab/validate-token", "", map[string]string{"token": code})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return code, decodeBody(t, rec)["token"].(string)
}

func (e *testEnv) adminToken(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{
		"username": "admin",
		"password": testAdminPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["token"].(string)
}

// startSession runs the control profile and bullet steps
func (e *testEnv) startSession(t *testing.T, bearer string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/lab/generate-control-profile", bearer, map[string]string{
		"resume":          "resume text",
		"job_description": "job text",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sessionID := decodeBody(t, rec)["session_id"].(string)

	rec = e.do(t, http.MethodPost, "/lab/generate-bse-bullets", bearer, map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionID
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestValidateToken(t *testing.T) {
	env := newTestEnv(t, nil)
	created, err := env.tokens.Create(context.Background(), 1)
	require.NoError(t, err)

	rec := env.do(t, http.MethodPost, "/lab/validate-token", "", map[string]string{"token": strings.ToLower(created[0].Token)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "authorized", body["status"])
	assert.NotEmpty(t, body["token"])

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ParticipantCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 2*3600, cookies[0].MaxAge)

	rec = env.do(t, http.MethodPost, "/lab/validate-token", "", map[string]string{"token": "NOPE1234"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or already used token.", decodeBody(t, rec)["error"])

	rec = env.do(t, http.MethodPost, "/lab/validate-token", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLabRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/lab/generate-control-profile", "", map[string]string{
		"resume":          "r",
		"job_description": "j",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access denied. Token required.", decodeBody(t, rec)["error"])

	// Admin tokens do not open participant routes
	rec = env.do(t, http.MethodPost, "/lab/log-progress", env.adminToken(t), map[string]string{"event_name": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLabRoutes_InvalidatedTokenClearsCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	code, bearer := env.participant(t)
	require.NoError(t, env.tokens.Invalidate(context.Background(), code))

	req := httptest.NewRequest(http.MethodPost, "/lab/log-progress", strings.NewReader(`{"event_name":"page_view"}`))
	req.AddCookie(&http.Cookie{Name: ParticipantCookie, Value: bearer})
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has been invalidated.", decodeBody(t, rec)["error"])
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, ParticipantCookie, cookies[0].Name)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestLabFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	code, bearer := env.participant(t)

	rec := env.do(t, http.MethodPost, "/lab/generate-control-profile", bearer, map[string]string{
		"resume":          "resume text",
		"job_description": "job text",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, profileReply, body["profile_text"])
	sessionID := body["session_id"].(string)

	// The code is consumed by the first profile but stays valid for this session
	tok, err := env.store.GetToken(context.Background(), code)
	require.NoError(t, err)
	assert.True(t, tok.Used)

	rec = env.do(t, http.MethodPost, "/lab/generate-bse-bullets", bearer, map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	bullets := decodeBody(t, rec)["bullets"].([]any)
	require.Len(t, bullets, 3)
	assert.Equal(t, "Led the migration of 40 services", bullets[0].(map[string]any)["text"])

	rec = env.do(t, http.MethodPost, "/lab/regenerate-bullet", bearer, map[string]any{
		"session_id":     sessionID,
		"bullet_index":   0,
		"current_bullet": map[string]string{"text": "Led the migration of 40 services", "rationale": "mastery"},
		"user_rating":    4,
		"user_feedback":  "more numbers",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody(t, rec)
	assert.EqualValues(t, 2, body["iteration_number"])
	assert.Equal(t, "Cut deploy time by 60% across 40 services", body["bullet"].(map[string]any)["text"])

	rec = env.do(t, http.MethodPost, "/lab/save-iteration-data", bearer, map[string]any{
		"session_id":       sessionID,
		"bullet_index":     0,
		"iteration_number": 2,
		"bullet_text":      "Cut deploy time by 60% across 40 services",
		"user_rating":      6,
		"is_final":         true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/lab/generate-aligned-profile", bearer, map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, sessionID, decodeBody(t, rec)["session_id"])

	rec = env.do(t, http.MethodPost, "/lab/save-control-profile-responses", bearer, map[string]any{
		"session_id":       sessionID,
		"likert_responses": map[string]int{"accuracy": 5},
		"open_responses":   map[string]string{"liked": "tone"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/lab/submit-final-data", bearer, map[string]any{
		"document_id":                 sessionID,
		"contentRepresentationRating": map[string]int{"draft1": 3, "draft2": 6},
		"draftMapping":                map[string]string{"draft1": "initial", "draft2": "final"},
		"textFeedback":                "the second felt like me",
		"timeSpent":                   312,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "aligned", decodeBody(t, rec)["finalPreference"])

	rec = env.do(t, http.MethodPost, "/lab/log-progress", bearer, map[string]string{"event_name": "finished", "session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sess, err := env.store.GetSession(context.Background(), *tok.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.Completed)
	assert.EqualValues(t, 312, sess.Feedback["timeSpent"])
}

func TestRegenerateBullet_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	_, bearer := env.participant(t)
	sessionID := env.startSession(t, bearer)

	valid := func() map[string]any {
		return map[string]any{
			"session_id":     sessionID,
			"bullet_index":   1,
			"current_bullet": map[string]string{"text": "t", "rationale": "r"},
			"user_rating":    5,
		}
	}

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"index too high", func(m map[string]any) { m["bullet_index"] = 3 }},
		{"index negative", func(m map[string]any) { m["bullet_index"] = -1 }},
		{"index missing", func(m map[string]any) { delete(m, "bullet_index") }},
		{"rating too low", func(m map[string]any) { m["user_rating"] = 0 }},
		{"rating too high", func(m map[string]any) { m["user_rating"] = 8 }},
		{"missing current bullet", func(m map[string]any) { delete(m, "current_bullet") }},
		{"empty bullet text", func(m map[string]any) { m["current_bullet"] = map[string]string{"text": "", "rationale": "r"} }},
		{"malformed session id", func(m map[string]any) { m["session_id"] = "nope" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := valid()
			tt.mutate(body)
			rec := env.do(t, http.MethodPost, "/lab/regenerate-bullet", bearer, body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeBody(t, rec)["error"])
		})
	}

	rec := env.do(t, http.MethodPost, "/lab/regenerate-bullet", bearer, valid())
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestSubmitFinalData_Preference(t *testing.T) {
	tests := []struct {
		name    string
		ratings map[string]int
		want    string
	}{
		{"initial rated higher", map[string]int{"draft1": 6, "draft2": 2}, "control"},
		{"final rated higher", map[string]int{"draft1": 2, "draft2": 6}, "aligned"},
		{"equal ratings", map[string]int{"draft1": 4, "draft2": 4}, "tie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			_, bearer := env.participant(t)
			sessionID := env.startSession(t, bearer)

			rec := env.do(t, http.MethodPost, "/lab/submit-final-data", bearer, map[string]any{
				"document_id":                 sessionID,
				"contentRepresentationRating": tt.ratings,
				"draftMapping":                map[string]string{"draft1": "initial", "draft2": "final"},
			})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, tt.want, decodeBody(t, rec)["finalPreference"])
		})
	}
}

func TestSubmitFinalData_UnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	_, bearer := env.participant(t)

	rec := env.do(t, http.MethodPost, "/lab/submit-final-data", bearer, map[string]any{
		"document_id":                 "00000000-0000-0000-0000-000000000001",
		"contentRepresentationRating": map[string]int{"draft1": 1, "draft2": 2},
		"draftMapping":                map[string]string{"draft1": "initial", "draft2": "final"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"username": "admin", "password": testAdminPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "logged_in", body["status"])
	assert.NotEmpty(t, body["token"])
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AdminCookie, cookies[0].Name)
	assert.Equal(t, 3600, cookies[0].MaxAge)

	rec = env.do(t, http.MethodGet, "/api/admin/tokens", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	_, participant := env.participant(t)
	rec = env.do(t, http.MethodGet, "/api/admin/tokens", participant, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateControlProfile_UsedCodeCannotStartSecondSession(t *testing.T) {
	env := newTestEnv(t, nil)
	_, bearer := env.participant(t)
	sessionID := env.startSession(t, bearer)

	rec := env.do(t, http.MethodPost, "/lab/generate-control-profile", bearer, map[string]string{
		"resume":          "resume text",
		"job_description": "job text",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.NotContains(t, body, "session_id")
	assert.Equal(t, "Invalid or already used token.", body["error"])

	// Later steps of the original session keep working
	rec = env.do(t, http.MethodPost, "/lab/generate-aligned-profile", bearer, map[string]string{"session_id": sessionID})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLogout(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		cookie string
	}{
		{name: "participant", path: "/lab/logout", cookie: ParticipantCookie},
		{name: "admin", path: "/api/admin/logout", cookie: AdminCookie},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			rec := env.do(t, http.MethodPost, tt.path, "", nil)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "logged_out", decodeBody(t, rec)["status"])

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 1)
			assert.Equal(t, tt.cookie, cookies[0].Name)
			assert.Negative(t, cookies[0].MaxAge)
		})
	}
}

func TestAdminHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/admin/health", env.adminToken(t), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 4, body["active_prompts"])
	assert.Empty(t, body["missing_prompts"])
}

func TestAdminPrompts(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.adminToken(t)

	rec := env.do(t, http.MethodGet, "/api/admin/prompts", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["prompts"], 4)

	rec = env.do(t, http.MethodPut, "/api/admin/prompts/control", admin, map[string]string{"content": "Profile for {{.Resume}}"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	prompt := decodeBody(t, rec)["prompt"].(map[string]any)
	assert.EqualValues(t, 2, prompt["version"])
	assert.Equal(t, "admin", prompt["modifiedBy"])

	rec = env.do(t, http.MethodGet, "/api/admin/prompts/control/history", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["history"], 2)

	rec = env.do(t, http.MethodPost, "/api/admin/prompts/control/revert", admin, map[string]int{"version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/admin/prompts/control", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prompt = decodeBody(t, rec)["prompt"].(map[string]any)
	assert.EqualValues(t, 1, prompt["version"])
	assert.Equal(t, true, prompt["isActive"])

	rec = env.do(t, http.MethodPost, "/api/admin/prompts/control/revert", admin, map[string]int{"version": 9})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/prompts/unknown", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/prompts", admin, map[string]string{"prompt_type": "regeneration", "content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/prompts", admin, map[string]string{"prompt_type": "regeneration", "content": "Rewrite {{.BulletText}}"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAdminPrompts_MissingType(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.adminToken(t)

	// Only seeded types exist; a fresh store has none
	env.server.prompts = prompts.NewStore(memory.New(), nil)
	rec := env.do(t, http.MethodGet, "/api/admin/prompts/final_synthesis", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.adminToken(t)

	rec := env.do(t, http.MethodPost, "/api/admin/tokens/create", admin, map[string]int{"count": 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["count"])
	first := body["tokens"].([]any)[0].(map[string]any)["token"].(string)

	rec = env.do(t, http.MethodPost, "/api/admin/tokens/create", admin, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decodeBody(t, rec)["count"])

	rec = env.do(t, http.MethodPost, "/api/admin/tokens/create", admin, map[string]int{"count": 501})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/tokens", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["tokens"], 4)

	rec = env.do(t, http.MethodPost, "/api/admin/tokens/invalidate", admin, map[string]string{"token": first})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/lab/validate-token", "", map[string]string{"token": first})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/admin/tokens/invalidate", admin, map[string]string{"token": "MISSING1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminExportAndProgress(t *testing.T) {
	env := newTestEnv(t, nil)
	admin := env.adminToken(t)

	rec := env.do(t, http.MethodGet, "/api/admin/sessions/export", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	_, bearer := env.participant(t)
	sessionID := env.startSession(t, bearer)
	rec = env.do(t, http.MethodPost, "/lab/mark-session-completed", bearer, map[string]string{"session_id": sessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = env.do(t, http.MethodPost, "/lab/log-progress", bearer, map[string]string{"event_name": "page_view"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/admin/sessions/export", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "sessions.csv")

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Contains(t, records[0], "id")
	assert.Contains(t, records[0], "controlProfile_text")
	assert.Contains(t, records[1], sessionID)

	rec = env.do(t, http.MethodGet, "/api/admin/progress-log", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["events"], 1)
	assert.EqualValues(t, 1, body["completed"])
}

func TestRateLimit_AdminLogin(t *testing.T) {
	env := newTestEnv(t, &ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(),
	})

	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"username": "admin", "password": "guess"})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := env.do(t, http.MethodPost, "/api/admin/login", "", map[string]string{"username": "admin", "password": testAdminPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	body := decodeBody(t, rec)
	assert.Equal(t, "rate_limit_exceeded", body["error"])

	// Health checks are never limited
	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "", nil).Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/lab/regenerate-bullet", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"server validation", &ErrValidation{Field: "token", Message: "required"}, http.StatusBadRequest},
		{"workflow validation", &workflow.ValidationError{Field: "bullet_index", Message: "out of range"}, http.StatusBadRequest},
		{"prompt validation", &prompts.ValidationError{Field: "content", Message: "empty"}, http.StatusBadRequest},
		{"not found", &db.NotFoundError{Resource: "session"}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", &db.NotFoundError{Resource: "session"}), http.StatusNotFound},
		{"auth", &tokens.AuthError{Message: "nope"}, http.StatusUnauthorized},
		{"credentials", &ErrInvalidCredentials{}, http.StatusUnauthorized},
		{"generation", &llm.GenerationError{Message: "boom"}, http.StatusInternalServerError},
		{"missing prompt", &prompts.MissingPromptError{PromptType: "control"}, http.StatusInternalServerError},
		{"retries exhausted", llm.ErrRetriesExhausted, http.StatusInternalServerError},
		{"storage", &db.StorageError{Op: "insert", Cause: errors.New("down")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestServerError_HidesDetail(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/lab/x", nil)

	env.server.writeError(rec, req, &db.StorageError{Op: "insert", Cause: errors.New("password=hunter2")})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decodeBody(t, rec)["error"])
}
