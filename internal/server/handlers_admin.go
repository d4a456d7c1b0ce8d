package server

import (
	"bytes"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/letterlab/internal/export"
	"github.com/jonathan/letterlab/internal/server/middleware"
	"github.com/jonathan/letterlab/internal/types"
)

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/admin/login", s.handleAdminLogin)
	mux.HandleFunc("POST /api/admin/logout", s.handleAdminLogout)

	mux.Handle("GET /api/admin/health", s.adminOnly(s.handleAdminHealth))
	mux.Handle("GET /api/admin/sessions/export", s.adminOnly(s.handleExportSessions))
	mux.Handle("GET /api/admin/progress-log", s.adminOnly(s.handleProgressLog))

	// Access tokens
	mux.Handle("GET /api/admin/tokens", s.adminOnly(s.handleListTokens))
	mux.Handle("POST /api/admin/tokens/create", s.adminOnly(s.handleCreateTokens))
	mux.Handle("POST /api/admin/tokens/invalidate", s.adminOnly(s.handleInvalidateToken))

	// Prompt versions
	mux.Handle("GET /api/admin/prompts", s.adminOnly(s.handleListPrompts))
	mux.Handle("POST /api/admin/prompts", s.adminOnly(s.handleCreatePrompt))
	mux.Handle("GET /api/admin/prompts/{type}", s.adminOnly(s.handleGetPrompt))
	mux.Handle("PUT /api/admin/prompts/{type}", s.adminOnly(s.handleUpdatePrompt))
	mux.Handle("GET /api/admin/prompts/{type}/history", s.adminOnly(s.handlePromptHistory))
	mux.Handle("POST /api/admin/prompts/{type}/revert", s.adminOnly(s.handleRevertPrompt))
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req types.AdminLoginRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if s.admin == nil || !s.admin.Verify(req.Username, req.Password) {
		s.logger.Warn("admin login failed", zap.String("client", s.extractClientID(r)))
		s.writeError(w, r, &ErrInvalidCredentials{})
		return
	}

	signed, err := s.jwt.GenerateToken(RoleAdmin, s.admin.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.sessionCookie(RoleAdmin, signed))
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "logged_in",
		"token":  signed,
	})
}

func (s *Server) handleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	middleware.ClearCookie(w, AdminCookie)
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleAdminHealth checks the store and the active prompts concurrently
func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	var active []types.Prompt
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return s.store.Ping(ctx)
	})
	g.Go(func() error {
		var err error
		active, err = s.prompts.ListActive(ctx)
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  "Storage unavailable",
		})
		return
	}

	present := make(map[types.PromptType]bool, len(active))
	for _, p := range active {
		present[p.PromptType] = true
	}
	missing := []types.PromptType{}
	for _, pt := range types.PromptTypes() {
		if !present[pt] {
			missing = append(missing, pt)
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_prompts":  len(active),
		"missing_prompts": missing,
	})
}

// handleExportSessions downloads every session as a flattened CSV file
func (s *Server) handleExportSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(sessions) == 0 {
		s.errorResponse(w, http.StatusNotFound, "No sessions found")
		return
	}

	// Render fully before writing so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := export.WriteSessions(&buf, sessions); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=sessions.csv")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Error("failed to write export", zap.Error(err))
	}
}

func (s *Server) handleProgressLog(w http.ResponseWriter, r *http.Request) {
	log, err := s.workflow.ProgressLog(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, log)
}

// adminName returns the username of the authenticated admin
func adminName(r *http.Request) string {
	if p, err := middleware.GetPrincipal(r); err == nil {
		return p.PrincipalSubject()
	}
	return "admin"
}
