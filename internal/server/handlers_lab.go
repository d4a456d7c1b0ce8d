package server

import (
	"encoding/json"
	"net/http"

	"github.com/jonathan/letterlab/internal/server/middleware"
	"github.com/jonathan/letterlab/internal/types"
)

func (s *Server) registerLabRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /lab/validate-token", s.handleValidateToken)
	mux.HandleFunc("POST /lab/logout", s.handleLabLogout)

	mux.Handle("POST /lab/generate-control-profile", s.participantOnly(s.handleGenerateControlProfile))
	mux.Handle("POST /lab/generate-bse-bullets", s.participantOnly(s.handleGenerateBullets))
	mux.Handle("POST /lab/regenerate-bullet", s.participantOnly(s.handleRegenerateBullet))
	mux.Handle("POST /lab/save-iteration-data", s.participantOnly(s.handleSaveIteration))
	mux.Handle("POST /lab/generate-aligned-profile", s.participantOnly(s.handleGenerateAlignedProfile))
	mux.Handle("POST /lab/submit-final-data", s.participantOnly(s.handleSubmitFinalData))
	mux.Handle("POST /lab/save-control-profile-responses", s.participantOnly(s.handleSaveControlProfileResponses))
	mux.Handle("POST /lab/mark-session-completed", s.participantOnly(s.handleMarkSessionCompleted))
	mux.Handle("POST /lab/log-progress", s.participantOnly(s.handleLogProgress))
}

// handleValidateToken checks an access code and starts a participant session cookie.
// The code is consumed later, when the first profile creates the session.
func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req types.ValidateTokenRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tok, err := s.tokens.Validate(r.Context(), req.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	signed, err := s.jwt.GenerateToken(RoleParticipant, tok.Token)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, s.sessionCookie(RoleParticipant, signed))
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "authorized",
		"token":  signed,
	})
}

func (s *Server) handleLabLogout(w http.ResponseWriter, _ *http.Request) {
	middleware.ClearCookie(w, ParticipantCookie)
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleGenerateControlProfile(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateProfileRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	principal, err := middleware.GetPrincipal(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.workflow.GenerateControlProfile(r.Context(), req, principal.PrincipalSubject())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleGenerateBullets(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateBulletsRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.workflow.GenerateBullets(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleRegenerateBullet(w http.ResponseWriter, r *http.Request) {
	var req types.RegenerateBulletRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.workflow.RegenerateBullet(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSaveIteration(w http.ResponseWriter, r *http.Request) {
	var req types.SaveIterationRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.workflow.SaveIteration(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.successResponse(w)
}

func (s *Server) handleGenerateAlignedProfile(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.workflow.GenerateAlignedProfile(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleSubmitFinalData stores the final ratings. Fields beyond the typed
// request are kept as free-form feedback.
func (s *Server) handleSubmitFinalData(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.FinalDataRequest
	if err := s.decodeJSON(raw, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	var extra map[string]any
	if err := json.Unmarshal(raw, &extra); err != nil {
		s.writeError(w, r, &ErrValidation{Message: "Invalid request body"})
		return
	}

	resp, err := s.workflow.SubmitFinalData(r.Context(), req, extra)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSaveControlProfileResponses(w http.ResponseWriter, r *http.Request) {
	var req types.ControlProfileResponsesRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.workflow.SaveControlProfileResponses(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.successResponse(w)
}

func (s *Server) handleMarkSessionCompleted(w http.ResponseWriter, r *http.Request) {
	var req types.SessionRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.workflow.MarkSessionCompleted(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.successResponse(w)
}

func (s *Server) handleLogProgress(w http.ResponseWriter, r *http.Request) {
	var req types.LogProgressRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.workflow.LogProgress(r.Context(), req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.successResponse(w)
}
