package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/letterlab/internal/prompts"
	"github.com/jonathan/letterlab/internal/types"
)

// handleListPrompts returns the active prompt of every type
func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	active, err := s.prompts.ListActive(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"prompts": active})
}

func (s *Server) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	var req types.CreatePromptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.prompts.Create(r.Context(), req.PromptType, req.Content, adminName(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]any{"success": true, "prompt": p})
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	pt, err := prompts.ParseType(r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.prompts.GetActive(r.Context(), pt)
	if err != nil {
		var missing *prompts.MissingPromptError
		if errors.As(err, &missing) {
			s.errorResponse(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"prompt": p})
}

// handleUpdatePrompt stores new content as the next version of a type
func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	pt, err := prompts.ParseType(r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.PromptContentRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.prompts.Update(r.Context(), pt, req.Content, adminName(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"success": true, "prompt": p})
}

func (s *Server) handlePromptHistory(w http.ResponseWriter, r *http.Request) {
	pt, err := prompts.ParseType(r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	history, err := s.prompts.History(r.Context(), pt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"history": history})
}

func (s *Server) handleRevertPrompt(w http.ResponseWriter, r *http.Request) {
	pt, err := prompts.ParseType(r.PathValue("type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.RevertPromptRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	p, err := s.prompts.Revert(r.Context(), pt, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"success": true, "prompt": p})
}
