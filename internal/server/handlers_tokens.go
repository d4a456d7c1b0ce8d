package server

import (
	"net/http"

	"github.com/jonathan/letterlab/internal/types"
)

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	list, err := s.tokens.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"tokens": list})
}

// handleCreateTokens issues count new access codes (default 1)
func (s *Server) handleCreateTokens(w http.ResponseWriter, r *http.Request) {
	var req types.CreateTokensRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.tokens.Create(r.Context(), req.Count)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"tokens": created,
		"count":  len(created),
	})
}

func (s *Server) handleInvalidateToken(w http.ResponseWriter, r *http.Request) {
	var req types.InvalidateTokenRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.tokens.Invalidate(r.Context(), req.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.successResponse(w)
}
