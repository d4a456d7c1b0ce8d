package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jonathan/letterlab/internal/db"
	"github.com/jonathan/letterlab/internal/prompts"
	"github.com/jonathan/letterlab/internal/tokens"
	"github.com/jonathan/letterlab/internal/workflow"
)

// maxBodyBytes caps request bodies; resumes and job descriptions are plain text
const maxBodyBytes = 1 << 20

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrInvalidCredentials indicates a failed admin login
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid username or password"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		serverValidation   *ErrValidation
		workflowValidation *workflow.ValidationError
		promptValidation   *prompts.ValidationError
		authErr            *tokens.AuthError
		credentialsErr     *ErrInvalidCredentials
	)
	switch {
	case errors.As(err, &serverValidation),
		errors.As(err, &workflowValidation),
		errors.As(err, &promptValidation):
		return http.StatusBadRequest
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &authErr), errors.As(err, &credentialsErr):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and writes it. Server errors are logged and
// replaced by a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.errorResponse(w, status, "Internal server error")
		return
	}
	s.errorResponse(w, status, err.Error())
}

// extractValidationErrors turns validator errors into an ErrValidation for the first failing field
func extractValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		first := validationErrors[0]
		return &ErrValidation{Field: first.Field(), Message: first.Tag()}
	}
	return &ErrValidation{Message: err.Error()}
}

// readBody reads a size-limited request body
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, &ErrValidation{Message: "Invalid request body"}
	}
	return body, nil
}

// decodeJSON unmarshals raw into v and validates it. An empty body is an empty object.
func (s *Server) decodeJSON(raw []byte, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ErrValidation{Message: "Invalid request body"}
	}
	if err := s.validator.Struct(v); err != nil {
		return extractValidationErrors(err)
	}
	return nil
}

// decode reads, unmarshals and validates a request body into v
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	raw, err := readBody(w, r)
	if err != nil {
		return err
	}
	return s.decodeJSON(raw, v)
}
