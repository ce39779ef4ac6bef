package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/feedback-reviews/internal/server/middleware"
)

// decode reads a JSON body into v and validates it. On failure the error
// response has been written and false is returned.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := s.validator.Struct(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, extractValidationErrors(err))
		return false
	}
	return true
}

// extractValidationErrors renders the first validation failure.
func extractValidationErrors(err error) string {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
		ve := validationErrors[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
	}
	return "validation error: invalid request"
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

// caller returns the path id and the authenticated identity.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (uuid.UUID, middleware.Identity, bool) {
	identity, err := middleware.GetIdentity(r)
	if err != nil {
		s.writeError(w, &ErrUnauthorized{Reason: err.Error()})
		return uuid.Nil, middleware.Identity{}, false
	}
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return uuid.Nil, middleware.Identity{}, false
	}
	return id, identity, true
}
