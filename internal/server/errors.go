// Package server provides the HTTP API for feedback reviews.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrUnauthorized indicates missing or bad credentials
type ErrUnauthorized struct {
	Reason string
}

func (e *ErrUnauthorized) Error() string {
	return "unauthorized: " + e.Reason
}

// ErrForbidden indicates an authenticated caller without the required role
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s requires the admin role", e.Action)
}

// HTTPStatus returns the appropriate HTTP status code for an error.
func HTTPStatus(err error) int {
	var (
		validation   *ErrValidation
		invalid      *feedback.InvalidInputError
		notAuth      *workflow.NotAuthorizedError
		illegal      *workflow.IllegalTransitionError
		incomplete   *workflow.IncompleteSubmissionError
		notFound     *workflow.NotFoundError
		unauthorized *ErrUnauthorized
		forbidden    *ErrForbidden
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &invalid),
		errors.As(err, &notAuth), errors.As(err, &illegal), errors.As(err, &incomplete):
		return http.StatusBadRequest
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
