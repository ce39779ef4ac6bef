package server

import (
	"net/http"

	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/server/middleware"
	"github.com/jonathan/feedback-reviews/internal/types"
)

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.GetIdentity(r)
	if err != nil {
		s.writeError(w, &ErrUnauthorized{Reason: err.Error()})
		return
	}
	var req types.CreateReviewRequest
	if !s.decode(w, r, &req) {
		return
	}

	in := feedback.CreateReviewInput{
		Reviewee:   req.Reviewee,
		CreatedBy:  identity.Email,
		TemplateID: req.TemplateID,
		Deadline:   req.Deadline,
		ScheduleID: req.ScheduleID,
	}
	for _, rv := range req.Reviewers {
		in.Reviewers = append(in.Reviewers, feedback.ReviewerInput{Email: rv.Email, Name: rv.Name})
	}
	detail, err := s.service.CreateReview(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, detail)
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	id, _, ok := s.caller(w, r)
	if !ok {
		return
	}
	detail, err := s.service.GetReview(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

func (s *Server) handleCloseReview(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	review, err := s.service.CloseReview(r.Context(), id, identity.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, review)
}

// handleNudgeReview sends a manual reminder to every reviewer of the review
// who has not finished.
func (s *Server) handleNudgeReview(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	if _, err := s.service.GetReview(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	report, err := s.scheduler.NudgeReview(r.Context(), id, identity.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}
