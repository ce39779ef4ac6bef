package server

import (
	"net/http"

	"github.com/jonathan/feedback-reviews/internal/feedback"
	"github.com/jonathan/feedback-reviews/internal/types"
	"github.com/jonathan/feedback-reviews/internal/workflow"
)

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	detail, err := s.service.GetAssignment(r.Context(), id, identity.Email, identity.IsAdmin())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

// handleSubmit completes an assignment with the full set of answers.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.SubmitFeedbackRequest
	if !s.decode(w, r, &req) {
		return
	}

	answers := make([]workflow.Answer, 0, len(req.Answers))
	for _, a := range req.Answers {
		answers = append(answers, workflow.Answer{QuestionID: a.QuestionID, Rating: a.Rating, Content: a.Content})
	}
	res, err := s.service.Submit(r.Context(), feedback.SubmitInput{
		AssignmentID: id,
		Actor:        identity.Email,
		Answers:      answers,
		Anonymous:    req.Anonymous,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, res)
}

// handleStatus applies view, start, save or discard.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.StatusActionRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.service.PerformAction(r.Context(), id, identity.Email, feedback.StatusAction(req.Action), req.Progress)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleLoadProgress(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	draft, err := s.service.LoadProgress(r.Context(), id, identity.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, types.ProgressResponse{AssignmentID: id, Progress: draft})
}

// handleSaveProgress stores a draft without touching the assignment status.
func (s *Server) handleSaveProgress(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req types.ProgressRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.service.SaveProgress(r.Context(), id, identity.Email, req.Progress); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDiscardProgress(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	res, err := s.service.DiscardProgress(r.Context(), id, identity.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleRetract(w http.ResponseWriter, r *http.Request) {
	id, identity, ok := s.caller(w, r)
	if !ok {
		return
	}
	res, err := s.service.Retract(r.Context(), id, identity.Email)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}
