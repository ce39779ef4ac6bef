package server

import (
	"context"
	"net/http"

	"github.com/jonathan/feedback-reviews/internal/notify"
)

// handleDueSoon runs the due-soon pass. A pass that ran answers 200 even
// when some deliveries failed; the report lists them.
func (s *Server) handleDueSoon(w http.ResponseWriter, r *http.Request) {
	s.runPass(w, r, s.scheduler.RunDueSoon)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	s.runPass(w, r, s.scheduler.RunOverdue)
}

func (s *Server) runPass(w http.ResponseWriter, r *http.Request, pass func(context.Context) (*notify.Report, error)) {
	report, err := pass(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("reminder pass finished",
		"pass", report.Pass,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"skipped_pass", report.SkippedPass)
	s.jsonResponse(w, http.StatusOK, report)
}
