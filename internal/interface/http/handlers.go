// Package http implements the operational HTTP surface of the session engine.
package http

import (
	"net/http"

	"github.com/lyo-hub/lyo-session-engine/internal/application/command"
	"github.com/lyo-hub/lyo-session-engine/internal/application/query"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Lyo Session Engine API",
		"version":     "v1",
		"description": "Operational API for the adaptive learning session engine",
		"endpoints": map[string]string{
			"health":   "/health",
			"session":  "/api/v1/sessions/{id}",
			"progress": "/api/v1/learners/{id}/progress",
			"stats":    "/api/v1/stats",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	// Default health response
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetSession handles GET /api/v1/sessions/{id}.
// Live sessions come from the engine; ended ones need ?user_id= so the
// summary can be found in the archive.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.SessionSnapshotHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Session snapshot handler not configured")
		return
	}

	q := query.GetSessionSnapshotQuery{
		SessionID: r.PathValue("id"),
		UserID:    getQueryParam(r, "user_id", ""),
	}

	result, err := s.deps.SessionSnapshotHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetLearnerProgress handles GET /api/v1/learners/{id}/progress?course_id=...
func (s *Server) handleGetLearnerProgress(w http.ResponseWriter, r *http.Request) {
	if s.deps.ProgressReportHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress report handler not configured")
		return
	}

	q := query.GetProgressReportQuery{
		UserID:         r.PathValue("id"),
		CourseID:       getQueryParam(r, "course_id", ""),
		RecentSessions: getQueryParamInt(r, "recent", 0),
	}

	result, err := s.deps.ProgressReportHandler.Handle(r.Context(), q)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetLearnerCard handles GET /api/v1/learners/{id}/card.
// The card is served from the in-memory projection and may trail the
// write path slightly.
func (s *Server) handleGetLearnerCard(w http.ResponseWriter, r *http.Request) {
	if s.deps.ProgressView == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress view not configured")
		return
	}

	card, ok := s.deps.ProgressView.Get(r.PathValue("id"))
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", "No activity recorded for this learner")
		return
	}

	writeJSON(w, http.StatusOK, card)
}

// handleGetUnsyncedLearners handles GET /api/v1/learners/unsynced.
// Lists learners whose latest session summary failed to persist.
func (s *Server) handleGetUnsyncedLearners(w http.ResponseWriter, r *http.Request) {
	if s.deps.ProgressView == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Progress view not configured")
		return
	}

	users := s.deps.ProgressView.UnsyncedUsers()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_ids": users,
		"count":    len(users),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS & FEATURES
// ══════════════════════════════════════════════════════════════════════════════

// handleGetStats handles GET /api/v1/stats.
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
	}

	if s.deps.Engine != nil {
		stats["active_sessions"] = s.deps.Engine.ActiveSessions()
	}

	if s.deps.ProgressView != nil {
		version, lastUpdated := s.deps.ProgressView.Version()
		stats["tracked_learners"] = s.deps.ProgressView.Len()
		stats["projection_version"] = version
		if !lastUpdated.IsZero() {
			stats["projection_updated_at"] = lastUpdated
		}
	}

	if s.deps.Dispatcher != nil {
		stats["dispatcher"] = s.deps.Dispatcher.Metrics().Snapshot()
		stats["dead_letters"] = s.deps.Dispatcher.DeadLetterQueue().Size()
	}

	if s.deps.Scheduler != nil {
		stats["scheduler"] = s.deps.Scheduler.GetMetrics()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleGetFeatures handles GET /api/v1/features.
func (s *Server) handleGetFeatures(w http.ResponseWriter, r *http.Request) {
	if s.deps.Features == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Feature flags not configured")
		return
	}

	writeJSON(w, http.StatusOK, s.deps.Features.List())
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handlePublishCourse handles POST /admin/v1/courses/{id}/publish.
func (s *Server) handlePublishCourse(w http.ResponseWriter, r *http.Request) {
	if s.deps.PublishCourseHandler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Publish course handler not configured")
		return
	}

	cmd := command.PublishCourseCommand{CourseID: r.PathValue("id")}

	result, err := s.deps.PublishCourseHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	s.logger.Info("course republished",
		logger.CourseID(result.CourseID),
		logger.Int("components", result.Components),
		logger.Int("objects", result.Objects),
	)

	writeJSON(w, http.StatusOK, result)
}

// handleListJobs handles GET /admin/v1/jobs.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}

	writeJSON(w, http.StatusOK, s.deps.Scheduler.ListJobs())
}

// handleRunJob handles POST /admin/v1/jobs/{name}/run.
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Scheduler not configured")
		return
	}

	result, err := s.deps.Scheduler.RunNow(r.Context(), r.PathValue("name"))
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "job_not_found", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleGetDeadLetters handles GET /admin/v1/dlq.
func (s *Server) handleGetDeadLetters(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatcher == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Dispatcher not configured")
		return
	}

	dlq := s.deps.Dispatcher.DeadLetterQueue()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"size":    dlq.Size(),
		"entries": dlq.Entries(),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain errors to HTTP status codes.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		s.logger.Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
			logger.String("request_id", getRequestID(r.Context())),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
