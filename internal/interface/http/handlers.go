package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/articulearn/progress-engine/internal/application/command"
	"github.com/articulearn/progress-engine/internal/application/query"
	"github.com/articulearn/progress-engine/internal/domain/attempt"
	"github.com/articulearn/progress-engine/internal/domain/shared"
	"github.com/articulearn/progress-engine/pkg/logger"
)

// maxAttemptBodyBytes caps the attempt submission body size.
const maxAttemptBodyBytes = 64 << 10 // 64 KB

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError translates the domain error taxonomy to HTTP statuses:
// validation 400, not found 404, catalog or transient unavailability 503.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case shared.IsCatalogUnavailable(err):
		writeJSONError(w, http.StatusServiceUnavailable, "catalog_unavailable", "Content catalog is temporarily unavailable")
	case shared.IsRetryable(err):
		writeJSONError(w, http.StatusServiceUnavailable, "temporarily_unavailable", "Please retry the request")
	default:
		s.logger.Error("unhandled request error",
			logger.String("path", r.URL.Path),
			logger.String("request_id", getRequestID(r.Context())),
			logger.Err(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "internal_server_error", "An unexpected error occurred")
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT SUBMISSION
// ══════════════════════════════════════════════════════════════════════════════

// recordAttemptRequest is the attempt submission body.
type recordAttemptRequest struct {
	UserID       string    `json:"user_id"`
	CourseID     string    `json:"course_id"`
	ModuleID     string    `json:"module_id"`
	LessonID     string    `json:"lesson_id"`
	ActivityID   string    `json:"activity_id"`
	ActivityType string    `json:"activity_type"`
	Score        int       `json:"score"`
	ScoreRaw     float64   `json:"score_raw"`
	Passed       bool      `json:"passed"`
	BaseXP       *int      `json:"base_xp,omitempty"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// recordAttemptResponse is the attempt submission outcome.
type recordAttemptResponse struct {
	AttemptID         string      `json:"attempt_id"`
	IsFirstCompletion bool        `json:"is_first_completion"`
	XPAwarded         int         `json:"xp_awarded"`
	NewXP             int         `json:"new_xp"`
	NewLevel          int         `json:"new_level"`
	LeveledUp         bool        `json:"leveled_up"`
	LessonProgress    interface{} `json:"lesson_progress,omitempty"`
	ModuleProgress    interface{} `json:"module_progress,omitempty"`
	CourseProgress    interface{} `json:"course_progress,omitempty"`
	RecordedAt        time.Time   `json:"recorded_at"`
}

// handleRecordAttempt handles POST /api/v1/attempts.
func (s *Server) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req recordAttemptRequest
	body := io.LimitReader(r.Body, maxAttemptBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body must be valid JSON")
		return
	}

	cmd := command.RecordAttemptCommand{
		UserID:        req.UserID,
		CourseID:      req.CourseID,
		ModuleID:      req.ModuleID,
		LessonID:      req.LessonID,
		ActivityID:    req.ActivityID,
		ActivityType:  attempt.ActivityType(req.ActivityType),
		Score:         req.Score,
		ScoreRaw:      req.ScoreRaw,
		Passed:        req.Passed,
		BaseXP:        req.BaseXP,
		StartedAt:     req.StartedAt,
		FinishedAt:    req.FinishedAt,
		CorrelationID: getRequestID(r.Context()),
	}

	result, err := s.deps.RecordAttemptHandler.Handle(r.Context(), cmd)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	// A duplicate submission is still an accepted write to the ledger.
	status := http.StatusCreated
	if !result.IsFirstCompletion {
		status = http.StatusOK
	}

	writeJSON(w, r, status, recordAttemptResponse{
		AttemptID:         result.AttemptID,
		IsFirstCompletion: result.IsFirstCompletion,
		XPAwarded:         result.XPAwarded,
		NewXP:             result.NewXP,
		NewLevel:          result.NewLevel,
		LeveledUp:         result.LeveledUp,
		LessonProgress:    result.LessonProgress,
		ModuleProgress:    result.ModuleProgress,
		CourseProgress:    result.CourseProgress,
		RecordedAt:        result.RecordedAt,
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// READ ENDPOINTS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetUserStats handles GET /api/v1/users/{id}/stats.
func (s *Server) handleGetUserStats(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetUserStatsHandler.Handle(r.Context(), query.GetUserStatsQuery{
		UserID:    r.PathValue("id"),
		SkipCache: getQueryParamBool(r, "fresh"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetCourseProgress handles GET /api/v1/users/{id}/courses/{courseID}/progress.
func (s *Server) handleGetCourseProgress(w http.ResponseWriter, r *http.Request) {
	cp, err := s.deps.GetCourseProgressHandler.Handle(r.Context(), query.GetCourseProgressQuery{
		UserID:    r.PathValue("id"),
		CourseID:  r.PathValue("courseID"),
		SkipCache: getQueryParamBool(r, "fresh"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, cp)
}

// handleListCourseProgress handles GET /api/v1/users/{id}/progress.
func (s *Server) handleListCourseProgress(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListCourseProgressHandler.Handle(r.Context(), query.ListCourseProgressQuery{
		UserID: r.PathValue("id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, list)
}

// handleGetAttempts handles GET /api/v1/users/{id}/attempts.
func (s *Server) handleGetAttempts(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.GetAttemptsHandler.Handle(r.Context(), query.GetAttemptsQuery{
		UserID:     r.PathValue("id"),
		ActivityID: r.URL.Query().Get("activity_id"),
		Limit:      getQueryParamInt(r, "limit", 50),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto)
}

// handleGetLeaderboard handles GET /api/v1/leaderboard.
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetLeaderboardHandler == nil {
		writeJSONError(w, http.StatusNotFound, "not_found", "Leaderboard is disabled")
		return
	}

	dto, err := s.deps.GetLeaderboardHandler.Handle(r.Context(), query.GetLeaderboardQuery{
		Limit:  getQueryParamInt(r, "limit", 10),
		UserID: r.URL.Query().Get("user_id"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]bool{"healthy": true})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, r, code, status)
}

// handleReady handles GET /ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.handleHealth(w, r)
}

// handleLive handles GET /live. Liveness only asserts the process serves
// requests; dependency health belongs to readiness.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"alive": true})
}

// handleRoot handles GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown endpoint")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{
		"service": "articulearn-progress-engine",
		"status":  "running",
		"uptime":  s.Uptime().String(),
	})
}
