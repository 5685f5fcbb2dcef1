package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attendance-session-service/internal/authz"
	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/http/middleware"
	"attendance-session-service/internal/http/response"
	"attendance-session-service/internal/observability"
	"attendance-session-service/internal/repository"
	"attendance-session-service/internal/service"
)

type AttendanceHandler struct {
	lifecycle *service.LifecycleService
	checkIn   *service.CheckInService
	stats     *service.StatisticsService
}

func NewAttendanceHandler(lifecycle *service.LifecycleService, checkIn *service.CheckInService, stats *service.StatisticsService) *AttendanceHandler {
	return &AttendanceHandler{lifecycle: lifecycle, checkIn: checkIn, stats: stats}
}

func (h *AttendanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var in service.CreateSessionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	created, err := h.lifecycle.Create(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.created",
		"session_id", created.Session.ID,
		"class_ids", created.Session.ClassIDs,
		"actor_id", actor.ID,
	)
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"session_id": created.Session.ID,
		"class_ids":  created.Session.ClassIDs,
		"code":       created.QRCode.Value,
		"expires_at": created.QRCode.ExpiresAt,
	})
}

func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var in service.CheckInInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	in.SessionID = chi.URLParam(r, "session_id")
	result, err := h.checkIn.CheckIn(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	session, err := h.lifecycle.Get(r.Context(), actor, chi.URLParam(r, "session_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, session)
}

func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	q := r.URL.Query()
	sessions, err := h.lifecycle.List(r.Context(), actor, service.ListSessionsInput{
		ClassID:  q.Get("class_id"),
		DateFrom: q.Get("start_date"),
		DateTo:   q.Get("end_date"),
		Status:   domain.SessionStatus(q.Get("status")),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessions)
}

func (h *AttendanceHandler) Close(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	if err := h.lifecycle.Close(r.Context(), actor, sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "session.closed", "session_id", sessionID, "actor_id", actor.ID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": string(domain.SessionClosed)})
}

type overrideRequest struct {
	Status domain.RecordStatus `json:"status"`
	Reason string              `json:"reason"`
}

func (h *AttendanceHandler) OverrideRecord(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed request body", nil)
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	studentID := chi.URLParam(r, "student_id")
	if err := h.lifecycle.OverrideRecord(r.Context(), actor, sessionID, studentID, req.Status, req.Reason); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "record.overridden",
		"session_id", sessionID,
		"student_id", studentID,
		"new_status", string(req.Status),
		"actor_id", actor.ID,
	)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *AttendanceHandler) RotateQRCode(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	code, err := h.lifecycle.RotateQRCode(r.Context(), actor, sessionID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "qrcode.rotated", "session_id", sessionID, "actor_id", actor.ID)
	response.JSON(w, r, http.StatusOK, code)
}

func (h *AttendanceHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	q := r.URL.Query()
	stats, err := h.stats.Aggregate(r.Context(), actor, service.StatisticsInput{
		SessionID: q.Get("session_id"),
		ClassID:   q.Get("class_id"),
		StudentID: q.Get("student_id"),
		DateFrom:  q.Get("start_date"),
		DateTo:    q.Get("end_date"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, stats)
}

// writeServiceError maps the core's typed failures onto envelope codes; the
// transport decides presentation, the services never see HTTP.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, authz.ErrDenied):
		response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient permission", nil)
	case errors.Is(err, repository.ErrSessionNotFound):
		response.Error(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found", nil)
	case errors.Is(err, repository.ErrRecordNotFound):
		response.Error(w, r, http.StatusNotFound, "RECORD_NOT_FOUND", "attendance record not found", nil)
	case errors.Is(err, service.ErrInvalidState):
		response.Error(w, r, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, service.ErrInvalidToken):
		response.Error(w, r, http.StatusBadRequest, "INVALID_QR_CODE", "invalid or expired qr code", nil)
	case errors.Is(err, service.ErrSessionClosed):
		response.Error(w, r, http.StatusConflict, "SESSION_CLOSED", "session is closed", nil)
	case errors.Is(err, service.ErrNotEligible):
		response.Error(w, r, http.StatusForbidden, "NOT_ELIGIBLE", "student not enrolled in this session", nil)
	case errors.Is(err, service.ErrDuplicateCheckIn):
		response.Error(w, r, http.StatusConflict, "DUPLICATE_CHECKIN", "already checked in", nil)
	case errors.Is(err, service.ErrAlreadyOnLeave):
		response.Error(w, r, http.StatusConflict, "ON_LEAVE", "student is on approved leave", nil)
	case errors.Is(err, repository.ErrStorageUnavailable):
		response.Error(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "storage unavailable", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
