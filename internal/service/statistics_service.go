package service

import (
	"context"

	"attendance-session-service/internal/authz"
	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/repository"
)

type StatisticsService struct {
	sessions  repository.SessionRepository
	lifecycle *LifecycleService
	scopes    *ScopeResolver
}

func NewStatisticsService(sessions repository.SessionRepository, lifecycle *LifecycleService, scopes *ScopeResolver) *StatisticsService {
	return &StatisticsService{sessions: sessions, lifecycle: lifecycle, scopes: scopes}
}

type StatisticsInput struct {
	SessionID string
	ClassID   string
	StudentID string
	DateFrom  string
	DateTo    string
}

type Statistics struct {
	Total          int64                         `json:"total"`
	Counts         map[domain.RecordStatus]int64 `json:"counts"`
	AttendanceRate float64                       `json:"attendance_rate"`
	Details        []domain.AttendanceRecord     `json:"details,omitempty"`
}

// Aggregate folds per-status counts over the viewer-visible session set. The
// counts come from one grouped query per aggregation, so a concurrent
// check-in is either in or out as a whole, never half-observed, and the
// per-status sum always equals the record total.
func (s *StatisticsService) Aggregate(ctx context.Context, actor Actor, in StatisticsInput) (*Statistics, error) {
	sessionIDs, err := s.resolveSessions(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	filter := repository.RecordFilter{
		SessionIDs: sessionIDs,
		ClassID:    in.ClassID,
		StudentID:  in.StudentID,
	}
	counts, err := s.sessions.StatusCounts(filter)
	if err != nil {
		return nil, err
	}
	stats := &Statistics{Counts: ensureAllStatuses(counts)}
	for _, n := range counts {
		stats.Total += n
	}
	if stats.Total > 0 {
		attended := counts[domain.RecordPresent] + counts[domain.RecordLate]
		stats.AttendanceRate = float64(attended) / float64(stats.Total)
	}

	if s.detailsVisible(actor, in) {
		details, err := s.sessions.Records(filter)
		if err != nil {
			return nil, err
		}
		stats.Details = details
	}
	return stats, nil
}

func (s *StatisticsService) resolveSessions(ctx context.Context, actor Actor, in StatisticsInput) ([]string, error) {
	if in.SessionID != "" {
		// Get also runs the lazy auto-close, so stats on an expired session
		// observe the CLOSED state.
		session, err := s.lifecycle.Get(ctx, actor, in.SessionID)
		if err != nil {
			return nil, err
		}
		return []string{session.ID}, nil
	}
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	if in.ClassID != "" {
		if err := authz.Decide(actor.Role, actor.ID, authz.ActionStatistics, []string{in.ClassID}, scope); err != nil {
			return nil, err
		}
	}
	sessions, err := s.lifecycle.List(ctx, actor, ListSessionsInput{
		ClassID:  in.ClassID,
		DateFrom: in.DateFrom,
		DateTo:   in.DateTo,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	return ids, nil
}

// detailsVisible hides per-student rows from student viewers unless they ask
// about themselves; everyone else gets detail rows.
func (s *StatisticsService) detailsVisible(actor Actor, in StatisticsInput) bool {
	if actor.Role != domain.RoleStudent {
		return true
	}
	return in.StudentID == actor.ID
}

func ensureAllStatuses(counts map[domain.RecordStatus]int64) map[domain.RecordStatus]int64 {
	all := []domain.RecordStatus{
		domain.RecordPending, domain.RecordPresent, domain.RecordLate,
		domain.RecordAbsent, domain.RecordLeave, domain.RecordExcused,
	}
	out := make(map[domain.RecordStatus]int64, len(all))
	for _, status := range all {
		out[status] = counts[status]
	}
	return out
}
