package service

import (
	"context"
	"fmt"
	"time"

	"attendance-session-service/internal/authz"
	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/observability"
	"attendance-session-service/internal/security"
)

type CheckInService struct {
	sessions  sessionStore
	lifecycle *LifecycleService
	lateGrace time.Duration
	now       func() time.Time
}

// sessionStore is the slice of the repository the processor needs.
type sessionStore interface {
	FindByID(id string) (*domain.Session, error)
	CommitCheckIn(sessionID, studentID string, status domain.RecordStatus, at time.Time, location, deviceInfo *string) (int64, error)
}

func NewCheckInService(sessions sessionStore, lifecycle *LifecycleService, lateGrace time.Duration) *CheckInService {
	return &CheckInService{
		sessions:  sessions,
		lifecycle: lifecycle,
		lateGrace: lateGrace,
		now:       time.Now,
	}
}

type CheckInInput struct {
	SessionID  string  `json:"-"`
	Token      string  `json:"code"`
	Location   *string `json:"location,omitempty"`
	DeviceInfo *string `json:"device_info,omitempty"`
}

type CheckInResult struct {
	CheckInTime time.Time           `json:"check_in_time"`
	Status      domain.RecordStatus `json:"status"`
}

// CheckIn validates one attempt in the order the protocol demands, each step
// short-circuiting to its own failure. The final commit is a conditional
// update keyed by (session, student): of two concurrent attempts exactly one
// wins and the other reports a duplicate.
func (s *CheckInService) CheckIn(ctx context.Context, actor Actor, in CheckInInput) (*CheckInResult, error) {
	// Only students present codes. Eligibility against the roster is proven by
	// the seeded records below, so no scope resolution is needed here.
	if err := authz.Decide(actor.Role, actor.ID, authz.ActionCheckIn, nil, authz.Scope{}); err != nil {
		observability.RecordCheckInAttempt(ctx, "denied")
		return nil, err
	}

	session, err := s.sessions.FindByID(in.SessionID)
	if err != nil {
		observability.RecordCheckInAttempt(ctx, "session_not_found")
		return nil, err
	}

	now := s.now()
	if session.Status != domain.SessionActive || session.Expired(now) {
		s.lifecycle.observeAndMaybeClose(ctx, session)
		observability.RecordCheckInAttempt(ctx, "session_closed")
		return nil, fmt.Errorf("%w: check-in window over", ErrSessionClosed)
	}

	if security.HashQRToken(in.Token) != session.QRTokenHash {
		observability.RecordCheckInAttempt(ctx, "token_mismatch")
		return nil, fmt.Errorf("%w: code mismatch", ErrInvalidToken)
	}
	if now.After(session.QRTokenExpiresAt) {
		observability.RecordCheckInAttempt(ctx, "token_expired")
		return nil, fmt.Errorf("%w: code expired", ErrInvalidToken)
	}

	records := session.RecordsForStudent(actor.ID)
	if len(records) == 0 {
		observability.RecordCheckInAttempt(ctx, "not_eligible")
		return nil, ErrNotEligible
	}
	leaveOnly := true
	for _, rec := range records {
		if rec.CheckInTime != nil {
			observability.RecordCheckInAttempt(ctx, "duplicate")
			return nil, ErrDuplicateCheckIn
		}
		if rec.Status != domain.RecordLeave {
			leaveOnly = false
		}
	}
	if leaveOnly {
		observability.RecordCheckInAttempt(ctx, "on_leave")
		return nil, ErrAlreadyOnLeave
	}

	status := domain.RecordPresent
	if s.lateGrace > 0 && now.After(session.CreatedAt.Add(s.lateGrace)) {
		status = domain.RecordLate
	}
	affected, err := s.sessions.CommitCheckIn(in.SessionID, actor.ID, status, now, in.Location, in.DeviceInfo)
	if err != nil {
		observability.RecordCheckInAttempt(ctx, "storage_error")
		return nil, err
	}
	if affected == 0 {
		// Another attempt committed between our snapshot and the update.
		observability.RecordCheckInAttempt(ctx, "duplicate")
		return nil, ErrDuplicateCheckIn
	}
	observability.RecordCheckInAttempt(ctx, "success")
	return &CheckInResult{CheckInTime: now, Status: status}, nil
}
