package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"attendance-session-service/internal/authz"
	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/observability"
	"attendance-session-service/internal/repository"
	"attendance-session-service/internal/security"
)

const (
	minCheckInDurationSeconds = 1
	maxCheckInDurationSeconds = 86400
	minPeriod                 = 1
	maxPeriod                 = 14

	rosterFanOutLimit = 8
)

type LifecycleService struct {
	sessions repository.SessionRepository
	roster   repository.RosterRepository
	leave    repository.LeaveRepository
	scopes   *ScopeResolver
	qrTTL    time.Duration
	now      func() time.Time
}

func NewLifecycleService(sessions repository.SessionRepository, roster repository.RosterRepository, leave repository.LeaveRepository, scopes *ScopeResolver, qrTTL time.Duration) *LifecycleService {
	return &LifecycleService{
		sessions: sessions,
		roster:   roster,
		leave:    leave,
		scopes:   scopes,
		qrTTL:    qrTTL,
		now:      time.Now,
	}
}

type CreateSessionInput struct {
	ClassIDs               []string `json:"class_ids"`
	CourseName             string   `json:"course_name"`
	Location               string   `json:"location"`
	Periods                []int    `json:"periods"`
	CheckInDurationSeconds int      `json:"check_in_duration_seconds"`
	CheckInDate            string   `json:"check_in_date"`
}

type CreatedSession struct {
	Session *domain.Session `json:"session"`
	QRCode  QRCode          `json:"qr_code"`
}

type QRCode struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ListSessionsInput struct {
	ClassID  string
	DateFrom string
	DateTo   string
	Status   domain.SessionStatus
}

// Create builds a single session for all requested classes. Authorization is
// all-or-nothing: one unmanaged class denies the whole request and nothing is
// persisted. Roster and leave snapshots are taken before the session is
// published, so no per-record critical section does collaborator I/O.
func (s *LifecycleService) Create(ctx context.Context, actor Actor, in CreateSessionInput) (*CreatedSession, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	if err := authz.Decide(actor.Role, actor.ID, authz.ActionCreate, in.ClassIDs, scope); err != nil {
		return nil, err
	}

	rosters := make([][]string, len(in.ClassIDs))
	var g errgroup.Group
	g.SetLimit(rosterFanOutLimit)
	for i, classID := range in.ClassIDs {
		i, classID := i, classID
		g.Go(func() error {
			students, err := s.roster.StudentsInClass(classID)
			if err != nil {
				return err
			}
			rosters[i] = students
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// One leave lookup per distinct student; the outcome applies to every
	// class row that student gets.
	studentIDs := make([]string, 0)
	seenStudent := make(map[string]int)
	for _, roster := range rosters {
		for _, studentID := range roster {
			if _, ok := seenStudent[studentID]; !ok {
				seenStudent[studentID] = len(studentIDs)
				studentIDs = append(studentIDs, studentID)
			}
		}
	}
	onLeave := make([]bool, len(studentIDs))
	var lg errgroup.Group
	lg.SetLimit(rosterFanOutLimit)
	for i, studentID := range studentIDs {
		i, studentID := i, studentID
		lg.Go(func() error {
			leave, err := s.leave.HasApprovedLeave(studentID, in.CheckInDate)
			if err != nil {
				return err
			}
			onLeave[i] = leave
			return nil
		})
	}
	if err := lg.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	duration := time.Duration(in.CheckInDurationSeconds) * time.Second
	token, err := security.IssueQRToken(now, clampTTL(s.qrTTL, duration))
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:                     uuid.NewString(),
		ClassIDs:               in.ClassIDs,
		CourseName:             in.CourseName,
		Location:               in.Location,
		Periods:                in.Periods,
		Status:                 domain.SessionActive,
		CreatedBy:              actor.ID,
		CheckInDurationSeconds: in.CheckInDurationSeconds,
		CheckInDate:            in.CheckInDate,
		ExpiredAt:              now.Add(duration),
		QRTokenHash:            token.Hash,
		QRTokenExpiresAt:       token.ExpiresAt,
		CreatedAt:              now,
	}
	seenPair := make(map[string]struct{})
	for i, classID := range in.ClassIDs {
		for _, studentID := range rosters[i] {
			pair := classID + "\x00" + studentID
			if _, dup := seenPair[pair]; dup {
				continue
			}
			seenPair[pair] = struct{}{}
			status := domain.RecordPending
			if onLeave[seenStudent[studentID]] {
				status = domain.RecordLeave
			}
			session.Records = append(session.Records, domain.AttendanceRecord{
				SessionID: session.ID,
				StudentID: studentID,
				ClassID:   classID,
				Status:    status,
			})
		}
	}

	if err := s.sessions.Create(session); err != nil {
		return nil, err
	}
	return &CreatedSession{
		Session: session,
		QRCode:  QRCode{Value: token.Value, ExpiresAt: token.ExpiresAt},
	}, nil
}

// Get loads a session and lazily auto-closes it when the window has passed.
// A failed auto-close never fails the read; the caller gets the best-known
// state.
func (s *LifecycleService) Get(ctx context.Context, actor Actor, sessionID string) (*domain.Session, error) {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	scope.SessionCreatedBy = session.CreatedBy
	if err := authz.Decide(actor.Role, actor.ID, authz.ActionView, session.ClassIDs, scope); err != nil {
		return nil, err
	}
	s.observeAndMaybeClose(ctx, session)
	return shapeForViewer(session, actor), nil
}

// observeAndMaybeClose fires the auto-close compare-and-set when the session
// looks expired, then reconciles the in-memory copy. Safe under any number
// of concurrent observers: the store lets exactly one transition win.
func (s *LifecycleService) observeAndMaybeClose(ctx context.Context, session *domain.Session) {
	now := s.now()
	if session.Status != domain.SessionActive || !session.Expired(now) {
		return
	}
	won, err := s.sessions.CloseIfExpired(session.ID, now)
	if err != nil {
		slog.WarnContext(ctx, "auto-close failed, returning stale state",
			"session_id", session.ID, "error", err)
		return
	}
	if won {
		observability.RecordSessionTransition(ctx, "auto_close")
	}
	// Either we won or another observer already did; both end CLOSED.
	session.Status = domain.SessionClosed
}

func (s *LifecycleService) List(ctx context.Context, actor Actor, in ListSessionsInput) ([]domain.Session, error) {
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	filter := repository.SessionFilter{
		ClassID:  in.ClassID,
		DateFrom: in.DateFrom,
		DateTo:   in.DateTo,
		Status:   in.Status,
	}
	switch actor.Role {
	case domain.RoleAdmin:
		// Unrestricted.
	case domain.RoleCounselor:
		filter.VisibleClassIDs = emptyAsImpossible(scope.ManagedClassIDs)
	default:
		filter.VisibleClassIDs = emptyAsImpossible(scope.OwnClassIDs)
	}
	return s.sessions.List(filter)
}

// emptyAsImpossible keeps "no visible classes" from widening into "all
// classes": a nil filter means unrestricted, so substitute a never-matching
// set instead.
func emptyAsImpossible(classIDs []string) []string {
	if len(classIDs) == 0 {
		return []string{}
	}
	return classIDs
}

// Close is the explicit, user-initiated transition. Unlike auto-close, losing
// the race here is a reported state error, not a no-op.
func (s *LifecycleService) Close(ctx context.Context, actor Actor, sessionID string) error {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return err
	}
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return err
	}
	scope.SessionCreatedBy = session.CreatedBy
	if err := authz.Decide(actor.Role, actor.ID, authz.ActionClose, session.ClassIDs, scope); err != nil {
		return err
	}
	won, err := s.sessions.Close(sessionID)
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: session already closed", ErrInvalidState)
	}
	observability.RecordSessionTransition(ctx, "manual_close")
	return nil
}

// OverrideRecord applies a manual status correction. It stays allowed after
// closure and never touches the check-in timestamp.
func (s *LifecycleService) OverrideRecord(ctx context.Context, actor Actor, sessionID, studentID string, newStatus domain.RecordStatus, reason string) error {
	if !domain.ValidRecordStatus(newStatus) {
		return fmt.Errorf("%w: unknown record status %q", ErrValidation, newStatus)
	}
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return err
	}
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return err
	}
	scope.SessionCreatedBy = session.CreatedBy
	if err := authz.Decide(actor.Role, actor.ID, authz.ActionOverride, session.ClassIDs, scope); err != nil {
		return err
	}
	records := session.RecordsForStudent(studentID)
	if len(records) == 0 {
		return repository.ErrRecordNotFound
	}
	for _, rec := range records {
		if (rec.Status == domain.RecordPresent || rec.Status == domain.RecordLeave) && reason == "" {
			return fmt.Errorf("%w: reason required when overriding %s", ErrValidation, rec.Status)
		}
	}
	var reasonPtr *string
	if reason != "" {
		reasonPtr = &reason
	}
	changed, err := s.sessions.OverrideRecord(sessionID, studentID, newStatus, reasonPtr)
	if err != nil {
		return err
	}
	if !changed {
		return repository.ErrRecordNotFound
	}
	return nil
}

// RotateQRCode replaces the current token immediately; captured images of the
// previous code become useless even before their own expiry.
func (s *LifecycleService) RotateQRCode(ctx context.Context, actor Actor, sessionID string) (*QRCode, error) {
	session, err := s.sessions.FindByID(sessionID)
	if err != nil {
		return nil, err
	}
	scope, err := s.scopes.Resolve(ctx, actor)
	if err != nil {
		return nil, err
	}
	scope.SessionCreatedBy = session.CreatedBy
	if err := authz.Decide(actor.Role, actor.ID, authz.ActionRotate, session.ClassIDs, scope); err != nil {
		return nil, err
	}
	now := s.now()
	if session.Status != domain.SessionActive || session.Expired(now) {
		s.observeAndMaybeClose(ctx, session)
		observability.RecordQRRotation(ctx, "session_closed")
		return nil, fmt.Errorf("%w: cannot rotate qr code", ErrSessionClosed)
	}
	token, err := security.IssueQRToken(now, clampTTL(s.qrTTL, session.ExpiredAt.Sub(now)))
	if err != nil {
		return nil, err
	}
	won, err := s.sessions.RotateQRToken(sessionID, token.Hash, token.ExpiresAt)
	if err != nil {
		observability.RecordQRRotation(ctx, "error")
		return nil, err
	}
	if !won {
		observability.RecordQRRotation(ctx, "session_closed")
		return nil, fmt.Errorf("%w: cannot rotate qr code", ErrSessionClosed)
	}
	observability.RecordQRRotation(ctx, "success")
	return &QRCode{Value: token.Value, ExpiresAt: token.ExpiresAt}, nil
}

// clampTTL keeps the token window inside the session's remaining window.
func clampTTL(ttl, remaining time.Duration) time.Duration {
	if remaining < ttl {
		return remaining
	}
	return ttl
}

// shapeForViewer strips other students' rows for student viewers; they get
// the session plus their own record only.
func shapeForViewer(session *domain.Session, actor Actor) *domain.Session {
	if actor.Role != domain.RoleStudent {
		return session
	}
	shaped := *session
	shaped.Records = session.RecordsForStudent(actor.ID)
	return &shaped
}

func validateCreateInput(in CreateSessionInput) error {
	if len(in.ClassIDs) == 0 {
		return fmt.Errorf("%w: class ids must not be empty", ErrValidation)
	}
	for _, classID := range in.ClassIDs {
		if classID == "" {
			return fmt.Errorf("%w: class id must not be blank", ErrValidation)
		}
	}
	if in.CourseName == "" {
		return fmt.Errorf("%w: course name is required", ErrValidation)
	}
	if len(in.Periods) == 0 {
		return fmt.Errorf("%w: periods must not be empty", ErrValidation)
	}
	for _, p := range in.Periods {
		if p < minPeriod || p > maxPeriod {
			return fmt.Errorf("%w: period %d out of range [%d,%d]", ErrValidation, p, minPeriod, maxPeriod)
		}
	}
	if in.CheckInDurationSeconds < minCheckInDurationSeconds || in.CheckInDurationSeconds > maxCheckInDurationSeconds {
		return fmt.Errorf("%w: check-in duration out of range [%d,%d]", ErrValidation, minCheckInDurationSeconds, maxCheckInDurationSeconds)
	}
	if _, err := time.Parse("2006-01-02", in.CheckInDate); err != nil {
		return fmt.Errorf("%w: check-in date must be YYYY-MM-DD", ErrValidation)
	}
	return nil
}
