package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance-session-service/internal/authz"
	"attendance-session-service/internal/domain"
)

type statsFixture struct {
	*serviceFixture
	checkIn *CheckInService
	stats   *StatisticsService
}

func newStatsFixture(t *testing.T) *statsFixture {
	t.Helper()
	f := newServiceFixture(t)
	return &statsFixture{
		serviceFixture: f,
		checkIn:        NewCheckInService(f.sessions, f.lifecycle, 0),
		stats:          NewStatisticsService(f.sessions, f.lifecycle, f.lifecycle.scopes),
	}
}

func (f *statsFixture) seedSession(t *testing.T) *CreatedSession {
	t.Helper()
	f.enroll(t, "c1", "s1", "s2", "s3", "s4")
	f.manage(t, "counselor-1", "c1")
	if err := f.leave.Create(&domain.LeaveRequest{
		StudentID: "s4",
		StartDate: "2026-03-01",
		EndDate:   "2026-03-05",
		Status:    domain.LeaveApproved,
	}); err != nil {
		t.Fatalf("create leave: %v", err)
	}
	created, err := f.lifecycle.Create(context.Background(), Actor{ID: "counselor-1", Role: domain.RoleCounselor}, validCreateInput("c1"))
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	// s1 checks in; s2 and s3 stay pending; s4 is on leave.
	if _, err := f.checkIn.CheckIn(context.Background(), Actor{ID: "s1", Role: domain.RoleStudent, ClassIDs: []string{"c1"}}, CheckInInput{
		SessionID: created.Session.ID,
		Token:     created.QRCode.Value,
	}); err != nil {
		t.Fatalf("check in s1: %v", err)
	}
	return created
}

func TestStatisticsSumMatchesTotal(t *testing.T) {
	f := newStatsFixture(t)
	created := f.seedSession(t)

	counselor := Actor{ID: "counselor-1", Role: domain.RoleCounselor}
	stats, err := f.stats.Aggregate(context.Background(), counselor, StatisticsInput{SessionID: created.Session.ID})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if stats.Total != 4 {
		t.Fatalf("expected 4 records, got %d", stats.Total)
	}
	var sum int64
	for _, n := range stats.Counts {
		sum += n
	}
	if sum != stats.Total {
		t.Fatalf("per-status sum %d must equal total %d", sum, stats.Total)
	}
	if len(stats.Counts) != 6 {
		t.Fatalf("expected every status zero-filled, got %+v", stats.Counts)
	}
	if stats.Counts[domain.RecordPresent] != 1 || stats.Counts[domain.RecordPending] != 2 || stats.Counts[domain.RecordLeave] != 1 {
		t.Fatalf("unexpected counts %+v", stats.Counts)
	}
	if want := 0.25; stats.AttendanceRate != want {
		t.Fatalf("expected rate %v, got %v", want, stats.AttendanceRate)
	}
	if len(stats.Details) != 4 {
		t.Fatalf("counselor gets detail rows, got %d", len(stats.Details))
	}
}

func TestStatisticsEmptyScopeIsZeroNotError(t *testing.T) {
	f := newStatsFixture(t)
	f.seedSession(t)

	counselor := Actor{ID: "counselor-1", Role: domain.RoleCounselor}
	stats, err := f.stats.Aggregate(context.Background(), counselor, StatisticsInput{
		DateFrom: "2030-01-01",
		DateTo:   "2030-12-31",
	})
	if err != nil {
		t.Fatalf("aggregate empty window: %v", err)
	}
	if stats.Total != 0 || stats.AttendanceRate != 0 {
		t.Fatalf("expected zeroed stats, got %+v", stats)
	}
	for status, n := range stats.Counts {
		if n != 0 {
			t.Fatalf("expected zero count for %s, got %d", status, n)
		}
	}
}

func TestStatisticsStudentDetailVisibility(t *testing.T) {
	f := newStatsFixture(t)
	created := f.seedSession(t)

	student := Actor{ID: "s1", Role: domain.RoleStudent, ClassIDs: []string{"c1"}}

	aggregateOnly, err := f.stats.Aggregate(context.Background(), student, StatisticsInput{SessionID: created.Session.ID})
	if err != nil {
		t.Fatalf("aggregate as student: %v", err)
	}
	if aggregateOnly.Details != nil {
		t.Fatalf("student must not see class-wide details, got %d rows", len(aggregateOnly.Details))
	}

	own, err := f.stats.Aggregate(context.Background(), student, StatisticsInput{
		SessionID: created.Session.ID,
		StudentID: "s1",
	})
	if err != nil {
		t.Fatalf("aggregate own records: %v", err)
	}
	if len(own.Details) != 1 || own.Details[0].StudentID != "s1" {
		t.Fatalf("expected only own detail row, got %+v", own.Details)
	}
}

func TestStatisticsClassScopeAuthorized(t *testing.T) {
	f := newStatsFixture(t)
	f.seedSession(t)

	outsider := Actor{ID: "counselor-2", Role: domain.RoleCounselor}
	_, err := f.stats.Aggregate(context.Background(), outsider, StatisticsInput{ClassID: "c1"})
	if !errors.Is(err, authz.ErrDenied) {
		t.Fatalf("expected deny for unmanaged class, got %v", err)
	}
}

func TestStatisticsOnExpiredSessionObservesClose(t *testing.T) {
	f := newStatsFixture(t)
	created := f.seedSession(t)

	f.lifecycle.now = func() time.Time { return created.Session.ExpiredAt.Add(time.Minute) }
	counselor := Actor{ID: "counselor-1", Role: domain.RoleCounselor}
	if _, err := f.stats.Aggregate(context.Background(), counselor, StatisticsInput{SessionID: created.Session.ID}); err != nil {
		t.Fatalf("aggregate expired session: %v", err)
	}

	stored, err := f.sessions.FindByID(created.Session.ID)
	if err != nil {
		t.Fatalf("reload session: %v", err)
	}
	if stored.Status != domain.SessionClosed {
		t.Fatalf("expected CLOSED after stats read, got %q", stored.Status)
	}
}
