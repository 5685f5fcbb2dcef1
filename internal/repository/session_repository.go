package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/observability"

	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRecordNotFound  = errors.New("attendance record not found")
	// ErrStorageUnavailable wraps store-layer I/O failures. The core never
	// retries these; retry policy belongs to the transport layer.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}

// SessionClass is the join row backing class-scoped session listing.
type SessionClass struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"size:64;uniqueIndex:idx_session_class;not null"`
	ClassID   string `gorm:"size:64;uniqueIndex:idx_session_class;index;not null"`
}

type SessionFilter struct {
	// VisibleClassIDs restricts results to sessions covering at least one of
	// these classes; nil means unrestricted (admin view).
	VisibleClassIDs []string
	ClassID         string
	DateFrom        string
	DateTo          string
	Status          domain.SessionStatus
}

type RecordFilter struct {
	SessionIDs []string
	ClassID    string
	StudentID  string
}

type SessionRepository interface {
	Create(s *domain.Session) error
	FindByID(id string) (*domain.Session, error)
	List(filter SessionFilter) ([]domain.Session, error)
	// CloseIfExpired is the auto-close compare-and-set: it flips ACTIVE to
	// CLOSED only when the expiry has passed, so exactly one of any number of
	// concurrent observers wins.
	CloseIfExpired(id string, now time.Time) (bool, error)
	Close(id string) (bool, error)
	RotateQRToken(id, hash string, expiresAt time.Time) (bool, error)
	// CommitCheckIn stamps the student's open records in one conditional
	// update. Zero rows affected means another check-in already won.
	CommitCheckIn(sessionID, studentID string, status domain.RecordStatus, at time.Time, location, deviceInfo *string) (int64, error)
	OverrideRecord(sessionID, studentID string, status domain.RecordStatus, reason *string) (bool, error)
	StatusCounts(filter RecordFilter) (map[domain.RecordStatus]int64, error)
	Records(filter RecordFilter) ([]domain.AttendanceRecord, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(s *domain.Session) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(s).Error; err != nil {
			return err
		}
		for _, classID := range s.ClassIDs {
			if err := tx.Create(&SessionClass{SessionID: s.ID, ClassID: classID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "create", "error")
		return storageErr("create session", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(id string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.Preload("Records").Where("id = ?", id).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "error")
		return nil, storageErr("find session", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "find_by_id", "success")
	return &s, nil
}

func (r *GormSessionRepository) List(filter SessionFilter) ([]domain.Session, error) {
	q := r.db.Model(&domain.Session{})
	if filter.VisibleClassIDs != nil || filter.ClassID != "" {
		q = q.Joins("JOIN session_classes sc ON sc.session_id = sessions.id").Distinct("sessions.*")
		if filter.VisibleClassIDs != nil {
			q = q.Where("sc.class_id IN ?", filter.VisibleClassIDs)
		}
		if filter.ClassID != "" {
			q = q.Where("sc.class_id = ?", filter.ClassID)
		}
	}
	if filter.DateFrom != "" {
		q = q.Where("check_in_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		q = q.Where("check_in_date <= ?", filter.DateTo)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var sessions []domain.Session
	if err := q.Order("created_at DESC").Find(&sessions).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "list", "error")
		return nil, storageErr("list sessions", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "list", "success")
	return sessions, nil
}

func (r *GormSessionRepository) CloseIfExpired(id string, now time.Time) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND status = ? AND expired_at <= ?", id, domain.SessionActive, now).
		Update("status", domain.SessionClosed)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "close_if_expired", "error")
		return false, storageErr("auto-close session", res.Error)
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "close_if_expired", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) Close(id string) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Update("status", domain.SessionClosed)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "close", "error")
		return false, storageErr("close session", res.Error)
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "close", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) RotateQRToken(id, hash string, expiresAt time.Time) (bool, error) {
	res := r.db.Model(&domain.Session{}).
		Where("id = ? AND status = ?", id, domain.SessionActive).
		Updates(map[string]any{"qr_token_hash": hash, "qr_token_expires_at": expiresAt})
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "session", "rotate_qr_token", "error")
		return false, storageErr("rotate qr token", res.Error)
	}
	observability.RecordRepositoryOperation(context.Background(), "session", "rotate_qr_token", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) CommitCheckIn(sessionID, studentID string, status domain.RecordStatus, at time.Time, location, deviceInfo *string) (int64, error) {
	updates := map[string]any{"status": status, "check_in_time": at}
	if location != nil {
		updates["location"] = *location
	}
	if deviceInfo != nil {
		updates["device_info"] = *deviceInfo
	}
	res := r.db.Model(&domain.AttendanceRecord{}).
		Where("session_id = ? AND student_id = ? AND check_in_time IS NULL AND status <> ?",
			sessionID, studentID, domain.RecordLeave).
		Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "record", "commit_check_in", "error")
		return 0, storageErr("commit check-in", res.Error)
	}
	observability.RecordRepositoryOperation(context.Background(), "record", "commit_check_in", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) OverrideRecord(sessionID, studentID string, status domain.RecordStatus, reason *string) (bool, error) {
	updates := map[string]any{"status": status}
	if reason != nil {
		updates["reason"] = *reason
	}
	res := r.db.Model(&domain.AttendanceRecord{}).
		Where("session_id = ? AND student_id = ?", sessionID, studentID).
		Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(context.Background(), "record", "override", "error")
		return false, storageErr("override record", res.Error)
	}
	observability.RecordRepositoryOperation(context.Background(), "record", "override", "success")
	return res.RowsAffected > 0, nil
}

func (r *GormSessionRepository) StatusCounts(filter RecordFilter) (map[domain.RecordStatus]int64, error) {
	type row struct {
		Status domain.RecordStatus
		N      int64
	}
	var rows []row
	q := recordQuery(r.db, filter).Select("status, COUNT(*) AS n").Group("status")
	if err := q.Scan(&rows).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "record", "status_counts", "error")
		return nil, storageErr("count records", err)
	}
	counts := make(map[domain.RecordStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	observability.RecordRepositoryOperation(context.Background(), "record", "status_counts", "success")
	return counts, nil
}

func (r *GormSessionRepository) Records(filter RecordFilter) ([]domain.AttendanceRecord, error) {
	var records []domain.AttendanceRecord
	if err := recordQuery(r.db, filter).Order("student_id").Find(&records).Error; err != nil {
		observability.RecordRepositoryOperation(context.Background(), "record", "list", "error")
		return nil, storageErr("list records", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "record", "list", "success")
	return records, nil
}

func recordQuery(db *gorm.DB, filter RecordFilter) *gorm.DB {
	q := db.Model(&domain.AttendanceRecord{})
	if filter.SessionIDs != nil {
		q = q.Where("session_id IN ?", filter.SessionIDs)
	}
	if filter.ClassID != "" {
		q = q.Where("class_id = ?", filter.ClassID)
	}
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	return q
}
