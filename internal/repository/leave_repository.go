package repository

import (
	"context"

	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/observability"

	"gorm.io/gorm"
)

// LeaveRepository answers the one question seeding needs: does the student
// hold an approved leave covering the given date. Dates are inclusive
// YYYY-MM-DD strings, so plain string comparison orders correctly.
type LeaveRepository interface {
	HasApprovedLeave(studentID, date string) (bool, error)
	Create(req *domain.LeaveRequest) error
}

type GormLeaveRepository struct{ db *gorm.DB }

func NewLeaveRepository(db *gorm.DB) LeaveRepository { return &GormLeaveRepository{db: db} }

func (r *GormLeaveRepository) HasApprovedLeave(studentID, date string) (bool, error) {
	var n int64
	err := r.db.Model(&domain.LeaveRequest{}).
		Where("student_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			studentID, domain.LeaveApproved, date, date).
		Count(&n).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "leave", "has_approved_leave", "error")
		return false, storageErr("lookup approved leave", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "leave", "has_approved_leave", "success")
	return n > 0, nil
}

func (r *GormLeaveRepository) Create(req *domain.LeaveRequest) error {
	if err := r.db.Create(req).Error; err != nil {
		return storageErr("create leave request", err)
	}
	return nil
}
