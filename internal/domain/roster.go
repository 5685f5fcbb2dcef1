package domain

import "time"

// Enrollment places a student in a class roster.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	ClassID   string    `gorm:"size:64;uniqueIndex:idx_class_student;not null" json:"class_id"`
	StudentID string    `gorm:"size:64;uniqueIndex:idx_class_student;index;not null" json:"student_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ManagedClass assigns a class to a counselor or student leader.
type ManagedClass struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"size:64;uniqueIndex:idx_user_class;not null" json:"user_id"`
	ClassID   string    `gorm:"size:64;uniqueIndex:idx_user_class;not null" json:"class_id"`
	CreatedAt time.Time `json:"created_at"`
}

type LeaveStatus string

const (
	LeavePendingApproval LeaveStatus = "PENDING"
	LeaveApproved        LeaveStatus = "APPROVED"
	LeaveRejected        LeaveStatus = "REJECTED"
)

// LeaveRequest is a date-bounded absence request. Only APPROVED requests
// affect attendance seeding; dates are inclusive YYYY-MM-DD.
type LeaveRequest struct {
	ID        uint        `gorm:"primaryKey" json:"-"`
	StudentID string      `gorm:"size:64;index;not null" json:"student_id"`
	StartDate string      `gorm:"size:10;not null" json:"start_date"`
	EndDate   string      `gorm:"size:10;not null" json:"end_date"`
	Status    LeaveStatus `gorm:"size:16;index;not null" json:"status"`
	Reason    string      `gorm:"size:512" json:"reason"`
	CreatedAt time.Time   `json:"created_at"`
}
