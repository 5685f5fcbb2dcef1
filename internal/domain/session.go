package domain

import "time"

type SessionStatus string

const (
	SessionActive SessionStatus = "ACTIVE"
	SessionClosed SessionStatus = "CLOSED"
)

type RecordStatus string

const (
	RecordPending RecordStatus = "PENDING"
	RecordPresent RecordStatus = "PRESENT"
	RecordLate    RecordStatus = "LATE"
	RecordAbsent  RecordStatus = "ABSENT"
	RecordLeave   RecordStatus = "LEAVE"
	RecordExcused RecordStatus = "EXCUSED"
)

func ValidRecordStatus(s RecordStatus) bool {
	switch s {
	case RecordPending, RecordPresent, RecordLate, RecordAbsent, RecordLeave, RecordExcused:
		return true
	}
	return false
}

// Session is the aggregate root for one attendance activity. It may cover
// several classes at once; all covered students get a record at creation time
// and none are added or removed afterwards.
type Session struct {
	ID                     string             `gorm:"primaryKey;size:64" json:"id"`
	ClassIDs               []string           `gorm:"serializer:json;not null" json:"class_ids"`
	CourseName             string             `gorm:"size:128;not null" json:"course_name"`
	Location               string             `gorm:"size:256" json:"location"`
	Periods                []int              `gorm:"serializer:json" json:"periods"`
	Status                 SessionStatus      `gorm:"size:16;index;not null" json:"status"`
	CreatedBy              string             `gorm:"size:64;index;not null" json:"created_by"`
	CheckInDurationSeconds int                `gorm:"not null" json:"check_in_duration_seconds"`
	CheckInDate            string             `gorm:"size:10;index;not null" json:"check_in_date"`
	ExpiredAt              time.Time          `gorm:"index;not null" json:"expired_at"`
	QRTokenHash            string             `gorm:"size:128" json:"-"`
	QRTokenExpiresAt       time.Time          `json:"qr_token_expires_at"`
	Records                []AttendanceRecord `gorm:"foreignKey:SessionID;references:ID" json:"records,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// AttendanceRecord is one student's state within one session. A student
// enrolled in two covered classes gets one row per class.
type AttendanceRecord struct {
	ID          uint         `gorm:"primaryKey" json:"-"`
	SessionID   string       `gorm:"size:64;uniqueIndex:idx_session_student_class;not null" json:"session_id"`
	StudentID   string       `gorm:"size:64;uniqueIndex:idx_session_student_class;index;not null" json:"student_id"`
	ClassID     string       `gorm:"size:64;uniqueIndex:idx_session_student_class;not null" json:"class_id"`
	Status      RecordStatus `gorm:"size:16;index;not null" json:"status"`
	CheckInTime *time.Time   `json:"check_in_time,omitempty"`
	Location    *string      `gorm:"size:256" json:"location,omitempty"`
	DeviceInfo  *string      `gorm:"size:256" json:"device_info,omitempty"`
	Reason      *string      `gorm:"size:512" json:"reason,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiredAt)
}

// RecordsForStudent returns the student's rows across all covered classes,
// usually exactly one.
func (s *Session) RecordsForStudent(studentID string) []AttendanceRecord {
	var out []AttendanceRecord
	for _, r := range s.Records {
		if r.StudentID == studentID {
			out = append(out, r)
		}
	}
	return out
}
