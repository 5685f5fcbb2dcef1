package repository

import (
	"context"

	"attendance-session-service/internal/domain"
	"attendance-session-service/internal/observability"

	"gorm.io/gorm"
)

// RosterRepository answers the class-membership questions the core needs:
// who is in a class, and which classes a user manages or belongs to.
type RosterRepository interface {
	StudentsInClass(classID string) ([]string, error)
	ClassesOfStudent(studentID string) ([]string, error)
	ClassesManagedBy(userID string) ([]string, error)
	AddEnrollment(classID, studentID string) error
	AddManagedClass(userID, classID string) error
}

type GormRosterRepository struct{ db *gorm.DB }

func NewRosterRepository(db *gorm.DB) RosterRepository { return &GormRosterRepository{db: db} }

func (r *GormRosterRepository) StudentsInClass(classID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&domain.Enrollment{}).
		Where("class_id = ?", classID).
		Order("student_id").
		Pluck("student_id", &ids).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "roster", "students_in_class", "error")
		return nil, storageErr("list class roster", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "roster", "students_in_class", "success")
	return ids, nil
}

func (r *GormRosterRepository) ClassesOfStudent(studentID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&domain.Enrollment{}).
		Where("student_id = ?", studentID).
		Pluck("class_id", &ids).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "roster", "classes_of_student", "error")
		return nil, storageErr("list student classes", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "roster", "classes_of_student", "success")
	return ids, nil
}

func (r *GormRosterRepository) ClassesManagedBy(userID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&domain.ManagedClass{}).
		Where("user_id = ?", userID).
		Pluck("class_id", &ids).Error
	if err != nil {
		observability.RecordRepositoryOperation(context.Background(), "roster", "classes_managed_by", "error")
		return nil, storageErr("list managed classes", err)
	}
	observability.RecordRepositoryOperation(context.Background(), "roster", "classes_managed_by", "success")
	return ids, nil
}

func (r *GormRosterRepository) AddEnrollment(classID, studentID string) error {
	if err := r.db.Create(&domain.Enrollment{ClassID: classID, StudentID: studentID}).Error; err != nil {
		return storageErr("add enrollment", err)
	}
	return nil
}

func (r *GormRosterRepository) AddManagedClass(userID, classID string) error {
	if err := r.db.Create(&domain.ManagedClass{UserID: userID, ClassID: classID}).Error; err != nil {
		return storageErr("add managed class", err)
	}
	return nil
}
