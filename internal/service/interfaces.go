package service

import (
	"errors"

	"attendance-session-service/internal/domain"
)

// Actor is the per-request identity the external auth layer resolved: who is
// calling, with which role, and which classes they belong to.
type Actor struct {
	ID       string
	Role     domain.Role
	ClassIDs []string
}

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidState     = errors.New("invalid session state")
	ErrInvalidToken     = errors.New("invalid or expired qr token")
	ErrSessionClosed    = errors.New("session closed")
	ErrNotEligible      = errors.New("student not enrolled in session")
	ErrDuplicateCheckIn = errors.New("already checked in")
	ErrAlreadyOnLeave   = errors.New("student on approved leave")
)
