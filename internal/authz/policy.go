package authz

import (
	"errors"

	"attendance-session-service/internal/domain"
)

var ErrDenied = errors.New("action not permitted")

type Action string

const (
	ActionCreate     Action = "session:create"
	ActionClose      Action = "session:close"
	ActionOverride   Action = "record:override"
	ActionView       Action = "session:view"
	ActionStatistics Action = "session:statistics"
	ActionRotate     Action = "qrcode:rotate"
	ActionCheckIn    Action = "session:checkin"
)

// Scope carries the actor-relative facts a decision needs: which classes the
// actor manages (counselor), which classes the actor belongs to (student or
// leader enrollment), and who created the target session when the action is
// session-bound.
type Scope struct {
	ManagedClassIDs  []string
	OwnClassIDs      []string
	SessionCreatedBy string
}

// Decide is the single policy point for every operation. It is pure: the
// caller resolves Scope up front and no storage is touched here. A nil return
// means allow; every deny is ErrDenied, never a silent empty result.
func Decide(role domain.Role, actorID string, action Action, targetClassIDs []string, scope Scope) error {
	switch role {
	case domain.RoleAdmin:
		// Check-in is bound to the actor's own attendance record; admins have
		// none, so the action stays student-only.
		if action != ActionCheckIn {
			return nil
		}
	case domain.RoleCounselor:
		switch action {
		case ActionCreate, ActionClose, ActionOverride, ActionView, ActionStatistics, ActionRotate:
			if covers(scope.ManagedClassIDs, targetClassIDs) {
				return nil
			}
		}
	case domain.RoleStudentLeader:
		switch action {
		case ActionCreate, ActionView, ActionRotate, ActionStatistics:
			if covers(scope.OwnClassIDs, targetClassIDs) {
				return nil
			}
		case ActionClose:
			// Leaders may only close sessions they started for their own class.
			if scope.SessionCreatedBy == actorID && covers(scope.OwnClassIDs, targetClassIDs) {
				return nil
			}
		}
	case domain.RoleStudent:
		switch action {
		case ActionCheckIn:
			return nil
		case ActionView, ActionStatistics:
			// A joint session counts as visible when it covers the student's
			// class; output shaping keeps other students' rows hidden.
			if intersects(scope.OwnClassIDs, targetClassIDs) {
				return nil
			}
		}
	}
	return ErrDenied
}

func intersects(allowed, targets []string) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

func covers(allowed, targets []string) bool {
	if len(targets) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(allowed))
	for _, c := range allowed {
		set[c] = struct{}{}
	}
	for _, t := range targets {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
