package domain

type Role string

const (
	RoleAdmin         Role = "ADMIN"
	RoleCounselor     Role = "COUNSELOR"
	RoleStudentLeader Role = "STUDENT_LEADER"
	RoleStudent       Role = "STUDENT"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleCounselor, RoleStudentLeader, RoleStudent:
		return true
	}
	return false
}
