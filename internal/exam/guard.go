package exam

import (
	"slices"

	"github.com/pavelanni/schoolexam/internal/model"
)

// requireRole fails with a Forbidden error unless caller has one of the
// allowed roles.
func requireRole(caller *model.User, allowed ...model.UserRole) error {
	if caller == nil {
		return errForbiddenRole("")
	}
	if !slices.Contains(allowed, caller.Role) {
		return errForbiddenRole(caller.Role)
	}
	return nil
}

// IsEligible reports whether a student may start the bundle: the bundle is
// active and the student's class is one of its eligible classes.
func IsEligible(student *model.User, b model.ExamBundle) bool {
	if student == nil || student.ClassID == nil || !b.Active {
		return false
	}
	return b.HasClass(*student.ClassID)
}
