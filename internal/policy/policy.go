// Package policy decides whether a principal may perform an operation on a resource.
// Every rule is a pure function so it can be exercised without HTTP or storage.
package policy

import "github.com/noah-isme/eduportal-api/internal/models"

// Principal is the authenticated caller of a service operation.
type Principal struct {
	ID   uint
	Role models.Role
}

// IsAdmin reports whether the principal has unrestricted access.
func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// IsTeacher reports whether the principal is a teacher.
func (p Principal) IsTeacher() bool { return p.Role == models.RoleTeacher }

// IsStudent reports whether the principal is a student.
func (p Principal) IsStudent() bool { return p.Role == models.RoleStudent }

// Authenticated reports whether the principal carries an identity and a known role.
func (p Principal) Authenticated() bool { return p.ID != 0 && p.Role.Valid() }

// Decision is the outcome of a policy check. Reason explains a denial.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

func owns(p Principal, course models.Course) bool {
	return p.IsTeacher() && course.TeacherID == p.ID
}

// CanCreateCourse allows admins to create courses for any teacher and teachers for themselves.
func CanCreateCourse(p Principal, teacherID uint) Decision {
	switch {
	case p.IsAdmin():
		return allow()
	case p.IsTeacher() && teacherID == p.ID:
		return allow()
	case p.IsTeacher():
		return deny("teachers may only create their own courses")
	default:
		return deny("only teachers and admins may create courses")
	}
}

// CanManageCourse covers writes to a course and everything it owns: weekly details,
// materials, exams, questions and progress rows.
func CanManageCourse(p Principal, course models.Course) Decision {
	if p.IsAdmin() || owns(p, course) {
		return allow()
	}
	if p.IsTeacher() {
		return deny("course is owned by another teacher")
	}
	return deny("only the course teacher or an admin may modify this course")
}

// CanViewRoster allows reading enrollments and students of a course.
func CanViewRoster(p Principal, course models.Course) Decision {
	if p.IsAdmin() || owns(p, course) {
		return allow()
	}
	return deny("roster is visible to the course teacher and admins only")
}

// CanEnroll allows students to enroll themselves and admins to enroll anyone.
func CanEnroll(p Principal, studentID uint) Decision {
	switch {
	case p.IsAdmin():
		return allow()
	case p.IsStudent() && p.ID == studentID:
		return allow()
	case p.IsStudent():
		return deny("students may only enroll themselves")
	default:
		return deny("only students may enroll in courses")
	}
}

// CanWithdraw mirrors CanEnroll for cancelling an enrollment.
func CanWithdraw(p Principal, studentID uint) Decision {
	switch {
	case p.IsAdmin():
		return allow()
	case p.IsStudent() && p.ID == studentID:
		return allow()
	default:
		return deny("students may only cancel their own enrollment")
	}
}

// CanRecordProgress allows the course teacher or an admin to write weekly progress.
func CanRecordProgress(p Principal, course models.Course) Decision {
	return CanManageCourse(p, course)
}

// CanViewProgress allows a student to read their own progress and staff to read their courses'.
func CanViewProgress(p Principal, course models.Course, studentID uint) Decision {
	switch {
	case p.IsAdmin(), owns(p, course):
		return allow()
	case p.IsStudent() && p.ID == studentID:
		return allow()
	default:
		return deny("progress is visible to the student, the course teacher and admins")
	}
}

// CanViewMaterial allows public materials for everyone and private ones to enrolled students and staff.
func CanViewMaterial(p Principal, material models.StudyMaterial, course models.Course, enrolled bool) Decision {
	switch {
	case p.IsAdmin(), owns(p, course):
		return allow()
	case material.IsPublic:
		return allow()
	case p.IsStudent() && enrolled:
		return allow()
	default:
		return deny("material is restricted to enrolled students")
	}
}

// CanTakeExam allows only students to start and submit attempts.
func CanTakeExam(p Principal) Decision {
	if p.IsStudent() {
		return allow()
	}
	return deny("only students may take exams")
}

// CanSubmitAttempt allows a student to submit only their own attempt.
func CanSubmitAttempt(p Principal, attempt models.ExamAttempt) Decision {
	if p.IsStudent() && attempt.StudentID == p.ID {
		return allow()
	}
	return deny("attempt belongs to another student")
}

// CanViewAttempt allows the attempt owner, the course teacher and admins.
func CanViewAttempt(p Principal, attempt models.ExamAttempt, course models.Course) Decision {
	switch {
	case p.IsAdmin(), owns(p, course):
		return allow()
	case p.IsStudent() && attempt.StudentID == p.ID:
		return allow()
	default:
		return deny("attempt is visible to its owner, the course teacher and admins")
	}
}

// CanGradeAnswer allows the course teacher or an admin to score free-text answers.
func CanGradeAnswer(p Principal, course models.Course) Decision {
	return CanManageCourse(p, course)
}

// CanManageFinance restricts ledger writes to admins.
func CanManageFinance(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("only admins may manage financial records")
}

// CanViewTransactions allows admins and the student the transactions belong to.
func CanViewTransactions(p Principal, studentID uint) Decision {
	switch {
	case p.IsAdmin():
		return allow()
	case p.IsStudent() && p.ID == studentID:
		return allow()
	default:
		return deny("transactions are visible to their student and admins")
	}
}

// CanViewSalary allows admins and the teacher the salary belongs to.
func CanViewSalary(p Principal, teacherID uint) Decision {
	switch {
	case p.IsAdmin():
		return allow()
	case p.IsTeacher() && p.ID == teacherID:
		return allow()
	default:
		return deny("salary records are visible to their teacher and admins")
	}
}

// CanManageUsers restricts account administration to admins.
func CanManageUsers(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("only admins may manage users")
}

// CanViewUser allows admins and the account owner.
func CanViewUser(p Principal, userID uint) Decision {
	if p.IsAdmin() || p.ID == userID {
		return allow()
	}
	return deny("users may only view their own account")
}

// CanBroadcast restricts notifications and dashboards to admins.
func CanBroadcast(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("only admins may broadcast notifications")
}

// CanViewAnalytics restricts aggregate dashboards to admins.
func CanViewAnalytics(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("only admins may view analytics")
}

// CanManageExam covers exam and question bank writes; exams follow their course's ownership.
func CanManageExam(p Principal, course models.Course) Decision {
	return CanManageCourse(p, course)
}

// Action names an operation checked through Authorize.
type Action string

// Actions understood by Authorize.
const (
	ActionCreateCourse     Action = "course:create"
	ActionManageCourse     Action = "course:manage"
	ActionViewRoster       Action = "course:roster"
	ActionEnroll           Action = "enrollment:create"
	ActionWithdraw         Action = "enrollment:cancel"
	ActionRecordProgress   Action = "progress:record"
	ActionViewProgress     Action = "progress:view"
	ActionViewMaterial     Action = "material:view"
	ActionManageExam       Action = "exam:manage"
	ActionTakeExam         Action = "exam:take"
	ActionSubmitAttempt    Action = "attempt:submit"
	ActionViewAttempt      Action = "attempt:view"
	ActionGradeAnswer      Action = "answer:grade"
	ActionManageFinance    Action = "finance:manage"
	ActionViewTransactions Action = "transaction:view"
	ActionViewSalary       Action = "salary:view"
	ActionManageUsers      Action = "user:manage"
	ActionViewUser         Action = "user:view"
	ActionBroadcast        Action = "notification:broadcast"
	ActionViewAnalytics    Action = "analytics:view"
)

// Resource carries whatever an action is checked against. OwnerID is the student, teacher
// or user the record belongs to.
type Resource struct {
	Course   *models.Course
	Material *models.StudyMaterial
	Attempt  *models.ExamAttempt
	OwnerID  uint
	Enrolled bool
}

// Authorize dispatches an action to its rule. Unknown actions and missing resources are denied.
func Authorize(p Principal, action Action, resource Resource) Decision {
	switch action {
	case ActionCreateCourse:
		return CanCreateCourse(p, resource.OwnerID)
	case ActionEnroll:
		return CanEnroll(p, resource.OwnerID)
	case ActionWithdraw:
		return CanWithdraw(p, resource.OwnerID)
	case ActionTakeExam:
		return CanTakeExam(p)
	case ActionManageFinance:
		return CanManageFinance(p)
	case ActionViewTransactions:
		return CanViewTransactions(p, resource.OwnerID)
	case ActionViewSalary:
		return CanViewSalary(p, resource.OwnerID)
	case ActionManageUsers:
		return CanManageUsers(p)
	case ActionViewUser:
		return CanViewUser(p, resource.OwnerID)
	case ActionBroadcast:
		return CanBroadcast(p)
	case ActionViewAnalytics:
		return CanViewAnalytics(p)
	case ActionSubmitAttempt:
		if resource.Attempt == nil {
			return deny("attempt is required")
		}
		return CanSubmitAttempt(p, *resource.Attempt)
	}

	if resource.Course == nil {
		if isCourseAction(action) {
			return deny("course is required")
		}
		return deny("unknown action")
	}
	course := *resource.Course
	switch action {
	case ActionManageCourse:
		return CanManageCourse(p, course)
	case ActionViewRoster:
		return CanViewRoster(p, course)
	case ActionRecordProgress:
		return CanRecordProgress(p, course)
	case ActionViewProgress:
		return CanViewProgress(p, course, resource.OwnerID)
	case ActionManageExam:
		return CanManageExam(p, course)
	case ActionGradeAnswer:
		return CanGradeAnswer(p, course)
	case ActionViewMaterial:
		if resource.Material == nil {
			return deny("material is required")
		}
		return CanViewMaterial(p, *resource.Material, course, resource.Enrolled)
	case ActionViewAttempt:
		if resource.Attempt == nil {
			return deny("attempt is required")
		}
		return CanViewAttempt(p, *resource.Attempt, course)
	default:
		return deny("unknown action")
	}
}

func isCourseAction(action Action) bool {
	switch action {
	case ActionManageCourse, ActionViewRoster, ActionRecordProgress, ActionViewProgress,
		ActionManageExam, ActionGradeAnswer, ActionViewMaterial, ActionViewAttempt:
		return true
	}
	return false
}
