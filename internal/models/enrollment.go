package models

import "time"

// Enrollment states derived from the stored flags.
const (
	EnrollmentStateActive    = "active"
	EnrollmentStateCompleted = "completed"
	EnrollmentStateWithdrawn = "withdrawn"
)

// Enrollment links one student to one course. At most one active row exists per pair.
type Enrollment struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	StudentID            uint       `gorm:"not null;index;uniqueIndex:idx_enrollment_active,where:is_active = true" json:"student_id"`
	CourseID             uint       `gorm:"not null;index;uniqueIndex:idx_enrollment_active,where:is_active = true" json:"course_id"`
	Student              *User      `gorm:"foreignKey:StudentID" json:"student,omitempty"`
	Course               *Course    `gorm:"foreignKey:CourseID" json:"course,omitempty"`
	EnrolledAt           time.Time  `gorm:"not null;index" json:"enrolled_at"`
	CompletionPercentage int        `gorm:"not null" json:"completion_percentage"`
	IsActive             bool       `gorm:"not null;index" json:"is_active"`
	CompletedAt          *time.Time `json:"completed_at"`
	WithdrawnAt          *time.Time `gorm:"index" json:"withdrawn_at"`
	Rating               *int       `json:"rating"`
	Review               string     `gorm:"type:text" json:"review"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// State reports the lifecycle state of the enrollment.
func (e Enrollment) State() string {
	switch {
	case !e.IsActive:
		return EnrollmentStateWithdrawn
	case e.CompletedAt != nil:
		return EnrollmentStateCompleted
	default:
		return EnrollmentStateActive
	}
}

// StudentProgress is the weekly record a teacher keeps for an enrolled student.
type StudentProgress struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	StudentID            uint      `gorm:"not null;uniqueIndex:idx_progress_week" json:"student_id"`
	CourseID             uint      `gorm:"not null;uniqueIndex:idx_progress_week;index" json:"course_id"`
	WeekNumber           int       `gorm:"not null;uniqueIndex:idx_progress_week" json:"week_number"`
	AttendancePercentage int       `gorm:"not null" json:"attendance_percentage"`
	AssignmentScore      *int      `json:"assignment_score"`
	QuizScore            *int      `json:"quiz_score"`
	ParticipationScore   *int      `json:"participation_score"`
	OverallScore         int       `gorm:"not null" json:"overall_score"`
	TeacherNotes         string    `gorm:"type:text" json:"teacher_notes"`
	RecordedBy           uint      `gorm:"not null" json:"recorded_by"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// CompletionPercentage converts passed weeks into a 0..100 completion figure.
func CompletionPercentage(passedWeeks int64, durationWeeks int) int {
	if durationWeeks <= 0 || passedWeeks <= 0 {
		return 0
	}
	percentage := int(passedWeeks * 100 / int64(durationWeeks))
	if percentage > 100 {
		return 100
	}
	return percentage
}
