package dto

import (
	"time"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// EnrollRequest lets an admin enroll a specific student. Students always enroll themselves.
type EnrollRequest struct {
	StudentID uint `json:"student_id"`
}

// EnrollmentResponse serialises an enrollment with its derived state.
type EnrollmentResponse struct {
	ID                   uint       `json:"id"`
	StudentID            uint       `json:"student_id"`
	StudentName          string     `json:"student_name,omitempty"`
	CourseID             uint       `json:"course_id"`
	CourseTitle          string     `json:"course_title,omitempty"`
	State                string     `json:"state"`
	IsActive             bool       `json:"is_active"`
	CompletionPercentage int        `json:"completion_percentage"`
	EnrolledAt           time.Time  `json:"enrolled_at"`
	CompletedAt          *time.Time `json:"completed_at"`
	WithdrawnAt          *time.Time `json:"withdrawn_at"`
	Rating               *int       `json:"rating"`
	Review               string     `json:"review,omitempty"`
	FeeTransactionID     *uint      `json:"fee_transaction_id,omitempty"`
}

// NewEnrollmentResponse converts an enrollment model.
func NewEnrollmentResponse(enrollment models.Enrollment) EnrollmentResponse {
	response := EnrollmentResponse{
		ID:                   enrollment.ID,
		StudentID:            enrollment.StudentID,
		CourseID:             enrollment.CourseID,
		State:                enrollment.State(),
		IsActive:             enrollment.IsActive,
		CompletionPercentage: enrollment.CompletionPercentage,
		EnrolledAt:           enrollment.EnrolledAt,
		CompletedAt:          enrollment.CompletedAt,
		WithdrawnAt:          enrollment.WithdrawnAt,
		Rating:               enrollment.Rating,
		Review:               enrollment.Review,
	}
	if enrollment.Student != nil {
		response.StudentName = enrollment.Student.FullName()
	}
	if enrollment.Course != nil {
		response.CourseTitle = enrollment.Course.Title
	}
	return response
}

// NewEnrollmentResponseSlice converts a slice of enrollments.
func NewEnrollmentResponseSlice(enrollments []models.Enrollment) []EnrollmentResponse {
	responses := make([]EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		responses = append(responses, NewEnrollmentResponse(enrollment))
	}
	return responses
}

// ProgressRecordRequest creates or replaces the weekly progress of a student.
type ProgressRecordRequest struct {
	StudentID            uint   `json:"student_id" validate:"required"`
	CourseID             uint   `json:"course_id" validate:"required"`
	WeekNumber           int    `json:"week_number" validate:"required,gte=1"`
	AttendancePercentage int    `json:"attendance_percentage" validate:"gte=0,lte=100"`
	AssignmentScore      *int   `json:"assignment_score" validate:"omitempty,gte=0,lte=100"`
	QuizScore            *int   `json:"quiz_score" validate:"omitempty,gte=0,lte=100"`
	ParticipationScore   *int   `json:"participation_score" validate:"omitempty,gte=0,lte=100"`
	TeacherNotes         string `json:"teacher_notes" validate:"omitempty,max=5000"`
}

// ProgressListRequest filters progress rows.
type ProgressListRequest struct {
	CourseID  uint
	StudentID uint
}

// ProgressResponse serialises one weekly progress row.
type ProgressResponse struct {
	ID                   uint      `json:"id"`
	StudentID            uint      `json:"student_id"`
	CourseID             uint      `json:"course_id"`
	WeekNumber           int       `json:"week_number"`
	AttendancePercentage int       `json:"attendance_percentage"`
	AssignmentScore      *int      `json:"assignment_score"`
	QuizScore            *int      `json:"quiz_score"`
	ParticipationScore   *int      `json:"participation_score"`
	OverallScore         int       `json:"overall_score"`
	TeacherNotes         string    `json:"teacher_notes"`
	RecordedBy           uint      `json:"recorded_by"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewProgressResponse converts a progress model.
func NewProgressResponse(progress models.StudentProgress) ProgressResponse {
	return ProgressResponse{
		ID:                   progress.ID,
		StudentID:            progress.StudentID,
		CourseID:             progress.CourseID,
		WeekNumber:           progress.WeekNumber,
		AttendancePercentage: progress.AttendancePercentage,
		AssignmentScore:      progress.AssignmentScore,
		QuizScore:            progress.QuizScore,
		ParticipationScore:   progress.ParticipationScore,
		OverallScore:         progress.OverallScore,
		TeacherNotes:         progress.TeacherNotes,
		RecordedBy:           progress.RecordedBy,
		UpdatedAt:            progress.UpdatedAt,
	}
}

// ProgressRecordResponse returns the stored row with the recomputed enrollment.
type ProgressRecordResponse struct {
	Progress   ProgressResponse   `json:"progress"`
	Enrollment EnrollmentResponse `json:"enrollment"`
}

// WeeklyScorePoint is the mean overall score of one course week.
type WeeklyScorePoint struct {
	WeekNumber       int     `json:"week_number"`
	AverageScore     float64 `json:"average_score"`
	RecordedStudents int64   `json:"recorded_students"`
}

// ProgressSummaryResponse aggregates completion across a course.
type ProgressSummaryResponse struct {
	CourseID                uint               `json:"course_id"`
	TotalStudents           int64              `json:"total_students"`
	CompletedStudents       int64              `json:"completed_students"`
	AvgCompletionPercentage float64            `json:"avg_completion_percentage"`
	CompletionRate          float64            `json:"completion_rate"`
	Weekly                  []WeeklyScorePoint `json:"weekly"`
}
