package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// CourseCreateRequest describes a new course. TeacherID is only honoured for admins.
type CourseCreateRequest struct {
	Title         string          `json:"title" validate:"required,min=3,max=200"`
	Description   string          `json:"description" validate:"required"`
	TeacherID     uint            `json:"teacher_id"`
	Difficulty    string          `json:"difficulty" validate:"required,oneof=beginner intermediate advanced"`
	DurationWeeks int             `json:"duration_weeks" validate:"required,gte=1,lte=104"`
	Fee           decimal.Decimal `json:"fee"`
	MaxStudents   int             `json:"max_students" validate:"required,gte=1"`
	Syllabus      string          `json:"syllabus"`
	Prerequisites string          `json:"prerequisites"`
	ScheduleInfo  string          `json:"schedule_info"`
	IsActive      *bool           `json:"is_active"`
}

// CourseUpdateRequest patches course attributes.
type CourseUpdateRequest struct {
	Title         *string          `json:"title" validate:"omitempty,min=3,max=200"`
	Description   *string          `json:"description"`
	Difficulty    *string          `json:"difficulty" validate:"omitempty,oneof=beginner intermediate advanced"`
	DurationWeeks *int             `json:"duration_weeks" validate:"omitempty,gte=1,lte=104"`
	Fee           *decimal.Decimal `json:"fee"`
	MaxStudents   *int             `json:"max_students" validate:"omitempty,gte=1"`
	Syllabus      *string          `json:"syllabus"`
	Prerequisites *string          `json:"prerequisites"`
	ScheduleInfo  *string          `json:"schedule_info"`
	IsActive      *bool            `json:"is_active"`
}

// CourseListRequest filters the catalog.
type CourseListRequest struct {
	Page       int
	PageSize   int
	Search     string
	Difficulty string
	TeacherID  uint
	ActiveOnly bool
}

// CourseResponse is the catalog view of a course including derived aggregates.
type CourseResponse struct {
	ID                    uint                   `json:"id"`
	Title                 string                 `json:"title"`
	Description           string                 `json:"description"`
	TeacherID             uint                   `json:"teacher_id"`
	TeacherName           string                 `json:"teacher_name,omitempty"`
	Difficulty            string                 `json:"difficulty"`
	DurationWeeks         int                    `json:"duration_weeks"`
	Fee                   decimal.Decimal        `json:"fee"`
	MaxStudents           int                    `json:"max_students"`
	EnrolledStudentsCount int64                  `json:"enrolled_students_count"`
	AvailableSeats        int64                  `json:"available_seats"`
	AverageRating         *float64               `json:"average_rating"`
	Syllabus              string                 `json:"syllabus"`
	Prerequisites         string                 `json:"prerequisites"`
	ScheduleInfo          string                 `json:"schedule_info"`
	IsActive              bool                   `json:"is_active"`
	WeeklyDetails         []WeeklyDetailResponse `json:"weekly_details,omitempty"`
	CreatedAt             time.Time              `json:"created_at"`
	UpdatedAt             time.Time              `json:"updated_at"`
}

// CourseListResponse wraps a paginated course listing.
type CourseListResponse struct {
	Items      []CourseResponse `json:"items"`
	Pagination PaginationMeta   `json:"pagination"`
}

// NewCourseResponse converts a course and its stats into a DTO.
func NewCourseResponse(course models.Course, stats models.CourseStats) CourseResponse {
	seats := int64(course.MaxStudents) - stats.EnrolledCount
	if seats < 0 {
		seats = 0
	}

	response := CourseResponse{
		ID:                    course.ID,
		Title:                 course.Title,
		Description:           course.Description,
		TeacherID:             course.TeacherID,
		Difficulty:            course.Difficulty,
		DurationWeeks:         course.DurationWeeks,
		Fee:                   course.Fee,
		MaxStudents:           course.MaxStudents,
		EnrolledStudentsCount: stats.EnrolledCount,
		AvailableSeats:        seats,
		AverageRating:         stats.AverageRating,
		Syllabus:              course.Syllabus,
		Prerequisites:         course.Prerequisites,
		ScheduleInfo:          course.ScheduleInfo,
		IsActive:              course.IsActive,
		CreatedAt:             course.CreatedAt,
		UpdatedAt:             course.UpdatedAt,
	}
	if course.Teacher != nil {
		response.TeacherName = course.Teacher.FullName()
	}
	for _, week := range course.WeeklyDetails {
		response.WeeklyDetails = append(response.WeeklyDetails, NewWeeklyDetailResponse(week))
	}
	return response
}

// WeeklyDetailRequest creates or replaces the outline of one course week.
type WeeklyDetailRequest struct {
	WeekNumber    int        `json:"week_number" validate:"required,gte=1"`
	Title         string     `json:"title" validate:"required,max=200"`
	Description   string     `json:"description" validate:"required"`
	TopicsCovered string     `json:"topics_covered" validate:"required"`
	Assignments   string     `json:"assignments"`
	ScheduleDate  *time.Time `json:"schedule_date"`
}

// WeeklyDetailResponse serialises one weekly outline.
type WeeklyDetailResponse struct {
	ID            uint       `json:"id"`
	CourseID      uint       `json:"course_id"`
	WeekNumber    int        `json:"week_number"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	TopicsCovered string     `json:"topics_covered"`
	Assignments   string     `json:"assignments"`
	ScheduleDate  *time.Time `json:"schedule_date"`
}

// NewWeeklyDetailResponse converts a weekly detail model.
func NewWeeklyDetailResponse(week models.WeeklyDetail) WeeklyDetailResponse {
	return WeeklyDetailResponse{
		ID:            week.ID,
		CourseID:      week.CourseID,
		WeekNumber:    week.WeekNumber,
		Title:         week.Title,
		Description:   week.Description,
		TopicsCovered: week.TopicsCovered,
		Assignments:   week.Assignments,
		ScheduleDate:  week.ScheduleDate,
	}
}

// CourseRatingRequest lets an enrolled student rate a course.
type CourseRatingRequest struct {
	Rating int    `json:"rating" validate:"required,gte=1,lte=5"`
	Review string `json:"review" validate:"omitempty,max=2000"`
}
