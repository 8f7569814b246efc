package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Course difficulty levels.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Course is a teacher-owned offering with a fixed capacity.
type Course struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Title         string          `gorm:"size:200;not null" json:"title"`
	Description   string          `gorm:"type:text" json:"description"`
	TeacherID     uint            `gorm:"not null;index" json:"teacher_id"`
	Teacher       *User           `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Difficulty    string          `gorm:"size:20;not null" json:"difficulty"`
	DurationWeeks int             `gorm:"not null" json:"duration_weeks"`
	Fee           decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"fee"`
	MaxStudents   int             `gorm:"not null" json:"max_students"`
	Syllabus      string          `gorm:"type:text" json:"syllabus"`
	Prerequisites string          `gorm:"type:text" json:"prerequisites"`
	ScheduleInfo  string          `gorm:"type:text" json:"schedule_info"`
	IsActive      bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	WeeklyDetails []WeeklyDetail  `gorm:"constraint:OnDelete:CASCADE" json:"weekly_details,omitempty"`
}

// CourseStats carries the derived per-course aggregates.
type CourseStats struct {
	CourseID      uint     `json:"course_id"`
	EnrolledCount int64    `json:"enrolled_students_count"`
	AverageRating *float64 `json:"average_rating"`
}

// WeeklyDetail outlines one week of a course.
type WeeklyDetail struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CourseID      uint       `gorm:"not null;uniqueIndex:idx_course_week" json:"course_id"`
	WeekNumber    int        `gorm:"not null;uniqueIndex:idx_course_week" json:"week_number"`
	Title         string     `gorm:"size:200;not null" json:"title"`
	Description   string     `gorm:"type:text" json:"description"`
	TopicsCovered string     `gorm:"type:text" json:"topics_covered"`
	Assignments   string     `gorm:"type:text" json:"assignments"`
	ScheduleDate  *time.Time `json:"schedule_date"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
