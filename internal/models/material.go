package models

import "time"

// Study material types.
const (
	MaterialTypeDocument     = "document"
	MaterialTypeVideo        = "video"
	MaterialTypeLink         = "link"
	MaterialTypePresentation = "presentation"
	MaterialTypeAssignment   = "assignment"
)

// StudyMaterial references an uploaded blob or an external URL for a course.
type StudyMaterial struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CourseID     uint      `gorm:"not null;index" json:"course_id"`
	Title        string    `gorm:"size:200;not null" json:"title"`
	Description  string    `gorm:"type:text" json:"description"`
	MaterialType string    `gorm:"size:20;not null" json:"material_type"`
	WeekNumber   *int      `json:"week_number"`
	IsPublic     bool      `gorm:"not null" json:"is_public"`
	FileURL      string    `gorm:"size:512" json:"file_url"`
	FileName     string    `gorm:"size:255" json:"file_name"`
	FileSize     int64     `json:"file_size"`
	MimeType     string    `gorm:"size:128" json:"mime_type"`
	ExternalURL  string    `gorm:"size:512" json:"external_url"`
	UploadedBy   uint      `gorm:"not null" json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
