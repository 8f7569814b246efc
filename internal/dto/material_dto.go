package dto

import (
	"time"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// MaterialCreateRequest carries the metadata part of a material upload.
type MaterialCreateRequest struct {
	CourseID     uint   `form:"course_id" json:"course_id" validate:"required"`
	Title        string `form:"title" json:"title" validate:"required,max=200"`
	Description  string `form:"description" json:"description"`
	MaterialType string `form:"material_type" json:"material_type" validate:"required,oneof=document video link presentation assignment"`
	WeekNumber   *int   `form:"week_number" json:"week_number" validate:"omitempty,gte=1"`
	IsPublic     bool   `form:"is_public" json:"is_public"`
	ExternalURL  string `form:"external_url" json:"external_url" validate:"omitempty,url"`
}

// MaterialUpdateRequest patches material metadata. Stored files are not replaced.
type MaterialUpdateRequest struct {
	Title        *string `json:"title" validate:"omitempty,max=200"`
	Description  *string `json:"description"`
	MaterialType *string `json:"material_type" validate:"omitempty,oneof=document video link presentation assignment"`
	WeekNumber   *int    `json:"week_number" validate:"omitempty,gte=1"`
	IsPublic     *bool   `json:"is_public"`
	ExternalURL  *string `json:"external_url" validate:"omitempty,url"`
}

// MaterialListRequest filters material listings.
type MaterialListRequest struct {
	CourseID     uint
	MaterialType string
	WeekNumber   int
}

// MaterialResponse serialises a study material.
type MaterialResponse struct {
	ID           uint      `json:"id"`
	CourseID     uint      `json:"course_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	MaterialType string    `json:"material_type"`
	WeekNumber   *int      `json:"week_number"`
	IsPublic     bool      `json:"is_public"`
	FileURL      string    `json:"file_url,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	ExternalURL  string    `json:"external_url,omitempty"`
	UploadedBy   uint      `json:"uploaded_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewMaterialResponse converts a material model.
func NewMaterialResponse(material models.StudyMaterial) MaterialResponse {
	return MaterialResponse{
		ID:           material.ID,
		CourseID:     material.CourseID,
		Title:        material.Title,
		Description:  material.Description,
		MaterialType: material.MaterialType,
		WeekNumber:   material.WeekNumber,
		IsPublic:     material.IsPublic,
		FileURL:      material.FileURL,
		FileName:     material.FileName,
		FileSize:     material.FileSize,
		MimeType:     material.MimeType,
		ExternalURL:  material.ExternalURL,
		UploadedBy:   material.UploadedBy,
		CreatedAt:    material.CreatedAt,
	}
}

// NewMaterialResponseSlice converts a slice of materials.
func NewMaterialResponseSlice(materials []models.StudyMaterial) []MaterialResponse {
	responses := make([]MaterialResponse, 0, len(materials))
	for _, material := range materials {
		responses = append(responses, NewMaterialResponse(material))
	}
	return responses
}
