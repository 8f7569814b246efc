package dto

import (
	"time"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// NotificationCreateRequest describes an admin broadcast.
type NotificationCreateRequest struct {
	Title          string `json:"title" validate:"required,min=1,max=200"`
	Message        string `json:"message" validate:"required,min=1,max=2000"`
	Type           string `json:"notification_type" validate:"omitempty,oneof=info success warning error"`
	TargetAudience string `json:"target_audience" validate:"omitempty,oneof=all students teachers admins"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID             uint      `json:"id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Type           string    `json:"notification_type"`
	TargetAudience string    `json:"target_audience"`
	CreatedBy      uint      `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             model.ID,
		Title:          model.Title,
		Message:        model.Message,
		Type:           model.Type,
		TargetAudience: model.TargetAudience,
		CreatedBy:      model.CreatedBy,
		CreatedAt:      model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// Reaches reports whether the notification addresses the role.
func (n NotificationResponse) Reaches(role models.Role) bool {
	return models.Notification{TargetAudience: n.TargetAudience}.Reaches(role)
}
