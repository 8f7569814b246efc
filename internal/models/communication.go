package models

import "time"

// Notification types.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationWarning = "warning"
	NotificationError   = "error"
)

// Notification audiences.
const (
	AudienceAll      = "all"
	AudienceStudents = "students"
	AudienceTeachers = "teachers"
	AudienceAdmins   = "admins"
)

// Notification is an admin broadcast addressed to a role audience.
type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Title          string    `gorm:"size:200;not null" json:"title"`
	Message        string    `gorm:"type:text;not null" json:"message"`
	Type           string    `gorm:"size:16;not null" json:"notification_type"`
	TargetAudience string    `gorm:"size:16;not null;index" json:"target_audience"`
	CreatedBy      uint      `gorm:"not null" json:"created_by"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

// AudienceForRole maps a role to the audience bucket that addresses it.
func AudienceForRole(role Role) string {
	switch role {
	case RoleAdmin:
		return AudienceAdmins
	case RoleTeacher:
		return AudienceTeachers
	case RoleStudent:
		return AudienceStudents
	default:
		return ""
	}
}

// Reaches reports whether the notification is addressed to the role.
func (n Notification) Reaches(role Role) bool {
	if n.TargetAudience == AudienceAll {
		return true
	}
	return n.TargetAudience != "" && n.TargetAudience == AudienceForRole(role)
}
