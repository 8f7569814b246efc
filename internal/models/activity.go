package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActivityLog captures auditable mutations performed by any principal.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	ActorRole  string            `gorm:"size:32;not null" json:"actor_role"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	EntityType string            `gorm:"size:64;not null;index" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `gorm:"index" json:"created_at"`
}

// AllModels lists every persisted model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Course{},
		&WeeklyDetail{},
		&Enrollment{},
		&StudentProgress{},
		&StudyMaterial{},
		&Exam{},
		&Question{},
		&QuestionOption{},
		&ExamAttempt{},
		&Answer{},
		&FeeTransaction{},
		&TeacherSalary{},
		&Notification{},
		&ActivityLog{},
	}
}
