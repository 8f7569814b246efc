package dto

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/noah-isme/eduportal-api/internal/models"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// NewPaginationMeta derives page counts from a total.
func NewPaginationMeta(page, pageSize int, total int64) PaginationMeta {
	if page <= 0 {
		page = 1
	}
	meta := PaginationMeta{Page: page, PageSize: pageSize, TotalItems: total, TotalPages: 1}
	if pageSize > 0 {
		meta.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return meta
}

// PopularCourse is a course ranked by active enrollments.
type PopularCourse struct {
	CourseID      uint   `json:"course_id"`
	Title         string `json:"title"`
	EnrolledCount int64  `json:"enrolled_count"`
}

// AdminStatsResponse summarises platform totals for a time range.
type AdminStatsResponse struct {
	TimeRange          string          `json:"time_range"`
	TotalUsers         int64           `json:"total_users"`
	TotalStudents      int64           `json:"total_students"`
	TotalTeachers      int64           `json:"total_teachers"`
	TotalCourses       int64           `json:"total_courses"`
	ActiveCourses      int64           `json:"active_courses"`
	TotalRevenue       decimal.Decimal `json:"total_revenue"`
	RecentEnrollments  int64           `json:"recent_enrollments"`
	RecentTransactions int64           `json:"recent_transactions"`
	PopularCourses     []PopularCourse `json:"popular_courses"`
	GeneratedAt        time.Time       `json:"generated_at"`
}

// AdminAnalyticsResponse compares the current window against the one before it.
type AdminAnalyticsResponse struct {
	TimeRange              string          `json:"time_range"`
	WindowStart            time.Time       `json:"window_start"`
	WindowEnd              time.Time       `json:"window_end"`
	TotalUsers             int64           `json:"total_users"`
	TotalUsersChange       float64         `json:"total_users_change"`
	ActiveCourses          int64           `json:"active_courses"`
	ActiveCoursesChange    float64         `json:"active_courses_change"`
	TotalRevenue           decimal.Decimal `json:"total_revenue"`
	TotalRevenueChange     float64         `json:"total_revenue_change"`
	TotalEnrollments       int64           `json:"total_enrollments"`
	TotalEnrollmentsChange float64         `json:"total_enrollments_change"`
	RetentionRate          float64         `json:"retention_rate"`
	RetentionRateChange    float64         `json:"retention_rate_change"`
	GeneratedAt            time.Time       `json:"generated_at"`
}

// RecentActivityItem is one entry of the admin timeline.
type RecentActivityItem struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	EntityID    uint      `json:"entity_id"`
}

// AdminActivityListRequest defines filters for retrieving activity logs.
type AdminActivityListRequest struct {
	Page       int
	PageSize   int
	ActorID    uint
	Action     string
	EntityType string
}

// AdminActivityResponse serializes activity log entries.
type AdminActivityResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id"`
	Metadata   map[string]interface{} `json:"metadata"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AdminActivityListResponse wraps paginated activity logs.
type AdminActivityListResponse struct {
	Items      []AdminActivityResponse `json:"items"`
	Pagination PaginationMeta          `json:"pagination"`
}

func metadataFromJSON(data datatypes.JSONMap) map[string]interface{} {
	if data == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}(data)
}

// NewAdminActivityResponse converts a model into an activity DTO.
func NewAdminActivityResponse(entry models.ActivityLog) AdminActivityResponse {
	return AdminActivityResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadataFromJSON(entry.Metadata),
		CreatedAt:  entry.CreatedAt,
	}
}
