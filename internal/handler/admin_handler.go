package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// AdminHandler exposes platform statistics and the audit trail to administrators.
type AdminHandler struct {
	analytics service.AdminAnalyticsService
	activity  service.ActivityService
	logger    zerolog.Logger
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(analytics service.AdminAnalyticsService, activity service.ActivityService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		analytics: analytics,
		activity:  activity,
		logger:    logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register attaches admin routes to the router group.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Get("/stats", h.stats)
	router.Get("/analytics", h.analyticsReport)
	router.Get("/activity", h.activityLog)
	router.Get("/recent-activity", h.recentActivity)
}

func (h *AdminHandler) stats(c *fiber.Ctx) error {
	stats, err := h.analytics.GetStats(requestContext(c), principalFromContext(c), c.Query("range"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "platform stats", stats)
}

func (h *AdminHandler) analyticsReport(c *fiber.Ctx) error {
	report, err := h.analytics.GetAnalytics(requestContext(c), principalFromContext(c), c.Query("range"))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "platform analytics", report)
}

func (h *AdminHandler) recentActivity(c *fiber.Ctx) error {
	items, err := h.analytics.RecentActivity(requestContext(c), principalFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "recent activity", items)
}

func (h *AdminHandler) activityLog(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return badRequest(c, err)
	}
	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return badRequest(c, err)
	}
	actorID, err := parseQueryUint(c, "actor_id")
	if err != nil {
		return badRequest(c, err)
	}

	response, err := h.activity.List(requestContext(c), principalFromContext(c), dto.AdminActivityListRequest{
		Page:       page,
		PageSize:   pageSize,
		ActorID:    actorID,
		Action:     strings.TrimSpace(c.Query("action")),
		EntityType: strings.TrimSpace(c.Query("entity_type")),
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.OK(c, response.Items, "activity logs", response.Pagination)
}
