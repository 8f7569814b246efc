package handler

import (
	"errors"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/middleware"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// MaterialHandler serves study materials. Uploads arrive as multipart forms.
type MaterialHandler struct {
	service service.MaterialService
	logger  zerolog.Logger
}

// NewMaterialHandler constructs a material handler.
func NewMaterialHandler(service service.MaterialService, logger zerolog.Logger) *MaterialHandler {
	return &MaterialHandler{
		service: service,
		logger:  logger.With().Str("component", "material_handler").Logger(),
	}
}

// Register wires material routes.
func (h *MaterialHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", middleware.WithAuth(h.create, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Get("/:id", h.get)
	router.Patch("/:id", middleware.WithAuth(h.update, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
	router.Delete("/:id", middleware.WithAuth(h.delete, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *MaterialHandler) list(c *fiber.Ctx) error {
	courseID, err := parseQueryUint(c, "course_id")
	if err != nil {
		return badRequest(c, err)
	}
	week, err := parseQueryInt(c, "week_number")
	if err != nil {
		return badRequest(c, err)
	}

	materials, err := h.service.List(requestContext(c), principalFromContext(c), dto.MaterialListRequest{
		CourseID:     courseID,
		MaterialType: strings.TrimSpace(c.Query("material_type")),
		WeekNumber:   week,
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "materials", materials)
}

func (h *MaterialHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	material, err := h.service.Get(requestContext(c), principalFromContext(c), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "material", material)
}

func (h *MaterialHandler) create(c *fiber.Ctx) error {
	var payload dto.MaterialCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	var file *multipart.FileHeader
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		header, err := c.FormFile("file")
		switch {
		case err == nil:
			file = header
		case !errors.Is(err, fasthttp.ErrMissingFile):
			return utils.Fail(c, fiber.StatusBadRequest, "invalid file upload", nil)
		}
	}

	material, err := h.service.Create(requestContext(c), principalFromContext(c), payload, file)
	if err != nil {
		if errors.Is(err, service.ErrUploadTooLarge) {
			return utils.Fail(c, fiber.StatusRequestEntityTooLarge, err.Error(), nil)
		}
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "material created", material)
}

func (h *MaterialHandler) update(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	var payload dto.MaterialUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}
	material, err := h.service.Update(requestContext(c), principalFromContext(c), id, payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "material updated", material)
}

func (h *MaterialHandler) delete(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return badRequest(c, err)
	}
	if err := h.service.Delete(requestContext(c), principalFromContext(c), id); err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
