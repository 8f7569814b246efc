package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/eduportal-api/internal/dto"
	"github.com/noah-isme/eduportal-api/internal/service"
	"github.com/noah-isme/eduportal-api/internal/utils"
)

// AuthHandler exposes registration, login and profile endpoints.
type AuthHandler struct {
	service      service.AuthService
	loginLimiter fiber.Handler
	logger       zerolog.Logger
}

// NewAuthHandler constructs the handler. loginLimiter may be nil.
func NewAuthHandler(service service.AuthService, loginLimiter fiber.Handler, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		loginLimiter: loginLimiter,
		logger:       logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterPublic binds the unauthenticated routes.
func (h *AuthHandler) RegisterPublic(router fiber.Router) {
	router.Post("/register", h.register)
	if h.loginLimiter != nil {
		router.Post("/login", h.loginLimiter, h.login)
	} else {
		router.Post("/login", h.login)
	}
	router.Post("/refresh", h.refresh)
}

// RegisterProtected binds the routes that need a valid access token.
func (h *AuthHandler) RegisterProtected(router fiber.Router) {
	router.Get("/profile", h.profile)
	router.Put("/profile", h.updateProfile)
}

func (h *AuthHandler) register(c *fiber.Ctx) error {
	var payload dto.RegisterRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	user, err := h.service.Register(requestContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account registered", user)
}

func (h *AuthHandler) login(c *fiber.Ctx) error {
	var payload dto.LoginRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	tokens, err := h.service.Login(requestContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "login successful", tokens)
}

func (h *AuthHandler) refresh(c *fiber.Ctx) error {
	var payload dto.RefreshRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	tokens, err := h.service.Refresh(requestContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "token refreshed", tokens)
}

func (h *AuthHandler) profile(c *fiber.Ctx) error {
	user, err := h.service.Profile(requestContext(c), principalFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "profile", user)
}

func (h *AuthHandler) updateProfile(c *fiber.Ctx) error {
	var payload dto.ProfileUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.Fail(c, fiber.StatusBadRequest, "invalid payload", nil)
	}

	user, err := h.service.UpdateProfile(requestContext(c), principalFromContext(c), payload)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "profile updated", user)
}
