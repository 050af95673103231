package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type ChannelHandler struct {
	channelService *services.ChannelService
	validator      *validator.Validate
}

func NewChannelHandler(channelService *services.ChannelService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService, validator: validator.New()}
}

// Bind registers a WhatsApp number and sends it a verification code.
func (h *ChannelHandler) Bind(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.BindChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(c, err)
	}

	binding, err := h.channelService.Bind(c.UserContext(), accountID, req.Phone)
	if err != nil {
		return h.channelError(c, accountID, err)
	}
	return c.Status(fiber.StatusCreated).JSON(binding)
}

func (h *ChannelHandler) List(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}

	bindings, err := h.channelService.List(accountID)
	if err != nil {
		return h.channelError(c, accountID, err)
	}
	return c.JSON(fiber.Map{"channels": bindings})
}

func (h *ChannelHandler) Verify(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}
	bindingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid channel id")
	}

	var req dto.VerifyChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := h.validator.Struct(req); err != nil {
		return validationError(c, err)
	}

	binding, err := h.channelService.Verify(accountID, bindingID, req.Code)
	if err != nil {
		return h.channelError(c, accountID, err)
	}
	return c.JSON(binding)
}

func (h *ChannelHandler) Deactivate(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}
	bindingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid channel id")
	}

	if err := h.channelService.Deactivate(accountID, bindingID); err != nil {
		return h.channelError(c, accountID, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChannelHandler) channelError(c *fiber.Ctx, accountID uuid.UUID, err error) error {
	switch {
	case errors.Is(err, services.ErrInvalidPhone),
		errors.Is(err, services.ErrInvalidCode),
		errors.Is(err, services.ErrCodeExpired):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrChannelNotFound):
		return errorJSON(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrPhoneTaken),
		errors.Is(err, services.ErrAlreadyVerified),
		errors.Is(err, services.ErrLastChannel):
		return errorJSON(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, services.ErrChannelLimit):
		return errorJSON(c, fiber.StatusForbidden, err.Error())
	}
	slog.Error("channel request failed", "account_id", accountID.String(), "path", c.Path(), "error", err)
	return errorJSON(c, fiber.StatusInternalServerError, "Failed to process channel request")
}
