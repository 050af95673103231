package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AccountHandler struct {
	accountService *services.AccountService
}

func NewAccountHandler(accountService *services.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

func (h *AccountHandler) Credits(c *fiber.Ctx) error {
	accountID, err := middleware.GetAccountID(c)
	if err != nil {
		return unauthorized(c)
	}

	credits, err := h.accountService.Credits(accountID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "Account not found")
	}
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to load credits")
	}
	return c.JSON(credits)
}
