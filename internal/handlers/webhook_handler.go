package handlers

import (
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/messaging"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type WebhookHandler struct {
	intakeService       *services.IntakeService
	subscriptionService *services.SubscriptionService
	signatures          *messaging.SignatureValidator
	publicURL           string
	billingSecret       string
	validator           *validator.Validate
}

// NewWebhookHandler wires both webhooks. A nil signatures validator disables
// the Twilio signature check, which only makes sense in local development.
func NewWebhookHandler(
	intakeService *services.IntakeService,
	subscriptionService *services.SubscriptionService,
	signatures *messaging.SignatureValidator,
	publicURL string,
	billingSecret string,
) *WebhookHandler {
	return &WebhookHandler{
		intakeService:       intakeService,
		subscriptionService: subscriptionService,
		signatures:          signatures,
		publicURL:           publicURL,
		billingSecret:       billingSecret,
		validator:           validator.New(),
	}
}

// HandleWhatsApp accepts an inbound WhatsApp message from Twilio. The body is
// only a status token; Twilio looks at the status code alone.
func (h *WebhookHandler) HandleWhatsApp(c *fiber.Ctx) error {
	if h.signatures != nil {
		params := make(map[string]string)
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			params[string(k)] = string(v)
		})
		if !h.signatures.Validate(c.Get("X-Twilio-Signature"), h.webhookURL(c), params) {
			slog.Warn("whatsapp webhook rejected", "ip", c.IP(), "error", apperr.ErrSignatureInvalid)
			return errorJSON(c, fiber.StatusForbidden, "Invalid signature")
		}
	}

	var msg dto.WhatsAppInbound
	if err := c.BodyParser(&msg); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid webhook payload")
	}
	if msg.MessageSid == "" || msg.From == "" {
		return errorJSON(c, fiber.StatusBadRequest, "MessageSid and From are required")
	}

	result, err := h.intakeService.HandleInbound(c.UserContext(), &msg)
	if err != nil {
		slog.Error("whatsapp webhook failed", "message_sid", msg.MessageSid, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to process message")
	}

	if result.Duplicate {
		slog.Info("whatsapp webhook replayed", "message_sid", msg.MessageSid, "status", result.Status)
	}
	return c.JSON(dto.WebhookReply{Status: result.Status})
}

// webhookURL is the URL Twilio signed. Behind a proxy the request URL differs,
// so the configured public URL wins.
func (h *WebhookHandler) webhookURL(c *fiber.Ctx) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	return c.BaseURL() + c.OriginalURL()
}

// HandleBilling applies a subscription lifecycle event from the billing collaborator.
func (h *WebhookHandler) HandleBilling(c *fiber.Ctx) error {
	if h.billingSecret == "" {
		return errorJSON(c, fiber.StatusNotFound, "Billing webhook not configured")
	}

	authHeader := c.Get("Authorization")
	if subtle.ConstantTimeCompare([]byte(authHeader), []byte(h.billingSecret)) != 1 {
		return errorJSON(c, fiber.StatusUnauthorized, "Unauthorized")
	}

	var webhook dto.BillingWebhook
	if err := c.BodyParser(&webhook); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid webhook payload")
	}
	if err := h.validator.Struct(&webhook.Event); err != nil {
		return validationError(c, err)
	}

	if err := h.subscriptionService.HandleWebhookEvent(&webhook.Event); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidBillingID), errors.Is(err, services.ErrUnknownPlan):
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrAccountNotFound):
			return errorJSON(c, fiber.StatusNotFound, "Account not found")
		}
		slog.Error("billing webhook failed", "event_type", webhook.Event.Type, "account_id", webhook.Event.AccountID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to process webhook event")
	}

	slog.Info("billing webhook processed", "event_type", webhook.Event.Type, "account_id", webhook.Event.AccountID)
	return c.JSON(fiber.Map{"received": true})
}
