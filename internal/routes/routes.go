package routes

import (
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nexusart/internal/config"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/nexusart/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Health  *handlers.HealthHandler
	Webhook *handlers.WebhookHandler
	Job     *handlers.JobHandler
	Channel *handlers.ChannelHandler
	Account *handlers.AccountHandler
}

func Setup(app *fiber.App, cfg *config.Config, h Handlers) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP. Provider webhooks arrive
	// from a handful of shared IPs and are exempt.
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/webhooks/")
		},
	}))

	api.Get("/health", h.Health.Check)

	// Webhooks authenticate themselves (Twilio signature, billing shared secret)
	webhooks := api.Group("/webhooks")
	webhooks.Post("/whatsapp", h.Webhook.HandleWhatsApp)
	webhooks.Post("/billing", h.Webhook.HandleBilling)

	// Account-facing API (JWT required, sub = account id)
	jwt := middleware.JWTProtected(cfg)

	jobs := api.Group("/jobs", jwt)
	jobs.Post("/", h.Job.Create)
	jobs.Get("/", h.Job.List)
	jobs.Get("/:id", h.Job.Get)

	channels := api.Group("/channels", jwt)
	channels.Post("/", h.Channel.Bind)
	channels.Get("/", h.Channel.List)
	channels.Post("/:id/verify", h.Channel.Verify)
	channels.Delete("/:id", h.Channel.Deactivate)

	api.Get("/account/credits", jwt, h.Account.Credits)
}
