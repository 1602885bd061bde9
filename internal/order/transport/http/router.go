package http

import (
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sakashimaa/go-marketplace/pkg/metrics"
)

type LimiterConfig struct {
	Max        int
	Expiration time.Duration
}

// NewApp builds the fiber app with tracing and per-IP rate limiting. A zero
// Max disables the limiter.
func NewApp(limits LimiterConfig) *fiber.App {
	app := fiber.New()

	app.Use(otelfiber.Middleware())

	if limits.Max > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        limits.Max,
			Expiration: limits.Expiration,
			KeyGenerator: func(c *fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Too many requests. Try again later.",
				})
			},
		}))
	}

	return app
}

func RegisterRoutes(app *fiber.App, h *OrderHandler, stock *StockHandler, jwtSecret []byte) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	api := app.Group("/api", NewAuthMiddleware(jwtSecret))

	order := api.Group("/orders")
	order.Post("", h.Create)
	order.Get("", h.List)
	order.Get("/:id", h.Get)
	order.Patch("/:id/status", h.UpdateStatus)

	api.Get("/products/:id/availability", stock.Availability)
}
