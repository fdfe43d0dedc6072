package router

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"go.uber.org/zap"

	handler "github.com/zdziszkee/swift-registry/internal/api/handlers"
	"github.com/zdziszkee/swift-registry/internal/api/middleware"
	"github.com/zdziszkee/swift-registry/internal/metrics"
)

// Config holds the HTTP server settings
type Config struct {
	Address         string        `koanf:"address"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SetupRoutes configures all API routes. m may be nil, in which case no
// metrics endpoint is mounted.
func SetupRoutes(cfg Config, swiftHandler *handler.SwiftHandler, healthHandler *handler.HealthHandler, m *metrics.Metrics, logger *zap.Logger) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "swift-registry",
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			detail := "Internal server error"

			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
				detail = e.Message
			} else {
				logger.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			}

			return c.Status(code).JSON(fiber.Map{"detail": detail})
		},
	})

	// Add global middleware
	app.Use(middleware.RequestLogger(logger, m))
	app.Use(recover.New())

	api := app.Group("/api")
	api.Get("/health", healthHandler.Health)
	api.Get("/ready", healthHandler.Ready)

	// API versioning
	v1 := api.Group("/v1")

	// SWIFT codes endpoints
	v1.Get("/swift-codes/country/:countryISO2", swiftHandler.GetByCountry)
	v1.Get("/swift-codes/:swiftCode", swiftHandler.GetByCode)
	v1.Post("/swift-codes", swiftHandler.Create)
	v1.Delete("/swift-codes/:swiftCode", swiftHandler.Delete)

	if m != nil {
		app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}
	return app
}
