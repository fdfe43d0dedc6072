package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	service "github.com/zdziszkee/swift-registry/internal/services"
)

// SwiftHandler handles API requests for SWIFT codes
type SwiftHandler struct {
	service service.SwiftService
	logger  *zap.Logger
}

// NewSwiftHandler creates a new handler instance
func NewSwiftHandler(service service.SwiftService, logger *zap.Logger) *SwiftHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SwiftHandler{service: service, logger: logger}
}

// GetByCode returns a headquarters with its branches, or a branch alone
func (h *SwiftHandler) GetByCode(c fiber.Ctx) error {
	code := c.Params("swiftCode")

	detail, err := h.service.GetSwiftCodeDetails(c.Context(), code)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(detail)
}

// GetByCountry handles requests for all SWIFT codes by country
func (h *SwiftHandler) GetByCountry(c fiber.Ctx) error {
	codes, err := h.service.GetSwiftCodesByCountry(c.Context(), c.Params("countryISO2"))
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(codes)
}

// Create handles creation of a new SWIFT code
func (h *SwiftHandler) Create(c fiber.Ctx) error {
	var input service.CreateInput

	if err := c.Bind().Body(&input); err != nil {
		h.logger.Debug("invalid request body", zap.Error(err))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"detail": "Invalid request body",
		})
	}

	result, err := h.service.CreateSwiftCode(c.Context(), input)
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// Delete handles soft deletion of a SWIFT code
func (h *SwiftHandler) Delete(c fiber.Ctx) error {
	result, err := h.service.DeleteSwiftCode(c.Context(), c.Params("swiftCode"))
	if err != nil {
		return h.handleError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// handleError maps service error kinds to status codes. Store failures are
// logged by the service and answered with a generic message.
func (h *SwiftHandler) handleError(c fiber.Ctx, err error) error {
	var svcErr *service.Error
	if !errors.As(err, &svcErr) {
		h.logger.Error("unclassified error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Internal server error",
		})
	}

	switch svcErr.Kind {
	case service.KindNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"detail": svcErr.Detail})
	case service.KindValidation:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"detail": svcErr.Detail})
	case service.KindConflict:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"detail": svcErr.Detail})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "Internal server error",
		})
	}
}
