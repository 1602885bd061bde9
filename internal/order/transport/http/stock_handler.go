package http

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/go-marketplace/pkg/utils"
	"go.uber.org/zap"
)

// AvailabilityChecker answers advisory stock questions. A positive answer is
// no promise: placing the order re-checks atomically.
type AvailabilityChecker interface {
	CheckAvailable(ctx context.Context, productID, quantity int64) (bool, error)
}

type StockHandler struct {
	checker  AvailabilityChecker
	validate *validator.Validate
	logger   *zap.Logger
	timeout  time.Duration
}

func NewStockHandler(checker AvailabilityChecker, timeout time.Duration, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		checker:  checker,
		validate: validator.New(),
		logger:   logger,
		timeout:  timeout,
	}
}

type AvailabilityQuery struct {
	Quantity int64 `query:"quantity" validate:"required,gt=0"`
}

func (h *StockHandler) Availability(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	productID, err := c.ParamsInt("id")
	if err != nil || productID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid product id"})
	}

	query := new(AvailabilityQuery)
	if err := c.QueryParser(query); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid query"})
	}
	if err := h.validate.Struct(query); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation failed",
			"fields": utils.FormatValidationError(err),
		})
	}

	available, err := h.checker.CheckAvailable(ctx, int64(productID), query.Quantity)
	if err != nil {
		return failWith(c, ctx, h.logger, "check availability failed", err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"product_id": productID,
		"quantity":   query.Quantity,
		"available":  available,
	})
}
