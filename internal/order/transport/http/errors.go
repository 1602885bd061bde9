package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
)

func mapErrorCode(err error) int {
	switch {
	case errors.Is(err, generalDomain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, generalDomain.ErrInsufficientStock):
		return fiber.StatusConflict
	case errors.Is(err, generalDomain.ErrInvalidTransition):
		return fiber.StatusConflict
	case errors.Is(err, generalDomain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, generalDomain.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, generalDomain.ErrInvalidInput):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
