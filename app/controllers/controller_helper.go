package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/apperr"
)

// respondAppError maps domain errors onto HTTP statuses with the JSON
// error shape used across the API.
func respondAppError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "internal_server_error"
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status, code = fiber.StatusBadRequest, "validation_failed"
	case apperr.KindNotFound:
		status, code = fiber.StatusNotFound, "not_found"
	case apperr.KindConflict:
		status, code = fiber.StatusConflict, "conflict"
	case apperr.KindSignature:
		status, code = fiber.StatusUnauthorized, "invalid_signature"
	case apperr.KindBelowMinimum:
		status, code = fiber.StatusUnprocessableEntity, "below_minimum"
	case apperr.KindGateway:
		status, code = fiber.StatusBadGateway, "gateway_error"
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": err.Error()})
}
