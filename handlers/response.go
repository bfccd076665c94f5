package handlers

import (
	"errors"
	"net/url"
	"strings"

	"github.com/fenilmodi00/ipo-allotment-client/services"
	"github.com/fenilmodi00/ipo-allotment-client/shared"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// errorStatus maps a service error onto an HTTP status code
func errorStatus(err error) int {
	if errors.Is(err, services.ErrPANNotFound) {
		return fiber.StatusNotFound
	}
	if errors.Is(err, services.ErrDuplicatePAN) || errors.Is(err, services.ErrSuperseded) {
		return fiber.StatusConflict
	}

	switch shared.CategoryOf(err) {
	case shared.ErrorCategoryValidation:
		return fiber.StatusBadRequest
	case shared.ErrorCategorySync, shared.ErrorCategoryNetwork:
		return fiber.StatusBadGateway
	case shared.ErrorCategoryTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	body := fiber.Map{
		"success": false,
		"error":   err.Error(),
	}

	var serviceErr *shared.ServiceError
	if errors.As(err, &serviceErr) {
		body["error"] = serviceErr.Message
		body["code"] = serviceErr.Code
		body["retryable"] = serviceErr.Retryable
		if serviceErr.Title != "" {
			body["title"] = serviceErr.Title
		}
	}

	if status >= fiber.StatusInternalServerError && serviceErr != nil {
		serviceErr.LogError()
	} else if status >= fiber.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"component": "Handlers",
			"path":      c.Path(),
			"status":    status,
		}).WithError(err).Error("Request failed")
	}
	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// pathParam returns a URL-decoded route parameter
func pathParam(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return strings.TrimSpace(raw)
}
